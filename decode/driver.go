package decode

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strconv"
	"sync/atomic"

	"github.com/railgen/railgen/cache"
	"github.com/railgen/railgen/grammar"
	"github.com/railgen/railgen/model"
)

// Result is a finished generation. Value is non-nil for the schema path
// (the validated, decoded JSON value) and the primitive-type path; Text
// always holds the raw decoded output.
type Result struct {
	Text     string
	Value    any
	TokenIDs []int32
	Status   Status
}

// Driver wires the collaborators together: it compiles or fetches the
// constraint, owns the step loop, and shapes the final result.
type Driver struct {
	cache *cache.Cache
	tok   model.Tokenizer
	model model.Model
}

func NewDriver(c *cache.Cache, tok model.Tokenizer, m model.Model) *Driver {
	return &Driver{cache: c, tok: tok, model: m}
}

// Generate runs one session to completion. The prompt seeds the model's
// history but is not constrained; only generated tokens are. A Truncated
// result is returned as-is, unvalidated, with Value nil.
func (d *Driver) Generate(ctx context.Context, constraint grammar.Constraint, prompt string, opts Options) (*Result, error) {
	entry, err := d.cache.GetOrBuild(constraint, d.tok)
	if err != nil {
		return nil, err
	}
	history, err := d.tok.Encode(prompt)
	if err != nil {
		return nil, err
	}

	sess := NewSession(entry.Machine, entry.Index, d.tok, opts)
	for sess.Status() == Active {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logits, err := d.model.NextTokenLogits(ctx, history)
		if err != nil {
			return nil, err
		}
		id, err := sess.Step(logits)
		if err != nil {
			return nil, err
		}
		history = append(history, id)
	}

	return d.finish(sess, constraint)
}

func (d *Driver) finish(sess *Session, constraint grammar.Constraint) (*Result, error) {
	text, err := sess.Text()
	if err != nil {
		return nil, err
	}
	result := &Result{
		Text:     text,
		TokenIDs: sess.TokenIDs(),
		Status:   sess.Status(),
	}
	slog.Debug("generation finished",
		"session", sess.ID(),
		"steps", sess.steps,
		"status", result.Status.String())

	if result.Status != Completed {
		return result, nil
	}

	switch constraint.Kind() {
	case grammar.KindJSONSchema:
		schema, err := constraint.Schema()
		if err != nil {
			return nil, err
		}
		if err := schema.Validate([]byte(text)); err != nil {
			return nil, fmt.Errorf("generated value failed validation: %w", err)
		}
		if err := json.Unmarshal([]byte(text), &result.Value); err != nil {
			return nil, err
		}

	case grammar.KindType:
		switch constraint.Primitive() {
		case grammar.Integer:
			v, err := strconv.ParseInt(text, 10, 64)
			if err != nil {
				return nil, err
			}
			result.Value = v
		case grammar.Float:
			v, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, err
			}
			result.Value = v
		case grammar.Boolean:
			v, err := strconv.ParseBool(text)
			if err != nil {
				return nil, err
			}
			result.Value = v
		}
	}

	return result, nil
}

// Stream exposes the same loop as a lazy sequence of decoded token
// fragments. The sequence is finite and non-restartable; ranging a second
// time yields an error. Cancelling ctx stops the loop before the next
// model call.
func (d *Driver) Stream(ctx context.Context, constraint grammar.Constraint, prompt string, opts Options) iter.Seq2[string, error] {
	var started atomic.Bool
	return func(yield func(string, error) bool) {
		if !started.CompareAndSwap(false, true) {
			yield("", fmt.Errorf("stream is not restartable"))
			return
		}

		entry, err := d.cache.GetOrBuild(constraint, d.tok)
		if err != nil {
			yield("", err)
			return
		}
		promptIDs, err := d.tok.Encode(prompt)
		if err != nil {
			yield("", err)
			return
		}

		sess := NewSession(entry.Machine, entry.Index, d.tok, opts)
		history := slices.Clone(promptIDs)
		for sess.Status() == Active {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			logits, err := d.model.NextTokenLogits(ctx, history)
			if err != nil {
				yield("", err)
				return
			}
			id, err := sess.Step(logits)
			if err != nil {
				yield("", err)
				return
			}
			if sess.Status() == Completed {
				return
			}
			frag, err := d.tok.Decode([]int32{id})
			if err != nil {
				yield("", err)
				return
			}
			if !yield(frag, nil) {
				return
			}
			history = append(history, id)
		}
	}
}
