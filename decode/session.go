// Package decode drives constrained generation: a Session advances one
// token per step by masking the model's logits to the legal set for its
// current automaton state, and the Driver runs sessions to completion or
// streams their fragments.
package decode

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"

	"github.com/railgen/railgen/automaton"
	"github.com/railgen/railgen/index"
	"github.com/railgen/railgen/model"
	"github.com/railgen/railgen/sample"
)

type Status int

const (
	Active Status = iota
	Completed
	Truncated
	Failed
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Completed:
		return "completed"
	case Truncated:
		return "truncated"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// ErrSessionDone is returned by Step once a session has left the Active
// state; terminal states are never re-entered.
var ErrSessionDone = errors.New("session is not active")

// DeadEndError reports a non-accepting state with no legal continuation.
// A correctly pruned machine never produces one; the controller guards
// against it instead of emitting unconstrained text.
type DeadEndError struct {
	State automaton.State
	Step  int
}

func (e *DeadEndError) Error() string {
	return fmt.Sprintf("no legal continuation from state %d at step %d", e.State, e.Step)
}

const DefaultMaxTokens = 256

type Options struct {
	// MaxTokens bounds generated tokens; DefaultMaxTokens when zero.
	// Reaching the bound marks the result Truncated, not failed.
	MaxTokens int

	// Sampler selects among legal tokens; Greedy when nil.
	Sampler sample.Sampler

	// Transforms are applied to the masked logits before sampling.
	Transforms []sample.Transform
}

func (o *Options) defaults() {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Sampler == nil {
		o.Sampler = sample.Greedy()
	}
}

// Session owns the mutable state of one generation: current automaton
// state, emitted tokens and step budget. It is single-owner; methods must
// not be called concurrently.
type Session struct {
	id      string
	machine automaton.Machine
	index   *index.Index
	tok     model.Tokenizer
	opts    Options

	state   automaton.State
	history []int32
	steps   int
	status  Status
}

func NewSession(m automaton.Machine, ix *index.Index, tok model.Tokenizer, opts Options) *Session {
	opts.defaults()
	return &Session{
		id:      uuid.NewString(),
		machine: m,
		index:   ix,
		tok:     tok,
		opts:    opts,
		state:   m.Start(),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Status() Status {
	return s.status
}

// TokenIDs returns the generated token ids, excluding end-of-sequence.
func (s *Session) TokenIDs() []int32 {
	return slices.Clone(s.history)
}

// Text decodes the generated tokens.
func (s *Session) Text() (string, error) {
	return s.tok.Decode(s.history)
}

// Step masks logits to the legal tokens for the current state, samples
// one, and advances. It returns the chosen token id. Choosing an
// end-of-sequence token completes the session; exhausting MaxTokens
// truncates it.
func (s *Session) Step(logits []float32) (int32, error) {
	if s.status != Active {
		return -1, ErrSessionDone
	}
	if got, want := len(logits), s.tok.Vocabulary().Size(); got != want {
		return -1, fmt.Errorf("logits length %d does not match vocabulary size %d", got, want)
	}

	row := s.index.Row(s.state)
	if len(row) == 0 {
		s.status = Failed
		if m, ok := s.machine.(interface{ Err() error }); ok {
			if err := m.Err(); err != nil {
				return -1, fmt.Errorf("machine fault: %w", err)
			}
		}
		return -1, &DeadEndError{State: s.state, Step: s.steps}
	}

	masked := slices.Clone(logits)
	negInf := float32(math.Inf(-1))
	for i := range masked {
		if _, ok := row[int32(i)]; !ok {
			masked[i] = negInf
		}
	}

	id, err := s.opts.Sampler.Sample(masked, s.opts.Transforms...)
	if err != nil {
		s.status = Failed
		return -1, err
	}
	next, ok := row[id]
	if !ok {
		s.status = Failed
		return -1, fmt.Errorf("sampler chose masked token %d", id)
	}

	s.steps++
	if s.tok.Vocabulary().Is(id, model.SpecialEOS) {
		s.status = Completed
		return id, nil
	}

	s.state = next
	s.history = append(s.history, id)
	if s.steps >= s.opts.MaxTokens {
		s.status = Truncated
	}
	return id, nil
}

// LegalTokens returns the token ids legal from the current state, sorted.
// It is a read-only view for diagnostics and tests.
func (s *Session) LegalTokens() []int32 {
	row := s.index.Row(s.state)
	ids := make([]int32, 0, len(row))
	for id := range row {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
