// Package modeltest provides deterministic tokenizer and model fixtures
// for exercising the decoding engine without real weights.
package modeltest

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/railgen/railgen/model"
)

// Tokenizer is a fixed-vocabulary tokenizer whose last token is the
// end-of-sequence marker. Encoding is greedy longest-match.
type Tokenizer struct {
	vocab  *model.Vocabulary
	maxLen int
}

func NewTokenizer(tokens ...string) *Tokenizer {
	values := append(slices.Clone(tokens), "</s>")
	maxLen := 0
	for _, v := range values {
		maxLen = max(maxLen, len(v))
	}
	return &Tokenizer{
		vocab: &model.Vocabulary{
			Values: values,
			EOS:    []int32{int32(len(values) - 1)},
		},
		maxLen: maxLen,
	}
}

// Chars builds a tokenizer whose vocabulary is the distinct runes of s.
func Chars(s string) *Tokenizer {
	seen := make(map[rune]bool)
	var tokens []string
	for _, r := range s {
		if !seen[r] {
			seen[r] = true
			tokens = append(tokens, string(r))
		}
	}
	sort.Strings(tokens)
	return NewTokenizer(tokens...)
}

func (t *Tokenizer) EOS() int32 {
	return t.vocab.EOS[0]
}

func (t *Tokenizer) Vocabulary() *model.Vocabulary {
	return t.vocab
}

func (t *Tokenizer) Encode(s string) ([]int32, error) {
	var ids []int32
	for len(s) > 0 {
		matched := false
		for n := min(t.maxLen, len(s)); n > 0; n-- {
			if id := t.vocab.Encode(s[:n]); id >= 0 {
				ids = append(ids, id)
				s = s[n:]
				matched = true
				break
			}
		}
		if !matched {
			return nil, fmt.Errorf("cannot encode %q", s)
		}
	}
	return ids, nil
}

func (t *Tokenizer) Decode(ids []int32) (string, error) {
	var sb strings.Builder
	for _, id := range ids {
		if id < 0 || int(id) >= len(t.vocab.Values) {
			return "", fmt.Errorf("token id %d out of range", id)
		}
		sb.WriteString(t.vocab.Values[id])
	}
	return sb.String(), nil
}

// SmallestFirst is a model that always prefers the lexicographically
// smallest token string: logits are the negated lexicographic rank.
type SmallestFirst struct {
	tok    *Tokenizer
	logits []float32
}

func NewSmallestFirst(tok *Tokenizer) *SmallestFirst {
	values := tok.Vocabulary().Values
	order := make([]int32, len(values))
	for i := range order {
		order[i] = int32(i)
	}
	sort.SliceStable(order, func(i, j int) bool {
		return values[order[i]] < values[order[j]]
	})
	logits := make([]float32, len(values))
	for rank, id := range order {
		logits[id] = -float32(rank)
	}
	return &SmallestFirst{tok: tok, logits: logits}
}

func (m *SmallestFirst) NextTokenLogits(_ context.Context, _ []int32) ([]float32, error) {
	return slices.Clone(m.logits), nil
}

// Prefer is a model that steers toward a target text: a token extending
// the target from the current position scores by how much of the target
// it consumes, everything else scores below zero by lexicographic rank.
// Once the target is exhausted it prefers end-of-sequence.
type Prefer struct {
	tok    *Tokenizer
	target string
	base   *SmallestFirst
}

func NewPrefer(tok *Tokenizer, target string) *Prefer {
	return &Prefer{tok: tok, target: target, base: NewSmallestFirst(tok)}
}

func (m *Prefer) NextTokenLogits(ctx context.Context, history []int32) ([]float32, error) {
	sofar, err := m.tok.Decode(history)
	if err != nil {
		return nil, err
	}
	logits, err := m.base.NextTokenLogits(ctx, history)
	if err != nil {
		return nil, err
	}
	for i := range logits {
		logits[i] -= float32(len(m.tok.Vocabulary().Values))
	}

	remainder, onTrack := strings.CutPrefix(m.target, sofar)
	if !onTrack {
		return logits, nil
	}
	if remainder == "" {
		logits[m.tok.EOS()] = 1
		return logits, nil
	}
	for i, v := range m.tok.Vocabulary().Values {
		if int32(i) != m.tok.EOS() && strings.HasPrefix(remainder, v) {
			logits[i] = float32(len(v))
		}
	}
	return logits, nil
}
