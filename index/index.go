// Package index precomputes, per automaton state, which vocabulary tokens
// are legal continuations and where each one lands. A shared trie over the
// decoded vocabulary is walked alongside the machine so common token
// prefixes are traversed once per state instead of once per token.
package index

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/railgen/railgen/automaton"
	"github.com/railgen/railgen/model"
)

// BuildError reports an internal invariant violation while indexing. It
// does not occur for valid automata and vocabularies.
type BuildError struct {
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build transition index: %v", e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Row maps a legal token id to the machine state reached after consuming
// the token's whole decoded string. End-of-sequence ids map to the state
// itself and appear only in accepting states.
type Row map[int32]automaton.State

type trieNode struct {
	runes    []rune
	children []*trieNode
	tokens   []int32
}

// Index is immutable vocabulary structure plus memoized per-state rows.
// It is safe for concurrent use and shared across sessions.
type Index struct {
	machine automaton.Machine
	root    *trieNode
	eos     []int32

	mu   sync.Mutex
	rows map[automaton.State]Row
}

// Build decodes every vocabulary token once and assembles the trie.
// Tokens that are special (BOS/EOS), empty, or whose bytes are not whole
// UTF-8 characters never enter the trie; a token that does not align with
// the character alphabet is illegal from every state.
func Build(m automaton.Machine, tok model.Tokenizer) (*Index, error) {
	start := time.Now()
	vocab := tok.Vocabulary()

	root := newBuildNode()
	kept := 0
	for i := range vocab.Values {
		id := int32(i)
		if vocab.Is(id, model.SpecialEOS) || vocab.Is(id, model.SpecialBOS) {
			continue
		}
		s, err := tok.Decode([]int32{id})
		if err != nil {
			return nil, &BuildError{Err: fmt.Errorf("decode token %d: %w", id, err)}
		}
		if s == "" || !utf8.ValidString(s) {
			continue
		}
		root.insert(s, id)
		kept++
	}

	ix := &Index{
		machine: m,
		root:    root.finalize(),
		eos:     slices.Clone(vocab.EOS),
		rows:    make(map[automaton.State]Row),
	}
	slog.Debug("built vocabulary trie",
		"tokens", kept,
		"vocab", len(vocab.Values),
		"took", time.Since(start))
	return ix, nil
}

// Row returns the legal-token row for a state, computing and memoizing it
// on first use. Rows are deterministic for given inputs, so racing
// computations of the same row converge on identical contents.
func (ix *Index) Row(s automaton.State) Row {
	ix.mu.Lock()
	row, ok := ix.rows[s]
	ix.mu.Unlock()
	if ok {
		return row
	}

	row = ix.computeRow(s)

	ix.mu.Lock()
	if prior, ok := ix.rows[s]; ok {
		row = prior
	} else {
		ix.rows[s] = row
	}
	ix.mu.Unlock()
	return row
}

func (ix *Index) computeRow(s automaton.State) Row {
	row := make(Row)

	type frame struct {
		n *trieNode
		s automaton.State
	}
	stack := []frame{{ix.root, s}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, id := range f.n.tokens {
			row[id] = f.s
		}
		for i, r := range f.n.runes {
			if next, ok := ix.machine.Step(f.s, r); ok {
				stack = append(stack, frame{f.n.children[i], next})
			}
		}
	}

	if ix.machine.IsAccept(s) {
		for _, id := range ix.eos {
			row[id] = s
		}
	}
	return row
}

type buildNode struct {
	children map[rune]*buildNode
	tokens   []int32
}

func newBuildNode() *buildNode {
	return &buildNode{children: make(map[rune]*buildNode)}
}

func (n *buildNode) insert(s string, id int32) {
	for _, r := range s {
		child, ok := n.children[r]
		if !ok {
			child = newBuildNode()
			n.children[r] = child
		}
		n = child
	}
	n.tokens = append(n.tokens, id)
}

func (n *buildNode) finalize() *trieNode {
	t := &trieNode{tokens: n.tokens}
	if len(n.children) == 0 {
		return t
	}
	t.runes = make([]rune, 0, len(n.children))
	for r := range n.children {
		t.runes = append(t.runes, r)
	}
	slices.Sort(t.runes)
	t.children = make([]*trieNode, len(t.runes))
	for i, r := range t.runes {
		t.children[i] = n.children[r].finalize()
	}
	return t
}
