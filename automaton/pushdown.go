package automaton

import (
	"encoding/binary"
	"errors"
	"slices"
	"sync"
)

// ErrConfigLimit is reported by Err once the interning arena fills up.
// Transitions past that point are refused, so a session would otherwise
// see an ordinary dead end where the real cause is arena exhaustion.
var ErrConfigLimit = errors.New("stack configuration limit exceeded")

const (
	// maxStackDepth bounds a configuration's stack; deeper nesting is
	// treated as having no transition.
	maxStackDepth = 1024

	// maxExpansions bounds table expansions per consumed rune.
	maxExpansions = 4096

	// maxConfigs bounds the interning arena shared by all sessions.
	maxConfigs = 1 << 18
)

// Pushdown drives a context-free grammar one rune at a time. A machine
// state is an interned stack of grammar symbols (top last); interning is
// append-only and synchronized, so states stay plain indexes that sessions
// and the vocabulary index can share.
type Pushdown struct {
	g    *CFGrammar
	info *cfgInfo

	mu      sync.Mutex
	ids     map[string]uint32
	configs [][]Sym
	fault   error
}

// NewPushdown analyzes the grammar and returns a machine for it. Grammars
// must be unambiguous under single-rune lookahead: leftmost derivation,
// first matching alternative. Conflicts, left recursion and unproductive
// nonterminals are reported as errors here, not at runtime.
func NewPushdown(g *CFGrammar) (*Pushdown, error) {
	info, err := g.analyze()
	if err != nil {
		return nil, err
	}

	p := &Pushdown{
		g:    g,
		info: info,
		ids:  make(map[string]uint32),
	}
	p.intern([]Sym{{Index: 0}})
	return p, nil
}

func configKey(syms []Sym) string {
	b := make([]byte, 0, len(syms)*5)
	for _, sym := range syms {
		if sym.Terminal {
			b = append(b, 1)
		} else {
			b = append(b, 0)
		}
		b = binary.LittleEndian.AppendUint32(b, uint32(sym.Index))
	}
	return string(b)
}

func (p *Pushdown) intern(syms []Sym) (State, bool) {
	key := configKey(syms)

	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.ids[key]; ok {
		return id, true
	}
	if len(p.configs) >= maxConfigs {
		p.fault = ErrConfigLimit
		return 0, false
	}
	id := uint32(len(p.configs))
	p.ids[key] = id
	p.configs = append(p.configs, slices.Clone(syms))
	return id, true
}

func (p *Pushdown) config(s State) []Sym {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.configs[s]
}

func (p *Pushdown) Start() State {
	return 0
}

// Err reports whether the machine has refused transitions for a reason
// other than the input being illegal. It is sticky.
func (p *Pushdown) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fault
}

// Step expands nonterminals on top of the stack until a terminal surfaces,
// then consumes r against it. Expansion picks the unique alternative whose
// selection set contains r, or pops a nullable nonterminal when none does.
func (p *Pushdown) Step(s State, r rune) (State, bool) {
	syms := slices.Clone(p.config(s))

	for range maxExpansions {
		if len(syms) == 0 || len(syms) > maxStackDepth {
			return 0, false
		}

		top := syms[len(syms)-1]
		if top.Terminal {
			if !p.g.Terminals[top.Index].Contains(r) {
				return 0, false
			}
			return p.intern(syms[:len(syms)-1])
		}

		chosen := -1
		for pi, f := range p.info.prodFirst[top.Index] {
			if f.Contains(r) {
				chosen = pi
				break
			}
		}
		if chosen < 0 {
			if !p.info.nullable[top.Index] {
				return 0, false
			}
			syms = syms[:len(syms)-1]
			continue
		}

		prod := p.g.Rules[top.Index][chosen]
		syms = syms[:len(syms)-1]
		for i := len(prod) - 1; i >= 0; i-- {
			syms = append(syms, prod[i])
		}
	}
	return 0, false
}

// IsAccept reports whether the whole remaining stack derives the empty
// string, i.e. the start symbol has been fully consumed.
func (p *Pushdown) IsAccept(s State) bool {
	for _, sym := range p.config(s) {
		if sym.Terminal || !p.info.nullable[sym.Index] {
			return false
		}
	}
	return true
}
