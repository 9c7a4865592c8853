// Package automaton provides the character-level machines constraints
// compile to: a deterministic finite automaton held in a flat state arena,
// and a pushdown machine for context-free grammars whose stack
// configurations are interned into the same kind of index space.
//
// States are plain indexes, never pointers, so cyclic graphs are shared
// immutably across sessions and goroutines.
package automaton

import "sort"

// State identifies a machine state. For a DFA it is an index into the
// state arena; for a pushdown machine it is an interned configuration id.
type State = uint32

// Machine is the stepping surface shared by every constraint kind.
//
// Implementations guarantee that no reachable state is a dead end: a state
// is accepting, or some rune leads somewhere a match can still complete.
type Machine interface {
	// Start returns the initial state.
	Start() State

	// Step consumes one rune. The second result is false when the rune has
	// no transition, in which case the first result is meaningless.
	Step(s State, r rune) (State, bool)

	// IsAccept reports whether the text consumed so far is a complete
	// member of the language.
	IsAccept(s State) bool
}

type edge struct {
	lo, hi rune
	to     uint32
}

type dfaState struct {
	edges  []edge // sorted by lo, non-overlapping
	accept bool
}

// DFA is a deterministic automaton over rune-range edges.
type DFA struct {
	states []dfaState
	start  uint32
}

func (d *DFA) Start() State {
	return d.start
}

func (d *DFA) Step(s State, r rune) (State, bool) {
	edges := d.states[s].edges
	i := sort.Search(len(edges), func(i int) bool { return edges[i].hi >= r })
	if i < len(edges) && edges[i].lo <= r && r <= edges[i].hi {
		return edges[i].to, true
	}
	return 0, false
}

func (d *DFA) IsAccept(s State) bool {
	return d.states[s].accept
}

// Len returns the number of states in the arena.
func (d *DFA) Len() int {
	return len(d.states)
}

// prune drops states from which no accepting state is reachable and
// remaps the survivors. It reports false when the start state itself is
// dead, i.e. the language is empty.
func (d *DFA) prune() bool {
	n := len(d.states)

	// reverse adjacency
	rev := make([][]uint32, n)
	for i, st := range d.states {
		for _, e := range st.edges {
			rev[e.to] = append(rev[e.to], uint32(i))
		}
	}

	alive := make([]bool, n)
	var queue []uint32
	for i, st := range d.states {
		if st.accept {
			alive[i] = true
			queue = append(queue, uint32(i))
		}
	}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		for _, p := range rev[s] {
			if !alive[p] {
				alive[p] = true
				queue = append(queue, p)
			}
		}
	}

	if !alive[d.start] {
		return false
	}

	remap := make([]uint32, n)
	var kept []dfaState
	for i := range d.states {
		if alive[i] {
			remap[i] = uint32(len(kept))
			kept = append(kept, d.states[i])
		}
	}
	for i := range kept {
		edges := kept[i].edges[:0]
		for _, e := range kept[i].edges {
			if alive[e.to] {
				e.to = remap[e.to]
				edges = append(edges, e)
			}
		}
		kept[i].edges = edges
	}

	d.start = remap[d.start]
	d.states = kept
	return true
}
