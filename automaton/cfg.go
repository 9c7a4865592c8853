package automaton

import (
	"fmt"
	"slices"
)

// RuneSet is a set of runes stored as sorted, non-overlapping lo,hi pairs.
type RuneSet []rune

// MakeRuneSet normalizes arbitrary inclusive ranges into a RuneSet.
func MakeRuneSet(ranges ...[2]rune) RuneSet {
	rs := make([][2]rune, 0, len(ranges))
	for _, p := range ranges {
		if p[0] <= p[1] {
			rs = append(rs, p)
		}
	}
	slices.SortFunc(rs, func(a, b [2]rune) int {
		if a[0] != b[0] {
			return int(a[0] - b[0])
		}
		return int(a[1] - b[1])
	})

	var set RuneSet
	for _, p := range rs {
		if n := len(set); n > 0 && p[0] <= set[n-1]+1 {
			set[n-1] = max(set[n-1], p[1])
			continue
		}
		set = append(set, p[0], p[1])
	}
	return set
}

func (s RuneSet) Contains(r rune) bool {
	for i := 0; i+1 < len(s); i += 2 {
		if r < s[i] {
			return false
		}
		if r <= s[i+1] {
			return true
		}
	}
	return false
}

func (s RuneSet) Empty() bool {
	return len(s) == 0
}

// Union returns the normalized union of two sets.
func (s RuneSet) Union(t RuneSet) RuneSet {
	var ranges [][2]rune
	for i := 0; i+1 < len(s); i += 2 {
		ranges = append(ranges, [2]rune{s[i], s[i+1]})
	}
	for i := 0; i+1 < len(t); i += 2 {
		ranges = append(ranges, [2]rune{t[i], t[i+1]})
	}
	return MakeRuneSet(ranges...)
}

// Intersects reports whether the two sets share any rune.
func (s RuneSet) Intersects(t RuneSet) bool {
	i, j := 0, 0
	for i+1 < len(s) && j+1 < len(t) {
		if s[i+1] < t[j] {
			i += 2
		} else if t[j+1] < s[i] {
			j += 2
		} else {
			return true
		}
	}
	return false
}

// Sym is one grammar symbol: a terminal (index into Terminals) or a
// nonterminal (index into Rules).
type Sym struct {
	Terminal bool
	Index    int
}

// Production is a right-hand side, leftmost symbol first. An empty
// production derives the empty string.
type Production []Sym

// CFGrammar is a context-free grammar over rune-set terminals.
// Nonterminal 0 is the start symbol.
type CFGrammar struct {
	Terminals []RuneSet
	Rules     [][]Production
	Names     []string
}

func (g *CFGrammar) name(n int) string {
	if n < len(g.Names) {
		return g.Names[n]
	}
	return fmt.Sprintf("#%d", n)
}

type cfgInfo struct {
	nullable  []bool
	first     []RuneSet // per nonterminal
	follow    []RuneSet
	prodFirst [][]RuneSet
}

// analyze computes nullability and FIRST/FOLLOW sets and rejects grammars
// the pushdown machine cannot drive deterministically: unproductive
// nonterminals, left recursion, and LL(1) selection conflicts. Derivations
// are leftmost; the first alternative whose selection set contains the
// lookahead rune wins, and the analysis guarantees at most one does.
func (g *CFGrammar) analyze() (*cfgInfo, error) {
	n := len(g.Rules)

	for i, t := range g.Terminals {
		if t.Empty() {
			return nil, fmt.Errorf("terminal %d is empty", i)
		}
	}

	// productivity
	productive := make([]bool, n)
	for changed := true; changed; {
		changed = false
		for nt, prods := range g.Rules {
			if productive[nt] {
				continue
			}
			for _, prod := range prods {
				ok := true
				for _, sym := range prod {
					if !sym.Terminal && !productive[sym.Index] {
						ok = false
						break
					}
				}
				if ok {
					productive[nt] = true
					changed = true
					break
				}
			}
		}
	}
	for nt := range g.Rules {
		if !productive[nt] {
			return nil, fmt.Errorf("nonterminal %s derives no terminal string", g.name(nt))
		}
	}

	// nullability
	nullable := make([]bool, n)
	for changed := true; changed; {
		changed = false
		for nt, prods := range g.Rules {
			if nullable[nt] {
				continue
			}
			for _, prod := range prods {
				ok := true
				for _, sym := range prod {
					if sym.Terminal || !nullable[sym.Index] {
						ok = false
						break
					}
				}
				if ok {
					nullable[nt] = true
					changed = true
					break
				}
			}
		}
	}

	// left recursion over the nullable-prefix reachability relation
	leftDeps := make([][]int, n)
	for nt, prods := range g.Rules {
		for _, prod := range prods {
			for _, sym := range prod {
				if sym.Terminal {
					break
				}
				leftDeps[nt] = append(leftDeps[nt], sym.Index)
				if !nullable[sym.Index] {
					break
				}
			}
		}
	}
	color := make([]int, n)
	var visit func(nt int) error
	visit = func(nt int) error {
		color[nt] = 1
		for _, dep := range leftDeps[nt] {
			switch color[dep] {
			case 1:
				return fmt.Errorf("left recursion through %s", g.name(dep))
			case 0:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[nt] = 2
		return nil
	}
	for nt := range g.Rules {
		if color[nt] == 0 {
			if err := visit(nt); err != nil {
				return nil, err
			}
		}
	}

	// FIRST
	first := make([]RuneSet, n)
	for changed := true; changed; {
		changed = false
		for nt, prods := range g.Rules {
			for _, prod := range prods {
				f := first[nt]
				for _, sym := range prod {
					if sym.Terminal {
						f = f.Union(g.Terminals[sym.Index])
						break
					}
					f = f.Union(first[sym.Index])
					if !nullable[sym.Index] {
						break
					}
				}
				if !slices.Equal(f, first[nt]) {
					first[nt] = f
					changed = true
				}
			}
		}
	}

	seqFirst := func(syms []Sym) (RuneSet, bool) {
		var f RuneSet
		for _, sym := range syms {
			if sym.Terminal {
				return f.Union(g.Terminals[sym.Index]), false
			}
			f = f.Union(first[sym.Index])
			if !nullable[sym.Index] {
				return f, false
			}
		}
		return f, true
	}

	// FOLLOW
	follow := make([]RuneSet, n)
	for changed := true; changed; {
		changed = false
		for nt, prods := range g.Rules {
			for _, prod := range prods {
				for i, sym := range prod {
					if sym.Terminal {
						continue
					}
					f, tailNullable := seqFirst(prod[i+1:])
					merged := follow[sym.Index].Union(f)
					if tailNullable {
						merged = merged.Union(follow[nt])
					}
					if !slices.Equal(merged, follow[sym.Index]) {
						follow[sym.Index] = merged
						changed = true
					}
				}
			}
		}
	}

	// LL(1) selection conflicts
	prodFirst := make([][]RuneSet, n)
	for nt, prods := range g.Rules {
		prodFirst[nt] = make([]RuneSet, len(prods))
		sawNullable := false
		for pi, prod := range prods {
			f, prodNullable := seqFirst(prod)
			prodFirst[nt][pi] = f
			for pj := range pi {
				if f.Intersects(prodFirst[nt][pj]) {
					return nil, fmt.Errorf("ambiguous alternatives for %s", g.name(nt))
				}
			}
			if prodNullable {
				if sawNullable {
					return nil, fmt.Errorf("ambiguous alternatives for %s", g.name(nt))
				}
				sawNullable = true
			}
		}
		if sawNullable {
			for pi := range prods {
				if prodFirst[nt][pi].Intersects(follow[nt]) {
					return nil, fmt.Errorf("first/follow conflict for %s", g.name(nt))
				}
			}
		}
	}

	return &cfgInfo{
		nullable:  nullable,
		first:     first,
		follow:    follow,
		prodFirst: prodFirst,
	}, nil
}
