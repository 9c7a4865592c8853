package automaton

import (
	"errors"
	"fmt"
	"regexp/syntax"
	"slices"
	"strconv"
	"unicode"
	"unicode/utf8"
)

// Subset construction is capped so pathological patterns fail fast instead
// of exhausting memory.
const maxDFAStates = 1 << 14

var (
	// ErrStateLimit is returned when determinization exceeds maxDFAStates.
	ErrStateLimit = errors.New("state limit exceeded")

	// ErrEmptyLanguage is returned when a pattern matches no strings at
	// all, which would leave a session with nothing legal to emit.
	ErrEmptyLanguage = errors.New("pattern matches no strings")
)

// CompileRegex parses a regular expression, builds the Thompson program
// with regexp/syntax, determinizes it by subset construction and prunes
// states that cannot reach an accepting state. The pattern is matched
// against the whole generated text, as if anchored on both ends.
func CompileRegex(pattern string) (*DFA, error) {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return nil, err
	}
	if err := checkSupported(re); err != nil {
		return nil, err
	}
	re = re.Simplify()
	unfold(re)

	prog, err := syntax.Compile(re)
	if err != nil {
		return nil, err
	}

	b := dfaBuilder{prog: prog}
	d, err := b.build()
	if err != nil {
		return nil, err
	}
	if !d.prune() {
		return nil, ErrEmptyLanguage
	}
	return d, nil
}

func checkSupported(re *syntax.Regexp) error {
	switch re.Op {
	case syntax.OpWordBoundary, syntax.OpNoWordBoundary:
		return fmt.Errorf("unsupported construct %q", `\b`)
	}
	for _, sub := range re.Sub {
		if err := checkSupported(sub); err != nil {
			return err
		}
	}
	return nil
}

// unfold rewrites case-insensitive literals into explicit character
// classes so the compiled program carries no fold flags. Character classes
// are already fold-expanded by the parser.
func unfold(re *syntax.Regexp) {
	for _, sub := range re.Sub {
		unfold(sub)
	}
	if re.Op != syntax.OpLiteral || re.Flags&syntax.FoldCase == 0 {
		return
	}

	subs := make([]*syntax.Regexp, len(re.Rune))
	for i, r := range re.Rune {
		subs[i] = &syntax.Regexp{Op: syntax.OpCharClass, Rune: foldSet(r)}
	}
	re.Op = syntax.OpConcat
	re.Sub = subs
	re.Rune = nil
	re.Flags &^= syntax.FoldCase
}

// foldSet returns the full simple-fold orbit of r as sorted lo,hi pairs.
func foldSet(r rune) []rune {
	orbit := []rune{r}
	for f := unicode.SimpleFold(r); f != r; f = unicode.SimpleFold(f) {
		orbit = append(orbit, f)
	}
	slices.Sort(orbit)
	var pairs []rune
	for _, f := range orbit {
		if n := len(pairs); n > 0 && pairs[n-1] == f-1 {
			pairs[n-1] = f
			continue
		}
		pairs = append(pairs, f, f)
	}
	return pairs
}

type dfaBuilder struct {
	prog *syntax.Prog
}

func (b *dfaBuilder) build() (*DFA, error) {
	d := &DFA{}
	ids := make(map[string]uint32)
	var sets [][]uint32

	add := func(set []uint32) (uint32, error) {
		key := setKey(set)
		if id, ok := ids[key]; ok {
			return id, nil
		}
		if len(d.states) >= maxDFAStates {
			return 0, ErrStateLimit
		}
		id := uint32(len(d.states))
		ids[key] = id
		sets = append(sets, set)
		d.states = append(d.states, dfaState{accept: b.accepts(set)})
		return id, nil
	}

	start, err := add(b.closure([]uint32{uint32(b.prog.Start)}, true))
	if err != nil {
		return nil, err
	}
	d.start = start

	for next := 0; next < len(sets); next++ {
		set := sets[next]
		for _, iv := range b.intervals(set) {
			step := b.step(set, iv.lo)
			if len(step) == 0 {
				continue
			}
			to, err := add(step)
			if err != nil {
				return nil, err
			}
			st := &d.states[next]
			if n := len(st.edges); n > 0 && st.edges[n-1].to == to && st.edges[n-1].hi == iv.lo-1 {
				st.edges[n-1].hi = iv.hi
			} else {
				st.edges = append(st.edges, edge{lo: iv.lo, hi: iv.hi, to: to})
			}
		}
	}

	return d, nil
}

// closure expands a program counter set through alternations and
// satisfied zero-width assertions. End-of-text assertions stay in the set
// unexpanded; accepts resolves them.
func (b *dfaBuilder) closure(pcs []uint32, atStart bool) []uint32 {
	seen := make(map[uint32]bool)
	var keep []uint32
	stack := slices.Clone(pcs)
	for len(stack) > 0 {
		pc := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[pc] {
			continue
		}
		seen[pc] = true

		inst := &b.prog.Inst[pc]
		switch inst.Op {
		case syntax.InstAlt, syntax.InstAltMatch:
			stack = append(stack, inst.Out, inst.Arg)
		case syntax.InstCapture, syntax.InstNop:
			stack = append(stack, inst.Out)
		case syntax.InstEmptyWidth:
			op := syntax.EmptyOp(inst.Arg)
			switch {
			case op&(syntax.EmptyEndText|syntax.EmptyEndLine) != 0:
				keep = append(keep, pc)
			case op&(syntax.EmptyBeginText|syntax.EmptyBeginLine) != 0 && !atStart:
				// unsatisfiable mid-text, drop
			default:
				stack = append(stack, inst.Out)
			}
		case syntax.InstRune, syntax.InstRune1, syntax.InstRuneAny, syntax.InstRuneAnyNotNL, syntax.InstMatch:
			keep = append(keep, pc)
		case syntax.InstFail:
		}
	}
	slices.Sort(keep)
	return keep
}

// accepts reports whether the set reaches InstMatch once end-of-text
// assertions are allowed to fire.
func (b *dfaBuilder) accepts(set []uint32) bool {
	seen := make(map[uint32]bool)
	stack := slices.Clone(set)
	for len(stack) > 0 {
		pc := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[pc] {
			continue
		}
		seen[pc] = true

		inst := &b.prog.Inst[pc]
		switch inst.Op {
		case syntax.InstMatch:
			return true
		case syntax.InstAlt, syntax.InstAltMatch:
			stack = append(stack, inst.Out, inst.Arg)
		case syntax.InstCapture, syntax.InstNop:
			stack = append(stack, inst.Out)
		case syntax.InstEmptyWidth:
			if syntax.EmptyOp(inst.Arg)&(syntax.EmptyBeginText|syntax.EmptyBeginLine) == 0 {
				stack = append(stack, inst.Out)
			}
		}
	}
	return false
}

type interval struct {
	lo, hi rune
}

// intervals partitions the rune space into ranges over which every rune
// instruction in the set behaves identically.
func (b *dfaBuilder) intervals(set []uint32) []interval {
	var points []rune
	for _, pc := range set {
		inst := &b.prog.Inst[pc]
		for _, p := range instRanges(inst) {
			points = append(points, p.lo)
			if p.hi < utf8.MaxRune {
				points = append(points, p.hi+1)
			}
		}
	}
	if len(points) == 0 {
		return nil
	}
	slices.Sort(points)
	points = slices.Compact(points)

	var ivs []interval
	for i, lo := range points {
		hi := rune(utf8.MaxRune)
		if i+1 < len(points) {
			hi = points[i+1] - 1
		}
		if b.anyMatch(set, lo) {
			ivs = append(ivs, interval{lo: lo, hi: hi})
		}
	}
	return ivs
}

func (b *dfaBuilder) anyMatch(set []uint32, r rune) bool {
	for _, pc := range set {
		inst := &b.prog.Inst[pc]
		if isRuneInst(inst) && inst.MatchRune(r) {
			return true
		}
	}
	return false
}

func (b *dfaBuilder) step(set []uint32, r rune) []uint32 {
	var next []uint32
	for _, pc := range set {
		inst := &b.prog.Inst[pc]
		if isRuneInst(inst) && inst.MatchRune(r) {
			next = append(next, inst.Out)
		}
	}
	if len(next) == 0 {
		return nil
	}
	return b.closure(next, false)
}

func isRuneInst(inst *syntax.Inst) bool {
	switch inst.Op {
	case syntax.InstRune, syntax.InstRune1, syntax.InstRuneAny, syntax.InstRuneAnyNotNL:
		return true
	}
	return false
}

func instRanges(inst *syntax.Inst) []interval {
	switch inst.Op {
	case syntax.InstRune1:
		return []interval{{inst.Rune[0], inst.Rune[0]}}
	case syntax.InstRuneAny:
		return []interval{{0, utf8.MaxRune}}
	case syntax.InstRuneAnyNotNL:
		return []interval{{0, '\n' - 1}, {'\n' + 1, utf8.MaxRune}}
	case syntax.InstRune:
		if len(inst.Rune) == 1 {
			return []interval{{inst.Rune[0], inst.Rune[0]}}
		}
		ivs := make([]interval, 0, len(inst.Rune)/2)
		for i := 0; i+1 < len(inst.Rune); i += 2 {
			ivs = append(ivs, interval{inst.Rune[i], inst.Rune[i+1]})
		}
		return ivs
	}
	return nil
}

func setKey(set []uint32) string {
	b := make([]byte, 0, len(set)*5)
	for _, pc := range set {
		b = strconv.AppendUint(b, uint64(pc), 36)
		b = append(b, ',')
	}
	return string(b)
}
