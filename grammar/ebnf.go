package grammar

import (
	"encoding/binary"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/railgen/railgen/automaton"
)

// The grammar path accepts an EBNF dialect in the GBNF style:
//
//	root  ::= "(" expr ")" | num
//	expr  ::= root ("+" root)*
//	num   ::= [0-9]+
//
// Rules are name ::= alternation; elements are quoted literals, bracketed
// character classes, parenthesized groups and rule references, with the
// usual * + ? suffixes. "#" starts a comment. A root rule is required.

type ebnfExpr interface{}

type (
	eLit   string                 // quoted literal, matched rune by rune
	eClass automaton.RuneSet      // character class
	eRef   string                 // rule reference
	eSeq   []ebnfExpr             // concatenation
	eAlt   []ebnfExpr             // alternation
	eRep   struct {               // quantified subexpression
		sub ebnfExpr
		op  byte // '*', '+' or '?'
	}
)

type ebnfRule struct {
	name string
	expr ebnfExpr
}

func parseEBNF(src string) (*automaton.CFGrammar, error) {
	p := &ebnfParser{src: src, line: 1}
	rules, err := p.parse()
	if err != nil {
		return nil, err
	}
	return lowerRules(rules)
}

type ebnfParser struct {
	src  string
	pos  int
	line int
}

func (p *ebnfParser) errf(format string, args ...any) error {
	return fmt.Errorf("line %d: %s", p.line, fmt.Sprintf(format, args...))
}

func (p *ebnfParser) skipSpace() {
	for p.pos < len(p.src) {
		switch c := p.src[p.pos]; {
		case c == '#':
			for p.pos < len(p.src) && p.src[p.pos] != '\n' {
				p.pos++
			}
		case c == '\n':
			p.line++
			p.pos++
		case c == ' ' || c == '\t' || c == '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *ebnfParser) peek() byte {
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

func isIdentByte(c byte) bool {
	return c == '-' || c == '_' ||
		'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9'
}

func (p *ebnfParser) ident() string {
	start := p.pos
	for p.pos < len(p.src) && isIdentByte(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

// atRuleStart reports whether the cursor sits on `name ::=`.
func (p *ebnfParser) atRuleStart() bool {
	save := p.pos
	defer func() { p.pos = save }()
	if !isIdentByte(p.peek()) {
		return false
	}
	p.ident()
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
	return strings.HasPrefix(p.src[p.pos:], "::=")
}

func (p *ebnfParser) parse() ([]ebnfRule, error) {
	var rules []ebnfRule
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			break
		}
		if !isIdentByte(p.peek()) {
			return nil, p.errf("expected rule name, got %q", p.src[p.pos])
		}
		name := p.ident()
		p.skipSpace()
		if !strings.HasPrefix(p.src[p.pos:], "::=") {
			return nil, p.errf("expected ::= after %q", name)
		}
		p.pos += 3
		expr, err := p.alternation()
		if err != nil {
			return nil, err
		}
		rules = append(rules, ebnfRule{name: name, expr: expr})
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("empty grammar")
	}
	return rules, nil
}

func (p *ebnfParser) alternation() (ebnfExpr, error) {
	var alts []ebnfExpr
	for {
		seq, err := p.sequence()
		if err != nil {
			return nil, err
		}
		alts = append(alts, seq)
		p.skipSpace()
		if p.peek() != '|' {
			break
		}
		p.pos++
	}
	if len(alts) == 1 {
		return alts[0], nil
	}
	return eAlt(alts), nil
}

func (p *ebnfParser) sequence() (ebnfExpr, error) {
	var seq eSeq
	for {
		p.skipSpace()
		c := p.peek()
		if c == 0 || c == '|' || c == ')' || p.atRuleStart() {
			break
		}

		var item ebnfExpr
		var err error
		switch {
		case c == '"':
			item, err = p.literal()
		case c == '[':
			item, err = p.class()
		case c == '(':
			p.pos++
			item, err = p.alternation()
			if err == nil {
				p.skipSpace()
				if p.peek() != ')' {
					return nil, p.errf("missing )")
				}
				p.pos++
			}
		case isIdentByte(c):
			item = eRef(p.ident())
		default:
			return nil, p.errf("unexpected %q", c)
		}
		if err != nil {
			return nil, err
		}

		if op := p.peek(); op == '*' || op == '+' || op == '?' {
			p.pos++
			item = eRep{sub: item, op: op}
		}
		seq = append(seq, item)
	}
	return seq, nil
}

func (p *ebnfParser) literal() (ebnfExpr, error) {
	p.pos++ // opening quote
	var sb strings.Builder
	for {
		if p.pos >= len(p.src) {
			return nil, p.errf("unterminated literal")
		}
		c := p.src[p.pos]
		if c == '"' {
			p.pos++
			break
		}
		if c == '\n' {
			return nil, p.errf("newline in literal")
		}
		if c == '\\' {
			r, err := p.escape()
			if err != nil {
				return nil, err
			}
			sb.WriteRune(r)
			continue
		}
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		p.pos += size
		sb.WriteRune(r)
	}
	if sb.Len() == 0 {
		return eSeq(nil), nil
	}
	return eLit(sb.String()), nil
}

func (p *ebnfParser) class() (ebnfExpr, error) {
	p.pos++ // opening bracket
	negate := false
	if p.peek() == '^' {
		negate = true
		p.pos++
	}

	var ranges [][2]rune
	for {
		if p.pos >= len(p.src) {
			return nil, p.errf("unterminated character class")
		}
		if p.src[p.pos] == ']' {
			p.pos++
			break
		}
		lo, err := p.classRune()
		if err != nil {
			return nil, err
		}
		hi := lo
		if p.peek() == '-' && p.pos+1 < len(p.src) && p.src[p.pos+1] != ']' {
			p.pos++
			hi, err = p.classRune()
			if err != nil {
				return nil, err
			}
			if hi < lo {
				return nil, p.errf("invalid range %c-%c", lo, hi)
			}
		}
		ranges = append(ranges, [2]rune{lo, hi})
	}

	set := automaton.MakeRuneSet(ranges...)
	if negate {
		set = complement(set)
	}
	if set.Empty() {
		return nil, p.errf("empty character class")
	}
	return eClass(set), nil
}

func (p *ebnfParser) classRune() (rune, error) {
	if p.src[p.pos] == '\\' {
		return p.escape()
	}
	r, size := utf8.DecodeRuneInString(p.src[p.pos:])
	p.pos += size
	return r, nil
}

func (p *ebnfParser) escape() (rune, error) {
	p.pos++ // backslash
	if p.pos >= len(p.src) {
		return 0, p.errf("dangling escape")
	}
	c := p.src[p.pos]
	p.pos++
	switch c {
	case 'n':
		return '\n', nil
	case 't':
		return '\t', nil
	case 'r':
		return '\r', nil
	case '"', '\\', '[', ']', '-', '^':
		return rune(c), nil
	case 'x', 'u', 'U':
		width := map[byte]int{'x': 2, 'u': 4, 'U': 8}[c]
		if p.pos+width > len(p.src) {
			return 0, p.errf("truncated \\%c escape", c)
		}
		n, err := strconv.ParseUint(p.src[p.pos:p.pos+width], 16, 32)
		if err != nil || n > utf8.MaxRune {
			return 0, p.errf("invalid \\%c escape", c)
		}
		p.pos += width
		return rune(n), nil
	}
	return 0, p.errf("unknown escape \\%c", c)
}

func complement(set automaton.RuneSet) automaton.RuneSet {
	var ranges [][2]rune
	next := rune(0)
	for i := 0; i+1 < len(set); i += 2 {
		if set[i] > next {
			ranges = append(ranges, [2]rune{next, set[i] - 1})
		}
		next = set[i+1] + 1
	}
	if next <= utf8.MaxRune {
		ranges = append(ranges, [2]rune{next, utf8.MaxRune})
	}
	return automaton.MakeRuneSet(ranges...)
}

// lowering

type cfgBuilder struct {
	g       automaton.CFGrammar
	ruleIdx map[string]int
	termIdx map[string]int
}

func lowerRules(rules []ebnfRule) (*automaton.CFGrammar, error) {
	b := &cfgBuilder{
		ruleIdx: make(map[string]int),
		termIdx: make(map[string]int),
	}
	b.nonterm("root")

	defined := make(map[string]bool)
	for _, rule := range rules {
		if defined[rule.name] {
			return nil, fmt.Errorf("rule %q defined twice", rule.name)
		}
		defined[rule.name] = true
		nt := b.nonterm(rule.name)
		for _, alt := range flattenAlts(rule.expr) {
			prod, err := b.lower(alt)
			if err != nil {
				return nil, err
			}
			b.g.Rules[nt] = append(b.g.Rules[nt], prod)
		}
	}

	if !defined["root"] {
		return nil, fmt.Errorf("missing root rule")
	}
	for name, nt := range b.ruleIdx {
		if len(b.g.Rules[nt]) == 0 {
			return nil, fmt.Errorf("rule %q referenced but not defined", name)
		}
	}
	return &b.g, nil
}

func flattenAlts(e ebnfExpr) []ebnfExpr {
	if alt, ok := e.(eAlt); ok {
		return alt
	}
	return []ebnfExpr{e}
}

func (b *cfgBuilder) nonterm(name string) int {
	if nt, ok := b.ruleIdx[name]; ok {
		return nt
	}
	nt := len(b.g.Rules)
	b.ruleIdx[name] = nt
	b.g.Rules = append(b.g.Rules, nil)
	b.g.Names = append(b.g.Names, name)
	return nt
}

func (b *cfgBuilder) fresh(kind string) int {
	nt := len(b.g.Rules)
	b.g.Rules = append(b.g.Rules, nil)
	b.g.Names = append(b.g.Names, fmt.Sprintf("%s@%d", kind, nt))
	return nt
}

func (b *cfgBuilder) terminal(set automaton.RuneSet) automaton.Sym {
	key := string(runesKey(set))
	if t, ok := b.termIdx[key]; ok {
		return automaton.Sym{Terminal: true, Index: t}
	}
	t := len(b.g.Terminals)
	b.termIdx[key] = t
	b.g.Terminals = append(b.g.Terminals, set)
	return automaton.Sym{Terminal: true, Index: t}
}

func runesKey(set automaton.RuneSet) []byte {
	out := make([]byte, 0, len(set)*4)
	for _, r := range set {
		out = binary.LittleEndian.AppendUint32(out, uint32(r))
	}
	return out
}

// star allocates rep ::= sub rep | ε.
func (b *cfgBuilder) star(sub automaton.Production) int {
	nt := b.fresh("rep")
	b.g.Rules[nt] = append(b.g.Rules[nt],
		append(slices.Clone(sub), automaton.Sym{Index: nt}),
		automaton.Production{})
	return nt
}

func (b *cfgBuilder) lower(e ebnfExpr) (automaton.Production, error) {
	switch e := e.(type) {
	case eSeq:
		var prod automaton.Production
		for _, sub := range e {
			part, err := b.lower(sub)
			if err != nil {
				return nil, err
			}
			prod = append(prod, part...)
		}
		return prod, nil

	case eLit:
		prod := make(automaton.Production, 0, len(e))
		for _, r := range string(e) {
			prod = append(prod, b.terminal(automaton.MakeRuneSet([2]rune{r, r})))
		}
		return prod, nil

	case eClass:
		return automaton.Production{b.terminal(automaton.RuneSet(e))}, nil

	case eRef:
		return automaton.Production{{Index: b.nonterm(string(e))}}, nil

	case eAlt:
		nt := b.fresh("alt")
		for _, alt := range e {
			prod, err := b.lower(alt)
			if err != nil {
				return nil, err
			}
			b.g.Rules[nt] = append(b.g.Rules[nt], prod)
		}
		return automaton.Production{{Index: nt}}, nil

	case eRep:
		sub, err := b.lower(e.sub)
		if err != nil {
			return nil, err
		}
		switch e.op {
		case '*':
			return automaton.Production{{Index: b.star(sub)}}, nil
		case '+':
			// sub followed by its own star rule keeps selection LL(1)
			return append(slices.Clone(sub), automaton.Sym{Index: b.star(sub)}), nil
		case '?':
			nt := b.fresh("opt")
			b.g.Rules[nt] = append(b.g.Rules[nt], sub, automaton.Production{})
			return automaton.Production{{Index: nt}}, nil
		}
		return nil, fmt.Errorf("unknown quantifier %q", e.op)
	}
	return nil, fmt.Errorf("unhandled grammar expression %T", e)
}
