package badgerstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// exprEnv resolves the #name / :name placeholders an expression.Builder
// emits, against one candidate document.
type exprEnv struct {
	names  map[string]string
	values map[string]types.AttributeValue
	doc    map[string]types.AttributeValue
}

func (e *exprEnv) attr(placeholder string) (types.AttributeValue, bool) {
	name := placeholder
	if e.names != nil {
		if real, ok := e.names[placeholder]; ok {
			name = real
		}
	}
	v, ok := e.doc[name]
	return v, ok
}

func (e *exprEnv) value(placeholder string) types.AttributeValue {
	return e.values[placeholder]
}

// EvalCondition evaluates a ConditionExpression/FilterExpression/
// KeyConditionExpression string (as produced by
// aws-sdk-go-v2/feature/dynamodb/expression's Builder) against doc. This
// is a compact recursive-descent evaluator scoped to the operator subset
// this repo's own condition compiler (condition/, mutate/) ever emits —
// not a general DynamoDB expression-grammar parser.
func EvalCondition(expr string, names map[string]string, values map[string]types.AttributeValue, doc map[string]types.AttributeValue) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return true, nil
	}
	p := &exprParser{toks: tokenize(expr), env: &exprEnv{names: names, values: values, doc: doc}}
	v, err := p.parseOr()
	if err != nil {
		return false, fmt.Errorf("badgerstore: evaluate expression %q: %w", expr, err)
	}
	if !p.atEnd() {
		return false, fmt.Errorf("badgerstore: trailing tokens in expression %q", expr)
	}
	return v, nil
}

type exprParser struct {
	toks []string
	pos  int
	env  *exprEnv
}

func (p *exprParser) atEnd() bool { return p.pos >= len(p.toks) }

func (p *exprParser) peek() string {
	if p.atEnd() {
		return ""
	}
	return p.toks[p.pos]
}

func (p *exprParser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *exprParser) expect(tok string) error {
	if got := p.next(); !strings.EqualFold(got, tok) {
		return fmt.Errorf("expected %q, got %q", tok, got)
	}
	return nil
}

func (p *exprParser) parseOr() (bool, error) {
	left, err := p.parseAnd()
	if err != nil {
		return false, err
	}
	for strings.EqualFold(p.peek(), "OR") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return false, err
		}
		left = left || right
	}
	return left, nil
}

func (p *exprParser) parseAnd() (bool, error) {
	left, err := p.parseUnary()
	if err != nil {
		return false, err
	}
	for strings.EqualFold(p.peek(), "AND") {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return false, err
		}
		left = left && right
	}
	return left, nil
}

func (p *exprParser) parseUnary() (bool, error) {
	if strings.EqualFold(p.peek(), "NOT") {
		p.next()
		v, err := p.parseUnary()
		if err != nil {
			return false, err
		}
		return !v, nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (bool, error) {
	if p.peek() == "(" {
		p.next()
		v, err := p.parseOr()
		if err != nil {
			return false, err
		}
		if err := p.expect(")"); err != nil {
			return false, err
		}
		return v, nil
	}

	ident := p.next()
	switch strings.ToLower(ident) {
	case "attribute_exists":
		attr, err := p.parseFuncArgAttr()
		if err != nil {
			return false, err
		}
		_, ok := p.env.attr(attr)
		return ok, nil
	case "attribute_not_exists":
		attr, err := p.parseFuncArgAttr()
		if err != nil {
			return false, err
		}
		_, ok := p.env.attr(attr)
		return !ok, nil
	case "begins_with":
		attr, val, err := p.parseFuncArgAttrValue()
		if err != nil {
			return false, err
		}
		av, ok := p.env.attr(attr)
		if !ok {
			return false, nil
		}
		s, sok := av.(*types.AttributeValueMemberS)
		pref, pok := p.env.value(val).(*types.AttributeValueMemberS)
		return sok && pok && strings.HasPrefix(s.Value, pref.Value), nil
	case "contains":
		attr, val, err := p.parseFuncArgAttrValue()
		if err != nil {
			return false, err
		}
		av, ok := p.env.attr(attr)
		if !ok {
			return false, nil
		}
		needle := p.env.value(val)
		return containsValue(av, needle), nil
	case "size":
		if err := p.expect("("); err != nil {
			return false, err
		}
		attr := p.next()
		if err := p.expect(")"); err != nil {
			return false, err
		}
		return p.parseComparisonRHS(sizeOf(p.env, attr))
	}

	// Bare attribute placeholder: compare it against the RHS.
	return p.parseComparisonRHS(func() (types.AttributeValue, bool) { return p.env.attr(ident) })
}

func (p *exprParser) parseFuncArgAttr() (string, error) {
	if err := p.expect("("); err != nil {
		return "", err
	}
	attr := p.next()
	if err := p.expect(")"); err != nil {
		return "", err
	}
	return attr, nil
}

func (p *exprParser) parseFuncArgAttrValue() (attr, val string, err error) {
	if err = p.expect("("); err != nil {
		return
	}
	attr = p.next()
	if err = p.expect(","); err != nil {
		return
	}
	val = p.next()
	if err = p.expect(")"); err != nil {
		return
	}
	return
}

func sizeOf(env *exprEnv, attr string) func() (types.AttributeValue, bool) {
	return func() (types.AttributeValue, bool) {
		av, ok := env.attr(attr)
		if !ok {
			return nil, false
		}
		n := 0
		switch v := av.(type) {
		case *types.AttributeValueMemberS:
			n = len(v.Value)
		case *types.AttributeValueMemberSS:
			n = len(v.Value)
		}
		return &types.AttributeValueMemberN{Value: strconv.Itoa(n)}, true
	}
}

// parseComparisonRHS consumes an operator and its RHS operand(s), then
// resolves lhs; when the lhs attribute is missing the comparison is false,
// and the operands are still consumed so parsing resumes after them.
func (p *exprParser) parseComparisonRHS(lhs func() (types.AttributeValue, bool)) (bool, error) {
	op := p.next()
	switch op {
	case "=", "<>", "<", "<=", ">", ">=":
		rhsTok := p.next()
		lv, ok := lhs()
		if !ok {
			return false, nil
		}
		rv := p.env.value(rhsTok)
		cmp, ok := compareValues(lv, rv)
		if !ok {
			return false, nil
		}
		switch op {
		case "=":
			return cmp == 0, nil
		case "<>":
			return cmp != 0, nil
		case "<":
			return cmp < 0, nil
		case "<=":
			return cmp <= 0, nil
		case ">":
			return cmp > 0, nil
		case ">=":
			return cmp >= 0, nil
		}
	case "IN":
		if err := p.expect("("); err != nil {
			return false, err
		}
		var rvs []types.AttributeValue
		for {
			tok := p.next()
			if tok == ")" {
				break
			}
			if tok == "," {
				continue
			}
			rvs = append(rvs, p.env.value(tok))
		}
		lv, ok := lhs()
		if !ok {
			return false, nil
		}
		found := false
		for _, rv := range rvs {
			if cmp, ok := compareValues(lv, rv); ok && cmp == 0 {
				found = true
			}
		}
		return found, nil
	case "BETWEEN":
		loTok := p.next()
		if err := p.expect("AND"); err != nil {
			return false, err
		}
		hiTok := p.next()
		lv, ok := lhs()
		if !ok {
			return false, nil
		}
		lo, hi := p.env.value(loTok), p.env.value(hiTok)
		cmpLo, ok1 := compareValues(lv, lo)
		cmpHi, ok2 := compareValues(lv, hi)
		return ok1 && ok2 && cmpLo >= 0 && cmpHi <= 0, nil
	}
	return false, fmt.Errorf("unsupported operator %q", op)
}

func compareValues(a, b types.AttributeValue) (int, bool) {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, false
		}
		return strings.Compare(av.Value, bv.Value), true
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return 0, false
		}
		fa, err1 := strconv.ParseFloat(av.Value, 64)
		fb, err2 := strconv.ParseFloat(bv.Value, 64)
		if err1 != nil || err2 != nil {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		if !ok {
			return 0, false
		}
		if av.Value == bv.Value {
			return 0, true
		}
		return 1, true
	}
	return 0, false
}

func containsValue(haystack, needle types.AttributeValue) bool {
	switch h := haystack.(type) {
	case *types.AttributeValueMemberS:
		n, ok := needle.(*types.AttributeValueMemberS)
		return ok && strings.Contains(h.Value, n.Value)
	case *types.AttributeValueMemberSS:
		n, ok := needle.(*types.AttributeValueMemberS)
		if !ok {
			return false
		}
		for _, m := range h.Value {
			if m == n.Value {
				return true
			}
		}
	}
	return false
}

// tokenize splits a compiled expression string into a flat token stream:
// identifiers/placeholders, parens, commas, and the multi-char comparison
// operators, all separated from surrounding whitespace.
func tokenize(expr string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	runes := []rune(expr)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			flush()
		case c == '(' || c == ')' || c == ',':
			flush()
			toks = append(toks, string(c))
		case c == '<' || c == '>':
			flush()
			if i+1 < len(runes) && (runes[i+1] == '=' || (c == '<' && runes[i+1] == '>')) {
				toks = append(toks, string(c)+string(runes[i+1]))
				i++
			} else {
				toks = append(toks, string(c))
			}
		default:
			cur.WriteRune(c)
		}
	}
	flush()
	return toks
}
