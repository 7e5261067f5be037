package evaluator

import (
	"strconv"
	"strings"

	"github.com/packalyst/swiftblade/errs"
)

// exprParser is a recursive-descent parser over the whitelisted
// expression grammar: literals, name/attribute/subscript access, calls,
// arithmetic, comparison, boolean, unary, ternary, and
// list/tuple/set/dict literals. There is no generic eval fallback: any
// construct this grammar cannot produce simply cannot be parsed.
type exprParser struct {
	toks []token
	pos  int
	src  string
}

func parseExpr(src string) (Node, error) {
	lx := newExprLexer(src)
	toks, err := lx.tokenize()
	if err != nil {
		return nil, err
	}
	p := &exprParser{toks: toks, src: src}
	node, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if p.cur().kind != tokEOF {
		return nil, errs.Syntax("unexpected trailing input in expression", src)
	}
	return node, nil
}

func (p *exprParser) cur() token  { return p.toks[p.pos] }
func (p *exprParser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *exprParser) is(kind tokKind, text string) bool {
	t := p.cur()
	return t.kind == kind && (text == "" || t.text == text)
}

func (p *exprParser) expectOp(text string) error {
	if !p.is(tokOp, text) {
		return errs.Syntax("expected '"+text+"'", p.src)
	}
	p.advance()
	return nil
}

// ternary: orExpr ['if' orExpr 'else' ternary]
func (p *exprParser) parseTernary() (Node, error) {
	body, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.is(tokName, "if") {
		p.advance()
		test, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.is(tokName, "else") {
			return nil, errs.Syntax("expected 'else' in conditional expression", p.src)
		}
		p.advance()
		orElse, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		return IfExpNode{Test: test, Body: body, OrElse: orElse}, nil
	}
	return body, nil
}

func (p *exprParser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	values := []Node{left}
	for p.is(tokName, "or") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		values = append(values, right)
	}
	if len(values) == 1 {
		return left, nil
	}
	return BoolOpNode{Op: "or", Values: values}, nil
}

func (p *exprParser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	values := []Node{left}
	for p.is(tokName, "and") {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		values = append(values, right)
	}
	if len(values) == 1 {
		return left, nil
	}
	return BoolOpNode{Op: "and", Values: values}, nil
}

func (p *exprParser) parseNot() (Node, error) {
	if p.is(tokName, "not") {
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return UnaryOpNode{Op: "not", Operand: operand}, nil
	}
	return p.parseComparison()
}

var compareOps = map[string]bool{"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}

func (p *exprParser) parseComparison() (Node, error) {
	left, err := p.parseArith()
	if err != nil {
		return nil, err
	}
	var ops []string
	var comparators []Node
	for {
		if p.cur().kind == tokOp && compareOps[p.cur().text] {
			op := p.advance().text
			right, err := p.parseArith()
			if err != nil {
				return nil, err
			}
			ops = append(ops, op)
			comparators = append(comparators, right)
			continue
		}
		if p.is(tokName, "is") {
			p.advance()
			op := "is"
			if p.is(tokName, "not") {
				p.advance()
				op = "isnot"
			}
			right, err := p.parseArith()
			if err != nil {
				return nil, err
			}
			ops = append(ops, op)
			comparators = append(comparators, right)
			continue
		}
		if p.is(tokName, "in") {
			p.advance()
			right, err := p.parseArith()
			if err != nil {
				return nil, err
			}
			ops = append(ops, "in")
			comparators = append(comparators, right)
			continue
		}
		if p.is(tokName, "not") {
			// lookahead for "not in"
			save := p.pos
			p.advance()
			if p.is(tokName, "in") {
				p.advance()
				right, err := p.parseArith()
				if err != nil {
					return nil, err
				}
				ops = append(ops, "notin")
				comparators = append(comparators, right)
				continue
			}
			p.pos = save
		}
		break
	}
	if len(ops) == 0 {
		return left, nil
	}
	return CompareNode{Left: left, Ops: ops, Comparators: comparators}, nil
}

func (p *exprParser) parseArith() (Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tokOp && (p.cur().text == "+" || p.cur().text == "-") {
		op := p.advance().text
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = BinOpNode{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *exprParser) parseTerm() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tokOp && (p.cur().text == "*" || p.cur().text == "/" || p.cur().text == "//" || p.cur().text == "%") {
		op := p.advance().text
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = BinOpNode{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *exprParser) parseUnary() (Node, error) {
	if p.cur().kind == tokOp && (p.cur().text == "-" || p.cur().text == "+") {
		op := p.advance().text
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return UnaryOpNode{Op: op, Operand: operand}, nil
	}
	return p.parsePower()
}

func (p *exprParser) parsePower() (Node, error) {
	left, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if p.cur().kind == tokOp && p.cur().text == "**" {
		p.advance()
		right, err := p.parseUnary() // right-assoc
		if err != nil {
			return nil, err
		}
		return BinOpNode{Op: "**", Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *exprParser) parsePostfix() (Node, error) {
	node, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.is(tokOp, "."):
			p.advance()
			if p.cur().kind != tokName {
				return nil, errs.Syntax("expected attribute name after '.'", p.src)
			}
			attr := p.advance().text
			if strings.HasPrefix(attr, "_") {
				return nil, errs.Security("access to private/dunder attributes is forbidden: "+attr, p.src)
			}
			node = AttributeNode{Value: node, Attr: attr}
		case p.is(tokOp, "("):
			p.advance()
			var args []Node
			kwargs := map[string]Node{}
			for !p.is(tokOp, ")") {
				if p.cur().kind == tokName && p.toks[p.pos+1].kind == tokOp && p.toks[p.pos+1].text == "=" {
					name := p.advance().text
					p.advance() // '='
					val, err := p.parseTernary()
					if err != nil {
						return nil, err
					}
					kwargs[name] = val
				} else {
					val, err := p.parseTernary()
					if err != nil {
						return nil, err
					}
					args = append(args, val)
				}
				if p.is(tokOp, ",") {
					p.advance()
					continue
				}
				break
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			node = CallNode{Func: node, Args: args, Kwargs: kwargs}
		case p.is(tokOp, "["):
			p.advance()
			var lowN, hiN Node
			hasLow, hasHi, isSlice := false, false, false
			if !p.is(tokOp, ":") {
				lowN, err = p.parseTernary()
				if err != nil {
					return nil, err
				}
				hasLow = true
			}
			if p.is(tokOp, ":") {
				isSlice = true
				p.advance()
				if !p.is(tokOp, "]") {
					hiN, err = p.parseTernary()
					if err != nil {
						return nil, err
					}
					hasHi = true
				}
			}
			if err := p.expectOp("]"); err != nil {
				return nil, err
			}
			if isSlice {
				node = SliceNode{Value: node, Low: lowN, Hi: hiN, HasLow: hasLow, HasHi: hasHi}
			} else {
				node = SubscriptNode{Value: node, Index: lowN}
			}
		default:
			return node, nil
		}
	}
}

func (p *exprParser) parseAtom() (Node, error) {
	t := p.cur()
	switch t.kind {
	case tokNumber:
		p.advance()
		if strings.Contains(t.text, ".") {
			f, err := strconv.ParseFloat(t.text, 64)
			if err != nil {
				return nil, errs.Syntax("invalid number literal: "+t.text, p.src)
			}
			return NumberLit{IsFloat: true, Float: f}, nil
		}
		i, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, errs.Syntax("invalid number literal: "+t.text, p.src)
		}
		return NumberLit{Int: i}, nil
	case tokString:
		p.advance()
		return StringLit{Value: t.text}, nil
	case tokName:
		switch t.text {
		case "True":
			p.advance()
			return BoolLit{Value: true}, nil
		case "False":
			p.advance()
			return BoolLit{Value: false}, nil
		case "None":
			p.advance()
			return NoneLit{}, nil
		}
		p.advance()
		name := t.text
		if strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__") || strings.HasPrefix(name, "_") {
			return nil, errs.Security("access to private/dunder names is forbidden: "+name, p.src)
		}
		return NameNode{Name: name}, nil
	case tokOp:
		switch t.text {
		case "(":
			p.advance()
			first, err := p.parseTernary()
			if err != nil {
				return nil, err
			}
			if p.is(tokOp, ",") {
				elts := []Node{first}
				for p.is(tokOp, ",") {
					p.advance()
					if p.is(tokOp, ")") {
						break
					}
					e, err := p.parseTernary()
					if err != nil {
						return nil, err
					}
					elts = append(elts, e)
				}
				if err := p.expectOp(")"); err != nil {
					return nil, err
				}
				return TupleNode{Elts: elts}, nil
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return first, nil
		case "[":
			p.advance()
			var elts []Node
			for !p.is(tokOp, "]") {
				e, err := p.parseTernary()
				if err != nil {
					return nil, err
				}
				elts = append(elts, e)
				if p.is(tokOp, ",") {
					p.advance()
					continue
				}
				break
			}
			if err := p.expectOp("]"); err != nil {
				return nil, err
			}
			return ListNode{Elts: elts}, nil
		case "{":
			p.advance()
			if p.is(tokOp, "}") {
				p.advance()
				return DictNode{}, nil
			}
			first, err := p.parseTernary()
			if err != nil {
				return nil, err
			}
			if p.is(tokOp, ":") {
				p.advance()
				val, err := p.parseTernary()
				if err != nil {
					return nil, err
				}
				keys := []Node{first}
				vals := []Node{val}
				for p.is(tokOp, ",") {
					p.advance()
					if p.is(tokOp, "}") {
						break
					}
					k, err := p.parseTernary()
					if err != nil {
						return nil, err
					}
					if err := p.expectOp(":"); err != nil {
						return nil, err
					}
					v, err := p.parseTernary()
					if err != nil {
						return nil, err
					}
					keys = append(keys, k)
					vals = append(vals, v)
				}
				if err := p.expectOp("}"); err != nil {
					return nil, err
				}
				return DictNode{Keys: keys, Values: vals}, nil
			}
			elts := []Node{first}
			for p.is(tokOp, ",") {
				p.advance()
				if p.is(tokOp, "}") {
					break
				}
				e, err := p.parseTernary()
				if err != nil {
					return nil, err
				}
				elts = append(elts, e)
			}
			if err := p.expectOp("}"); err != nil {
				return nil, err
			}
			return SetNode{Elts: elts}, nil
		}
	}
	return nil, errs.Syntax("unexpected token in expression: "+t.text, p.src)
}
