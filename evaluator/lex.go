package evaluator

import (
	"strings"
	"unicode"

	"github.com/packalyst/swiftblade/errs"
)

type tokKind int

const (
	tokEOF tokKind = iota
	tokNumber
	tokString
	tokName
	tokOp
)

type token struct {
	kind tokKind
	text string
}

// exprLexer tokenizes the small expression sub-language: numbers,
// quoted strings, bare names/keywords, and the fixed operator set.
type exprLexer struct {
	src []rune
	pos int
}

func newExprLexer(src string) *exprLexer {
	return &exprLexer{src: []rune(src)}
}

func (l *exprLexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *exprLexer) peekAt(off int) rune {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

var multiCharOps = []string{"**", "//", "==", "!=", ">=", "<="}

func (l *exprLexer) tokenize() ([]token, error) {
	var toks []token
	for {
		for l.pos < len(l.src) && unicode.IsSpace(l.src[l.pos]) {
			l.pos++
		}
		if l.pos >= len(l.src) {
			break
		}
		c := l.src[l.pos]
		switch {
		case unicode.IsDigit(c):
			start := l.pos
			for l.pos < len(l.src) && (unicode.IsDigit(l.src[l.pos]) || l.src[l.pos] == '.') {
				l.pos++
			}
			toks = append(toks, token{tokNumber, string(l.src[start:l.pos])})
		case c == '\'' || c == '"':
			quote := c
			l.pos++
			var sb strings.Builder
			closed := false
			for l.pos < len(l.src) {
				ch := l.src[l.pos]
				if ch == '\\' && l.pos+1 < len(l.src) {
					sb.WriteRune(unescape(l.src[l.pos+1]))
					l.pos += 2
					continue
				}
				if ch == quote {
					l.pos++
					closed = true
					break
				}
				sb.WriteRune(ch)
				l.pos++
			}
			if !closed {
				return nil, errs.Syntax("unterminated string literal in expression", string(l.src))
			}
			toks = append(toks, token{tokString, sb.String()})
		case unicode.IsLetter(c) || c == '_':
			start := l.pos
			for l.pos < len(l.src) && (unicode.IsLetter(l.src[l.pos]) || unicode.IsDigit(l.src[l.pos]) || l.src[l.pos] == '_') {
				l.pos++
			}
			toks = append(toks, token{tokName, string(l.src[start:l.pos])})
		default:
			matched := false
			for _, op := range multiCharOps {
				n := len([]rune(op))
				if l.pos+n <= len(l.src) && string(l.src[l.pos:l.pos+n]) == op {
					toks = append(toks, token{tokOp, op})
					l.pos += n
					matched = true
					break
				}
			}
			if matched {
				continue
			}
			toks = append(toks, token{tokOp, string(c)})
			l.pos++
		}
	}
	toks = append(toks, token{tokEOF, ""})
	return toks, nil
}

func unescape(c rune) rune {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		return c
	}
}
