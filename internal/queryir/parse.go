package queryir

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/roach88/reentry/internal/ir"
)

// Parse reads a filter expression:
//
//	routine = Counter AND outcome = dropped
//	depth >= 2 and reason != "instance_limit"
//
// Terms are `field op value` joined by AND (any case). Values are quoted
// strings, integers, true/false, or bare words. An empty expression parses
// to nil (no filter). A single term is returned unwrapped.
func Parse(expr string) (Predicate, error) {
	toks, err := lex(expr)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, nil
	}

	var preds []Predicate
	for i := 0; ; {
		if i+3 > len(toks) {
			return nil, fmt.Errorf("incomplete term at %q", joinToks(toks[i:]))
		}
		field, op, val := toks[i], toks[i+1], toks[i+2]
		if field.kind != tokWord || strings.EqualFold(field.text, "and") {
			return nil, fmt.Errorf("expected field name, got %q", field.text)
		}
		if op.kind != tokOp {
			return nil, fmt.Errorf("expected operator after %s, got %q", field.text, op.text)
		}
		if val.kind == tokOp {
			return nil, fmt.Errorf("expected value after %s %s, got %q", field.text, op.text, val.text)
		}

		value := literal(val)
		if op.text == "=" || op.text == "==" {
			preds = append(preds, Equals{Field: field.text, Value: value})
		} else {
			preds = append(preds, Compare{Field: field.text, Op: CompareOp(op.text), Value: value})
		}

		i += 3
		if i == len(toks) {
			break
		}
		if toks[i].kind != tokWord || !strings.EqualFold(toks[i].text, "and") {
			return nil, fmt.Errorf("expected AND, got %q", toks[i].text)
		}
		i++
		if i == len(toks) {
			return nil, fmt.Errorf("dangling AND")
		}
	}

	if len(preds) == 1 {
		return preds[0], nil
	}
	return And{Predicates: preds}, nil
}

type tokKind int

const (
	tokWord tokKind = iota
	tokString
	tokOp
)

type token struct {
	kind tokKind
	text string
}

func lex(s string) ([]token, error) {
	var toks []token
	rs := []rune(s)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case r == '"' || r == '\'':
			j := i + 1
			var b strings.Builder
			for ; j < len(rs) && rs[j] != r; j++ {
				if rs[j] == '\\' && j+1 < len(rs) {
					j++
				}
				b.WriteRune(rs[j])
			}
			if j >= len(rs) {
				return nil, fmt.Errorf("unterminated string starting at offset %d", i)
			}
			toks = append(toks, token{tokString, b.String()})
			i = j + 1

		case strings.ContainsRune("=!<>", r):
			j := i + 1
			if j < len(rs) && rs[j] == '=' {
				j++
			}
			op := string(rs[i:j])
			switch op {
			case "=", "==", "!=", "<", "<=", ">", ">=":
			default:
				return nil, fmt.Errorf("unknown operator %q", op)
			}
			toks = append(toks, token{tokOp, op})
			i = j

		default:
			j := i
			for j < len(rs) && !unicode.IsSpace(rs[j]) && !strings.ContainsRune("=!<>\"'", rs[j]) {
				j++
			}
			toks = append(toks, token{tokWord, string(rs[i:j])})
			i = j
		}
	}
	return toks, nil
}

func literal(t token) ir.Value {
	if t.kind == tokString {
		return ir.String(t.text)
	}
	switch strings.ToLower(t.text) {
	case "true":
		return ir.Bool(true)
	case "false":
		return ir.Bool(false)
	}
	if n, err := strconv.ParseInt(t.text, 10, 64); err == nil {
		return ir.Int(n)
	}
	return ir.String(t.text)
}

func joinToks(toks []token) string {
	parts := make([]string, len(toks))
	for i, t := range toks {
		parts[i] = t.text
	}
	return strings.Join(parts, " ")
}
