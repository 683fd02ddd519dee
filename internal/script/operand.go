package script

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/reentry/internal/ir"
	"github.com/roach88/reentry/internal/routine"
)

// resolve evaluates one operand against the routine's variables.
//
//   - "%name%"          -> the variable's value as-is
//   - "x=%a%, y=%b%"    -> ir.String with each reference substituted
//   - "42", "-3"        -> ir.Int
//   - anything else     -> ir.String literal
//
// "%%" is a literal percent sign. An unknown variable is an error.
func resolve(r *routine.Routine, operand string) (ir.Value, error) {
	if name, ok := singleRef(operand); ok {
		s, found := r.Slot(name)
		if !found {
			return nil, fmt.Errorf("unknown variable %q", name)
		}
		return s.Value(), nil
	}

	if !strings.Contains(operand, "%") {
		return literal(operand), nil
	}

	var b strings.Builder
	rest := operand
	for {
		i := strings.IndexByte(rest, '%')
		if i < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:i])
		rest = rest[i+1:]

		j := strings.IndexByte(rest, '%')
		if j < 0 {
			return nil, fmt.Errorf("unterminated variable reference in %q", operand)
		}
		name := rest[:j]
		rest = rest[j+1:]
		if name == "" {
			b.WriteByte('%')
			continue
		}
		s, found := r.Slot(name)
		if !found {
			return nil, fmt.Errorf("unknown variable %q", name)
		}
		b.WriteString(ir.Text(s.Value()))
	}
	return ir.String(b.String()), nil
}

func singleRef(operand string) (string, bool) {
	if len(operand) < 3 || operand[0] != '%' || operand[len(operand)-1] != '%' {
		return "", false
	}
	name := operand[1 : len(operand)-1]
	if strings.Contains(name, "%") {
		return "", false
	}
	return name, true
}

func literal(s string) ir.Value {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ir.Int(n)
	}
	return ir.String(s)
}
