package queryir

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/reentry/internal/ir"
)

// FieldType is the literal type a column accepts.
type FieldType int

const (
	FieldText FieldType = iota + 1
	FieldInt
	FieldBool
)

func (t FieldType) String() string {
	switch t {
	case FieldText:
		return "text"
	case FieldInt:
		return "int"
	case FieldBool:
		return "bool"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// Field describes one filterable column.
type Field struct {
	Type FieldType
	// NoCase compares text case-insensitively.
	NoCase bool
}

// Schema maps filterable column names to their types. A table not listed
// in Tables cannot be queried.
type Schema struct {
	Tables map[string]map[string]Field
}

// Lookup returns the field definition for table.column.
func (s Schema) Lookup(table, column string) (Field, bool) {
	cols, ok := s.Tables[table]
	if !ok {
		return Field{}, false
	}
	f, ok := cols[column]
	return f, ok
}

// Columns returns the sorted column names of table.
func (s Schema) Columns(table string) []string {
	cols := s.Tables[table]
	out := make([]string, 0, len(cols))
	for name := range cols {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Validate checks q against s. Every problem is reported, aggregated into
// one error. A nil return means the query is safe to compile.
func Validate(q Query, s Schema) error {
	var errs *multierror.Error
	switch query := q.(type) {
	case Select:
		errs = validateFrom(errs, s, query.From)
		if len(query.Columns) == 0 {
			errs = multierror.Append(errs, fmt.Errorf("select from %s: no columns", query.From))
		}
		for _, c := range query.Columns {
			if _, ok := s.Lookup(query.From, c); !ok {
				errs = multierror.Append(errs, fmt.Errorf("unknown column %q", c))
			}
		}
		if query.Limit < 0 {
			errs = multierror.Append(errs, fmt.Errorf("negative limit %d", query.Limit))
		}
		errs = validatePredicate(errs, s, query.From, query.Filter)
	case Count:
		errs = validateFrom(errs, s, query.From)
		if query.GroupBy != "" {
			if _, ok := s.Lookup(query.From, query.GroupBy); !ok {
				errs = multierror.Append(errs, fmt.Errorf("unknown group by column %q", query.GroupBy))
			}
		}
		errs = validatePredicate(errs, s, query.From, query.Filter)
	case nil:
		errs = multierror.Append(errs, fmt.Errorf("nil query"))
	default:
		errs = multierror.Append(errs, fmt.Errorf("unsupported query type %T", q))
	}
	return errs.ErrorOrNil()
}

// ValidatePredicate checks a filter against one table of s.
func ValidatePredicate(p Predicate, s Schema, table string) error {
	return validatePredicate(nil, s, table, p).ErrorOrNil()
}

func validateFrom(errs *multierror.Error, s Schema, table string) *multierror.Error {
	if _, ok := s.Tables[table]; !ok {
		errs = multierror.Append(errs, fmt.Errorf("unknown table %q", table))
	}
	return errs
}

func validatePredicate(errs *multierror.Error, s Schema, table string, p Predicate) *multierror.Error {
	switch pred := p.(type) {
	case nil:
	case Equals:
		errs = validateTerm(errs, s, table, pred.Field, "=", pred.Value)
	case Compare:
		switch pred.Op {
		case OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		default:
			errs = multierror.Append(errs, fmt.Errorf("unknown operator %q", string(pred.Op)))
		}
		errs = validateTerm(errs, s, table, pred.Field, string(pred.Op), pred.Value)
		if f, ok := s.Lookup(table, pred.Field); ok && f.Type == FieldBool && pred.Op != OpNotEqual {
			errs = multierror.Append(errs, fmt.Errorf("%s: operator %s not defined on bool", pred.Field, pred.Op))
		}
	case And:
		for _, sub := range pred.Predicates {
			errs = validatePredicate(errs, s, table, sub)
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("unsupported predicate type %T", p))
	}
	return errs
}

func validateTerm(errs *multierror.Error, s Schema, table, field, op string, v ir.Value) *multierror.Error {
	f, ok := s.Lookup(table, field)
	if !ok {
		known := strings.Join(s.Columns(table), ", ")
		return multierror.Append(errs, fmt.Errorf("unknown field %q (known: %s)", field, known))
	}
	if !accepts(f.Type, v) {
		return multierror.Append(errs, fmt.Errorf("%s %s %s: want %s value", field, op, ir.Text(v), f.Type))
	}
	return errs
}

func accepts(t FieldType, v ir.Value) bool {
	switch v.(type) {
	case ir.Int:
		return t == FieldInt || t == FieldText
	case ir.Bool:
		return t == FieldBool
	case ir.String:
		return t == FieldText
	default:
		return false
	}
}
