// Package querysql compiles queryir queries to parameterized SQLite SQL.
package querysql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/reentry/internal/ir"
	"github.com/roach88/reentry/internal/queryir"
)

// DefaultOrderKey is used for tables with no entry in SQLCompiler.OrderKeys.
const DefaultOrderKey = "id ASC COLLATE BINARY"

var identRE = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// SQLCompiler compiles queries against one schema.
//
// Every SELECT carries an ORDER BY so results are deterministic. Values are
// always bound as ? parameters; identifiers come only from the schema.
type SQLCompiler struct {
	Schema queryir.Schema
	// OrderKeys maps table name to its ORDER BY expression.
	OrderKeys map[string]string
}

// NewSQLCompiler creates a compiler for schema.
func NewSQLCompiler(schema queryir.Schema) *SQLCompiler {
	return &SQLCompiler{
		Schema:    schema,
		OrderKeys: make(map[string]string),
	}
}

// Compile validates q and converts it to SQL plus bound parameters.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}
	if err := queryir.Validate(q, c.Schema); err != nil {
		return "", nil, fmt.Errorf("invalid query: %w", err)
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case queryir.Count:
		return c.compileCount(query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	for _, col := range append([]string{q.From}, q.Columns...) {
		if !identRE.MatchString(col) {
			return "", nil, fmt.Errorf("illegal identifier %q", col)
		}
	}

	where, params, err := c.compileWhere(q.From, q.Filter)
	if err != nil {
		return "", nil, err
	}

	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s",
		strings.Join(q.Columns, ", "), q.From, where, c.stableOrderKey(q.From))
	if q.Limit > 0 {
		sql += " LIMIT ?"
		params = append(params, int64(q.Limit))
	}
	return sql, params, nil
}

func (c *SQLCompiler) compileCount(q queryir.Count) (string, []any, error) {
	if !identRE.MatchString(q.From) {
		return "", nil, fmt.Errorf("illegal identifier %q", q.From)
	}
	where, params, err := c.compileWhere(q.From, q.Filter)
	if err != nil {
		return "", nil, err
	}
	if q.GroupBy == "" {
		return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", q.From, where), params, nil
	}
	if !identRE.MatchString(q.GroupBy) {
		return "", nil, fmt.Errorf("illegal identifier %q", q.GroupBy)
	}
	sql := fmt.Sprintf("SELECT %[1]s, COUNT(*) FROM %[2]s%[3]s GROUP BY %[1]s ORDER BY %[1]s ASC COLLATE BINARY",
		q.GroupBy, q.From, where)
	return sql, params, nil
}

// stableOrderKey returns the ORDER BY expression for table.
func (c *SQLCompiler) stableOrderKey(table string) string {
	if key, ok := c.OrderKeys[table]; ok {
		return key
	}
	return DefaultOrderKey
}

func (c *SQLCompiler) compileWhere(table string, p queryir.Predicate) (string, []any, error) {
	if p == nil {
		return "", nil, nil
	}
	sql, params, err := c.compilePredicate(table, p)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}
	return " WHERE " + sql, params, nil
}

func (c *SQLCompiler) compilePredicate(table string, p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		return c.compileTerm(table, pred.Field, "=", pred.Value)
	case queryir.Compare:
		return c.compileTerm(table, pred.Field, string(pred.Op), pred.Value)
	case queryir.And:
		return c.compileAnd(table, pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (c *SQLCompiler) compileTerm(table, field, op string, v ir.Value) (string, []any, error) {
	if !identRE.MatchString(field) {
		return "", nil, fmt.Errorf("illegal identifier %q", field)
	}
	f, _ := c.Schema.Lookup(table, field)
	param, err := valueToParam(f.Type, v)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", field, err)
	}
	sql := fmt.Sprintf("%s %s ?", field, op)
	if f.NoCase {
		sql += " COLLATE NOCASE"
	}
	return sql, []any{param}, nil
}

func (c *SQLCompiler) compileAnd(table string, and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	var parts []string
	var all []any
	for _, pred := range and.Predicates {
		sql, params, err := c.compilePredicate(table, pred)
		if err != nil {
			return "", nil, err
		}
		if _, nested := pred.(queryir.And); nested {
			sql = "(" + sql + ")"
		}
		parts = append(parts, sql)
		all = append(all, params...)
	}
	return strings.Join(parts, " AND "), all, nil
}

// valueToParam converts a literal to the driver type for a column.
// Booleans are stored as 0/1 integers.
func valueToParam(t queryir.FieldType, v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.String:
		return string(val), nil
	case ir.Int:
		if t == queryir.FieldText {
			return ir.Text(val), nil
		}
		return int64(val), nil
	case ir.Bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}
