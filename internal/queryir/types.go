package queryir

import "github.com/roach88/reentry/internal/ir"

// Query is a journal query. Sealed to this package.
type Query interface {
	queryNode()
}

// Predicate is a row filter. Sealed to this package.
type Predicate interface {
	predicateNode()
}

// Select reads rows from a table.
//
//	SELECT <columns> FROM <from> WHERE <filter> ORDER BY <stable key> LIMIT <limit>
//
// Columns must be explicit. Limit 0 means no limit.
type Select struct {
	From    string
	Columns []string
	Filter  Predicate // nil = all rows
	Limit   int
}

func (Select) queryNode() {}

// Count counts rows, optionally grouped by one column.
//
//	SELECT <group_by>, COUNT(*) FROM <from> WHERE <filter> GROUP BY <group_by>
type Count struct {
	From    string
	Filter  Predicate
	GroupBy string // "" = single total
}

func (Count) queryNode() {}

// Equals is field = value.
type Equals struct {
	Field string
	Value ir.Value
}

func (Equals) predicateNode() {}

// CompareOp is an ordering or inequality operator.
type CompareOp string

const (
	OpNotEqual     CompareOp = "!="
	OpLess         CompareOp = "<"
	OpLessEqual    CompareOp = "<="
	OpGreater      CompareOp = ">"
	OpGreaterEqual CompareOp = ">="
)

// Compare is field <op> value.
type Compare struct {
	Field string
	Op    CompareOp
	Value ir.Value
}

func (Compare) predicateNode() {}

// And is a conjunction. Empty means always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}
