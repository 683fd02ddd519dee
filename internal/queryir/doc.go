// Package queryir is the predicate IR behind journal trace filters.
//
//	[--where text] → Parse → [Predicate] → Validate → querysql → SQL
//
// The IR is deliberately small: conjunctions of field comparisons against
// scalar literals. There is no OR, no NULL and no subquery; a trace filter
// narrows a deterministic, seq-ordered list and nothing more.
//
// SEALED INTERFACES:
//
// Query and Predicate use the marker method pattern, so only types in this
// package implement them and backends can switch exhaustively:
//
//	switch p := pred.(type) {
//	case Equals:
//	case Compare:
//	case And:
//	}
//
// Field names are checked against a Schema before compilation. Backends
// interpolate field names into SQL and parameterize values, so Validate is
// what keeps untrusted filter text from reaching the query as identifiers.
package queryir
