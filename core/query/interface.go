package query

import "reflect"

// Query is the read-only view of a dynamic query the compiler consumes.
type Query interface {
	// EntityType is the entity or view type properties are resolved against.
	EntityType() reflect.Type
	// SelectedColumns lists the properties to select; empty means all.
	SelectedColumns() []string
	Filters() []FilterNode
	Sorts() []SortDescriptor
}

// AggregateFunction names the SQL aggregate applied to a single column.
type AggregateFunction string

// Supported aggregate functions.
const (
	AggregateMax   AggregateFunction = "MAX"
	AggregateMin   AggregateFunction = "MIN"
	AggregateSum   AggregateFunction = "SUM"
	AggregateAvg   AggregateFunction = "AVG"
	AggregateCount AggregateFunction = "COUNT"
)

// Page limits a select to a window of rows. A zero Limit means no limit.
type Page struct {
	Limit  int
	Offset int
}

// StatementGenerator wraps compiled clauses into complete statements for a
// SQL dialect. Each implementation is responsible for its identifier quoting
// and for the shape of its LIMIT clause.
type StatementGenerator interface {
	// SelectSQL renders SELECT <columns> FROM <table> [WHERE] [ORDER BY] [LIMIT].
	SelectSQL(table string, compiled CompiledQuery, page *Page) (string, error)
	// CountSQL renders SELECT COUNT(*) FROM <table> [WHERE].
	CountSQL(table string, compiled CompiledQuery) (string, error)
	// AggregateSQL renders SELECT <fn>(<column>) FROM <table> [WHERE].
	AggregateSQL(table string, fn AggregateFunction, column string, compiled CompiledQuery) (string, error)
}
