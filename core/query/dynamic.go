package query

import (
	"reflect"

	"github.com/asaidimu/go-dynaquery/core/schema"
)

// DynamicQuery is the unit handed to the compiler: the entity type, the
// selected properties, the filter sequence and the sort sequence. It is
// built with a Builder and not changed afterwards; accessors return copies.
type DynamicQuery[T any] struct {
	entityType reflect.Type
	columns    []string
	filters    []FilterNode
	sorts      []SortDescriptor
}

var _ Query = (*DynamicQuery[struct{}])(nil)

// NewDynamicQuery creates a dynamic query over T from already built parts.
func NewDynamicQuery[T any](columns []string, filters []FilterNode, sorts []SortDescriptor) *DynamicQuery[T] {
	return &DynamicQuery[T]{
		entityType: schema.TypeOf[T](),
		columns:    append([]string(nil), columns...),
		filters:    append([]FilterNode(nil), filters...),
		sorts:      append([]SortDescriptor(nil), sorts...),
	}
}

// EntityType implements Query.
func (q *DynamicQuery[T]) EntityType() reflect.Type {
	return q.entityType
}

// SelectedColumns implements Query.
func (q *DynamicQuery[T]) SelectedColumns() []string {
	return append([]string(nil), q.columns...)
}

// Filters implements Query.
func (q *DynamicQuery[T]) Filters() []FilterNode {
	return append([]FilterNode(nil), q.filters...)
}

// Sorts implements Query.
func (q *DynamicQuery[T]) Sorts() []SortDescriptor {
	return append([]SortDescriptor(nil), q.sorts...)
}

// HasFilters reports whether the query filters at all.
func (q *DynamicQuery[T]) HasFilters() bool {
	return len(q.filters) > 0
}

// WithoutSorts returns a copy of the query with no sort sequence. Columns
// and filters are copied.
func (q *DynamicQuery[T]) WithoutSorts() *DynamicQuery[T] {
	return &DynamicQuery[T]{
		entityType: q.entityType,
		columns:    q.SelectedColumns(),
		filters:    q.Filters(),
	}
}
