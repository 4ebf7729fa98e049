// Package query defines the descriptors callers use to express filtering and
// sorting intent as data, and the compiler that turns them into a
// parameterized SQL fragment plus the values bound to it.
package query

// FilterCondition is the boolean operator joining a filter to the one before it.
type FilterCondition string

// Supported join conditions.
const (
	ConditionAnd FilterCondition = "AND"
	ConditionOr  FilterCondition = "OR"
)

// FilterOperator defines the comparison a filter descriptor performs.
type FilterOperator string

// Supported filter operators.
const (
	FilterOperatorEqual              FilterOperator = "EQUAL"
	FilterOperatorNotEqual           FilterOperator = "NOT_EQUAL"
	FilterOperatorLessThan           FilterOperator = "LESS_THAN"
	FilterOperatorLessThanOrEqual    FilterOperator = "LESS_THAN_OR_EQUAL"
	FilterOperatorGreaterThan        FilterOperator = "GREATER_THAN"
	FilterOperatorGreaterThanOrEqual FilterOperator = "GREATER_THAN_OR_EQUAL"
	FilterOperatorStartWith          FilterOperator = "START_WITH"
	FilterOperatorEndWith            FilterOperator = "END_WITH"
	FilterOperatorContains           FilterOperator = "CONTAINS"
	FilterOperatorNotContains        FilterOperator = "NOT_CONTAINS"
	FilterOperatorIn                 FilterOperator = "IN"
	FilterOperatorNotIn              FilterOperator = "NOT_IN"
	FilterOperatorBetween            FilterOperator = "BETWEEN"
)

// standardOperators is the set of operators the compiler knows how to render.
var standardOperators = map[FilterOperator]struct{}{
	FilterOperatorEqual:              {},
	FilterOperatorNotEqual:           {},
	FilterOperatorLessThan:           {},
	FilterOperatorLessThanOrEqual:    {},
	FilterOperatorGreaterThan:        {},
	FilterOperatorGreaterThanOrEqual: {},
	FilterOperatorStartWith:          {},
	FilterOperatorEndWith:            {},
	FilterOperatorContains:           {},
	FilterOperatorNotContains:        {},
	FilterOperatorIn:                 {},
	FilterOperatorNotIn:              {},
	FilterOperatorBetween:            {},
}

// IsStandard checks if an operator is one the compiler can render.
func (o FilterOperator) IsStandard() bool {
	_, ok := standardOperators[o]
	return ok
}

// FilterNode is one entry of a filter sequence: a *FilterDescriptor, a
// *FilterGroupDescriptor or a *CustomFilterDescriptor. The set is closed; the
// compiler switches on the concrete type.
type FilterNode interface {
	// JoinCondition is the operator placed before the node when it is not the
	// first rendered node of its sequence.
	JoinCondition() FilterCondition
	filterNode()
}

// FilterDescriptor is a single "field operator value" condition.
type FilterDescriptor struct {
	Condition FilterCondition
	// Field is the logical property name, resolved to a column at compile time.
	Field    string
	Operator FilterOperator
	// Value is a scalar for single-value operators, a slice for IN, NOT_IN and
	// BETWEEN, or nil.
	Value any
}

// NewFilter creates a filter joined with AND.
func NewFilter(field string, operator FilterOperator, value any) *FilterDescriptor {
	return &FilterDescriptor{Condition: ConditionAnd, Field: field, Operator: operator, Value: value}
}

// JoinCondition implements FilterNode.
func (f *FilterDescriptor) JoinCondition() FilterCondition { return f.Condition }
func (*FilterDescriptor) filterNode() {}

// FilterGroupDescriptor is a parenthesized sequence of filter nodes.
type FilterGroupDescriptor struct {
	Condition FilterCondition
	Filters   []FilterNode
}

// NewFilterGroup creates a group joined with condition.
func NewFilterGroup(condition FilterCondition, filters ...FilterNode) *FilterGroupDescriptor {
	return &FilterGroupDescriptor{Condition: condition, Filters: filters}
}

// AddFilters appends filters to the group and returns it.
func (g *FilterGroupDescriptor) AddFilters(filters ...FilterNode) *FilterGroupDescriptor {
	g.Filters = append(g.Filters, filters...)
	return g
}

// JoinCondition implements FilterNode.
func (g *FilterGroupDescriptor) JoinCondition() FilterCondition { return g.Condition }
func (*FilterGroupDescriptor) filterNode() {}

// CustomFilterDescriptor is a raw SQL boolean expression with positional
// placeholders {0}, {1}, ... Each placeholder is replaced by a bound
// parameter carrying Params[i]; the expression text itself is emitted as is.
type CustomFilterDescriptor struct {
	Condition  FilterCondition
	Expression string
	Params     []any
}

// NewCustomFilter creates a custom filter joined with condition.
func NewCustomFilter(condition FilterCondition, expression string, params ...any) *CustomFilterDescriptor {
	return &CustomFilterDescriptor{Condition: condition, Expression: expression, Params: params}
}

// JoinCondition implements FilterNode.
func (c *CustomFilterDescriptor) JoinCondition() FilterCondition { return c.Condition }
func (*CustomFilterDescriptor) filterNode() {}

// SortDirection specifies the direction for sorting.
type SortDirection string

// Supported sort directions.
const (
	SortDirectionAsc  SortDirection = "ASC"
	SortDirectionDesc SortDirection = "DESC"
)

// SortDescriptor orders results by a single property.
type SortDescriptor struct {
	Field     string
	Direction SortDirection
}

// NewSort creates a sort descriptor.
func NewSort(field string, direction SortDirection) SortDescriptor {
	return SortDescriptor{Field: field, Direction: direction}
}
