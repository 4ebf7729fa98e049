package query

// Builder provides a fluent API for building DynamicQuery values over T.
type Builder[T any] struct {
	columns []string
	filters []FilterNode
	sorts   []SortDescriptor
}

// NewBuilder creates a new, empty builder for entity type T.
func NewBuilder[T any]() *Builder[T] {
	return &Builder[T]{}
}

// CreateQuery is an alias of NewBuilder reading well at call sites:
// CreateQuery[Product]().Where(...).Build().
func CreateQuery[T any]() *Builder[T] {
	return NewBuilder[T]()
}

// Build returns a frozen copy of the query built so far.
func (b *Builder[T]) Build() *DynamicQuery[T] {
	return NewDynamicQuery[T](b.columns, cloneNodes(b.filters), b.sorts)
}

// Clone creates a deep copy of the builder, allowing new queries to be
// derived from an existing one without modifying it.
func (b *Builder[T]) Clone() *Builder[T] {
	return &Builder[T]{
		columns: append([]string(nil), b.columns...),
		filters: cloneNodes(b.filters),
		sorts:   append([]SortDescriptor(nil), b.sorts...),
	}
}

// Reset clears the builder, returning it to its initial state.
func (b *Builder[T]) Reset() *Builder[T] {
	b.columns = nil
	b.filters = nil
	b.sorts = nil
	return b
}

// Select restricts the selected properties. Repeated calls append.
func (b *Builder[T]) Select(properties ...string) *Builder[T] {
	b.columns = append(b.columns, properties...)
	return b
}

// SelectAll selects every property of the entity.
func (b *Builder[T]) SelectAll() *Builder[T] {
	b.columns = nil
	return b
}

// Where adds a filter joined with AND. It reads better than And for the
// first condition; the join of the first rendered filter is never emitted.
func (b *Builder[T]) Where(field string, c Condition) *Builder[T] {
	return b.And(field, c)
}

// And adds a filter joined with AND.
func (b *Builder[T]) And(field string, c Condition) *Builder[T] {
	b.filters = append(b.filters, c.On(ConditionAnd, field))
	return b
}

// Or adds a filter joined with OR.
func (b *Builder[T]) Or(field string, c Condition) *Builder[T] {
	b.filters = append(b.filters, c.On(ConditionOr, field))
	return b
}

// AndGroup adds a parenthesized group joined with AND, filled by fn.
func (b *Builder[T]) AndGroup(fn func(g *GroupBuilder)) *Builder[T] {
	b.filters = append(b.filters, buildGroup(ConditionAnd, fn))
	return b
}

// OrGroup adds a parenthesized group joined with OR, filled by fn.
func (b *Builder[T]) OrGroup(fn func(g *GroupBuilder)) *Builder[T] {
	b.filters = append(b.filters, buildGroup(ConditionOr, fn))
	return b
}

// AndCustom adds a raw expression with {0}, {1}, ... placeholders joined with AND.
func (b *Builder[T]) AndCustom(expression string, params ...any) *Builder[T] {
	b.filters = append(b.filters, NewCustomFilter(ConditionAnd, expression, params...))
	return b
}

// OrCustom adds a raw expression with {0}, {1}, ... placeholders joined with OR.
func (b *Builder[T]) OrCustom(expression string, params ...any) *Builder[T] {
	b.filters = append(b.filters, NewCustomFilter(ConditionOr, expression, params...))
	return b
}

// AddFilters appends already built filter nodes.
func (b *Builder[T]) AddFilters(nodes ...FilterNode) *Builder[T] {
	b.filters = append(b.filters, nodes...)
	return b
}

// OrderBy adds a sort key. Sort keys render in the order they were added.
func (b *Builder[T]) OrderBy(field string, direction SortDirection) *Builder[T] {
	b.sorts = append(b.sorts, NewSort(field, direction))
	return b
}

// OrderByAsc adds an ascending sort order for a specific field.
func (b *Builder[T]) OrderByAsc(field string) *Builder[T] {
	return b.OrderBy(field, SortDirectionAsc)
}

// OrderByDesc adds a descending sort order for a specific field.
func (b *Builder[T]) OrderByDesc(field string) *Builder[T] {
	return b.OrderBy(field, SortDirectionDesc)
}

// GroupBuilder collects the children of a filter group.
type GroupBuilder struct {
	filters []FilterNode
}

func buildGroup(join FilterCondition, fn func(g *GroupBuilder)) *FilterGroupDescriptor {
	g := &GroupBuilder{}
	if fn != nil {
		fn(g)
	}
	return NewFilterGroup(join, g.filters...)
}

// And adds a filter joined with AND to the group.
func (g *GroupBuilder) And(field string, c Condition) *GroupBuilder {
	g.filters = append(g.filters, c.On(ConditionAnd, field))
	return g
}

// Or adds a filter joined with OR to the group.
func (g *GroupBuilder) Or(field string, c Condition) *GroupBuilder {
	g.filters = append(g.filters, c.On(ConditionOr, field))
	return g
}

// AndGroup nests a group joined with AND.
func (g *GroupBuilder) AndGroup(fn func(g *GroupBuilder)) *GroupBuilder {
	g.filters = append(g.filters, buildGroup(ConditionAnd, fn))
	return g
}

// OrGroup nests a group joined with OR.
func (g *GroupBuilder) OrGroup(fn func(g *GroupBuilder)) *GroupBuilder {
	g.filters = append(g.filters, buildGroup(ConditionOr, fn))
	return g
}

// AndCustom adds a raw expression joined with AND to the group.
func (g *GroupBuilder) AndCustom(expression string, params ...any) *GroupBuilder {
	g.filters = append(g.filters, NewCustomFilter(ConditionAnd, expression, params...))
	return g
}

// OrCustom adds a raw expression joined with OR to the group.
func (g *GroupBuilder) OrCustom(expression string, params ...any) *GroupBuilder {
	g.filters = append(g.filters, NewCustomFilter(ConditionOr, expression, params...))
	return g
}

func cloneNodes(nodes []FilterNode) []FilterNode {
	if nodes == nil {
		return nil
	}
	out := make([]FilterNode, len(nodes))
	for i, node := range nodes {
		out[i] = cloneNode(node)
	}
	return out
}

// cloneNode copies the descriptor tree. Filter values themselves are shared.
func cloneNode(node FilterNode) FilterNode {
	switch n := node.(type) {
	case *FilterDescriptor:
		if n == nil {
			return n
		}
		cp := *n
		return &cp
	case *FilterGroupDescriptor:
		if n == nil {
			return n
		}
		return &FilterGroupDescriptor{Condition: n.Condition, Filters: cloneNodes(n.Filters)}
	case *CustomFilterDescriptor:
		if n == nil {
			return n
		}
		return &CustomFilterDescriptor{
			Condition:  n.Condition,
			Expression: n.Expression,
			Params:     append([]any(nil), n.Params...),
		}
	default:
		return node
	}
}
