package query

import (
	"testing"

	"github.com/asaidimu/go-dynaquery/core/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBuilder(t *testing.T) {
	q := NewBuilder[product]().Build()
	require.NotNil(t, q)
	assert.Equal(t, schema.TypeOf[product](), q.EntityType())
	assert.Empty(t, q.SelectedColumns())
	assert.Empty(t, q.Filters())
	assert.Empty(t, q.Sorts())
	assert.False(t, q.HasFilters())
}

func TestBuilder_Conditions(t *testing.T) {
	tests := []struct {
		name     string
		buildFn  func(*Builder[product]) *Builder[product]
		expected []FilterNode
	}{
		{
			name: "Where uses AND",
			buildFn: func(b *Builder[product]) *Builder[product] {
				return b.Where("price", IsEqual(10))
			},
			expected: []FilterNode{
				&FilterDescriptor{Condition: ConditionAnd, Field: "price", Operator: FilterOperatorEqual, Value: 10},
			},
		},
		{
			name: "Or",
			buildFn: func(b *Builder[product]) *Builder[product] {
				return b.Where("price", LessThan(5)).Or("price", GreaterThanOrEqual(50))
			},
			expected: []FilterNode{
				&FilterDescriptor{Condition: ConditionAnd, Field: "price", Operator: FilterOperatorLessThan, Value: 5},
				&FilterDescriptor{Condition: ConditionOr, Field: "price", Operator: FilterOperatorGreaterThanOrEqual, Value: 50},
			},
		},
		{
			name: "In and Between",
			buildFn: func(b *Builder[product]) *Builder[product] {
				return b.Where("productID", In(1, 2)).And("price", Between(1, 9))
			},
			expected: []FilterNode{
				&FilterDescriptor{Condition: ConditionAnd, Field: "productID", Operator: FilterOperatorIn, Value: []any{1, 2}},
				&FilterDescriptor{Condition: ConditionAnd, Field: "price", Operator: FilterOperatorBetween, Value: []any{1, 9}},
			},
		},
		{
			name: "Groups",
			buildFn: func(b *Builder[product]) *Builder[product] {
				return b.AndGroup(func(g *GroupBuilder) {
					g.And("productID", GreaterThan(1)).And("productID", LessThan(4))
				}).OrGroup(func(g *GroupBuilder) {
					g.OrCustom("price > {0}", 7)
				})
			},
			expected: []FilterNode{
				&FilterGroupDescriptor{Condition: ConditionAnd, Filters: []FilterNode{
					&FilterDescriptor{Condition: ConditionAnd, Field: "productID", Operator: FilterOperatorGreaterThan, Value: 1},
					&FilterDescriptor{Condition: ConditionAnd, Field: "productID", Operator: FilterOperatorLessThan, Value: 4},
				}},
				&FilterGroupDescriptor{Condition: ConditionOr, Filters: []FilterNode{
					&CustomFilterDescriptor{Condition: ConditionOr, Expression: "price > {0}", Params: []any{7}},
				}},
			},
		},
		{
			name: "Custom",
			buildFn: func(b *Builder[product]) *Builder[product] {
				return b.AndCustom("price > {0} AND price < {1}", 7, 17)
			},
			expected: []FilterNode{
				&CustomFilterDescriptor{Condition: ConditionAnd, Expression: "price > {0} AND price < {1}", Params: []any{7, 17}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.buildFn(NewBuilder[product]()).Build()
			assert.Equal(t, tt.expected, q.Filters())
		})
	}
}

func TestBuilder_SelectAndOrder(t *testing.T) {
	b := CreateQuery[product]().
		Select("productID").
		Select("price").
		OrderBy("price", Desc()).
		OrderByAsc("productID")

	q := b.Build()
	assert.Equal(t, []string{"productID", "price"}, q.SelectedColumns())
	assert.Equal(t, []SortDescriptor{
		{Field: "price", Direction: SortDirectionDesc},
		{Field: "productID", Direction: SortDirectionAsc},
	}, q.Sorts())

	assert.Empty(t, b.SelectAll().Build().SelectedColumns())
}

func TestBuilder_BuildIsFrozen(t *testing.T) {
	b := NewBuilder[product]().AndGroup(func(g *GroupBuilder) {
		g.And("price", GreaterThan(1))
	})
	q := b.Build()

	b.Where("productID", IsEqual(3))
	b.OrderByDesc("price")
	assert.Len(t, q.Filters(), 1)
	assert.Empty(t, q.Sorts())

	// Mutating the returned slices does not reach the query.
	filters := q.Filters()
	filters[0] = nil
	assert.NotNil(t, q.Filters()[0])

	group := q.Filters()[0].(*FilterGroupDescriptor)
	assert.Len(t, group.Filters, 1)
}

func TestBuilder_Clone(t *testing.T) {
	b := NewBuilder[product]().Where("price", GreaterThan(1)).OrderByAsc("price")
	cloned := b.Clone()
	assert.Equal(t, b.Build().Filters(), cloned.Build().Filters())

	cloned.Where("productID", IsEqual(1)).OrderByDesc("productID")
	assert.Len(t, b.Build().Filters(), 1)
	assert.Len(t, b.Build().Sorts(), 1)
	assert.Len(t, cloned.Build().Filters(), 2)
	assert.Len(t, cloned.Build().Sorts(), 2)
}

func TestBuilder_Reset(t *testing.T) {
	b := NewBuilder[product]().Select("price").Where("price", GreaterThan(1)).OrderByAsc("price")
	q := b.Reset().Build()
	assert.Empty(t, q.SelectedColumns())
	assert.Empty(t, q.Filters())
	assert.Empty(t, q.Sorts())
}

func TestDynamicQuery_WithoutSorts(t *testing.T) {
	q := NewBuilder[product]().Where("price", GreaterThan(1)).OrderByAsc("price").Build()
	stripped := q.WithoutSorts()
	assert.Empty(t, stripped.Sorts())
	assert.Equal(t, q.Filters(), stripped.Filters())
	assert.Len(t, q.Sorts(), 1)
}

func TestBuilder_AddFilters(t *testing.T) {
	base := NewBuilder[product]().Where("price", GreaterThan(1)).Build()
	q := NewBuilder[product]().AddFilters(base.Filters()...).And("productID", IsEqual(2)).Build()

	require.Len(t, q.Filters(), 2)
	assert.Equal(t, base.Filters()[0], q.Filters()[0])
	assert.Len(t, base.Filters(), 1)
}
