package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterOperator_IsStandard(t *testing.T) {
	tests := []struct {
		operator FilterOperator
		expected bool
	}{
		{FilterOperatorEqual, true},
		{FilterOperatorNotEqual, true},
		{FilterOperatorLessThan, true},
		{FilterOperatorLessThanOrEqual, true},
		{FilterOperatorGreaterThan, true},
		{FilterOperatorGreaterThanOrEqual, true},
		{FilterOperatorStartWith, true},
		{FilterOperatorEndWith, true},
		{FilterOperatorContains, true},
		{FilterOperatorNotContains, true},
		{FilterOperatorIn, true},
		{FilterOperatorNotIn, true},
		{FilterOperatorBetween, true},
		{"LIKE", false},
		{"equal", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.operator), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.operator.IsStandard())
		})
	}
}

func TestDescriptors_JoinCondition(t *testing.T) {
	filter := NewFilter("price", FilterOperatorGreaterThan, 10)
	assert.Equal(t, ConditionAnd, filter.JoinCondition(), "filters default to AND")

	group := NewFilterGroup(ConditionOr, filter)
	assert.Equal(t, ConditionOr, group.JoinCondition())
	assert.Len(t, group.Filters, 1)

	group.AddFilters(NewFilter("productID", FilterOperatorEqual, 1), NewCustomFilter(ConditionAnd, "1 = 1"))
	assert.Len(t, group.Filters, 3)

	custom := NewCustomFilter(ConditionOr, "price > {0}", 7)
	assert.Equal(t, ConditionOr, custom.JoinCondition())
	assert.Equal(t, []any{7}, custom.Params)
}

func TestNewSort(t *testing.T) {
	s := NewSort("price", SortDirectionDesc)
	assert.Equal(t, SortDescriptor{Field: "price", Direction: SortDirectionDesc}, s)
	assert.Equal(t, SortDirectionAsc, Asc())
	assert.Equal(t, SortDirectionDesc, Desc())
}
