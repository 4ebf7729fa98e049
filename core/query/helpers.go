package query

// Condition is an operator paired with its value, waiting for a field. It is
// what the helper functions below return and what the builder's Where, And
// and Or take:
//
//	NewBuilder[Product]().
//		Where("price", GreaterThan(10)).
//		Or("productID", In(1, 2, 3))
type Condition struct {
	Operator FilterOperator
	Value    any
}

// On attaches the condition to a field, producing a filter joined by join.
func (c Condition) On(join FilterCondition, field string) *FilterDescriptor {
	return &FilterDescriptor{Condition: join, Field: field, Operator: c.Operator, Value: c.Value}
}

// IsEqual matches field = value, or field IS NULL for a nil value.
func IsEqual(value any) Condition {
	return Condition{Operator: FilterOperatorEqual, Value: value}
}

// NotEqual matches field <> value, or field IS NOT NULL for a nil value.
func NotEqual(value any) Condition {
	return Condition{Operator: FilterOperatorNotEqual, Value: value}
}

func LessThan(value any) Condition {
	return Condition{Operator: FilterOperatorLessThan, Value: value}
}

func LessThanOrEqual(value any) Condition {
	return Condition{Operator: FilterOperatorLessThanOrEqual, Value: value}
}

func GreaterThan(value any) Condition {
	return Condition{Operator: FilterOperatorGreaterThan, Value: value}
}

func GreaterThanOrEqual(value any) Condition {
	return Condition{Operator: FilterOperatorGreaterThanOrEqual, Value: value}
}

// StartWith matches values beginning with prefix.
func StartWith(prefix string) Condition {
	return Condition{Operator: FilterOperatorStartWith, Value: prefix}
}

// EndWith matches values ending with suffix.
func EndWith(suffix string) Condition {
	return Condition{Operator: FilterOperatorEndWith, Value: suffix}
}

// Contains matches values containing part.
func Contains(part string) Condition {
	return Condition{Operator: FilterOperatorContains, Value: part}
}

// NotContains matches values not containing part.
func NotContains(part string) Condition {
	return Condition{Operator: FilterOperatorNotContains, Value: part}
}

// In matches any of values.
func In(values ...any) Condition {
	return Condition{Operator: FilterOperatorIn, Value: values}
}

// NotIn matches none of values.
func NotIn(values ...any) Condition {
	return Condition{Operator: FilterOperatorNotIn, Value: values}
}

// Between matches lower <= field <= upper.
func Between(lower, upper any) Condition {
	return Condition{Operator: FilterOperatorBetween, Value: []any{lower, upper}}
}

func Asc() SortDirection {
	return SortDirectionAsc
}

func Desc() SortDirection {
	return SortDirectionDesc
}
