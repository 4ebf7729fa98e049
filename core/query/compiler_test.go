package query

import (
	"errors"
	"regexp"
	"testing"

	"github.com/asaidimu/go-dynaquery/core/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type product struct {
	ProductID int64
	Price     float64
	Name      string
}

type unregistered struct{}

func newTestCompiler(t *testing.T) *Compiler {
	t.Helper()
	r := schema.NewRegistry(nil)
	require.NoError(t, schema.RegisterType[product](r, &schema.SchemaDefinition{
		Table: "product",
		Fields: map[string]*schema.FieldDefinition{
			"productID": {Name: "productID", Type: schema.FieldTypeInteger},
			"price":     {Name: "price", Type: schema.FieldTypeDecimal},
			"name":      {Name: "name", Type: schema.FieldTypeString, Column: "product_name"},
		},
	}))
	return NewCompiler(r, nil, nil)
}

var placeholderPattern = regexp.MustCompile(`:p\d+`)

// distinctPlaceholders counts the distinct placeholders referenced by expr.
func distinctPlaceholders(expr string) int {
	seen := map[string]struct{}{}
	for _, p := range placeholderPattern.FindAllString(expr, -1) {
		seen[p] = struct{}{}
	}
	return len(seen)
}

func TestCompiler_GroupFollowedByFilter(t *testing.T) {
	c := newTestCompiler(t)

	got, err := c.CompileWhere(schema.TypeOf[product](),
		NewFilterGroup(ConditionAnd,
			NewFilter("productID", FilterOperatorGreaterThan, 1),
			NewFilter("productID", FilterOperatorLessThan, 4),
		),
		NewFilter("price", FilterOperatorGreaterThan, 10),
	)
	require.NoError(t, err)
	assert.Equal(t, "(productID > :p0 AND productID < :p1) AND price > :p2", got.Expression)
	assert.Equal(t, map[string]any{"p0": 1, "p1": 4, "p2": 10}, got.Params)
}

func TestCompiler_Sort(t *testing.T) {
	c := newTestCompiler(t)

	got, err := c.CompileSort(schema.TypeOf[product](),
		NewSort("price", SortDirectionDesc),
		NewSort("productID", SortDirectionDesc),
	)
	require.NoError(t, err)
	assert.Equal(t, "price DESC, productID DESC", got)

	got, err = c.CompileSort(schema.TypeOf[product](),
		NewSort("name", "desc"),
		NewSort("price", ""),
	)
	require.NoError(t, err)
	assert.Equal(t, "product_name DESC, price ASC", got)

	got, err = c.CompileSort(schema.TypeOf[product]())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCompiler_CustomFilter(t *testing.T) {
	c := newTestCompiler(t)

	got, err := c.CompileWhere(schema.TypeOf[product](),
		NewCustomFilter(ConditionAnd, "price > {0} AND price < {1}", 7, 17))
	require.NoError(t, err)
	assert.Equal(t, "price > :p0 AND price < :p1", got.Expression)
	assert.Equal(t, map[string]any{"p0": 7, "p1": 17}, got.Params)
}

func TestCompiler_CustomFilterPlaceholders(t *testing.T) {
	c := newTestCompiler(t)
	entity := schema.TypeOf[product]()

	t.Run("repeated placeholder binds once", func(t *testing.T) {
		got, err := c.CompileWhere(entity, NewCustomFilter(ConditionAnd, "price > {0} OR price = {0}", 7))
		require.NoError(t, err)
		assert.Equal(t, "price > :p0 OR price = :p0", got.Expression)
		assert.Equal(t, map[string]any{"p0": 7}, got.Params)
	})

	t.Run("index order decides parameter order", func(t *testing.T) {
		got, err := c.CompileWhere(entity, NewCustomFilter(ConditionAnd, "price < {1} AND price > {0}", 7, 17))
		require.NoError(t, err)
		assert.Equal(t, "price < :p1 AND price > :p0", got.Expression)
		assert.Equal(t, map[string]any{"p0": 7, "p1": 17}, got.Params)
	})

	t.Run("unreferenced parameters are not bound", func(t *testing.T) {
		got, err := c.CompileWhere(entity, NewCustomFilter(ConditionAnd, "price > {1}", 7, 17))
		require.NoError(t, err)
		assert.Equal(t, "price > :p0", got.Expression)
		assert.Equal(t, map[string]any{"p0": 17}, got.Params)
	})

	t.Run("counter continues after preceding filters", func(t *testing.T) {
		got, err := c.CompileWhere(entity,
			NewFilter("productID", FilterOperatorEqual, 3),
			NewCustomFilter(ConditionOr, "price > {0}", 7))
		require.NoError(t, err)
		assert.Equal(t, "productID = :p0 OR price > :p1", got.Expression)
		assert.Equal(t, map[string]any{"p0": 3, "p1": 7}, got.Params)
	})

	t.Run("missing parameter", func(t *testing.T) {
		_, err := c.CompileWhere(entity, NewCustomFilter(ConditionAnd, "price > {2}", 7))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidFilterValue))
	})

	t.Run("blank expression renders nothing", func(t *testing.T) {
		got, err := c.CompileWhere(entity,
			NewCustomFilter(ConditionAnd, "  "),
			NewFilter("price", FilterOperatorEqual, 1))
		require.NoError(t, err)
		assert.Equal(t, "price = :p0", got.Expression)
	})
}

func TestCompiler_Operators(t *testing.T) {
	c := newTestCompiler(t)

	tests := []struct {
		name     string
		filter   *FilterDescriptor
		expected string
		params   map[string]any
	}{
		{"equal", NewFilter("price", FilterOperatorEqual, 5), "price = :p0", map[string]any{"p0": 5}},
		{"equal null", NewFilter("name", FilterOperatorEqual, nil), "product_name IS NULL", map[string]any{}},
		{"equal typed nil", NewFilter("name", FilterOperatorEqual, (*string)(nil)), "product_name IS NULL", map[string]any{}},
		{"not equal", NewFilter("price", FilterOperatorNotEqual, 5), "price <> :p0", map[string]any{"p0": 5}},
		{"not equal null", NewFilter("name", FilterOperatorNotEqual, nil), "product_name IS NOT NULL", map[string]any{}},
		{"less than", NewFilter("price", FilterOperatorLessThan, 5), "price < :p0", map[string]any{"p0": 5}},
		{"less than or equal", NewFilter("price", FilterOperatorLessThanOrEqual, 5), "price <= :p0", map[string]any{"p0": 5}},
		{"greater than", NewFilter("price", FilterOperatorGreaterThan, 5), "price > :p0", map[string]any{"p0": 5}},
		{"greater than or equal", NewFilter("price", FilterOperatorGreaterThanOrEqual, 5), "price >= :p0", map[string]any{"p0": 5}},
		{"start with", NewFilter("name", FilterOperatorStartWith, "ab"), "product_name LIKE :p0", map[string]any{"p0": "ab%"}},
		{"end with", NewFilter("name", FilterOperatorEndWith, "ab"), "product_name LIKE :p0", map[string]any{"p0": "%ab"}},
		{"contains", NewFilter("name", FilterOperatorContains, "ab"), "product_name LIKE :p0", map[string]any{"p0": "%ab%"}},
		{"not contains", NewFilter("name", FilterOperatorNotContains, "ab"), "product_name NOT LIKE :p0", map[string]any{"p0": "%ab%"}},
		{"in", NewFilter("productID", FilterOperatorIn, []any{1, 2, 3}), "productID IN (:p0,:p1,:p2)", map[string]any{"p0": 1, "p1": 2, "p2": 3}},
		{"in typed slice", NewFilter("productID", FilterOperatorIn, []int64{7, 8}), "productID IN (:p0,:p1)", map[string]any{"p0": int64(7), "p1": int64(8)}},
		{"in scalar", NewFilter("productID", FilterOperatorIn, 9), "productID IN (:p0)", map[string]any{"p0": 9}},
		{"in string", NewFilter("name", FilterOperatorIn, "abc"), "product_name IN (:p0)", map[string]any{"p0": "abc"}},
		{"not in", NewFilter("productID", FilterOperatorNotIn, []any{1}), "productID NOT IN (:p0)", map[string]any{"p0": 1}},
		{"between", NewFilter("price", FilterOperatorBetween, []any{1, 9}), "price BETWEEN :p0 AND :p1", map[string]any{"p0": 1, "p1": 9}},
		{"between array", NewFilter("price", FilterOperatorBetween, [2]float64{1.5, 2.5}), "price BETWEEN :p0 AND :p1", map[string]any{"p0": 1.5, "p1": 2.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.CompileWhere(schema.TypeOf[product](), tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got.Expression)
			assert.Equal(t, tt.params, got.Params)
			assert.Equal(t, len(got.Params), distinctPlaceholders(got.Expression))
		})
	}
}

func TestCompiler_InvalidFilters(t *testing.T) {
	c := newTestCompiler(t)

	tests := []struct {
		name   string
		filter FilterNode
		target error
	}{
		{"null comparison", NewFilter("price", FilterOperatorGreaterThan, nil), ErrInvalidFilterValue},
		{"null like", NewFilter("name", FilterOperatorContains, nil), ErrInvalidFilterValue},
		{"null in", NewFilter("productID", FilterOperatorIn, nil), ErrInvalidFilterValue},
		{"empty in", NewFilter("productID", FilterOperatorIn, []any{}), ErrInvalidFilterValue},
		{"null in element", NewFilter("productID", FilterOperatorNotIn, []any{1, nil}), ErrInvalidFilterValue},
		{"between one value", NewFilter("price", FilterOperatorBetween, []any{1}), ErrInvalidFilterValue},
		{"between three values", NewFilter("price", FilterOperatorBetween, []any{1, 2, 3}), ErrInvalidFilterValue},
		{"between null bound", NewFilter("price", FilterOperatorBetween, []any{1, nil}), ErrInvalidFilterValue},
		{"unsupported operator", NewFilter("price", "LIKE", 1), ErrInvalidFilterValue},
		{"unknown property", NewFilter("weight", FilterOperatorEqual, 1), schema.ErrUnknownProperty},
		{"unknown property in group", NewFilterGroup(ConditionAnd, NewFilter("weight", FilterOperatorEqual, 1)), schema.ErrUnknownProperty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.CompileWhere(schema.TypeOf[product](), tt.filter)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
		})
	}

	var fe *InvalidFilterValueError
	_, err := c.CompileWhere(schema.TypeOf[product](), NewFilter("price", FilterOperatorBetween, []any{1}))
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "price", fe.Field)
	assert.Equal(t, FilterOperatorBetween, fe.Operator)
}

func TestCompiler_UnregisteredEntity(t *testing.T) {
	c := newTestCompiler(t)
	_, err := c.CompileWhere(schema.TypeOf[unregistered](), NewFilter("price", FilterOperatorEqual, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, schema.ErrSchemaMetadataUnavailable))
}

func TestCompiler_JoinConditions(t *testing.T) {
	c := newTestCompiler(t)
	entity := schema.TypeOf[product]()

	t.Run("first node join is never emitted", func(t *testing.T) {
		got, err := c.CompileWhere(entity,
			&FilterDescriptor{Condition: ConditionOr, Field: "price", Operator: FilterOperatorEqual, Value: 1},
			&FilterDescriptor{Condition: ConditionOr, Field: "price", Operator: FilterOperatorEqual, Value: 2},
		)
		require.NoError(t, err)
		assert.Equal(t, "price = :p0 OR price = :p1", got.Expression)
	})

	t.Run("empty join defaults to AND", func(t *testing.T) {
		got, err := c.CompileWhere(entity,
			&FilterDescriptor{Field: "price", Operator: FilterOperatorEqual, Value: 1},
			&FilterDescriptor{Field: "price", Operator: FilterOperatorEqual, Value: 2},
		)
		require.NoError(t, err)
		assert.Equal(t, "price = :p0 AND price = :p1", got.Expression)
	})

	t.Run("lower case join", func(t *testing.T) {
		got, err := c.CompileWhere(entity,
			NewFilter("price", FilterOperatorEqual, 1),
			&FilterDescriptor{Condition: "or", Field: "price", Operator: FilterOperatorEqual, Value: 2},
		)
		require.NoError(t, err)
		assert.Equal(t, "price = :p0 OR price = :p1", got.Expression)
	})

	t.Run("unknown join", func(t *testing.T) {
		_, err := c.CompileWhere(entity,
			NewFilter("price", FilterOperatorEqual, 1),
			&FilterDescriptor{Condition: "XOR", Field: "price", Operator: FilterOperatorEqual, Value: 2},
		)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidFilterValue))
	})

	t.Run("unknown sort direction", func(t *testing.T) {
		_, err := c.CompileSort(entity, NewSort("price", "SIDEWAYS"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidFilterValue))
	})
}

func TestCompiler_EmptyGroups(t *testing.T) {
	c := newTestCompiler(t)
	entity := schema.TypeOf[product]()

	t.Run("only empty groups", func(t *testing.T) {
		got, err := c.CompileWhere(entity,
			NewFilterGroup(ConditionAnd),
			NewFilterGroup(ConditionOr, NewFilterGroup(ConditionAnd)),
		)
		require.NoError(t, err)
		assert.Empty(t, got.Expression)
		assert.Empty(t, got.Params)
	})

	t.Run("empty group does not leave a dangling join", func(t *testing.T) {
		got, err := c.CompileWhere(entity,
			NewFilterGroup(ConditionAnd),
			&FilterDescriptor{Condition: ConditionOr, Field: "price", Operator: FilterOperatorEqual, Value: 1},
			NewFilterGroup(ConditionAnd),
		)
		require.NoError(t, err)
		assert.Equal(t, "price = :p0", got.Expression)
	})

	t.Run("nil nodes are skipped", func(t *testing.T) {
		var nilFilter *FilterDescriptor
		got, err := c.CompileWhere(entity, nil, nilFilter, NewFilter("price", FilterOperatorEqual, 1))
		require.NoError(t, err)
		assert.Equal(t, "price = :p0", got.Expression)
	})

	t.Run("no filters", func(t *testing.T) {
		got, err := c.CompileWhere(entity)
		require.NoError(t, err)
		assert.Empty(t, got.Expression)
		assert.Empty(t, got.Params)
	})
}

func TestCompiler_NestedGroupsShareCounter(t *testing.T) {
	c := newTestCompiler(t)

	got, err := c.CompileWhere(schema.TypeOf[product](),
		NewFilter("name", FilterOperatorStartWith, "a"),
		NewFilterGroup(ConditionOr,
			NewFilter("price", FilterOperatorBetween, []any{1, 2}),
			NewFilterGroup(ConditionAnd,
				NewFilter("productID", FilterOperatorIn, []any{5, 6}),
				NewCustomFilter(ConditionOr, "price <> {0}", 3),
			),
		),
	)
	require.NoError(t, err)
	assert.Equal(t,
		"product_name LIKE :p0 OR (price BETWEEN :p1 AND :p2 AND (productID IN (:p3,:p4) OR price <> :p5))",
		got.Expression)
	assert.Len(t, got.Params, 6)
	assert.Equal(t, len(got.Params), distinctPlaceholders(got.Expression))
}

func TestCompiler_Columns(t *testing.T) {
	c := newTestCompiler(t)
	entity := schema.TypeOf[product]()

	got, err := c.CompileColumns(entity)
	require.NoError(t, err)
	assert.Equal(t, `product_name AS "name", price, productID`, got)

	got, err = c.CompileColumns(entity, "price", "name")
	require.NoError(t, err)
	assert.Equal(t, `price, product_name AS "name"`, got)

	_, err = c.CompileColumns(entity, "weight")
	assert.True(t, errors.Is(err, schema.ErrUnknownProperty))

	_, err = c.CompileColumns(schema.TypeOf[unregistered]())
	assert.True(t, errors.Is(err, schema.ErrSchemaMetadataUnavailable))

	got, err = NewCompiler(nil, nil, nil).CompileColumns(entity)
	require.NoError(t, err)
	assert.Equal(t, "*", got)
}

func TestCompiler_Compile(t *testing.T) {
	c := newTestCompiler(t)

	q := NewBuilder[product]().
		Select("productID", "name").
		AndGroup(func(g *GroupBuilder) {
			g.And("productID", GreaterThan(1)).And("productID", LessThan(4))
		}).
		And("price", GreaterThan(10)).
		OrderBy("price", Desc()).
		OrderBy("productID", Desc()).
		Build()

	got, err := c.Compile(q)
	require.NoError(t, err)
	assert.Equal(t, `productID, product_name AS "name"`, got.Columns)
	assert.Equal(t, "(productID > :p0 AND productID < :p1) AND price > :p2", got.Where)
	assert.Equal(t, "price DESC, productID DESC", got.OrderBy)
	assert.Equal(t, map[string]any{"p0": 1, "p1": 4, "p2": 10}, got.Params)

	params := got.ToQueryParams()
	assert.Equal(t, got.Where, params[WhereExpressionKey])
	assert.Equal(t, got.OrderBy, params[OrderExpressionKey])
	assert.Equal(t, got.Columns, params[ColumnsExpressionKey])
	assert.Equal(t, 10, params["p2"])
	assert.Len(t, params, 6)

	// Compiling twice yields the same output; the query is only read.
	again, err := c.Compile(q)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestCompiler_CompileErrors(t *testing.T) {
	c := newTestCompiler(t)

	_, err := c.Compile(nil)
	assert.Error(t, err)

	_, err = c.Compile(NewBuilder[product]().Where("weight", IsEqual(1)).Build())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "where:")
	assert.True(t, errors.Is(err, schema.ErrUnknownProperty))

	_, err = c.Compile(NewBuilder[product]().OrderByAsc("weight").Build())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order by:")

	_, err = c.Compile(NewBuilder[product]().Select("weight").Build())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "columns:")
}

func TestCompiler_Options(t *testing.T) {
	r := schema.NewRegistry(nil)
	require.NoError(t, schema.RegisterType[product](r, &schema.SchemaDefinition{
		Table:  "product",
		Fields: map[string]*schema.FieldDefinition{"price": {Name: "price", Type: schema.FieldTypeDecimal}},
	}))
	c := NewCompiler(r, nil, &CompilerOptions{ParamPrefix: "arg", PlaceholderPrefix: "@"})
	assert.Equal(t, "@", c.Options().PlaceholderPrefix)

	got, err := c.CompileWhere(schema.TypeOf[product](), NewFilter("price", FilterOperatorBetween, []any{1, 2}))
	require.NoError(t, err)
	assert.Equal(t, "price BETWEEN @arg0 AND @arg1", got.Expression)
	assert.Equal(t, map[string]any{"arg0": 1, "arg1": 2}, got.Params)
}
