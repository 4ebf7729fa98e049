package query

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/asaidimu/go-dynaquery/core/schema"
	"go.uber.org/zap"
)

// Keys under which ToQueryParams stores the rendered clauses next to the
// bound parameters.
const (
	ColumnsExpressionKey = "columnsExpression"
	WhereExpressionKey   = "whereExpression"
	OrderExpressionKey   = "orderExpression"
)

// CompilerOptions controls how bound parameters are named and referenced.
type CompilerOptions struct {
	// ParamPrefix is prepended to the counter to name parameters: p0, p1, ...
	ParamPrefix string
	// PlaceholderPrefix is prepended to a parameter name where it is
	// referenced in SQL text: ":" gives :p0, "@" gives @p0.
	PlaceholderPrefix string
}

// DefaultCompilerOptions returns options producing :p0, :p1, ... placeholders.
func DefaultCompilerOptions() *CompilerOptions {
	return &CompilerOptions{
		ParamPrefix:       "p",
		PlaceholderPrefix: ":",
	}
}

// ParamExpression is a rendered SQL fragment and the values bound to the
// placeholders it references.
type ParamExpression struct {
	Expression string
	Params     map[string]any
}

// CompiledQuery is the output of compiling a whole dynamic query. Where and
// OrderBy are empty when there is nothing to filter or sort on; the caller
// then omits the WHERE and ORDER BY keywords.
type CompiledQuery struct {
	Columns string
	Where   string
	OrderBy string
	Params  map[string]any
}

// ToQueryParams merges the parameters and the rendered clauses into a single
// map, the shape a statement template consumes.
func (c CompiledQuery) ToQueryParams() map[string]any {
	out := make(map[string]any, len(c.Params)+3)
	for k, v := range c.Params {
		out[k] = v
	}
	out[ColumnsExpressionKey] = c.Columns
	out[WhereExpressionKey] = c.Where
	out[OrderExpressionKey] = c.OrderBy
	return out
}

// schemaLookup is implemented by resolvers that can list an entity's fields.
type schemaLookup interface {
	Lookup(entity reflect.Type) (*schema.SchemaDefinition, error)
}

// Compiler renders descriptors into SQL text plus bound parameters. It keeps
// no state between calls and is safe for concurrent use.
type Compiler struct {
	resolver schema.Resolver
	options  *CompilerOptions
	logger   *zap.Logger
}

// NewCompiler creates a compiler resolving property names through resolver.
func NewCompiler(resolver schema.Resolver, logger *zap.Logger, options *CompilerOptions) *Compiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if options == nil {
		options = DefaultCompilerOptions()
	}
	return &Compiler{
		resolver: resolver,
		options:  options,
		logger:   logger,
	}
}

// Options returns the compiler's options.
func (c *Compiler) Options() CompilerOptions {
	return *c.options
}

// compileContext is the state of one compile call. The counter is shared by
// every nested group so parameter names are unique across the whole call.
type compileContext struct {
	compiler *Compiler
	entity   reflect.Type
	counter  int
	params   map[string]any
	columns  map[string]string
}

func (c *Compiler) newContext(entity reflect.Type) *compileContext {
	return &compileContext{
		compiler: c,
		entity:   schema.EntityType(entity),
		params:   make(map[string]any),
		columns:  make(map[string]string),
	}
}

// CompileWhere renders filters into a WHERE clause body.
func (c *Compiler) CompileWhere(entity reflect.Type, filters ...FilterNode) (ParamExpression, error) {
	ctx := c.newContext(entity)
	where, err := ctx.compileFilters(filters)
	if err != nil {
		return ParamExpression{}, err
	}
	c.logger.Debug("Compiled WHERE expression",
		zap.String("entity", typeName(ctx.entity)),
		zap.String("where", where),
		zap.Int("params", len(ctx.params)))
	return ParamExpression{Expression: where, Params: ctx.params}, nil
}

// CompileSort renders sorts into an ORDER BY clause body.
func (c *Compiler) CompileSort(entity reflect.Type, sorts ...SortDescriptor) (string, error) {
	ctx := c.newContext(entity)
	return ctx.compileSorts(sorts)
}

// CompileColumns renders the select list. With no columns every property of
// the entity is selected when the resolver can list them, "*" otherwise.
func (c *Compiler) CompileColumns(entity reflect.Type, columns ...string) (string, error) {
	ctx := c.newContext(entity)
	return ctx.compileColumns(columns)
}

// Compile renders the select list, WHERE and ORDER BY bodies of q. The query
// is only read.
func (c *Compiler) Compile(q Query) (CompiledQuery, error) {
	if q == nil {
		return CompiledQuery{}, fmt.Errorf("query cannot be nil")
	}
	ctx := c.newContext(q.EntityType())
	if ctx.entity == nil {
		return CompiledQuery{}, fmt.Errorf("query has no entity type")
	}

	columns, err := ctx.compileColumns(q.SelectedColumns())
	if err != nil {
		return CompiledQuery{}, fmt.Errorf("columns: %w", err)
	}
	where, err := ctx.compileFilters(q.Filters())
	if err != nil {
		return CompiledQuery{}, fmt.Errorf("where: %w", err)
	}
	orderBy, err := ctx.compileSorts(q.Sorts())
	if err != nil {
		return CompiledQuery{}, fmt.Errorf("order by: %w", err)
	}

	c.logger.Debug("Compiled dynamic query",
		zap.String("entity", typeName(ctx.entity)),
		zap.String("columns", columns),
		zap.String("where", where),
		zap.String("orderBy", orderBy),
		zap.Int("params", len(ctx.params)))

	return CompiledQuery{
		Columns: columns,
		Where:   where,
		OrderBy: orderBy,
		Params:  ctx.params,
	}, nil
}

// column resolves a property, caching the answer for this call only.
func (ctx *compileContext) column(property string) (string, error) {
	if col, ok := ctx.columns[property]; ok {
		return col, nil
	}
	if ctx.compiler.resolver == nil {
		return "", fmt.Errorf("compiler has no property resolver")
	}
	col, err := ctx.compiler.resolver.Resolve(ctx.entity, property)
	if err != nil {
		return "", err
	}
	ctx.columns[property] = col
	return col, nil
}

// bind registers value under a fresh parameter name and returns the
// placeholder referencing it.
func (ctx *compileContext) bind(value any) string {
	name := ctx.compiler.options.ParamPrefix + strconv.Itoa(ctx.counter)
	ctx.counter++
	ctx.params[name] = value
	return ctx.compiler.options.PlaceholderPrefix + name
}

func (ctx *compileContext) compileFilters(nodes []FilterNode) (string, error) {
	var sb strings.Builder
	for _, node := range nodes {
		rendered, err := ctx.compileNode(node)
		if err != nil {
			return "", err
		}
		if rendered == "" {
			continue
		}
		if sb.Len() > 0 {
			join, err := joinCondition(node)
			if err != nil {
				return "", err
			}
			sb.WriteString(" " + string(join) + " ")
		}
		sb.WriteString(rendered)
	}
	return sb.String(), nil
}

func joinCondition(node FilterNode) (FilterCondition, error) {
	switch cond := FilterCondition(strings.ToUpper(string(node.JoinCondition()))); cond {
	case "":
		return ConditionAnd, nil
	case ConditionAnd, ConditionOr:
		return cond, nil
	default:
		return "", &InvalidFilterValueError{Field: nodeField(node), Reason: fmt.Sprintf("unknown join condition %q", cond)}
	}
}

func nodeField(node FilterNode) string {
	switch n := node.(type) {
	case *FilterDescriptor:
		return n.Field
	case *CustomFilterDescriptor:
		return n.Expression
	default:
		return "group"
	}
}

func (ctx *compileContext) compileNode(node FilterNode) (string, error) {
	switch n := node.(type) {
	case *FilterDescriptor:
		if n == nil {
			return "", nil
		}
		return ctx.compileFilter(n)
	case *FilterGroupDescriptor:
		if n == nil {
			return "", nil
		}
		inner, err := ctx.compileFilters(n.Filters)
		if err != nil || inner == "" {
			return "", err
		}
		return "(" + inner + ")", nil
	case *CustomFilterDescriptor:
		if n == nil {
			return "", nil
		}
		return ctx.compileCustom(n)
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("unsupported filter node %T", node)
	}
}

var comparisonSQL = map[FilterOperator]string{
	FilterOperatorEqual:              "=",
	FilterOperatorNotEqual:           "<>",
	FilterOperatorLessThan:           "<",
	FilterOperatorLessThanOrEqual:    "<=",
	FilterOperatorGreaterThan:        ">",
	FilterOperatorGreaterThanOrEqual: ">=",
}

func (ctx *compileContext) compileFilter(f *FilterDescriptor) (string, error) {
	if !f.Operator.IsStandard() {
		return "", &InvalidFilterValueError{Field: f.Field, Operator: f.Operator, Reason: "unsupported operator"}
	}
	col, err := ctx.column(f.Field)
	if err != nil {
		return "", err
	}

	switch f.Operator {
	case FilterOperatorEqual:
		if isNull(f.Value) {
			return col + " IS NULL", nil
		}
		return fmt.Sprintf("%s = %s", col, ctx.bind(f.Value)), nil

	case FilterOperatorNotEqual:
		if isNull(f.Value) {
			return col + " IS NOT NULL", nil
		}
		return fmt.Sprintf("%s <> %s", col, ctx.bind(f.Value)), nil

	case FilterOperatorLessThan, FilterOperatorLessThanOrEqual,
		FilterOperatorGreaterThan, FilterOperatorGreaterThanOrEqual:
		if isNull(f.Value) {
			return "", &InvalidFilterValueError{Field: f.Field, Operator: f.Operator, Reason: "value cannot be null"}
		}
		return fmt.Sprintf("%s %s %s", col, comparisonSQL[f.Operator], ctx.bind(f.Value)), nil

	case FilterOperatorStartWith, FilterOperatorEndWith, FilterOperatorContains, FilterOperatorNotContains:
		if isNull(f.Value) {
			return "", &InvalidFilterValueError{Field: f.Field, Operator: f.Operator, Reason: "value cannot be null"}
		}
		text := fmt.Sprintf("%v", f.Value)
		switch f.Operator {
		case FilterOperatorStartWith:
			return fmt.Sprintf("%s LIKE %s", col, ctx.bind(text+"%")), nil
		case FilterOperatorEndWith:
			return fmt.Sprintf("%s LIKE %s", col, ctx.bind("%"+text)), nil
		case FilterOperatorContains:
			return fmt.Sprintf("%s LIKE %s", col, ctx.bind("%"+text+"%")), nil
		default:
			return fmt.Sprintf("%s NOT LIKE %s", col, ctx.bind("%"+text+"%")), nil
		}

	case FilterOperatorIn, FilterOperatorNotIn:
		values, err := listValues(f)
		if err != nil {
			return "", err
		}
		if len(values) == 0 {
			return "", &InvalidFilterValueError{Field: f.Field, Operator: f.Operator, Reason: "value list cannot be empty"}
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = ctx.bind(v)
		}
		op := "IN"
		if f.Operator == FilterOperatorNotIn {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", col, op, strings.Join(placeholders, ",")), nil

	case FilterOperatorBetween:
		values, err := listValues(f)
		if err != nil {
			return "", err
		}
		if len(values) != 2 {
			return "", &InvalidFilterValueError{Field: f.Field, Operator: f.Operator,
				Reason: fmt.Sprintf("expected exactly 2 values, got %d", len(values))}
		}
		lower := ctx.bind(values[0])
		upper := ctx.bind(values[1])
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, lower, upper), nil
	}

	return "", &InvalidFilterValueError{Field: f.Field, Operator: f.Operator, Reason: "unsupported operator"}
}

// listValues flattens the value of a list operator. A scalar counts as a
// one-element list; null elements are rejected.
func listValues(f *FilterDescriptor) ([]any, error) {
	if isNull(f.Value) {
		return nil, &InvalidFilterValueError{Field: f.Field, Operator: f.Operator, Reason: "value cannot be null"}
	}

	var values []any
	switch v := f.Value.(type) {
	case []any:
		values = v
	case []byte, string:
		values = []any{v}
	default:
		rv := reflect.ValueOf(f.Value)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			values = make([]any, rv.Len())
			for i := range values {
				values[i] = rv.Index(i).Interface()
			}
		default:
			values = []any{f.Value}
		}
	}

	for i, v := range values {
		if isNull(v) {
			return nil, &InvalidFilterValueError{Field: f.Field, Operator: f.Operator,
				Reason: fmt.Sprintf("value at index %d cannot be null", i)}
		}
	}
	return values, nil
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

var customPlaceholder = regexp.MustCompile(`\{(\d+)\}`)

// compileCustom binds one parameter per distinct placeholder index, in index
// order, and substitutes every occurrence with its placeholder.
func (ctx *compileContext) compileCustom(c *CustomFilterDescriptor) (string, error) {
	if strings.TrimSpace(c.Expression) == "" {
		return "", nil
	}

	matches := customPlaceholder.FindAllStringSubmatch(c.Expression, -1)
	seen := make(map[int]struct{}, len(matches))
	indices := make([]int, 0, len(matches))
	for _, m := range matches {
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx >= len(c.Params) {
			return "", &InvalidFilterValueError{Field: c.Expression,
				Reason: fmt.Sprintf("placeholder {%s} has no matching parameter (%d given)", m[1], len(c.Params))}
		}
		if _, dup := seen[idx]; !dup {
			seen[idx] = struct{}{}
			indices = append(indices, idx)
		}
	}
	sort.Ints(indices)

	placeholders := make(map[int]string, len(indices))
	for _, idx := range indices {
		placeholders[idx] = ctx.bind(c.Params[idx])
	}

	return customPlaceholder.ReplaceAllStringFunc(c.Expression, func(token string) string {
		idx, _ := strconv.Atoi(token[1 : len(token)-1])
		return placeholders[idx]
	}), nil
}

func (ctx *compileContext) compileSorts(sorts []SortDescriptor) (string, error) {
	clauses := make([]string, 0, len(sorts))
	for _, s := range sorts {
		dir := SortDirection(strings.ToUpper(string(s.Direction)))
		switch dir {
		case "":
			dir = SortDirectionAsc
		case SortDirectionAsc, SortDirectionDesc:
		default:
			return "", &InvalidFilterValueError{Field: s.Field, Reason: fmt.Sprintf("unknown sort direction %q", s.Direction)}
		}
		col, err := ctx.column(s.Field)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, col+" "+string(dir))
	}
	return strings.Join(clauses, ", "), nil
}

func (ctx *compileContext) compileColumns(properties []string) (string, error) {
	if len(properties) == 0 {
		lookup, ok := ctx.compiler.resolver.(schemaLookup)
		if !ok {
			return "*", nil
		}
		def, err := lookup.Lookup(ctx.entity)
		if err != nil {
			return "", err
		}
		properties = def.FieldNames()
	}

	items := make([]string, 0, len(properties))
	for _, property := range properties {
		col, err := ctx.column(property)
		if err != nil {
			return "", err
		}
		if col == property {
			items = append(items, col)
			continue
		}
		items = append(items, fmt.Sprintf(`%s AS %s`, col, quoteAlias(property)))
	}
	return strings.Join(items, ", "), nil
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

func quoteAlias(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
