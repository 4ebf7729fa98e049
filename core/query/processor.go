package query

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/asaidimu/go-dynaquery/core/schema"
	"go.uber.org/zap"
)

// PredicateFunction evaluates an operator the SQL compiler does not know
// against one document.
type PredicateFunction func(doc schema.Document, field string, value any) (bool, error)

// DataProcessor evaluates filter descriptors against in-memory documents
// keyed by property name. AND binds tighter than OR, as in the rendered SQL.
//
// Comparisons follow SQL: a missing or null property fails every comparison
// except EQUAL null and NOT_EQUAL null. Pattern operators are case-sensitive.
// Custom filters carry raw SQL and cannot be evaluated in memory.
type DataProcessor struct {
	predicates map[FilterOperator]PredicateFunction
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewDataProcessor creates a new DataProcessor instance.
func NewDataProcessor(logger *zap.Logger) *DataProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DataProcessor{
		predicates: make(map[FilterOperator]PredicateFunction),
		logger:     logger,
	}
}

// RegisterFilterFunction registers a predicate for a non-standard operator.
func (p *DataProcessor) RegisterFilterFunction(operator FilterOperator, fn PredicateFunction) error {
	if operator.IsStandard() {
		return fmt.Errorf("operator %s is built in and cannot be replaced", operator)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.predicates[operator] = fn
	p.logger.Info("Registered filter function", zap.String("operator", string(operator)))
	return nil
}

// Match reports whether doc satisfies filters. No filters match everything.
func (p *DataProcessor) Match(ctx context.Context, filters []FilterNode, doc schema.Document) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	matched, empty, err := p.evaluateNodes(doc, filters)
	return matched || empty, err
}

// Filter returns the documents of rows that satisfy the filters of q.
func (p *DataProcessor) Filter(ctx context.Context, q Query, rows []schema.Document) ([]schema.Document, error) {
	filtered := make([]schema.Document, 0, len(rows))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := p.Match(ctx, q.Filters(), row)
		if err != nil {
			return nil, err
		}
		if ok {
			filtered = append(filtered, row)
		}
	}
	p.logger.Debug("Filtered documents", zap.Int("in", len(rows)), zap.Int("out", len(filtered)))
	return filtered, nil
}

// evaluateNodes folds a node sequence the way SQL reads it: runs of AND
// are evaluated first and then OR-ed together. empty is true when every
// node was an empty group, which the compiler renders as nothing.
func (p *DataProcessor) evaluateNodes(doc schema.Document, nodes []FilterNode) (matched bool, empty bool, err error) {
	var result, run bool
	started := false
	for _, node := range nodes {
		value, skip, err := p.evaluateNode(doc, node)
		if err != nil {
			return false, false, err
		}
		if skip {
			continue
		}
		if !started {
			run, started = value, true
			continue
		}
		join, err := joinCondition(node)
		if err != nil {
			return false, false, err
		}
		if join == ConditionOr {
			result = result || run
			run = value
		} else {
			run = run && value
		}
	}
	if !started {
		return false, true, nil
	}
	return result || run, false, nil
}

func (p *DataProcessor) evaluateNode(doc schema.Document, node FilterNode) (value bool, skip bool, err error) {
	switch n := node.(type) {
	case *FilterDescriptor:
		if n == nil {
			return false, true, nil
		}
		value, err = p.evaluateFilter(doc, n)
		return value, false, err
	case *FilterGroupDescriptor:
		if n == nil {
			return false, true, nil
		}
		return p.evaluateNodes(doc, n.Filters)
	case *CustomFilterDescriptor:
		if n == nil || strings.TrimSpace(n.Expression) == "" {
			return false, true, nil
		}
		return false, false, fmt.Errorf("custom filter %q cannot be evaluated in memory", n.Expression)
	case nil:
		return false, true, nil
	default:
		return false, false, fmt.Errorf("unsupported filter node %T", node)
	}
}

func (p *DataProcessor) evaluateFilter(doc schema.Document, f *FilterDescriptor) (bool, error) {
	if !f.Operator.IsStandard() {
		fn, ok := p.predicates[f.Operator]
		if !ok {
			return false, &InvalidFilterValueError{Field: f.Field, Operator: f.Operator, Reason: "unsupported operator"}
		}
		return fn(doc, f.Field, f.Value)
	}

	actual := doc[f.Field]
	switch f.Operator {
	case FilterOperatorEqual:
		if isNull(f.Value) {
			return isNull(actual), nil
		}
		return !isNull(actual) && equalValues(actual, f.Value), nil

	case FilterOperatorNotEqual:
		if isNull(f.Value) {
			return !isNull(actual), nil
		}
		return !isNull(actual) && !equalValues(actual, f.Value), nil

	case FilterOperatorLessThan, FilterOperatorLessThanOrEqual,
		FilterOperatorGreaterThan, FilterOperatorGreaterThanOrEqual:
		if isNull(f.Value) {
			return false, &InvalidFilterValueError{Field: f.Field, Operator: f.Operator, Reason: "value cannot be null"}
		}
		if isNull(actual) {
			return false, nil
		}
		c, err := compareValues(actual, f.Value)
		if err != nil {
			return false, fmt.Errorf("field '%s': %w", f.Field, err)
		}
		switch f.Operator {
		case FilterOperatorLessThan:
			return c < 0, nil
		case FilterOperatorLessThanOrEqual:
			return c <= 0, nil
		case FilterOperatorGreaterThan:
			return c > 0, nil
		default:
			return c >= 0, nil
		}

	case FilterOperatorStartWith, FilterOperatorEndWith, FilterOperatorContains, FilterOperatorNotContains:
		if isNull(f.Value) {
			return false, &InvalidFilterValueError{Field: f.Field, Operator: f.Operator, Reason: "value cannot be null"}
		}
		if isNull(actual) {
			return false, nil
		}
		text, part := fmt.Sprintf("%v", actual), fmt.Sprintf("%v", f.Value)
		switch f.Operator {
		case FilterOperatorStartWith:
			return strings.HasPrefix(text, part), nil
		case FilterOperatorEndWith:
			return strings.HasSuffix(text, part), nil
		case FilterOperatorContains:
			return strings.Contains(text, part), nil
		default:
			return !strings.Contains(text, part), nil
		}

	case FilterOperatorIn, FilterOperatorNotIn:
		values, err := listValues(f)
		if err != nil {
			return false, err
		}
		if len(values) == 0 {
			return false, &InvalidFilterValueError{Field: f.Field, Operator: f.Operator, Reason: "value list cannot be empty"}
		}
		if isNull(actual) {
			return false, nil
		}
		found := false
		for _, v := range values {
			if equalValues(actual, v) {
				found = true
				break
			}
		}
		return found == (f.Operator == FilterOperatorIn), nil

	case FilterOperatorBetween:
		values, err := listValues(f)
		if err != nil {
			return false, err
		}
		if len(values) != 2 {
			return false, &InvalidFilterValueError{Field: f.Field, Operator: f.Operator,
				Reason: fmt.Sprintf("expected exactly 2 values, got %d", len(values))}
		}
		if isNull(actual) {
			return false, nil
		}
		lower, err := compareValues(actual, values[0])
		if err != nil {
			return false, fmt.Errorf("field '%s': %w", f.Field, err)
		}
		upper, err := compareValues(actual, values[1])
		if err != nil {
			return false, fmt.Errorf("field '%s': %w", f.Field, err)
		}
		return lower >= 0 && upper <= 0, nil
	}

	return false, &InvalidFilterValueError{Field: f.Field, Operator: f.Operator, Reason: "unsupported operator"}
}

// equalValues compares numbers by value, so int64(3) equals 3.0 and a
// decimal 3.00.
func equalValues(a, b any) bool {
	if c, err := compareValues(a, b); err == nil {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders a against b. Strings compare with strings, times
// with times, and anything ToDecimal accepts compares numerically.
func compareValues(a, b any) (int, error) {
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return strings.Compare(sa, sb), nil
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb), nil
		}
	}
	if _, ok := a.(bool); ok {
		return 0, &TypeCoercionError{Value: a, Target: "ordered value"}
	}
	if _, ok := b.(bool); ok {
		return 0, &TypeCoercionError{Value: b, Target: "ordered value"}
	}

	da, err := ToDecimal(a)
	if err != nil || da == nil {
		return 0, &TypeCoercionError{Value: a, Target: "ordered value"}
	}
	db, err := ToDecimal(b)
	if err != nil || db == nil {
		return 0, &TypeCoercionError{Value: b, Target: "ordered value"}
	}
	return da.Cmp(*db), nil
}
