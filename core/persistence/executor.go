package persistence

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/asaidimu/go-dynaquery/core/query"
	"github.com/asaidimu/go-dynaquery/core/schema"
	"github.com/asaidimu/go-dynaquery/utils"
	"github.com/asaidimu/go-events"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Executor runs dynamic queries: it looks the entity up in the registry,
// compiles the query with the interactor's placeholder style and hands the
// compiled clauses to the interactor. Every operation emits a start event
// and a success or failed event on the executor's bus.
type Executor struct {
	interactor DatabaseInteractor
	registry   *schema.Registry
	compiler   *query.Compiler
	logger     *zap.Logger

	bus           *events.TypedEventBus[QueryEvent]
	subMu         *sync.RWMutex
	subscriptions map[string]*SubscriptionInfo
}

// NewExecutor creates an executor over interactor. A nil registry falls back
// to schema.Default().
func NewExecutor(interactor DatabaseInteractor, registry *schema.Registry, logger *zap.Logger) (*Executor, error) {
	if interactor == nil {
		return nil, fmt.Errorf("interactor cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = schema.Default()
	}

	bus, err := events.NewTypedEventBus[QueryEvent](events.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("could not initialize event bus: %w", err)
	}

	return &Executor{
		interactor:    interactor,
		registry:      registry,
		compiler:      query.NewCompiler(registry, logger, interactor.CompilerOptions()),
		logger:        logger,
		bus:           bus,
		subMu:         &sync.RWMutex{},
		subscriptions: make(map[string]*SubscriptionInfo),
	}, nil
}

// Compiler returns the compiler the executor renders queries with.
func (e *Executor) Compiler() *query.Compiler {
	return e.compiler
}

// Registry returns the registry the executor resolves entities with.
func (e *Executor) Registry() *schema.Registry {
	return e.registry
}

// emitEvent is a helper method to emit events
func (e *Executor) emitEvent(event QueryEvent) {
	if e.bus != nil {
		e.bus.Emit(string(event.Type), event)
	}
}

// withEventEmission wraps an operation with start, success, and failure events
func (e *Executor) withEventEmission(scope queryScope, fn func() (any, error)) (any, error) {
	startTime := time.Now()
	scope.id = uuid.New().String()

	e.emitEvent(createEvent(QueryStart, scope, nil, nil, startTime))

	result, err := fn()
	if err != nil {
		errStr := err.Error()
		e.emitEvent(createEvent(QueryFailed, scope, nil, &errStr, startTime))
		e.logger.Debug("Dynamic query failed",
			zap.String("operation", scope.operation),
			zap.String("entity", scope.entity),
			zap.Error(err))
		return nil, err
	}

	e.emitEvent(createEvent(QuerySuccess, scope, result, nil, startTime))
	return result, nil
}

// prepare resolves the definition of the query's entity and compiles the
// query. Without withSelect only the WHERE clause is rendered.
func (e *Executor) prepare(operation string, q query.Query, withSelect bool) (*schema.SchemaDefinition, queryScope, error) {
	scope := queryScope{operation: operation}
	if q == nil {
		return nil, scope, fmt.Errorf("query cannot be nil")
	}
	entity := q.EntityType()
	scope.entity = entityName(entity)

	def, err := e.registry.Lookup(entity)
	if err != nil {
		return nil, scope, err
	}
	scope.table = def.TableName()

	if withSelect {
		scope.compiled, err = e.compiler.Compile(q)
	} else {
		var where query.ParamExpression
		where, err = e.compiler.CompileWhere(entity, q.Filters()...)
		scope.compiled = query.CompiledQuery{Where: where.Expression, Params: where.Params}
	}
	if err != nil {
		return nil, scope, err
	}
	return def, scope, nil
}

func entityName(t reflect.Type) string {
	t = schema.EntityType(t)
	if t == nil {
		return ""
	}
	return t.String()
}

// SelectByDynamicQuery returns every row matching q, ordered by its sort
// sequence.
func (e *Executor) SelectByDynamicQuery(ctx context.Context, q query.Query) ([]schema.Document, error) {
	return e.selectDocuments(ctx, "select", q, nil)
}

// SelectPageByDynamicQuery returns the rows matching q inside page.
func (e *Executor) SelectPageByDynamicQuery(ctx context.Context, q query.Query, page query.Page) ([]schema.Document, error) {
	return e.selectDocuments(ctx, "select", q, &page)
}

func (e *Executor) selectDocuments(ctx context.Context, operation string, q query.Query, page *query.Page) ([]schema.Document, error) {
	def, scope, err := e.prepare(operation, q, true)
	if err != nil {
		return nil, err
	}

	result, err := e.withEventEmission(scope, func() (any, error) {
		rows, err := e.interactor.SelectDocuments(ctx, def, scope.compiled, page)
		if err != nil {
			return nil, err
		}
		e.logger.Debug("Fetched rows", zap.String("entity", scope.entity), zap.Int("count", len(rows)))
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]schema.Document), nil
}

// SelectFirstByDynamicQuery returns the first row matching q, or ErrNotFound.
func (e *Executor) SelectFirstByDynamicQuery(ctx context.Context, q query.Query) (schema.Document, error) {
	rows, err := e.selectDocuments(ctx, "first", q, &query.Page{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// SelectCountByDynamicQuery counts the rows matching q.
func (e *Executor) SelectCountByDynamicQuery(ctx context.Context, q query.Query) (int64, error) {
	def, scope, err := e.prepare("count", q, false)
	if err != nil {
		return 0, err
	}

	result, err := e.withEventEmission(scope, func() (any, error) {
		return e.interactor.CountDocuments(ctx, def, scope.compiled)
	})
	if err != nil {
		return 0, err
	}
	return result.(int64), nil
}

// SelectMaxByDynamicQuery returns MAX(property) over the rows matching q as
// the raw driver value, nil when nothing matched.
func (e *Executor) SelectMaxByDynamicQuery(ctx context.Context, q query.Query, property string) (any, error) {
	return e.aggregate(ctx, q, query.AggregateMax, property)
}

// SelectMinByDynamicQuery returns MIN(property) over the rows matching q as
// the raw driver value, nil when nothing matched.
func (e *Executor) SelectMinByDynamicQuery(ctx context.Context, q query.Query, property string) (any, error) {
	return e.aggregate(ctx, q, query.AggregateMin, property)
}

// SelectAggregateByDynamicQuery applies fn to property over the rows matching q.
func (e *Executor) SelectAggregateByDynamicQuery(ctx context.Context, q query.Query, fn query.AggregateFunction, property string) (any, error) {
	return e.aggregate(ctx, q, fn, property)
}

func (e *Executor) aggregate(ctx context.Context, q query.Query, fn query.AggregateFunction, property string) (any, error) {
	def, scope, err := e.prepare(string(fn), q, false)
	if err != nil {
		return nil, err
	}
	column, err := e.registry.ColumnFor(q.EntityType(), property)
	if err != nil {
		return nil, err
	}

	return e.withEventEmission(scope, func() (any, error) {
		return e.interactor.AggregateDocuments(ctx, def, fn, column, scope.compiled)
	})
}

// SelectMaxDecimal is SelectMaxByDynamicQuery coerced to a decimal. A nil
// result means no row matched.
func (e *Executor) SelectMaxDecimal(ctx context.Context, q query.Query, property string) (*decimal.Decimal, error) {
	raw, err := e.SelectMaxByDynamicQuery(ctx, q, property)
	if err != nil {
		return nil, err
	}
	return query.ToDecimal(raw)
}

// SelectMinDecimal is SelectMinByDynamicQuery coerced to a decimal.
func (e *Executor) SelectMinDecimal(ctx context.Context, q query.Query, property string) (*decimal.Decimal, error) {
	raw, err := e.SelectMinByDynamicQuery(ctx, q, property)
	if err != nil {
		return nil, err
	}
	return query.ToDecimal(raw)
}

// SelectMaxByte is SelectMaxByDynamicQuery coerced to a signed byte.
func (e *Executor) SelectMaxByte(ctx context.Context, q query.Query, property string) (*int8, error) {
	raw, err := e.SelectMaxByDynamicQuery(ctx, q, property)
	if err != nil {
		return nil, err
	}
	return query.ToByte(raw)
}

// SelectMinByte is SelectMinByDynamicQuery coerced to a signed byte.
func (e *Executor) SelectMinByte(ctx context.Context, q query.Query, property string) (*int8, error) {
	raw, err := e.SelectMinByDynamicQuery(ctx, q, property)
	if err != nil {
		return nil, err
	}
	return query.ToByte(raw)
}

// SelectPage fetches one window of rows and the total count concurrently.
// The first failure cancels the other statement.
func (e *Executor) SelectPage(ctx context.Context, q query.Query, page query.Page) (*PageResult, error) {
	g, gctx := errgroup.WithContext(ctx)
	result := &PageResult{}

	g.Go(func() error {
		rows, err := e.selectDocuments(gctx, "page", q, &page)
		if err != nil {
			return fmt.Errorf("page rows: %w", err)
		}
		result.Rows = rows
		return nil
	})
	g.Go(func() error {
		total, err := e.SelectCountByDynamicQuery(gctx, q)
		if err != nil {
			return fmt.Errorf("page count: %w", err)
		}
		result.Total = total
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// SelectEntities runs q and decodes every row into T.
func SelectEntities[T any](ctx context.Context, e *Executor, q *query.DynamicQuery[T]) ([]T, error) {
	rows, err := e.SelectByDynamicQuery(ctx, q)
	if err != nil {
		return nil, err
	}
	def, err := e.registry.Lookup(q.EntityType())
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(rows))
	for i, row := range rows {
		entity, err := utils.RowToEntity[T](row, def)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, entity)
	}
	return out, nil
}

// SelectFirstEntity runs q and decodes the first row into T, or returns
// ErrNotFound.
func SelectFirstEntity[T any](ctx context.Context, e *Executor, q *query.DynamicQuery[T]) (T, error) {
	var zero T
	row, err := e.SelectFirstByDynamicQuery(ctx, q)
	if err != nil {
		return zero, err
	}
	def, err := e.registry.Lookup(q.EntityType())
	if err != nil {
		return zero, err
	}
	return utils.RowToEntity[T](row, def)
}

// Insert validates and writes entities of type T, returning the number of
// rows written. A document failing validation aborts the whole batch with a
// schema.ValidationError.
func Insert[T any](ctx context.Context, e *Executor, entities ...T) (int64, error) {
	def, err := e.registry.Lookup(schema.TypeOf[T]())
	if err != nil {
		return 0, err
	}
	validator := schema.NewValidator(def)
	records := make([]schema.Document, 0, len(entities))
	for _, entity := range entities {
		doc, err := utils.EntityToDocument(entity, def)
		if err != nil {
			return 0, err
		}
		if ok, issues := validator.Validate(doc, false); !ok {
			return 0, &schema.ValidationError{Entity: def.Name, Issues: issues}
		}
		records = append(records, doc)
	}
	return e.interactor.InsertDocuments(ctx, def, records)
}

// CreateCollection creates the table backing T from its registered definition.
func CreateCollection[T any](ctx context.Context, e *Executor) error {
	def, err := e.registry.Lookup(schema.TypeOf[T]())
	if err != nil {
		return err
	}
	return e.interactor.CreateCollection(ctx, *def)
}

// Transact runs fn against an executor bound to a new transaction. The
// transaction commits when fn returns nil and rolls back otherwise. The
// transactional executor shares the bus and subscriptions of e.
func (e *Executor) Transact(ctx context.Context, fn func(tx *Executor) error) (err error) {
	txInteractor, err := e.interactor.StartTransaction(ctx)
	if err != nil {
		return err
	}

	scope := queryScope{id: uuid.New().String(), operation: "transaction"}
	startTime := time.Now()
	e.emitEvent(createEvent(TransactionStart, scope, nil, nil, startTime))

	tx := *e
	tx.interactor = txInteractor

	defer func() {
		if p := recover(); p != nil {
			if rbErr := txInteractor.Rollback(ctx); rbErr != nil {
				e.logger.Error("Rollback failed", zap.Error(rbErr))
			}
			errStr := fmt.Sprintf("panic: %v", p)
			e.emitEvent(createEvent(TransactionFailed, scope, nil, &errStr, startTime))
			panic(p)
		}
		if err != nil {
			if rbErr := txInteractor.Rollback(ctx); rbErr != nil {
				e.logger.Error("Rollback failed", zap.Error(rbErr))
			}
			errStr := err.Error()
			e.emitEvent(createEvent(TransactionFailed, scope, nil, &errStr, startTime))
			return
		}
		e.emitEvent(createEvent(TransactionSuccess, scope, nil, nil, startTime))
	}()

	if err = fn(&tx); err != nil {
		return err
	}
	return txInteractor.Commit(ctx)
}

// RegisterSubscription registers a callback for an event type. It returns
// a unique ID that can be used to unregister the subscription later.
func (e *Executor) RegisterSubscription(options RegisterSubscriptionOptions) string {
	e.subMu.Lock()
	unsubscribe := e.bus.Subscribe(string(options.Event), options.Callback)
	id := uuid.New().String()
	e.subscriptions[id] = &SubscriptionInfo{
		Id:          &id,
		Event:       options.Event,
		Unsubscribe: unsubscribe,
		Label:       options.Label,
		Description: options.Description,
	}
	e.subMu.Unlock()

	e.emitEvent(createEvent(SubscriptionRegister, queryScope{id: id, operation: string(options.Event)}, nil, nil, time.Time{}))
	return id
}

// UnregisterSubscription removes a subscription by its ID.
func (e *Executor) UnregisterSubscription(id string) {
	e.subMu.Lock()
	info, ok := e.subscriptions[id]
	if ok {
		info.Unsubscribe()
		delete(e.subscriptions, id)
	}
	e.subMu.Unlock()

	if ok {
		e.emitEvent(createEvent(SubscriptionUnregister, queryScope{id: id, operation: string(info.Event)}, nil, nil, time.Time{}))
	}
}

// Subscriptions returns a list of all currently active subscriptions.
func (e *Executor) Subscriptions() []SubscriptionInfo {
	e.subMu.RLock()
	defer e.subMu.RUnlock()

	subs := make([]SubscriptionInfo, 0, len(e.subscriptions))
	for _, sub := range e.subscriptions {
		subs = append(subs, *sub)
	}
	return subs
}
