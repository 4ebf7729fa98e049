package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/asaidimu/go-dynaquery/core/query"
	"github.com/asaidimu/go-dynaquery/core/schema"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type product struct {
	ProductID int64   `json:"productID"`
	Price     float64 `json:"price"`
}

type unregistered struct{}

// fakeInteractor records what the executor hands over and answers with
// canned values.
type fakeInteractor struct {
	mu        sync.Mutex
	rows      []schema.Document
	count     int64
	aggregate any
	err       error

	compiled []query.CompiledQuery
	pages    []*query.Page
	columns  []string
	inserted []schema.Document
	tx       *fakeInteractor
	commits  int
	rollback int
}

var _ DatabaseInteractor = (*fakeInteractor)(nil)

func (f *fakeInteractor) record(compiled query.CompiledQuery) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compiled = append(f.compiled, compiled)
}

func (f *fakeInteractor) CompilerOptions() *query.CompilerOptions {
	return query.DefaultCompilerOptions()
}

func (f *fakeInteractor) SelectDocuments(ctx context.Context, def *schema.SchemaDefinition, compiled query.CompiledQuery, page *query.Page) ([]schema.Document, error) {
	f.record(compiled)
	f.mu.Lock()
	f.pages = append(f.pages, page)
	f.mu.Unlock()
	return f.rows, f.err
}

func (f *fakeInteractor) CountDocuments(ctx context.Context, def *schema.SchemaDefinition, compiled query.CompiledQuery) (int64, error) {
	f.record(compiled)
	return f.count, f.err
}

func (f *fakeInteractor) AggregateDocuments(ctx context.Context, def *schema.SchemaDefinition, fn query.AggregateFunction, column string, compiled query.CompiledQuery) (any, error) {
	f.record(compiled)
	f.mu.Lock()
	f.columns = append(f.columns, string(fn)+"("+column+")")
	f.mu.Unlock()
	return f.aggregate, f.err
}

func (f *fakeInteractor) InsertDocuments(ctx context.Context, def *schema.SchemaDefinition, records []schema.Document) (int64, error) {
	f.inserted = append(f.inserted, records...)
	return int64(len(records)), f.err
}

func (f *fakeInteractor) CreateCollection(ctx context.Context, def schema.SchemaDefinition) error {
	return f.err
}

func (f *fakeInteractor) DropCollection(ctx context.Context, name string) error {
	return f.err
}

func (f *fakeInteractor) CollectionExists(ctx context.Context, name string) (bool, error) {
	return true, f.err
}

func (f *fakeInteractor) StartTransaction(ctx context.Context) (DatabaseInteractor, error) {
	f.tx = &fakeInteractor{}
	return f.tx, nil
}

func (f *fakeInteractor) Commit(ctx context.Context) error {
	f.commits++
	return nil
}

func (f *fakeInteractor) Rollback(ctx context.Context) error {
	f.rollback++
	return nil
}

func newTestExecutor(t *testing.T, interactor *fakeInteractor) *Executor {
	t.Helper()
	r := schema.NewRegistry(nil)
	require.NoError(t, schema.RegisterType[product](r, &schema.SchemaDefinition{
		Table: "product",
		Fields: map[string]*schema.FieldDefinition{
			"productID": {Name: "productID", Type: schema.FieldTypeInteger, Column: "product_id"},
			"price":     {Name: "price", Type: schema.FieldTypeDecimal},
		},
	}))
	e, err := NewExecutor(interactor, r, nil)
	require.NoError(t, err)
	return e
}

func TestNewExecutor(t *testing.T) {
	_, err := NewExecutor(nil, nil, nil)
	assert.Error(t, err)

	e, err := NewExecutor(&fakeInteractor{}, nil, nil)
	require.NoError(t, err)
	assert.Same(t, schema.Default(), e.Registry())
	assert.Equal(t, ":", e.Compiler().Options().PlaceholderPrefix)
}

func TestExecutor_SelectCompilesQuery(t *testing.T) {
	f := &fakeInteractor{rows: []schema.Document{{"productID": int64(3)}}}
	e := newTestExecutor(t, f)

	q := query.NewBuilder[product]().
		Select("productID").
		Where("price", query.GreaterThan(10)).
		OrderByDesc("price").
		Build()

	rows, err := e.SelectByDynamicQuery(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	require.Len(t, f.compiled, 1)
	assert.Equal(t, query.CompiledQuery{
		Columns: `product_id AS "productID"`,
		Where:   "price > :p0",
		OrderBy: "price DESC",
		Params:  map[string]any{"p0": 10},
	}, f.compiled[0])
	assert.Nil(t, f.pages[0])

	_, err = e.SelectPageByDynamicQuery(context.Background(), q, query.Page{Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, &query.Page{Limit: 3}, f.pages[1])
}

func TestExecutor_SelectFirst(t *testing.T) {
	f := &fakeInteractor{rows: []schema.Document{{"productID": int64(3), "price": 1.5}}}
	e := newTestExecutor(t, f)
	q := query.NewBuilder[product]().Build()

	row, err := e.SelectFirstByDynamicQuery(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, int64(3), row["productID"])
	assert.Equal(t, &query.Page{Limit: 1}, f.pages[0])

	p, err := SelectFirstEntity(context.Background(), e, q)
	require.NoError(t, err)
	assert.Equal(t, product{ProductID: 3, Price: 1.5}, p)

	f.rows = nil
	_, err = e.SelectFirstByDynamicQuery(context.Background(), q)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestExecutor_CountIgnoresColumnsAndSorts(t *testing.T) {
	f := &fakeInteractor{count: 7}
	e := newTestExecutor(t, f)

	q := query.NewBuilder[product]().Select("price").Where("productID", query.In(1, 2)).OrderByAsc("price").Build()
	n, err := e.SelectCountByDynamicQuery(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, query.CompiledQuery{
		Where:  "product_id IN (:p0,:p1)",
		Params: map[string]any{"p0": 1, "p1": 2},
	}, f.compiled[0])
}

func TestExecutor_Aggregates(t *testing.T) {
	f := &fakeInteractor{}
	e := newTestExecutor(t, f)
	ctx := context.Background()
	q := query.NewBuilder[product]().Build()

	tests := []struct {
		name      string
		aggregate any
		run       func() (any, error)
		expected  any
		target    error
	}{
		{"max raw", int64(4), func() (any, error) { return e.SelectMaxByDynamicQuery(ctx, q, "price") }, int64(4), nil},
		{"min raw nil", nil, func() (any, error) { return e.SelectMinByDynamicQuery(ctx, q, "price") }, nil, nil},
		{"max decimal from text", "12.50", func() (any, error) {
			d, err := e.SelectMaxDecimal(ctx, q, "price")
			if d == nil {
				return nil, err
			}
			return d.String(), err
		}, "12.5", nil},
		{"min decimal no rows", nil, func() (any, error) {
			d, err := e.SelectMinDecimal(ctx, q, "price")
			return d == nil, err
		}, true, nil},
		{"max decimal bad text", "12.5x", func() (any, error) { return e.SelectMaxDecimal(ctx, q, "price") }, nil, query.ErrParse},
		{"max byte", int8(5), func() (any, error) {
			b, err := e.SelectMaxByte(ctx, q, "productID")
			if b == nil {
				return nil, err
			}
			return *b, err
		}, int8(5), nil},
		{"min byte wrong type", 3.5, func() (any, error) { return e.SelectMinByte(ctx, q, "productID") }, nil, query.ErrTypeCoercion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.aggregate = tt.aggregate
			got, err := tt.run()
			if tt.target != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.target), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	assert.Contains(t, f.columns, "MAX(price)")
	assert.Contains(t, f.columns, "MIN(product_id)")

	_, err := e.SelectAggregateByDynamicQuery(ctx, q, query.AggregateSum, "weight")
	assert.True(t, errors.Is(err, schema.ErrUnknownProperty))
}

func TestExecutor_Errors(t *testing.T) {
	e := newTestExecutor(t, &fakeInteractor{})
	ctx := context.Background()

	_, err := e.SelectByDynamicQuery(ctx, nil)
	assert.Error(t, err)

	_, err = e.SelectByDynamicQuery(ctx, query.NewBuilder[unregistered]().Build())
	assert.True(t, errors.Is(err, schema.ErrSchemaMetadataUnavailable))

	_, err = e.SelectCountByDynamicQuery(ctx, query.NewBuilder[product]().Where("price", query.GreaterThan(nil)).Build())
	assert.True(t, errors.Is(err, query.ErrInvalidFilterValue))

	failing := newTestExecutor(t, &fakeInteractor{err: errors.New("disk full")})
	_, err = failing.SelectByDynamicQuery(ctx, query.NewBuilder[product]().Build())
	assert.EqualError(t, err, "disk full")
}

func TestExecutor_SelectPage(t *testing.T) {
	f := &fakeInteractor{rows: []schema.Document{{"productID": int64(1)}, {"productID": int64(2)}}, count: 9}
	e := newTestExecutor(t, f)

	page, err := e.SelectPage(context.Background(), query.NewBuilder[product]().Build(), query.Page{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, page.Rows, 2)
	assert.Equal(t, int64(9), page.Total)

	failing := newTestExecutor(t, &fakeInteractor{err: errors.New("boom")})
	_, err = failing.SelectPage(context.Background(), query.NewBuilder[product]().Build(), query.Page{Limit: 2})
	assert.ErrorContains(t, err, "boom")
}

func TestSelectEntities(t *testing.T) {
	f := &fakeInteractor{rows: []schema.Document{
		{"productID": int64(1), "price": 2.5},
		{"product_id": int64(2), "price": "3.25"},
	}}
	e := newTestExecutor(t, f)

	_, err := SelectEntities(context.Background(), e, query.NewBuilder[product]().Build())
	require.Error(t, err, "a string price cannot decode into float64")

	f.rows = f.rows[:1]
	entities, err := SelectEntities(context.Background(), e, query.NewBuilder[product]().Build())
	require.NoError(t, err)
	assert.Equal(t, []product{{ProductID: 1, Price: 2.5}}, entities)
}

func TestInsert(t *testing.T) {
	f := &fakeInteractor{}
	e := newTestExecutor(t, f)

	n, err := Insert(context.Background(), e, product{ProductID: 1, Price: 2}, product{ProductID: 2, Price: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, []schema.Document{
		{"productID": float64(1), "price": float64(2)},
		{"productID": float64(2), "price": float64(3)},
	}, f.inserted)

	_, err = Insert(context.Background(), e, unregistered{})
	assert.True(t, errors.Is(err, schema.ErrSchemaMetadataUnavailable))
}

func TestExecutor_Transact(t *testing.T) {
	f := &fakeInteractor{}
	e := newTestExecutor(t, f)

	err := e.Transact(context.Background(), func(tx *Executor) error {
		_, err := Insert(context.Background(), tx, product{ProductID: 1})
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, f.tx)
	assert.Len(t, f.tx.inserted, 1)
	assert.Empty(t, f.inserted)
	assert.Equal(t, 1, f.tx.commits)

	err = e.Transact(context.Background(), func(tx *Executor) error {
		return errors.New("abort")
	})
	assert.EqualError(t, err, "abort")
	assert.Equal(t, 1, f.tx.rollback)
	assert.Equal(t, 0, f.tx.commits)
}

func TestExecutor_TransactPanic(t *testing.T) {
	f := &fakeInteractor{}
	e := newTestExecutor(t, f)

	var mu sync.Mutex
	var failed []QueryEvent
	e.RegisterSubscription(RegisterSubscriptionOptions{Event: TransactionFailed, Callback: func(ctx context.Context, event QueryEvent) error {
		mu.Lock()
		defer mu.Unlock()
		failed = append(failed, event)
		return nil
	}})

	assert.PanicsWithValue(t, "bad state", func() {
		_ = e.Transact(context.Background(), func(tx *Executor) error {
			panic("bad state")
		})
	})
	require.NotNil(t, f.tx)
	assert.Equal(t, 1, f.tx.rollback)
	assert.Equal(t, 0, f.tx.commits)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(failed) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "transaction", failed[0].Operation)
	require.NotNil(t, failed[0].Error)
	assert.Equal(t, "panic: bad state", *failed[0].Error)
}

func TestExecutor_Events(t *testing.T) {
	f := &fakeInteractor{err: errors.New("boom")}
	e := newTestExecutor(t, f)

	var mu sync.Mutex
	var received []QueryEvent
	callback := func(ctx context.Context, event QueryEvent) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, event)
		return nil
	}
	label := "failures"
	id := e.RegisterSubscription(RegisterSubscriptionOptions{Event: QueryFailed, Label: &label, Callback: callback})
	require.NotEmpty(t, id)

	subs := e.Subscriptions()
	require.Len(t, subs, 1)
	assert.Equal(t, id, *subs[0].Id)
	assert.Equal(t, &label, subs[0].Label)

	q := query.NewBuilder[product]().Where("price", query.LessThan(decimal.NewFromInt(3))).Build()
	_, err := e.SelectByDynamicQuery(context.Background(), q)
	require.Error(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	ev := received[0]
	mu.Unlock()
	assert.Equal(t, QueryFailed, ev.Type)
	assert.Equal(t, "select", ev.Operation)
	assert.Equal(t, "product", ev.Table)
	assert.Contains(t, ev.Entity, "product")
	assert.Equal(t, "price < :p0", ev.Where)
	require.NotNil(t, ev.Error)
	assert.Equal(t, "boom", *ev.Error)

	e.UnregisterSubscription(id)
	assert.Empty(t, e.Subscriptions())
	e.UnregisterSubscription("unknown")
}
