package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/asaidimu/go-dynaquery/core/persistence"
	"github.com/asaidimu/go-dynaquery/core/query"
	"github.com/asaidimu/go-dynaquery/core/schema"
	"github.com/asaidimu/go-dynaquery/postgres"
	"github.com/asaidimu/go-dynaquery/sqlite"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	dbFileName        = "products.db"
	productSchemaYAML = `
name: product
table: product
description: Products offered in the shop
fields:
  productID:
    name: productID
    type: integer
    column: product_id
    required: true
  name:
    name: name
    type: string
    column: product_name
    required: true
  price:
    name: price
    type: decimal
    required: true
  grade:
    name: grade
    type: byte
indexes:
  - name: pk_product
    fields: [productID]
    type: primary
  - name: idx_product_name
    fields: [name]
    type: unique
`
)

// Product is the entity the demo queries.
type Product struct {
	ProductID int64           `json:"productID"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Grade     int8            `json:"grade"`
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := os.Remove(dbFileName); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to remove existing database file %s: %v", dbFileName, err)
	}

	db, err := sql.Open("sqlite3", dbFileName)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	def, err := schema.LoadYAML([]byte(productSchemaYAML))
	if err != nil {
		log.Fatalf("Failed to load product schema: %v", err)
	}
	registry := schema.NewRegistry(logger)
	if err := schema.RegisterType[Product](registry, def); err != nil {
		log.Fatalf("Failed to register product schema: %v", err)
	}

	ctx := context.Background()
	executor, err := persistence.NewExecutor(sqlite.NewSQLiteInteractor(db, logger, nil, nil), registry, logger)
	if err != nil {
		log.Fatalf("Failed to create executor: %v", err)
	}

	executor.RegisterSubscription(persistence.RegisterSubscriptionOptions{
		Event: persistence.QueryFailed,
		Callback: func(ctx context.Context, event persistence.QueryEvent) error {
			logger.Warn("Query failed", zap.String("operation", event.Operation), zap.Stringp("error", event.Error))
			return nil
		},
	})

	if err := persistence.CreateCollection[Product](ctx, executor); err != nil {
		log.Fatalf("Failed to create product table: %v", err)
	}
	err = executor.Transact(ctx, func(tx *persistence.Executor) error {
		_, err := persistence.Insert(ctx, tx,
			Product{ProductID: 1, Name: "pencil", Price: decimal.RequireFromString("5"), Grade: 1},
			Product{ProductID: 2, Name: "pen", Price: decimal.RequireFromString("12.50"), Grade: 3},
			Product{ProductID: 3, Name: "notebook", Price: decimal.RequireFromString("15"), Grade: 2},
			Product{ProductID: 4, Name: "stapler", Price: decimal.RequireFromString("20"), Grade: 5},
			Product{ProductID: 5, Name: "ink", Price: decimal.RequireFromString("25.75"), Grade: 4},
		)
		return err
	})
	if err != nil {
		log.Fatalf("Failed to seed products: %v", err)
	}

	grouped := query.NewBuilder[Product]().
		AndGroup(func(g *query.GroupBuilder) {
			g.And("productID", query.GreaterThan(1)).And("productID", query.LessThan(4))
		}).
		And("price", query.GreaterThan(10)).
		OrderByDesc("price").
		OrderByDesc("productID").
		Build()
	run(ctx, executor, "grouped filters", grouped)

	narrowed := query.NewBuilder[Product]().
		AddFilters(grouped.Filters()...).
		And("grade", query.GreaterThanOrEqual(2)).
		Build()
	matched, err := executor.SelectCountByDynamicQuery(ctx, narrowed)
	if err != nil {
		log.Fatalf("Failed to count products: %v", err)
	}
	groupedMax, err := executor.SelectMaxDecimal(ctx, grouped.WithoutSorts(), "price")
	if err != nil {
		log.Fatalf("Failed to select max price: %v", err)
	}
	fmt.Printf("\n--- grouped filters ---\n%d with grade >= 2, max price %s\n", matched, groupedMax)

	custom := query.NewBuilder[Product]().
		Select("name", "price").
		AndCustom("price > {0} AND price < {1}", 7, 17).
		Build()
	run(ctx, executor, "custom filter", custom)

	cheapest, err := persistence.SelectFirstEntity(ctx, executor,
		query.NewBuilder[Product]().Where("name", query.Contains("n")).OrderByAsc("price").Build())
	if err != nil {
		log.Fatalf("Failed to select first product: %v", err)
	}
	fmt.Printf("\n--- cheapest product containing 'n' ---\n%+v\n", cheapest)

	all := query.NewBuilder[Product]().Build()
	maxPrice, err := executor.SelectMaxDecimal(ctx, all, "price")
	if err != nil {
		log.Fatalf("Failed to select max price: %v", err)
	}
	minGrade, err := executor.SelectMinByte(ctx, all, "grade")
	if err != nil {
		log.Fatalf("Failed to select min grade: %v", err)
	}
	fmt.Printf("\n--- aggregates ---\nmax price: %s, min grade: %d\n", maxPrice, *minGrade)

	page, err := executor.SelectPage(ctx, query.NewBuilder[Product]().OrderByAsc("productID").Build(), query.Page{Limit: 2, Offset: 2})
	if err != nil {
		log.Fatalf("Failed to select page: %v", err)
	}
	fmt.Printf("\n--- page 2 of %d products ---\n", page.Total)
	printJSON(page.Rows)

	// The same descriptors evaluated in memory over rows already fetched.
	processor := query.NewDataProcessor(logger)
	premium, err := processor.Filter(ctx, query.NewBuilder[Product]().Where("grade", query.GreaterThanOrEqual(4)).Build(), page.Rows)
	if err != nil {
		log.Fatalf("Failed to filter page: %v", err)
	}
	fmt.Printf("\n--- grade >= 4 on that page ---\n")
	printJSON(premium)

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		runPostgres(ctx, dsn, registry, logger, grouped)
	}
}

// run prints the compiled clauses of q and the rows it selects.
func run(ctx context.Context, executor *persistence.Executor, title string, q query.Query) {
	compiled, err := executor.Compiler().Compile(q)
	if err != nil {
		log.Fatalf("Failed to compile %s: %v", title, err)
	}
	fmt.Printf("\n--- %s ---\n", title)
	printJSON(compiled.ToQueryParams())

	rows, err := executor.SelectByDynamicQuery(ctx, q)
	if err != nil {
		log.Fatalf("Failed to run %s: %v", title, err)
	}
	printJSON(rows)
}

// runPostgres repeats a query against PostgreSQL to show the @p0 placeholder style.
func runPostgres(ctx context.Context, dsn string, registry *schema.Registry, logger *zap.Logger, q query.Query) {
	pool, interactor, err := postgres.Connect(ctx, dsn, logger, nil)
	if err != nil {
		logger.Error("Skipping PostgreSQL run", zap.Error(err))
		return
	}
	defer pool.Close()

	executor, err := persistence.NewExecutor(interactor, registry, logger)
	if err != nil {
		log.Fatalf("Failed to create PostgreSQL executor: %v", err)
	}
	if err := persistence.CreateCollection[Product](ctx, executor); err != nil {
		log.Fatalf("Failed to create PostgreSQL product table: %v", err)
	}
	run(ctx, executor, "grouped filters (postgres)", q)
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%+v\n", v)
		return
	}
	fmt.Println(string(out))
}
