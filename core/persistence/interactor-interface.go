package persistence

import (
	"context"

	"github.com/asaidimu/go-dynaquery/core/query"
	"github.com/asaidimu/go-dynaquery/core/schema"
)

// InteractorOptions provides configuration for the interactor.
type InteractorOptions struct {
	// IfNotExists adds IF NOT EXISTS clause to CREATE TABLE statements.
	IfNotExists bool

	// DropIfExists drops the table before creating it.
	DropIfExists bool

	// CreateIndexes determines whether to create indexes along with the table.
	CreateIndexes bool

	// TablePrefix is prepended to every table name taken from a schema definition.
	TablePrefix string

	// SchemaName for databases that support it (e.g., PostgreSQL).
	// SQLite ignores it.
	SchemaName string

	// DefaultLimit caps selects issued without an explicit page.
	// Zero means no cap.
	DefaultLimit int
}

// DatabaseInteractor executes compiled dynamic queries against one SQL
// dialect. It can operate in either a non-transactional (default) or
// transactional mode.
// Note: This interface includes the transactional methods, but they only
// become truly active/meaningful on an instance returned by StartTransaction.
type DatabaseInteractor interface {
	// CompilerOptions tells the compiler how this dialect references bound
	// parameters in SQL text.
	CompilerOptions() *query.CompilerOptions

	// SelectDocuments runs SELECT <columns> FROM <table> [WHERE] [ORDER BY] and
	// returns one document per row, keyed by the selected aliases.
	SelectDocuments(ctx context.Context, def *schema.SchemaDefinition, compiled query.CompiledQuery, page *query.Page) ([]schema.Document, error)

	// CountDocuments runs SELECT COUNT(*) FROM <table> [WHERE].
	CountDocuments(ctx context.Context, def *schema.SchemaDefinition, compiled query.CompiledQuery) (int64, error)

	// AggregateDocuments runs SELECT <fn>(<column>) FROM <table> [WHERE] and
	// returns the raw driver value, nil when no row matched.
	AggregateDocuments(ctx context.Context, def *schema.SchemaDefinition, fn query.AggregateFunction, column string, compiled query.CompiledQuery) (any, error)

	// InsertDocuments inserts records keyed by property name and returns the
	// number of rows written.
	InsertDocuments(ctx context.Context, def *schema.SchemaDefinition, records []schema.Document) (int64, error)

	// CreateCollection generates and executes DDL statements to create a table from a schema definition.
	CreateCollection(ctx context.Context, def schema.SchemaDefinition) error

	// DropCollection drops a table if it exists.
	DropCollection(ctx context.Context, name string) error

	// CollectionExists checks if a table exists in the database.
	CollectionExists(ctx context.Context, name string) (bool, error)

	// StartTransaction initiates a new database transaction.
	// It returns a *new* instance of DatabaseInteractor that operates
	// within the scope of that transaction.
	// The original interactor instance remains non-transactional.
	StartTransaction(ctx context.Context) (DatabaseInteractor, error)

	// Commit commits the transaction. Calling it on a non-transactional
	// interactor returns an error.
	Commit(ctx context.Context) error

	// Rollback rolls back the transaction. Calling it on a non-transactional
	// interactor returns an error.
	Rollback(ctx context.Context) error
}
