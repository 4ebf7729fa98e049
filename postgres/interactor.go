// Package postgres provides a persistence.DatabaseInteractor for PostgreSQL
// built on pgx. Statements are assembled with squirrel and compiled
// parameters are bound by name through pgx.NamedArgs.
package postgres

import (
	"context"
	"fmt"
	"math"

	"github.com/asaidimu/go-dynaquery/core/persistence"
	"github.com/asaidimu/go-dynaquery/core/query"
	"github.com/asaidimu/go-dynaquery/core/schema"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"
)

// Querier is the subset of pgx shared by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresInteractor implements persistence.DatabaseInteractor for
// PostgreSQL. It can operate in both transactional and non-transactional
// modes.
type PostgresInteractor struct {
	db        Querier
	tx        pgx.Tx
	generator *PostgresQuery
	logger    *zap.Logger
	options   *persistence.InteractorOptions
}

var _ persistence.DatabaseInteractor = (*PostgresInteractor)(nil)

// NewPostgresInteractor creates an interactor over db. A non-nil tx puts it
// in transactional mode.
func NewPostgresInteractor(db Querier, logger *zap.Logger, options *persistence.InteractorOptions, tx pgx.Tx) persistence.DatabaseInteractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if options == nil {
		options = DefaultInteractorOptions()
	}
	return &PostgresInteractor{
		db:        db,
		tx:        tx,
		generator: NewPostgresQuery(),
		logger:    logger,
		options:   options,
	}
}

func (i *PostgresInteractor) runner() Querier {
	if i.tx != nil {
		return i.tx
	}
	return i.db
}

// CompilerOptions implements persistence.DatabaseInteractor.
func (i *PostgresInteractor) CompilerOptions() *query.CompilerOptions {
	return CompilerOptions()
}

func (i *PostgresInteractor) table(name string) string {
	return QualifiedTable(i.options.SchemaName, i.options.TablePrefix+name)
}

// SelectDocuments implements persistence.DatabaseInteractor.
func (i *PostgresInteractor) SelectDocuments(ctx context.Context, def *schema.SchemaDefinition, compiled query.CompiledQuery, page *query.Page) ([]schema.Document, error) {
	if page == nil && i.options.DefaultLimit > 0 {
		page = &query.Page{Limit: i.options.DefaultLimit}
	}
	stmt, err := i.generator.SelectSQL(i.table(def.TableName()), compiled, page)
	if err != nil {
		return nil, fmt.Errorf("failed to generate SQL query: %w", err)
	}

	i.logger.Debug("Executing SQL SELECT", zap.String("sql", stmt), zap.Any("params", compiled.Params))

	rows, err := i.runner().Query(ctx, stmt, pgx.NamedArgs(compiled.Params))
	if err != nil {
		i.logger.Error("Failed to execute SELECT query", zap.Error(err), zap.String("sql", stmt))
		return nil, fmt.Errorf("failed to execute SELECT query: %w", err)
	}

	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	docs := make([]schema.Document, len(maps))
	for n, m := range maps {
		doc := make(schema.Document, len(m))
		for key, value := range m {
			field := def.FindField(key)
			if field == nil {
				field = def.FindByColumn(key)
			}
			doc[key] = normalizeValue(field, value)
		}
		docs[n] = doc
	}
	return docs, nil
}

// CountDocuments implements persistence.DatabaseInteractor.
func (i *PostgresInteractor) CountDocuments(ctx context.Context, def *schema.SchemaDefinition, compiled query.CompiledQuery) (int64, error) {
	stmt, err := i.generator.CountSQL(i.table(def.TableName()), compiled)
	if err != nil {
		return 0, fmt.Errorf("failed to generate SQL COUNT query: %w", err)
	}

	i.logger.Debug("Executing SQL COUNT", zap.String("sql", stmt), zap.Any("params", compiled.Params))

	var count int64
	if err := i.runner().QueryRow(ctx, stmt, pgx.NamedArgs(compiled.Params)).Scan(&count); err != nil {
		i.logger.Error("Failed to execute COUNT query", zap.Error(err), zap.String("sql", stmt))
		return 0, fmt.Errorf("failed to execute COUNT query: %w", err)
	}
	return count, nil
}

// AggregateDocuments implements persistence.DatabaseInteractor.
func (i *PostgresInteractor) AggregateDocuments(ctx context.Context, def *schema.SchemaDefinition, fn query.AggregateFunction, column string, compiled query.CompiledQuery) (any, error) {
	stmt, err := i.generator.AggregateSQL(i.table(def.TableName()), fn, column, compiled)
	if err != nil {
		return nil, fmt.Errorf("failed to generate SQL %s query: %w", fn, err)
	}

	i.logger.Debug("Executing SQL aggregate", zap.String("sql", stmt), zap.Any("params", compiled.Params))

	var value any
	if err := i.runner().QueryRow(ctx, stmt, pgx.NamedArgs(compiled.Params)).Scan(&value); err != nil {
		i.logger.Error("Failed to execute aggregate query", zap.Error(err), zap.String("sql", stmt))
		return nil, fmt.Errorf("failed to execute %s query: %w", fn, err)
	}

	var field *schema.FieldDefinition
	if fn == query.AggregateMax || fn == query.AggregateMin {
		field = def.FindByColumn(column)
	}
	return normalizeValue(field, value), nil
}

// normalizeValue converts pgx's decoded values into the types the rest of
// the module works with. NUMERIC arrives as pgtype.Numeric and is handed on
// as its exact text form.
func normalizeValue(field *schema.FieldDefinition, val any) any {
	if n, ok := val.(pgtype.Numeric); ok {
		v, err := n.Value()
		if err != nil || v == nil {
			return nil
		}
		val = v
	}
	if val == nil || field == nil {
		return val
	}

	switch field.Type {
	case schema.FieldTypeByte:
		if v, ok := val.(int16); ok && v >= math.MinInt8 && v <= math.MaxInt8 {
			return int8(v)
		}
	case schema.FieldTypeInteger:
		switch v := val.(type) {
		case int32:
			return int64(v)
		case int16:
			return int64(v)
		}
	}
	return val
}

// InsertDocuments implements persistence.DatabaseInteractor.
func (i *PostgresInteractor) InsertDocuments(ctx context.Context, def *schema.SchemaDefinition, records []schema.Document) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	stmt, args, err := GenerateInsertSQL(i.table(def.TableName()), def, records)
	if err != nil {
		return 0, fmt.Errorf("failed to generate INSERT SQL: %w", err)
	}

	i.logger.Debug("Executing SQL INSERT", zap.String("sql", stmt), zap.Any("params", args))

	tag, err := i.runner().Exec(ctx, stmt, args...)
	if err != nil {
		i.logger.Error("Failed to execute INSERT query", zap.Error(err), zap.String("sql", stmt))
		return 0, fmt.Errorf("failed to execute INSERT query: %w", err)
	}
	return tag.RowsAffected(), nil
}

// StartTransaction begins a transaction and returns an interactor scoped to it.
func (i *PostgresInteractor) StartTransaction(ctx context.Context) (persistence.DatabaseInteractor, error) {
	if i.tx != nil {
		return nil, fmt.Errorf("cannot start a new transaction from an existing transactional interactor")
	}
	tx, err := i.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	i.logger.Debug("Transaction initiated, returning new transactional interactor")
	return NewPostgresInteractor(i.db, i.logger, i.options, tx), nil
}

// Commit commits the current transaction.
func (i *PostgresInteractor) Commit(ctx context.Context) error {
	if i.tx == nil {
		return fmt.Errorf("commit not applicable: not in a transactional context")
	}
	return i.tx.Commit(ctx)
}

// Rollback rolls back the current transaction.
func (i *PostgresInteractor) Rollback(ctx context.Context) error {
	if i.tx == nil {
		return fmt.Errorf("rollback not applicable: not in a transactional context")
	}
	return i.tx.Rollback(ctx)
}
