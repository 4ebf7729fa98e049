// Package sqlite provides a concrete implementation of the persistence.DatabaseInteractor
// interface for SQLite databases. It wraps compiled dynamic queries into
// SQLite statements, binds their parameters by name and reads rows back.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/asaidimu/go-dynaquery/core/persistence"
	"github.com/asaidimu/go-dynaquery/core/query"
	"github.com/asaidimu/go-dynaquery/core/schema"
	"go.uber.org/zap"
)

// dbRunner is an interface that abstracts the common methods of *sql.DB and *sql.Tx,
// allowing for the same code to be used for both transactional and non-transactional
// database operations.
type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteInteractor is a concrete implementation of the persistence.DatabaseInteractor
// interface for SQLite. It can operate in both transactional and
// non-transactional modes.
type SQLiteInteractor struct {
	db        *sql.DB
	tx        *sql.Tx
	generator *SqliteQuery
	logger    *zap.Logger
	options   *persistence.InteractorOptions
}

// Ensure SQLiteInteractor implements the persistence.DatabaseInteractor interface.
var _ persistence.DatabaseInteractor = (*SQLiteInteractor)(nil)

// NewSQLiteInteractor creates a new instance of the SQLiteInteractor. It can be
// configured to operate in transactional mode by providing a non-nil *sql.Tx.
func NewSQLiteInteractor(db *sql.DB, logger *zap.Logger, options *persistence.InteractorOptions, tx *sql.Tx) persistence.DatabaseInteractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if options == nil {
		options = DefaultInteractorOptions()
	}
	return &SQLiteInteractor{
		db:        db,
		tx:        tx,
		options:   options,
		generator: NewSqliteQuery(),
		logger:    logger,
	}
}

// runner returns the appropriate dbRunner for the current context, either the
// database connection pool or the active transaction.
func (i *SQLiteInteractor) runner() dbRunner {
	if i.tx != nil {
		return i.tx
	}
	return i.db
}

// CompilerOptions implements persistence.DatabaseInteractor.
func (i *SQLiteInteractor) CompilerOptions() *query.CompilerOptions {
	return CompilerOptions()
}

// tableName applies the configured prefix to the definition's table.
func (i *SQLiteInteractor) tableName(def *schema.SchemaDefinition) string {
	return i.options.TablePrefix + def.TableName()
}

// readRows reads all rows from a *sql.Rows object and converts them into a slice
// of schema.Document maps. Columns are matched to the definition by property
// name first and by physical column second, so values can be normalized to
// the field's declared type.
func readRows(logger *zap.Logger, def *schema.SchemaDefinition, rows *sql.Rows) ([]schema.Document, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	fields := make([]*schema.FieldDefinition, len(columns))
	for i, col := range columns {
		field := def.FindField(col)
		if field == nil {
			field = def.FindByColumn(col)
		}
		if field == nil {
			logger.Warn("Column not found in schema, using raw value", zap.String("column", col))
		}
		fields[i] = field
	}

	results := []schema.Document{}
	for rows.Next() {
		row := make(schema.Document, len(columns))
		values := make([]any, len(columns))
		scanArgs := make([]any, len(columns))
		for i := range values {
			scanArgs[i] = &values[i]
		}

		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		for i, col := range columns {
			row[col] = normalizeValue(fields[i], values[i])
		}
		results = append(results, row)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error after scanning rows: %w", err)
	}
	return results, nil
}

// normalizeValue converts a raw SQLite value to the Go type matching the
// field's declared type.
func normalizeValue(field *schema.FieldDefinition, val any) any {
	if val == nil || field == nil {
		return val
	}

	switch field.Type {
	case schema.FieldTypeBoolean:
		if intVal, isInt := val.(int64); isInt {
			return intVal != 0
		}
	case schema.FieldTypeString:
		if byteVal, isByte := val.([]byte); isByte {
			return string(byteVal)
		}
	case schema.FieldTypeInteger:
		if floatVal, isFloat := val.(float64); isFloat {
			return int64(floatVal)
		}
	case schema.FieldTypeByte:
		if intVal, isInt := val.(int64); isInt && intVal >= math.MinInt8 && intVal <= math.MaxInt8 {
			return int8(intVal)
		}
	case schema.FieldTypeNumber:
		if intVal, isInt := val.(int64); isInt {
			return float64(intVal)
		}
	case schema.FieldTypeDecimal:
		// NUMERIC affinity hands back int64, float64 or text; the decimal
		// coercion accepts all three, text keeps its scale.
		if byteVal, isByte := val.([]byte); isByte {
			return string(byteVal)
		}
	case schema.FieldTypeTime:
		if s, ok := val.(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return t
			}
		}
	}
	return val
}

// SelectDocuments executes a SELECT query against the database.
func (i *SQLiteInteractor) SelectDocuments(ctx context.Context, def *schema.SchemaDefinition, compiled query.CompiledQuery, page *query.Page) ([]schema.Document, error) {
	if page == nil && i.options.DefaultLimit > 0 {
		page = &query.Page{Limit: i.options.DefaultLimit}
	}
	sqlQuery, err := i.generator.SelectSQL(i.tableName(def), compiled, page)
	if err != nil {
		return nil, fmt.Errorf("failed to generate SQL query: %w", err)
	}

	i.logger.Debug("Executing SQL SELECT", zap.String("sql", sqlQuery), zap.Any("params", compiled.Params))

	rows, err := i.runner().QueryContext(ctx, sqlQuery, namedArgs(compiled.Params)...)
	if err != nil {
		i.logger.Error("Failed to execute SELECT query", zap.Error(err), zap.String("sql", sqlQuery))
		return nil, fmt.Errorf("failed to execute SELECT query: %w \n %s", err, sqlQuery)
	}
	defer rows.Close()
	return readRows(i.logger, def, rows)
}

// CountDocuments executes a SELECT COUNT(*) query against the database.
func (i *SQLiteInteractor) CountDocuments(ctx context.Context, def *schema.SchemaDefinition, compiled query.CompiledQuery) (int64, error) {
	sqlQuery, err := i.generator.CountSQL(i.tableName(def), compiled)
	if err != nil {
		return 0, fmt.Errorf("failed to generate SQL COUNT query: %w", err)
	}

	i.logger.Debug("Executing SQL COUNT", zap.String("sql", sqlQuery), zap.Any("params", compiled.Params))

	var count int64
	if err := i.runner().QueryRowContext(ctx, sqlQuery, namedArgs(compiled.Params)...).Scan(&count); err != nil {
		i.logger.Error("Failed to execute COUNT query", zap.Error(err), zap.String("sql", sqlQuery))
		return 0, fmt.Errorf("failed to execute COUNT query: %w", err)
	}
	return count, nil
}

// AggregateDocuments executes a single-column aggregate query against the database.
func (i *SQLiteInteractor) AggregateDocuments(ctx context.Context, def *schema.SchemaDefinition, fn query.AggregateFunction, column string, compiled query.CompiledQuery) (any, error) {
	sqlQuery, err := i.generator.AggregateSQL(i.tableName(def), fn, column, compiled)
	if err != nil {
		return nil, fmt.Errorf("failed to generate SQL %s query: %w", fn, err)
	}

	i.logger.Debug("Executing SQL aggregate", zap.String("sql", sqlQuery), zap.Any("params", compiled.Params))

	var value any
	if err := i.runner().QueryRowContext(ctx, sqlQuery, namedArgs(compiled.Params)...).Scan(&value); err != nil {
		i.logger.Error("Failed to execute aggregate query", zap.Error(err), zap.String("sql", sqlQuery))
		return nil, fmt.Errorf("failed to execute %s query: %w", fn, err)
	}
	if b, ok := value.([]byte); ok {
		value = string(b)
	}
	// MAX and MIN yield a value of the column itself.
	if fn == query.AggregateMax || fn == query.AggregateMin {
		value = normalizeValue(def.FindByColumn(column), value)
	}
	return value, nil
}

// InsertDocuments executes an INSERT query against the database.
func (i *SQLiteInteractor) InsertDocuments(ctx context.Context, def *schema.SchemaDefinition, records []schema.Document) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	sqlQuery, queryParams, err := GenerateInsertSQL(i.tableName(def), def, records)
	if err != nil {
		return 0, fmt.Errorf("failed to generate INSERT SQL: %w", err)
	}

	i.logger.Debug("Executing SQL INSERT", zap.String("sql", sqlQuery), zap.Any("params", queryParams))

	result, err := i.runner().ExecContext(ctx, sqlQuery, queryParams...)
	if err != nil {
		i.logger.Error("Failed to execute INSERT query", zap.Error(err), zap.String("sql", sqlQuery))
		return 0, fmt.Errorf("failed to execute INSERT query: %w", err)
	}
	return result.RowsAffected()
}

// StartTransaction begins a new database transaction and returns a new SQLiteInteractor
// that is scoped to that transaction.
func (i *SQLiteInteractor) StartTransaction(ctx context.Context) (persistence.DatabaseInteractor, error) {
	if i.tx != nil {
		return nil, fmt.Errorf("cannot start a new transaction from an existing transactional interactor")
	}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	i.logger.Debug("Transaction initiated, returning new transactional interactor")
	return NewSQLiteInteractor(i.db, i.logger, i.options, tx), nil
}

// Commit commits the current transaction.
func (i *SQLiteInteractor) Commit(ctx context.Context) error {
	if i.tx == nil {
		return fmt.Errorf("commit not applicable: not in a transactional context")
	}
	i.logger.Debug("Committing transaction")
	return i.tx.Commit()
}

// Rollback rolls back the current transaction.
func (i *SQLiteInteractor) Rollback(ctx context.Context) error {
	if i.tx == nil {
		return fmt.Errorf("rollback not applicable: not in a transactional context")
	}
	i.logger.Debug("Rolling back transaction")
	return i.tx.Rollback()
}
