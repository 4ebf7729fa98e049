package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/asaidimu/go-dynaquery/core/persistence"
	"github.com/asaidimu/go-dynaquery/core/schema"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// DefaultInteractorOptions returns the default options for the PostgreSQL
// interactor. Tables live in the public schema.
func DefaultInteractorOptions() *persistence.InteractorOptions {
	return &persistence.InteractorOptions{
		IfNotExists:   true,
		CreateIndexes: true,
		SchemaName:    "public",
	}
}

// CreateCollection creates the table of sc and its secondary indexes.
func (i *PostgresInteractor) CreateCollection(ctx context.Context, sc schema.SchemaDefinition) error {
	if i.options.DropIfExists {
		if err := i.DropCollection(ctx, sc.TableName()); err != nil {
			return err
		}
	}

	statements, err := i.CreateTableSQL(sc)
	if err != nil {
		return fmt.Errorf("failed to generate SQL for table %s: %w", sc.TableName(), err)
	}
	if i.options.CreateIndexes {
		for _, index := range sc.Indexes {
			stmt, err := i.CreateIndexSQL(sc, index)
			if err != nil {
				return fmt.Errorf("failed to generate SQL for index %s: %w", index.Name, err)
			}
			if stmt != "" {
				statements = append(statements, stmt)
			}
		}
	}

	for _, stmt := range statements {
		i.logger.Debug("Executing DDL", zap.String("sql", stmt))
		if _, err := i.runner().Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute SQL statement '%s': %w", stmt, err)
		}
	}
	return nil
}

// CreateTableSQL generates the CREATE TABLE statement for sc. Columns are
// emitted in property order.
func (i *PostgresInteractor) CreateTableSQL(sc schema.SchemaDefinition) ([]string, error) {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	if i.options.IfNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(i.table(sc.TableName()) + " (\n")

	var columns []string
	for _, name := range sc.FieldNames() {
		field := sc.Fields[name]
		parts := []string{QuoteIdentifier(field.ColumnName()), i.GetColumnType(field.Type)}
		if field.Required != nil && *field.Required {
			parts = append(parts, "NOT NULL")
		}
		if field.Unique != nil && *field.Unique {
			parts = append(parts, "UNIQUE")
		}
		columns = append(columns, "    "+strings.Join(parts, " "))
	}
	sb.WriteString(strings.Join(columns, ",\n"))

	for _, index := range sc.Indexes {
		if index.Type != schema.IndexTypePrimary || len(index.Fields) == 0 {
			continue
		}
		pks, err := quotedColumns(sc, index.Fields)
		if err != nil {
			return nil, fmt.Errorf("primary key: %w", err)
		}
		sb.WriteString(",\n    PRIMARY KEY (" + strings.Join(pks, ", ") + ")")
		break
	}

	sb.WriteString("\n);")
	return []string{sb.String()}, nil
}

// GetColumnType maps a schema.FieldType to its PostgreSQL column type.
func (i *PostgresInteractor) GetColumnType(fieldType schema.FieldType) string {
	switch fieldType {
	case schema.FieldTypeString:
		return "TEXT"
	case schema.FieldTypeNumber:
		return "DOUBLE PRECISION"
	case schema.FieldTypeDecimal:
		return "NUMERIC"
	case schema.FieldTypeInteger:
		return "BIGINT"
	case schema.FieldTypeByte:
		return "SMALLINT"
	case schema.FieldTypeBoolean:
		return "BOOLEAN"
	case schema.FieldTypeTime:
		return "TIMESTAMPTZ"
	default:
		return "JSONB"
	}
}

// CreateIndexSQL generates the CREATE INDEX statement for index. Primary
// indexes belong to the table definition and yield an empty statement.
func (i *PostgresInteractor) CreateIndexSQL(sc schema.SchemaDefinition, index schema.IndexDefinition) (string, error) {
	if index.Type == schema.IndexTypePrimary {
		return "", nil
	}
	if len(index.Fields) == 0 {
		return "", fmt.Errorf("index %q has no fields", index.Name)
	}
	columns, err := quotedColumns(sc, index.Fields)
	if err != nil {
		return "", err
	}

	name := index.Name
	if name == "" {
		name = fmt.Sprintf("idx_%s_%s", i.options.TablePrefix+sc.TableName(), strings.Join(index.Fields, "_"))
	}
	unique := ""
	if index.Type == schema.IndexTypeUnique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s);",
		unique, QuoteIdentifier(name), i.table(sc.TableName()), strings.Join(columns, ", ")), nil
}

func quotedColumns(sc schema.SchemaDefinition, properties []string) ([]string, error) {
	out := make([]string, len(properties))
	for n, property := range properties {
		field := sc.FindField(property)
		if field == nil {
			return nil, &schema.UnknownPropertyError{Entity: sc.Name, Property: property}
		}
		out[n] = QuoteIdentifier(field.ColumnName())
	}
	return out, nil
}

// DropCollection drops a table if it exists.
func (i *PostgresInteractor) DropCollection(ctx context.Context, collection string) error {
	table := i.table(collection)
	if _, err := i.runner().Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s;", table)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", table, err)
	}
	return nil
}

// CollectionExists reports whether a table or view named collection exists.
func (i *PostgresInteractor) CollectionExists(ctx context.Context, collection string) (bool, error) {
	var exists bool
	err := i.runner().QueryRow(ctx, "SELECT to_regclass(@name) IS NOT NULL",
		pgx.NamedArgs{"name": i.table(collection)}).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to look up table %s: %w", collection, err)
	}
	return exists, nil
}
