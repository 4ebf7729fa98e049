package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/asaidimu/go-dynaquery/core/persistence"
	"github.com/asaidimu/go-dynaquery/core/schema"
)

// DefaultInteractorOptions returns a set of sensible default options for the
// SQLite interactor.
func DefaultInteractorOptions() *persistence.InteractorOptions {
	return &persistence.InteractorOptions{
		IfNotExists:   true, // Prevent errors if a table already exists.
		CreateIndexes: true, // Automatically create indexes defined in the schema.
	}
}

// CreateCollection generates and executes the DDL statements to create a table
// and its associated indexes.
func (s *SQLiteInteractor) CreateCollection(ctx context.Context, sc schema.SchemaDefinition) error {
	if s.options.DropIfExists {
		if err := s.DropCollection(ctx, sc.TableName()); err != nil {
			return err
		}
	}

	sqlStatements, err := s.CreateTableSQL(sc)
	if err != nil {
		return fmt.Errorf("failed to generate SQL for table %s: %w", sc.TableName(), err)
	}

	for _, stmt := range sqlStatements {
		if _, err := s.runner().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute SQL statement '%s': %w", stmt, err)
		}
	}

	if s.options.CreateIndexes {
		for _, index := range sc.Indexes {
			sqlIndex, err := s.CreateIndexSQL(sc, index)
			if err != nil {
				return fmt.Errorf("failed to generate SQL for index %s: %w", index.Name, err)
			}
			if sqlIndex == "" {
				continue
			}
			if _, err := s.runner().ExecContext(ctx, sqlIndex); err != nil {
				return fmt.Errorf("failed to create index %s: %w \n %s", index.Name, err, sqlIndex)
			}
		}
	}

	return nil
}

// CreateTableSQL generates the DDL SQL statements required to create a table from a
// schema definition. Columns are emitted in property order.
func (s *SQLiteInteractor) CreateTableSQL(sc schema.SchemaDefinition) ([]string, error) {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	if s.options.IfNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(quoteIdentifier(s.options.TablePrefix+sc.TableName()) + " (\n")

	var primaryKeys []string
	for _, index := range sc.Indexes {
		if index.Type == schema.IndexTypePrimary && len(index.Fields) > 0 {
			primaryKeys = index.Fields
			break
		}
	}

	var columns []string
	for _, name := range sc.FieldNames() {
		columns = append(columns, "    "+s.buildColumnDefinition(sc.Fields[name]))
	}
	sb.WriteString(strings.Join(columns, ",\n"))

	if len(primaryKeys) > 0 {
		quotedPKs, err := quotedColumns(sc, primaryKeys)
		if err != nil {
			return nil, fmt.Errorf("primary key: %w", err)
		}
		sb.WriteString(",\n    PRIMARY KEY (" + strings.Join(quotedPKs, ", ") + ")")
	}

	sb.WriteString("\n);")
	return []string{sb.String()}, nil
}

// buildColumnDefinition constructs the DDL string for a single column, including its
// name, data type, and any constraints.
func (s *SQLiteInteractor) buildColumnDefinition(field *schema.FieldDefinition) string {
	parts := []string{quoteIdentifier(field.ColumnName()), s.GetColumnType(field.Type)}

	if field.Required != nil && *field.Required {
		parts = append(parts, "NOT NULL")
	}
	if field.Unique != nil && *field.Unique {
		parts = append(parts, "UNIQUE")
	}
	return strings.Join(parts, " ")
}

// GetColumnType maps a schema.FieldType to its corresponding SQLite column type.
func (s *SQLiteInteractor) GetColumnType(fieldType schema.FieldType) string {
	switch fieldType {
	case schema.FieldTypeString:
		return "TEXT"
	case schema.FieldTypeNumber:
		return "REAL"
	case schema.FieldTypeDecimal:
		return "NUMERIC"
	case schema.FieldTypeInteger, schema.FieldTypeBoolean, schema.FieldTypeByte:
		return "INTEGER"
	case schema.FieldTypeTime:
		return "DATETIME"
	default:
		return "BLOB"
	}
}

// CreateIndexSQL generates the DDL SQL string for creating an index. Primary
// indexes are part of the table definition and yield an empty statement.
func (s *SQLiteInteractor) CreateIndexSQL(sc schema.SchemaDefinition, index schema.IndexDefinition) (string, error) {
	if index.Type == schema.IndexTypePrimary {
		return "", nil
	}
	if len(index.Fields) == 0 {
		return "", fmt.Errorf("index %q has no fields", index.Name)
	}

	table := s.options.TablePrefix + sc.TableName()
	columns, err := quotedColumns(sc, index.Fields)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("CREATE ")
	if index.Type == schema.IndexTypeUnique {
		sb.WriteString("UNIQUE ")
	}
	sb.WriteString("INDEX IF NOT EXISTS ")
	indexName := index.Name
	if indexName == "" {
		indexName = fmt.Sprintf("idx_%s_%s", table, strings.Join(index.Fields, "_"))
	}
	sb.WriteString(quoteIdentifier(indexName))
	sb.WriteString(fmt.Sprintf(" ON %s (%s);", quoteIdentifier(table), strings.Join(columns, ", ")))
	return sb.String(), nil
}

// quotedColumns resolves properties to their quoted physical columns.
func quotedColumns(sc schema.SchemaDefinition, properties []string) ([]string, error) {
	out := make([]string, len(properties))
	for i, property := range properties {
		field := sc.FindField(property)
		if field == nil {
			return nil, &schema.UnknownPropertyError{Entity: sc.Name, Property: property}
		}
		out[i] = quoteIdentifier(field.ColumnName())
	}
	return out, nil
}

// DropCollection drops a table from the database.
func (s *SQLiteInteractor) DropCollection(ctx context.Context, collection string) error {
	fullTableName := quoteIdentifier(s.options.TablePrefix + collection)
	stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s;", fullTableName)
	if _, err := s.runner().ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", fullTableName, err)
	}
	return nil
}

// CollectionExists checks if a table or view exists in the database.
func (s *SQLiteInteractor) CollectionExists(ctx context.Context, collection string) (bool, error) {
	stmt := "SELECT name FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?;"

	var name string
	err := s.runner().QueryRowContext(ctx, stmt, s.options.TablePrefix+collection).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
