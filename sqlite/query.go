package sqlite

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/asaidimu/go-dynaquery/core/query"
	"github.com/asaidimu/go-dynaquery/core/schema"
)

// SqliteQuery wraps compiled dynamic-query clauses into complete SQLite
// statements. Bound parameters are referenced as :name and passed to
// database/sql as sql.Named arguments.
type SqliteQuery struct{}

var _ query.StatementGenerator = (*SqliteQuery)(nil)

// NewSqliteQuery creates a new SQLite statement generator.
func NewSqliteQuery() *SqliteQuery {
	return &SqliteQuery{}
}

// CompilerOptions returns the placeholder style go-sqlite3 binds by name.
func CompilerOptions() *query.CompilerOptions {
	return &query.CompilerOptions{ParamPrefix: "p", PlaceholderPrefix: ":"}
}

// quoteIdentifier properly quotes an identifier for SQLite.
func quoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// SelectSQL implements query.StatementGenerator.
func (s *SqliteQuery) SelectSQL(table string, compiled query.CompiledQuery, page *query.Page) (string, error) {
	if table == "" {
		return "", fmt.Errorf("table name cannot be empty")
	}
	columns := compiled.Columns
	if columns == "" {
		columns = "*"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("SELECT %s FROM %s", columns, quoteIdentifier(table)))
	writeWhere(&sb, compiled)
	if compiled.OrderBy != "" {
		sb.WriteString(" ORDER BY " + compiled.OrderBy)
	}
	if page != nil {
		if page.Limit < 0 || page.Offset < 0 {
			return "", fmt.Errorf("invalid page: limit %d offset %d", page.Limit, page.Offset)
		}
		// SQLite only accepts OFFSET after a LIMIT; -1 means unbounded.
		limit := page.Limit
		if limit == 0 {
			limit = -1
		}
		if limit > -1 || page.Offset > 0 {
			sb.WriteString(fmt.Sprintf(" LIMIT %d", limit))
		}
		if page.Offset > 0 {
			sb.WriteString(fmt.Sprintf(" OFFSET %d", page.Offset))
		}
	}
	return sb.String() + ";", nil
}

// CountSQL implements query.StatementGenerator.
func (s *SqliteQuery) CountSQL(table string, compiled query.CompiledQuery) (string, error) {
	if table == "" {
		return "", fmt.Errorf("table name cannot be empty")
	}
	var sb strings.Builder
	sb.WriteString("SELECT COUNT(*) FROM " + quoteIdentifier(table))
	writeWhere(&sb, compiled)
	return sb.String() + ";", nil
}

// AggregateSQL implements query.StatementGenerator.
func (s *SqliteQuery) AggregateSQL(table string, fn query.AggregateFunction, column string, compiled query.CompiledQuery) (string, error) {
	if table == "" {
		return "", fmt.Errorf("table name cannot be empty")
	}
	switch fn {
	case query.AggregateMax, query.AggregateMin, query.AggregateSum, query.AggregateAvg, query.AggregateCount:
	default:
		return "", fmt.Errorf("unsupported aggregate function %q", fn)
	}
	if column == "" {
		return "", fmt.Errorf("aggregate %s needs a column", fn)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("SELECT %s(%s) FROM %s", fn, column, quoteIdentifier(table)))
	writeWhere(&sb, compiled)
	return sb.String() + ";", nil
}

func writeWhere(sb *strings.Builder, compiled query.CompiledQuery) {
	if compiled.Where != "" {
		sb.WriteString(" WHERE " + compiled.Where)
	}
}

// namedArgs turns compiled parameters into sql.Named arguments, sorted by
// name so logs and statements are deterministic.
func namedArgs(params map[string]any) []any {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]any, 0, len(names))
	for _, name := range names {
		args = append(args, sql.Named(name, params[name]))
	}
	return args
}

// GenerateInsertSQL creates a SQL INSERT statement for records keyed by
// property name. Columns are taken from the definition, in property order.
func GenerateInsertSQL(table string, def *schema.SchemaDefinition, records []schema.Document) (string, []any, error) {
	if len(records) == 0 {
		return "", nil, fmt.Errorf("no records provided for insert")
	}

	fieldSet := make(map[string]bool)
	for _, record := range records {
		for property := range record {
			if def.FindField(property) == nil {
				return "", nil, &schema.UnknownPropertyError{Entity: def.Name, Property: property}
			}
			fieldSet[property] = true
		}
	}

	var fields []string
	for _, name := range def.FieldNames() {
		if fieldSet[name] {
			fields = append(fields, name)
		}
	}
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("no valid fields found in records")
	}

	quotedColumns := make([]string, len(fields))
	for i, name := range fields {
		quotedColumns[i] = quoteIdentifier(def.Fields[name].ColumnName())
	}

	var valuesClauses []string
	var queryParams []any
	for _, record := range records {
		rowPlaceholders := make([]string, len(fields))
		for i, name := range fields {
			value, err := prepareValue(def.Fields[name], record[name])
			if err != nil {
				return "", nil, fmt.Errorf("error preparing value for field '%s': %w", name, err)
			}
			rowPlaceholders[i] = "?"
			queryParams = append(queryParams, value)
		}
		valuesClauses = append(valuesClauses, "("+strings.Join(rowPlaceholders, ", ")+")")
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s;",
		quoteIdentifier(table), strings.Join(quotedColumns, ", "), strings.Join(valuesClauses, ", "))
	return sql, queryParams, nil
}

// prepareValue maps a Go value onto SQLite's storage classes: booleans are
// stored as 0 or 1, everything else is left to the driver.
func prepareValue(field *schema.FieldDefinition, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch field.Type {
	case schema.FieldTypeBoolean:
		switch v := value.(type) {
		case bool:
			if v {
				return 1, nil
			}
			return 0, nil
		case string:
			switch strings.ToLower(v) {
			case "true":
				return 1, nil
			case "false":
				return 0, nil
			}
		case int, int64:
			return v, nil
		case float64:
			if v == 1.0 {
				return 1, nil
			}
			if v == 0.0 {
				return 0, nil
			}
		}
		return nil, fmt.Errorf("expected boolean for field '%s', got %T", field.Name, value)
	default:
		return value, nil
	}
}
