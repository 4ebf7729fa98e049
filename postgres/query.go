package postgres

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/asaidimu/go-dynaquery/core/query"
	"github.com/asaidimu/go-dynaquery/core/schema"
)

// PostgresQuery wraps compiled dynamic-query clauses into PostgreSQL
// statements. Clauses reference parameters as @name, which pgx binds from
// pgx.NamedArgs; squirrel leaves them untouched.
type PostgresQuery struct{}

var _ query.StatementGenerator = (*PostgresQuery)(nil)

// NewPostgresQuery creates a new PostgreSQL statement generator.
func NewPostgresQuery() *PostgresQuery {
	return &PostgresQuery{}
}

// CompilerOptions returns the placeholder style pgx.NamedArgs rewrites.
func CompilerOptions() *query.CompilerOptions {
	return &query.CompilerOptions{ParamPrefix: "p", PlaceholderPrefix: "@"}
}

// QuoteIdentifier quotes a PostgreSQL identifier.
func QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// QualifiedTable quotes table and prefixes it with schemaName when set.
func QualifiedTable(schemaName, table string) string {
	if schemaName == "" {
		return QuoteIdentifier(table)
	}
	return QuoteIdentifier(schemaName) + "." + QuoteIdentifier(table)
}

func withWhere(qb sq.SelectBuilder, compiled query.CompiledQuery) sq.SelectBuilder {
	if compiled.Where != "" {
		qb = qb.Where(sq.Expr(compiled.Where))
	}
	return qb
}

// SelectSQL implements query.StatementGenerator. The table is used as given,
// callers quote it with QualifiedTable.
func (p *PostgresQuery) SelectSQL(table string, compiled query.CompiledQuery, page *query.Page) (string, error) {
	if table == "" {
		return "", fmt.Errorf("table name cannot be empty")
	}
	columns := compiled.Columns
	if columns == "" {
		columns = "*"
	}

	qb := withWhere(sq.Select(columns).From(table), compiled)
	if compiled.OrderBy != "" {
		qb = qb.OrderBy(compiled.OrderBy)
	}
	if page != nil {
		if page.Limit < 0 || page.Offset < 0 {
			return "", fmt.Errorf("invalid page: limit %d offset %d", page.Limit, page.Offset)
		}
		if page.Limit > 0 {
			qb = qb.Limit(uint64(page.Limit))
		}
		if page.Offset > 0 {
			qb = qb.Offset(uint64(page.Offset))
		}
	}

	stmt, _, err := qb.ToSql()
	return stmt, err
}

// CountSQL implements query.StatementGenerator.
func (p *PostgresQuery) CountSQL(table string, compiled query.CompiledQuery) (string, error) {
	if table == "" {
		return "", fmt.Errorf("table name cannot be empty")
	}
	stmt, _, err := withWhere(sq.Select("COUNT(*)").From(table), compiled).ToSql()
	return stmt, err
}

// AggregateSQL implements query.StatementGenerator.
func (p *PostgresQuery) AggregateSQL(table string, fn query.AggregateFunction, column string, compiled query.CompiledQuery) (string, error) {
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

	stmt, _, err := withWhere(sq.Select(fmt.Sprintf("%s(%s)", fn, column)).From(table), compiled).ToSql()
	return stmt, err
}

// GenerateInsertSQL builds a multi-row INSERT for records keyed by property
// name. Columns are taken from the definition, in property order, and
// values are bound positionally as $1, $2, ...
func GenerateInsertSQL(table string, def *schema.SchemaDefinition, records []schema.Document) (string, []any, error) {
	if len(records) == 0 {
		return "", nil, fmt.Errorf("no records provided for insert")
	}

	present := make(map[string]bool)
	for _, record := range records {
		for property := range record {
			if def.FindField(property) == nil {
				return "", nil, &schema.UnknownPropertyError{Entity: def.Name, Property: property}
			}
			present[property] = true
		}
	}

	var fields []string
	for _, name := range def.FieldNames() {
		if present[name] {
			fields = append(fields, name)
		}
	}

	columns := make([]string, len(fields))
	for i, name := range fields {
		columns[i] = QuoteIdentifier(def.Fields[name].ColumnName())
	}

	ib := sq.Insert(table).Columns(columns...).PlaceholderFormat(sq.Dollar)
	for _, record := range records {
		values := make([]any, len(fields))
		for i, name := range fields {
			values[i] = record[name]
		}
		ib = ib.Values(values...)
	}
	return ib.ToSql()
}
