// Package schema holds the metadata that maps an entity's logical property
// names onto the physical columns of the table or view backing it. The query
// compiler never guesses column names: every property reference is resolved
// through a SchemaDefinition registered for the entity type.
package schema

import (
	"fmt"
	"sort"
)

// FieldType represents the basic field types supported by the schema system.
type FieldType string

const (
	FieldTypeString  FieldType = "string"  // Text data
	FieldTypeNumber  FieldType = "number"  // Floating point data
	FieldTypeInteger FieldType = "integer" // Whole numbers
	FieldTypeDecimal FieldType = "decimal" // Exact numeric data
	FieldTypeBoolean FieldType = "boolean" // True/false values
	FieldTypeByte    FieldType = "byte"    // 8-bit integers
	FieldTypeTime    FieldType = "time"    // Timestamps
)

// IndexType represents index types for optimizing different query patterns.
type IndexType string

const (
	IndexTypeNormal  IndexType = "normal"  // General-purpose index
	IndexTypeUnique  IndexType = "unique"  // Unique index
	IndexTypePrimary IndexType = "primary" // Primary key index (implies unique)
)

// Document is a single row as read back from the database, keyed by column name.
type Document map[string]any

// FieldDefinition describes one logical property of an entity.
type FieldDefinition struct {
	// Name is the logical property name used by callers in descriptors.
	Name string `json:"name" yaml:"name"`
	Type FieldType `json:"type" yaml:"type"`
	// Column is the physical column emitted in SQL. Empty means the column
	// carries the property name.
	Column string `json:"column,omitempty" yaml:"column,omitempty"`
	// Required indicates if the column is NOT NULL.
	Required *bool `json:"required,omitempty" yaml:"required,omitempty"`
	// Unique indicates if the column must have unique values.
	Unique *bool `json:"unique,omitempty" yaml:"unique,omitempty"`
	// Description provides a brief explanation of the field.
	Description *string `json:"description,omitempty" yaml:"description,omitempty"`
}

// ColumnName returns the physical column for the field.
func (f *FieldDefinition) ColumnName() string {
	if f.Column != "" {
		return f.Column
	}
	return f.Name
}

// IndexDefinition defines an index for optimizing queries or enforcing uniqueness.
type IndexDefinition struct {
	Name   string    `json:"name" yaml:"name"`
	Fields []string  `json:"fields" yaml:"fields"`
	Type   IndexType `json:"type" yaml:"type"`
}

// SchemaDefinition is the metadata of one entity or view type.
type SchemaDefinition struct {
	// Name is the logical entity name, used in logs and error messages.
	Name string `json:"name" yaml:"name"`
	// Table is the name of the table or view the entity is read from. It is
	// always quoted as a single identifier; entities spanning several tables
	// map onto a database view.
	Table       string                      `json:"table" yaml:"table"`
	Description *string                     `json:"description,omitempty" yaml:"description,omitempty"`
	Fields      map[string]*FieldDefinition `json:"fields" yaml:"fields"`
	Indexes     []IndexDefinition           `json:"indexes,omitempty" yaml:"indexes,omitempty"`
}

// TableName returns the source the entity is selected from.
func (s *SchemaDefinition) TableName() string {
	if s.Table != "" {
		return s.Table
	}
	return s.Name
}

// FindField looks a property up by its logical name.
func (s *SchemaDefinition) FindField(name string) *FieldDefinition {
	if field, ok := s.Fields[name]; ok {
		return field
	}
	for _, field := range s.Fields {
		if field.Name == name {
			return field
		}
	}
	return nil
}

// FindByColumn looks a property up by its physical column.
func (s *SchemaDefinition) FindByColumn(column string) *FieldDefinition {
	for _, field := range s.Fields {
		if field.ColumnName() == column {
			return field
		}
	}
	return nil
}

// FieldNames returns the logical property names in a stable order.
func (s *SchemaDefinition) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the definition is usable for column resolution. Fields
// without a name take the name of their map key.
func (s *SchemaDefinition) Validate() error {
	if s.TableName() == "" {
		return fmt.Errorf("schema must define a table name")
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema '%s' defines no fields", s.Name)
	}
	columns := make(map[string]string, len(s.Fields))
	for key, field := range s.Fields {
		if field == nil {
			return fmt.Errorf("schema '%s': field '%s' is nil", s.Name, key)
		}
		if field.Name == "" {
			field.Name = key
		}
		if field.Name != key {
			return fmt.Errorf("schema '%s': field key '%s' does not match name '%s'", s.Name, key, field.Name)
		}
		col := field.ColumnName()
		if other, dup := columns[col]; dup {
			return fmt.Errorf("schema '%s': fields '%s' and '%s' share column '%s'", s.Name, other, key, col)
		}
		columns[col] = key
	}
	return nil
}

// Clone returns a deep copy of the definition. Nil fields stay nil so that
// Validate can report them.
func (s *SchemaDefinition) Clone() *SchemaDefinition {
	out := *s
	out.Fields = make(map[string]*FieldDefinition, len(s.Fields))
	for k, f := range s.Fields {
		if f == nil {
			out.Fields[k] = nil
			continue
		}
		cp := *f
		out.Fields[k] = &cp
	}
	out.Indexes = append([]IndexDefinition(nil), s.Indexes...)
	return &out
}
