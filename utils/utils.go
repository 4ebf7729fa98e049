package utils

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/asaidimu/go-dynaquery/core/schema"
)

// RowToEntity decodes a row read back from the database into T. Keys are
// matched against def first as property names and then as physical column
// names, so rows selected with "*" decode the same as rows selected through
// property aliases. Keys the definition does not know are dropped. With a
// nil def the row is decoded as is.
func RowToEntity[T any](row schema.Document, def *schema.SchemaDefinition) (T, error) {
	var zero T
	if row == nil {
		return zero, fmt.Errorf("row cannot be nil")
	}
	if err := requireStruct(reflect.TypeOf(zero)); err != nil {
		return zero, err
	}

	props := row
	if def != nil {
		props = make(map[string]any, len(row))
		for key, value := range row {
			field := def.FindField(key)
			if field == nil {
				field = def.FindByColumn(key)
			}
			if field != nil {
				props[field.Name] = value
			}
		}
	}

	data, err := json.Marshal(props)
	if err != nil {
		return zero, fmt.Errorf("failed to encode row: %w", err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, fmt.Errorf("failed to decode row into %T: %w", zero, err)
	}
	return out, nil
}

// EntityToDocument flattens entity into a document keyed by its json names.
// With a non-nil def only the properties def declares are kept. Values take
// their JSON form, which schema.Validator accepts.
func EntityToDocument[T any](entity T, def *schema.SchemaDefinition) (schema.Document, error) {
	val := reflect.ValueOf(entity)
	if !val.IsValid() {
		return nil, fmt.Errorf("entity cannot be nil")
	}
	if val.Kind() == reflect.Ptr && val.IsNil() {
		return nil, fmt.Errorf("entity cannot be a nil pointer")
	}
	if err := requireStruct(val.Type()); err != nil {
		return nil, err
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entity: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode entity: %w", err)
	}
	if def == nil {
		return raw, nil
	}

	doc := make(schema.Document, len(def.Fields))
	for key, value := range raw {
		if field := def.FindField(key); field != nil {
			doc[field.Name] = value
		}
	}
	return doc, nil
}

func requireStruct(t reflect.Type) error {
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return fmt.Errorf("entity type must be a struct or a pointer to a struct, got %v", t)
	}
	return nil
}
