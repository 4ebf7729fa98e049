package schema

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// LoadJSON decodes a SchemaDefinition from JSON and validates it.
func LoadJSON(data []byte) (*SchemaDefinition, error) {
	var def SchemaDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema JSON: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadYAML decodes a SchemaDefinition from YAML and validates it.
func LoadYAML(data []byte) (*SchemaDefinition, error) {
	var def SchemaDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema YAML: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

var (
	timeType    = reflect.TypeFor[time.Time]()
	bigIntType  = reflect.TypeFor[big.Int]()
	stringerTyp = reflect.TypeFor[fmt.Stringer]()
)

// FromStruct derives a definition for T from its struct tags.
//
// The logical property name is taken from the `json` tag, or from the Go
// field name with its first letter lowered. The column comes from the `db`
// tag and defaults to the property name. Fields tagged `db:"-"` and
// unexported fields are skipped.
//
//	type Product struct {
//		ProductID int64           `json:"productID" db:"product_id"`
//		Price     decimal.Decimal `json:"price"     db:"price"`
//	}
//	def, err := FromStruct[Product]("product")
func FromStruct[T any](table string) (*SchemaDefinition, error) {
	typ := TypeOf[T]()
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entity type must be a struct, got %s", typ.Kind())
	}

	def := &SchemaDefinition{
		Name:   typ.Name(),
		Table:  table,
		Fields: make(map[string]*FieldDefinition),
	}
	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		if !sf.IsExported() {
			continue
		}
		column, skip := tagName(sf.Tag.Get("db"))
		if skip {
			continue
		}
		property, jsonSkip := tagName(sf.Tag.Get("json"))
		if jsonSkip && column == "" {
			continue
		}
		if property == "" {
			property = lowerFirst(sf.Name)
		}
		field := &FieldDefinition{
			Name: property,
			Type: fieldTypeOf(sf.Type),
		}
		if column != "" && column != property {
			field.Column = column
		}
		def.Fields[property] = field
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// tagName returns the name part of a struct tag and whether the tag asks for
// the field to be skipped.
func tagName(tag string) (string, bool) {
	if tag == "-" {
		return "", true
	}
	name, _, _ := strings.Cut(tag, ",")
	return name, false
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

func fieldTypeOf(t reflect.Type) FieldType {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch {
	case t == timeType:
		return FieldTypeTime
	case t == bigIntType:
		return FieldTypeDecimal
	}
	switch t.Kind() {
	case reflect.String:
		return FieldTypeString
	case reflect.Bool:
		return FieldTypeBoolean
	case reflect.Int8:
		return FieldTypeByte
	case reflect.Int, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return FieldTypeInteger
	case reflect.Float32, reflect.Float64:
		return FieldTypeNumber
	case reflect.Struct:
		// Decimal types such as shopspring's are structs that print as numbers.
		if t.Implements(stringerTyp) || reflect.PointerTo(t).Implements(stringerTyp) {
			return FieldTypeDecimal
		}
	}
	return FieldTypeString
}
