package schema

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Issue describes one problem found while validating a document.
type Issue struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Path     string `json:"path,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// Validator checks documents keyed by property name against a definition
// before they are written.
type Validator struct {
	schema *SchemaDefinition
	issues []Issue
}

// NewValidator creates a new Validator for def. The returned validator can
// be reused for multiple validation operations, but not concurrently.
func NewValidator(def *SchemaDefinition) *Validator {
	return &Validator{
		schema: def,
		issues: make([]Issue, 0),
	}
}

// Validate checks data against the definition. With loose set, missing
// required fields are tolerated, which suits partial documents.
func (v *Validator) Validate(data Document, loose bool) (bool, []Issue) {
	v.issues = make([]Issue, 0)
	v.validateData(data)

	finalIssues := v.issues
	if loose {
		filtered := make([]Issue, 0, len(v.issues))
		for _, issue := range v.issues {
			if issue.Code != "REQUIRED_FIELD_MISSING" {
				filtered = append(filtered, issue)
			}
		}
		finalIssues = filtered
	}
	return len(finalIssues) == 0, finalIssues
}

func (v *Validator) validateData(data Document) {
	for _, name := range v.schema.FieldNames() {
		field := v.schema.Fields[name]
		value, exists := data[name]
		required := field.Required != nil && *field.Required

		if !exists {
			if required {
				v.addIssue("REQUIRED_FIELD_MISSING", fmt.Sprintf("Required field '%s' is missing", name), name)
			}
			continue
		}
		if value == nil {
			if required {
				v.addIssue("NULL_VALUE", "Field cannot be null", name)
			}
			continue
		}
		v.validateFieldType(value, field)
	}

	unexpected := make([]string, 0)
	for key := range data {
		if _, ok := v.schema.Fields[key]; !ok {
			unexpected = append(unexpected, key)
		}
	}
	sort.Strings(unexpected)
	for _, key := range unexpected {
		v.addIssue("UNEXPECTED_FIELD", fmt.Sprintf("Unexpected field '%s' not defined in schema", key), key)
	}
}

// validateFieldType accepts a value in its Go form or in the form it takes
// after a round trip through JSON: whole floats for integers, text for
// decimals and RFC 3339 text for times.
func (v *Validator) validateFieldType(value any, field *FieldDefinition) {
	ok := true
	switch field.Type {
	case FieldTypeString:
		_, ok = value.(string)
	case FieldTypeNumber:
		_, ok = numeric(value)
	case FieldTypeInteger:
		f, isNum := numeric(value)
		ok = isNum && f == math.Trunc(f)
	case FieldTypeByte:
		f, isNum := numeric(value)
		ok = isNum && f == math.Trunc(f) && f >= math.MinInt8 && f <= math.MaxInt8
	case FieldTypeDecimal:
		switch d := value.(type) {
		case decimal.Decimal, *decimal.Decimal:
		case string:
			_, err := decimal.NewFromString(d)
			ok = err == nil
		default:
			_, ok = numeric(value)
		}
	case FieldTypeBoolean:
		_, ok = value.(bool)
	case FieldTypeTime:
		switch t := value.(type) {
		case time.Time:
		case string:
			_, err := time.Parse(time.RFC3339Nano, t)
			ok = err == nil
		default:
			ok = false
		}
	}
	if !ok {
		v.addIssue("TYPE_MISMATCH", fmt.Sprintf("Expected %s, got %T", field.Type, value), field.Name)
	}
}

func numeric(value any) (float64, bool) {
	switch n := value.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func (v *Validator) addIssue(code, message, path string) {
	v.issues = append(v.issues, Issue{
		Code:     code,
		Message:  message,
		Path:     path,
		Severity: "error",
	})
}

// ValidationError carries the issues that rejected a document.
type ValidationError struct {
	Entity string
	Issues []Issue
}

func (e *ValidationError) Error() string {
	messages := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		messages[i] = issue.Message
	}
	return fmt.Sprintf("document for '%s' is invalid: %s", e.Entity, strings.Join(messages, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
