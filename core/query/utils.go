package query

// Value coercion helpers for aggregate results. A MAX or MIN comes back from
// the driver as whatever representation it chose (int64, float64, []byte,
// string, ...); these helpers turn it into the numeric type the caller
// asked for.

import (
	"encoding/json"
	"math"
	"math/big"
	"reflect"
	"strconv"

	"github.com/shopspring/decimal"
)

// ToFloat64 is a utility function that converts a value of various numeric types
// to a float64. It returns the converted float64 and a boolean indicating whether
// the conversion was successful. Named types with a numeric underlying kind
// are accepted as well.
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case float32:
		return float64(val), true
	case float64:
		return val, true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

// ToDecimal coerces an opaque scalar into a decimal. A nil input yields a nil
// result and no error.
//
// Decimals pass through. Strings, json.Number and byte slices are parsed and
// big integers are converted exactly. Every other numeric type goes through float64, which
// loses precision for very large magnitudes.
func ToDecimal(v any) (*decimal.Decimal, error) {
	var d decimal.Decimal
	switch val := v.(type) {
	case nil:
		return nil, nil
	case decimal.Decimal:
		d = val
	case *decimal.Decimal:
		if val == nil {
			return nil, nil
		}
		d = *val
	case decimal.NullDecimal:
		if !val.Valid {
			return nil, nil
		}
		d = val.Decimal
	case string:
		parsed, err := decimal.NewFromString(val)
		if err != nil {
			return nil, &ParseError{Input: val, Target: "decimal", Err: err}
		}
		d = parsed
	case json.Number:
		parsed, err := decimal.NewFromString(val.String())
		if err != nil {
			return nil, &ParseError{Input: val.String(), Target: "decimal", Err: err}
		}
		d = parsed
	case []byte:
		parsed, err := decimal.NewFromString(string(val))
		if err != nil {
			return nil, &ParseError{Input: string(val), Target: "decimal", Err: err}
		}
		d = parsed
	case *big.Int:
		if val == nil {
			return nil, nil
		}
		d = decimal.NewFromBigInt(val, 0)
	case big.Int:
		d = decimal.NewFromBigInt(&val, 0)
	default:
		f, ok := ToFloat64(v)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, &TypeCoercionError{Value: v, Target: "decimal"}
		}
		d = decimal.NewFromFloat(f)
	}
	return &d, nil
}

// ToByte coerces an opaque scalar into an 8-bit integer. A nil input yields
// a nil result and no error. Only int8 values and decimal strings in the
// int8 range are accepted.
func ToByte(v any) (*int8, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case int8:
		return &val, nil
	case *int8:
		return val, nil
	case string:
		n, err := strconv.ParseInt(val, 10, 8)
		if err != nil {
			return nil, &ParseError{Input: val, Target: "byte", Err: err}
		}
		b := int8(n)
		return &b, nil
	default:
		return nil, &TypeCoercionError{Value: v, Target: "byte"}
	}
}
