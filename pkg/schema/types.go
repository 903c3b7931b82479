package schema

import (
	"fmt"
	"slices"
)

// Primitive type names used by the engine for widget inputs.
// Every other type name (MODEL, IMAGE, LATENT, ...) can only be satisfied by a link.
const (
	TypeInt     = "INT"
	TypeFloat   = "FLOAT"
	TypeString  = "STRING"
	TypeBoolean = "BOOLEAN"
	TypeCombo   = "COMBO"
	TypeAny     = "*"
)

// Type defines the contract for literal validation.
type Type interface {
	// Name returns the engine type name (e.g., "INT", "COMBO").
	Name() string
	// Validate checks if a value conforms to this type.
	Validate(value any) error
}

type intType struct{}

func (t intType) Name() string { return TypeInt }

func (t intType) Validate(value any) error {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return nil
	case float64:
		// Accept floats that are whole numbers (from JSON unmarshaling)
		if v == float64(int64(v)) {
			return nil
		}
		return fmt.Errorf("expected INT, got float (not a whole number)")
	default:
		return fmt.Errorf("expected INT, got %T", value)
	}
}

type floatType struct{}

func (t floatType) Name() string { return TypeFloat }

func (t floatType) Validate(value any) error {
	switch value.(type) {
	case float32, float64, int, int8, int16, int32, int64:
		return nil
	default:
		return fmt.Errorf("expected FLOAT, got %T", value)
	}
}

type stringType struct{}

func (t stringType) Name() string { return TypeString }

func (t stringType) Validate(value any) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("expected STRING, got %T", value)
	}
	return nil
}

type boolType struct{}

func (t boolType) Name() string { return TypeBoolean }

func (t boolType) Validate(value any) error {
	if _, ok := value.(bool); !ok {
		return fmt.Errorf("expected BOOLEAN, got %T", value)
	}
	return nil
}

type comboType struct {
	values []any
}

func (t comboType) Name() string { return TypeCombo }

func (t comboType) Validate(value any) error {
	if slices.ContainsFunc(t.values, func(v any) bool { return equalLiteral(v, value) }) {
		return nil
	}
	return fmt.Errorf("value %v is not one of the %d allowed choices", value, len(t.values))
}

// Int creates an INT validator.
func Int() Type { return intType{} }

// Float creates a FLOAT validator.
func Float() Type { return floatType{} }

// String creates a STRING validator.
func String() Type { return stringType{} }

// Bool creates a BOOLEAN validator.
func Bool() Type { return boolType{} }

// Combo creates a validator accepting only the given choices.
func Combo(values ...any) Type { return comboType{values: values} }

// IsPrimitive reports whether values of the named type are widgets (literals)
// rather than links.
func IsPrimitive(typeName string) bool {
	switch typeName {
	case TypeInt, TypeFloat, TypeString, TypeBoolean, TypeCombo:
		return true
	}
	return false
}

func equalLiteral(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
