// Package spec implements the read side of the Apache Iceberg table
// format: metadata JSON, manifest and manifest-list Avro containers,
// partition specs, and the type grammar used by all of them.
// See https://iceberg.apache.org/spec/
package spec

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TypeID identifies an Iceberg type.
type TypeID int

const (
	TypeBoolean TypeID = iota
	TypeInt
	TypeLong
	TypeFloat
	TypeDouble
	TypeDate
	TypeTime
	TypeTimestamp
	TypeTimestampTz
	TypeString
	TypeUUID
	TypeBinary
	TypeFixed
	TypeDecimal
	TypeStruct
	TypeList
	TypeMap
)

// Type is an Iceberg data type.
type Type interface {
	TypeID() TypeID
	// String renders the type in Iceberg's spec notation, e.g.
	// "long", "decimal(10, 2)", "list<string>".
	String() string
	Equals(other Type) bool
}

// PrimitiveType is a non-parameterized primitive.
type PrimitiveType struct {
	id TypeID
}

func (t PrimitiveType) TypeID() TypeID { return t.id }

func (t PrimitiveType) Equals(other Type) bool {
	o, ok := other.(PrimitiveType)
	return ok && t.id == o.id
}

func (t PrimitiveType) String() string {
	switch t.id {
	case TypeBoolean:
		return "boolean"
	case TypeInt:
		return "int"
	case TypeLong:
		return "long"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeDate:
		return "date"
	case TypeTime:
		return "time"
	case TypeTimestamp:
		return "timestamp"
	case TypeTimestampTz:
		return "timestamptz"
	case TypeString:
		return "string"
	case TypeUUID:
		return "uuid"
	case TypeBinary:
		return "binary"
	default:
		return "unknown"
	}
}

var (
	BooleanType     = PrimitiveType{TypeBoolean}
	IntType         = PrimitiveType{TypeInt}
	LongType        = PrimitiveType{TypeLong}
	FloatType       = PrimitiveType{TypeFloat}
	DoubleType      = PrimitiveType{TypeDouble}
	DateType        = PrimitiveType{TypeDate}
	TimeType        = PrimitiveType{TypeTime}
	TimestampType   = PrimitiveType{TypeTimestamp}
	TimestampTzType = PrimitiveType{TypeTimestampTz}
	StringType      = PrimitiveType{TypeString}
	UUIDType        = PrimitiveType{TypeUUID}
	BinaryType      = PrimitiveType{TypeBinary}
)

// FixedType is a fixed-length binary type.
type FixedType struct {
	Length int
}

func (t FixedType) TypeID() TypeID { return TypeFixed }
func (t FixedType) String() string { return fmt.Sprintf("fixed[%d]", t.Length) }
func (t FixedType) Equals(other Type) bool {
	o, ok := other.(FixedType)
	return ok && t.Length == o.Length
}

// DecimalType is a decimal with precision and scale.
type DecimalType struct {
	Precision int
	Scale     int
}

func (t DecimalType) TypeID() TypeID { return TypeDecimal }
func (t DecimalType) String() string { return fmt.Sprintf("decimal(%d, %d)", t.Precision, t.Scale) }
func (t DecimalType) Equals(other Type) bool {
	o, ok := other.(DecimalType)
	return ok && t.Precision == o.Precision && t.Scale == o.Scale
}

// NestedField is a named field inside a struct, list, or map.
type NestedField struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Type     Type   `json:"type"`
	Doc      string `json:"doc,omitempty"`
}

// StructType is a struct with named fields.
type StructType struct {
	Fields []NestedField `json:"fields"`
}

func (t StructType) TypeID() TypeID { return TypeStruct }

func (t StructType) String() string {
	parts := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		opt := "optional"
		if f.Required {
			opt = "required"
		}
		parts[i] = fmt.Sprintf("%d: %s: %s %s", f.ID, f.Name, opt, f.Type.String())
	}
	return fmt.Sprintf("struct<%s>", strings.Join(parts, ", "))
}

func (t StructType) Equals(other Type) bool {
	o, ok := other.(StructType)
	if !ok || len(t.Fields) != len(o.Fields) {
		return false
	}
	for i := range t.Fields {
		if t.Fields[i].ID != o.Fields[i].ID ||
			t.Fields[i].Name != o.Fields[i].Name ||
			t.Fields[i].Required != o.Fields[i].Required ||
			!t.Fields[i].Type.Equals(o.Fields[i].Type) {
			return false
		}
	}
	return true
}

// FieldByName returns the field with the given name, or nil.
func (t StructType) FieldByName(name string) *NestedField {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i]
		}
	}
	return nil
}

// ListType is a list of one element type.
type ListType struct {
	ElementID       int  `json:"element-id"`
	Element         Type `json:"element"`
	ElementRequired bool `json:"element-required"`
}

func (t ListType) TypeID() TypeID { return TypeList }
func (t ListType) String() string { return fmt.Sprintf("list<%s>", t.Element.String()) }
func (t ListType) Equals(other Type) bool {
	o, ok := other.(ListType)
	return ok && t.ElementID == o.ElementID && t.ElementRequired == o.ElementRequired &&
		t.Element.Equals(o.Element)
}

// MapType is a map from a key type to a value type.
type MapType struct {
	KeyID         int  `json:"key-id"`
	Key           Type `json:"key"`
	ValueID       int  `json:"value-id"`
	Value         Type `json:"value"`
	ValueRequired bool `json:"value-required"`
}

func (t MapType) TypeID() TypeID { return TypeMap }
func (t MapType) String() string {
	return fmt.Sprintf("map<%s, %s>", t.Key.String(), t.Value.String())
}
func (t MapType) Equals(other Type) bool {
	o, ok := other.(MapType)
	return ok && t.KeyID == o.KeyID && t.ValueID == o.ValueID &&
		t.ValueRequired == o.ValueRequired &&
		t.Key.Equals(o.Key) && t.Value.Equals(o.Value)
}

// ParseType parses a primitive type string in spec notation.
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)

	switch s {
	case "boolean":
		return BooleanType, nil
	case "int":
		return IntType, nil
	case "long":
		return LongType, nil
	case "float":
		return FloatType, nil
	case "double":
		return DoubleType, nil
	case "date":
		return DateType, nil
	case "time":
		return TimeType, nil
	case "timestamp":
		return TimestampType, nil
	case "timestamptz":
		return TimestampTzType, nil
	case "string":
		return StringType, nil
	case "uuid":
		return UUIDType, nil
	case "binary":
		return BinaryType, nil
	}

	if strings.HasPrefix(s, "fixed[") && strings.HasSuffix(s, "]") {
		length, err := strconv.Atoi(s[6 : len(s)-1])
		if err != nil {
			return nil, fmt.Errorf("invalid fixed type: %s", s)
		}
		return FixedType{Length: length}, nil
	}

	if strings.HasPrefix(s, "decimal(") && strings.HasSuffix(s, ")") {
		parts := strings.Split(s[8:len(s)-1], ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid decimal type: %s", s)
		}
		precision, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid decimal precision: %s", s)
		}
		scale, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid decimal scale: %s", s)
		}
		return DecimalType{Precision: precision, Scale: scale}, nil
	}

	return nil, fmt.Errorf("unknown type: %s", s)
}

// NestedFieldJSON carries a field whose type is still raw JSON; used by
// both schema and complex-type decoding.
type NestedFieldJSON struct {
	ID       int             `json:"id"`
	Name     string          `json:"name"`
	Required bool            `json:"required"`
	Type     json.RawMessage `json:"type"`
	Doc      string          `json:"doc,omitempty"`
}
