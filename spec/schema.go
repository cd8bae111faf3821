package spec

import (
	"encoding/json"
	"fmt"
)

// Schema is an Iceberg table schema: a struct type with an id.
type Schema struct {
	SchemaID        int           `json:"schema-id"`
	IdentifierField []int         `json:"identifier-field-ids,omitempty"`
	Fields          []NestedField `json:"fields"`
}

// NewSchema creates a schema with the given fields.
func NewSchema(schemaID int, fields []NestedField) *Schema {
	return &Schema{SchemaID: schemaID, Fields: fields}
}

// AsStruct returns the schema as a struct type.
func (s *Schema) AsStruct() StructType {
	return StructType{Fields: s.Fields}
}

// FieldByName returns the field with the given name, or nil.
func (s *Schema) FieldByName(name string) *NestedField {
	return s.AsStruct().FieldByName(name)
}

// FieldByID returns the field with the given id, or nil.
func (s *Schema) FieldByID(id int) *NestedField {
	for i := range s.Fields {
		if s.Fields[i].ID == id {
			return &s.Fields[i]
		}
	}
	return nil
}

// NumFields returns the number of top-level fields.
func (s *Schema) NumFields() int {
	return len(s.Fields)
}

type schemaJSON struct {
	SchemaID        int               `json:"schema-id"`
	Type            string            `json:"type"`
	Fields          []NestedFieldJSON `json:"fields"`
	IdentifierField []int             `json:"identifier-field-ids,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (s *Schema) MarshalJSON() ([]byte, error) {
	fields := make([]NestedFieldJSON, len(s.Fields))
	for i, f := range s.Fields {
		typeBytes, err := marshalType(f.Type)
		if err != nil {
			return nil, err
		}
		fields[i] = NestedFieldJSON{ID: f.ID, Name: f.Name, Required: f.Required, Type: typeBytes, Doc: f.Doc}
	}
	return json.Marshal(schemaJSON{
		SchemaID:        s.SchemaID,
		Type:            "struct",
		Fields:          fields,
		IdentifierField: s.IdentifierField,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var sj schemaJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		return err
	}

	s.SchemaID = sj.SchemaID
	s.IdentifierField = sj.IdentifierField
	s.Fields = make([]NestedField, len(sj.Fields))

	for i, f := range sj.Fields {
		t, err := unmarshalType(f.Type)
		if err != nil {
			return fmt.Errorf("failed to unmarshal field %s type: %w", f.Name, err)
		}
		s.Fields[i] = NestedField{ID: f.ID, Name: f.Name, Required: f.Required, Type: t, Doc: f.Doc}
	}

	return nil
}

func marshalType(t Type) (json.RawMessage, error) {
	switch v := t.(type) {
	case PrimitiveType:
		return json.Marshal(v.String())
	case FixedType:
		return json.Marshal(v.String())
	case DecimalType:
		return json.Marshal(v.String())
	case StructType:
		fields := make([]NestedFieldJSON, len(v.Fields))
		for i, f := range v.Fields {
			typeBytes, err := marshalType(f.Type)
			if err != nil {
				return nil, err
			}
			fields[i] = NestedFieldJSON{ID: f.ID, Name: f.Name, Required: f.Required, Type: typeBytes, Doc: f.Doc}
		}
		return json.Marshal(map[string]any{"type": "struct", "fields": fields})
	case ListType:
		elementBytes, err := marshalType(v.Element)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{
			"type":             "list",
			"element-id":       v.ElementID,
			"element":          json.RawMessage(elementBytes),
			"element-required": v.ElementRequired,
		})
	case MapType:
		keyBytes, err := marshalType(v.Key)
		if err != nil {
			return nil, err
		}
		valueBytes, err := marshalType(v.Value)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{
			"type":           "map",
			"key-id":         v.KeyID,
			"key":            json.RawMessage(keyBytes),
			"value-id":       v.ValueID,
			"value":          json.RawMessage(valueBytes),
			"value-required": v.ValueRequired,
		})
	default:
		return nil, fmt.Errorf("unknown type: %T", t)
	}
}

func unmarshalType(data json.RawMessage) (Type, error) {
	// Primitive types are plain strings.
	var typeStr string
	if err := json.Unmarshal(data, &typeStr); err == nil {
		return ParseType(typeStr)
	}

	var typeObj map[string]json.RawMessage
	if err := json.Unmarshal(data, &typeObj); err != nil {
		return nil, fmt.Errorf("invalid type JSON: %s", string(data))
	}

	typeField, ok := typeObj["type"]
	if !ok {
		return nil, fmt.Errorf("missing type field")
	}

	var typeName string
	if err := json.Unmarshal(typeField, &typeName); err != nil {
		return nil, fmt.Errorf("invalid type field: %w", err)
	}

	switch typeName {
	case "struct":
		var fieldsJSON []NestedFieldJSON
		if err := json.Unmarshal(typeObj["fields"], &fieldsJSON); err != nil {
			return nil, fmt.Errorf("invalid struct fields: %w", err)
		}
		fields := make([]NestedField, len(fieldsJSON))
		for i, f := range fieldsJSON {
			t, err := unmarshalType(f.Type)
			if err != nil {
				return nil, err
			}
			fields[i] = NestedField{ID: f.ID, Name: f.Name, Required: f.Required, Type: t, Doc: f.Doc}
		}
		return StructType{Fields: fields}, nil

	case "list":
		var elementID int
		var elementRequired bool
		if err := json.Unmarshal(typeObj["element-id"], &elementID); err != nil {
			return nil, fmt.Errorf("invalid list element-id: %w", err)
		}
		if req, ok := typeObj["element-required"]; ok {
			if err := json.Unmarshal(req, &elementRequired); err != nil {
				return nil, fmt.Errorf("invalid list element-required: %w", err)
			}
		}
		element, err := unmarshalType(typeObj["element"])
		if err != nil {
			return nil, fmt.Errorf("invalid list element type: %w", err)
		}
		return ListType{ElementID: elementID, Element: element, ElementRequired: elementRequired}, nil

	case "map":
		var keyID, valueID int
		var valueRequired bool
		if err := json.Unmarshal(typeObj["key-id"], &keyID); err != nil {
			return nil, fmt.Errorf("invalid map key-id: %w", err)
		}
		if err := json.Unmarshal(typeObj["value-id"], &valueID); err != nil {
			return nil, fmt.Errorf("invalid map value-id: %w", err)
		}
		if req, ok := typeObj["value-required"]; ok {
			if err := json.Unmarshal(req, &valueRequired); err != nil {
				return nil, fmt.Errorf("invalid map value-required: %w", err)
			}
		}
		key, err := unmarshalType(typeObj["key"])
		if err != nil {
			return nil, fmt.Errorf("invalid map key type: %w", err)
		}
		value, err := unmarshalType(typeObj["value"])
		if err != nil {
			return nil, fmt.Errorf("invalid map value type: %w", err)
		}
		return MapType{KeyID: keyID, Key: key, ValueID: valueID, Value: value, ValueRequired: valueRequired}, nil

	default:
		return ParseType(typeName)
	}
}
