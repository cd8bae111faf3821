package spec

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Transform names for partition fields.
const (
	TransformIdentity = "identity"
	TransformYear     = "year"
	TransformMonth    = "month"
	TransformDay      = "day"
	TransformHour     = "hour"
	TransformVoid     = "void"
)

// PartitionField is one field of a partition spec.
type PartitionField struct {
	SourceID  int    `json:"source-id"`
	FieldID   int    `json:"field-id"`
	Name      string `json:"name"`
	Transform string `json:"transform"`
}

// IsBucket reports whether the transform is bucket[N].
func (f PartitionField) IsBucket() bool {
	return strings.HasPrefix(f.Transform, "bucket[")
}

// IsTruncate reports whether the transform is truncate[W].
func (f PartitionField) IsTruncate() bool {
	return strings.HasPrefix(f.Transform, "truncate[")
}

// PartitionSpec describes how data files are partitioned.
type PartitionSpec struct {
	SpecID int              `json:"spec-id"`
	Fields []PartitionField `json:"fields"`
}

// UnpartitionedSpec is the spec of an unpartitioned table.
func UnpartitionedSpec() PartitionSpec {
	return PartitionSpec{SpecID: 0, Fields: []PartitionField{}}
}

// IsUnpartitioned reports whether the spec has no partition fields.
func (s PartitionSpec) IsUnpartitioned() bool {
	return len(s.Fields) == 0
}

// FieldBySourceID returns the partition fields derived from the given
// source column.
func (s PartitionSpec) FieldBySourceID(sourceID int) []PartitionField {
	var out []PartitionField
	for _, f := range s.Fields {
		if f.SourceID == sourceID {
			out = append(out, f)
		}
	}
	return out
}

// PartitionValue is one field's value inside a partition tuple.
type PartitionValue struct {
	Name      string
	Transform string
	Value     any
}

// PartitionTuple is the typed partition value of a data file, in spec
// field order. The zero value is the tuple of an unpartitioned file.
type PartitionTuple struct {
	Values []PartitionValue
}

// TupleFromData builds a typed tuple from the raw partition struct of a
// manifest entry, using the spec to establish field order and transforms.
// Fields present in the spec but absent from the data are carried as
// nil values so every file of a spec yields tuples of the same shape.
func TupleFromData(spec PartitionSpec, data map[string]any) PartitionTuple {
	if spec.IsUnpartitioned() {
		return PartitionTuple{}
	}
	tuple := PartitionTuple{Values: make([]PartitionValue, 0, len(spec.Fields))}
	for _, f := range spec.Fields {
		v, ok := data[f.Name]
		if !ok {
			v = nil
		}
		tuple.Values = append(tuple.Values, PartitionValue{
			Name:      f.Name,
			Transform: f.Transform,
			Value:     v,
		})
	}
	return tuple
}

// IsEmpty reports whether the tuple carries no partition fields.
func (t PartitionTuple) IsEmpty() bool {
	return len(t.Values) == 0
}

// AsMap renders the tuple as a field name to display value map.
func (t PartitionTuple) AsMap() map[string]string {
	if t.IsEmpty() {
		return nil
	}
	m := make(map[string]string, len(t.Values))
	for _, v := range t.Values {
		m[v.Name] = formatTransformValue(v.Transform, v.Value)
	}
	return m
}

// Canonical returns a deterministic string key for the tuple. Field
// names are sorted so the key does not depend on spec field order, and
// each value is rendered through its transform so two files in the same
// partition always produce the same key.
func (t PartitionTuple) Canonical() string {
	if t.IsEmpty() {
		return ""
	}
	parts := make([]string, 0, len(t.Values))
	for _, v := range t.Values {
		parts = append(parts, v.Name+"="+formatTransformValue(v.Transform, v.Value))
	}
	sort.Strings(parts)
	return strings.Join(parts, "/")
}

// formatTransformValue renders a partition value the way its transform
// result type reads: day ordinals become ISO dates, month ordinals
// become YYYY-MM, year offsets become the calendar year.
func formatTransformValue(transform string, value any) string {
	if value == nil {
		return "null"
	}

	switch transform {
	case TransformDay:
		if days, ok := asInt64(value); ok {
			return time.Unix(0, 0).UTC().AddDate(0, 0, int(days)).Format("2006-01-02")
		}
	case TransformMonth:
		if months, ok := asInt64(value); ok {
			year := 1970 + months/12
			month := months%12 + 1
			if month <= 0 {
				month += 12
				year--
			}
			return fmt.Sprintf("%04d-%02d", year, month)
		}
	case TransformYear:
		if years, ok := asInt64(value); ok {
			return strconv.FormatInt(1970+years, 10)
		}
	case TransformHour:
		if hours, ok := asInt64(value); ok {
			return time.Unix(hours*3600, 0).UTC().Format("2006-01-02-15")
		}
	}

	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	default:
		if n, ok := asInt64(value); ok {
			return strconv.FormatInt(n, 10)
		}
		return fmt.Sprintf("%v", v)
	}
}

func asInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}
