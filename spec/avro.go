package spec

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/linkedin/goavro/v2"
)

// Manifest lists and manifests are Avro object container files. Readers
// rely on the schema embedded in each file, so the constants below only
// matter on the write side.

// AvroSchemaManifestList is the manifest_file record schema.
const AvroSchemaManifestList = `{
  "type": "record",
  "name": "manifest_file",
  "fields": [
    {"name": "manifest_path", "type": "string"},
    {"name": "manifest_length", "type": "long"},
    {"name": "partition_spec_id", "type": "int"},
    {"name": "content", "type": "int", "default": 0},
    {"name": "sequence_number", "type": "long", "default": 0},
    {"name": "min_sequence_number", "type": "long", "default": 0},
    {"name": "added_snapshot_id", "type": "long"},
    {"name": "added_files_count", "type": "int", "default": 0},
    {"name": "existing_files_count", "type": "int", "default": 0},
    {"name": "deleted_files_count", "type": "int", "default": 0},
    {"name": "added_rows_count", "type": "long", "default": 0},
    {"name": "existing_rows_count", "type": "long", "default": 0},
    {"name": "deleted_rows_count", "type": "long", "default": 0},
    {"name": "partitions", "type": {
      "type": "array",
      "items": {
        "type": "record",
        "name": "field_summary",
        "fields": [
          {"name": "contains_null", "type": "boolean"},
          {"name": "contains_nan", "type": ["null", "boolean"], "default": null},
          {"name": "lower_bound", "type": ["null", "bytes"], "default": null},
          {"name": "upper_bound", "type": ["null", "bytes"], "default": null}
        ]
      }
    }, "default": []},
    {"name": "key_metadata", "type": ["null", "bytes"], "default": null}
  ]
}`

// AvroSchemaManifestEntryTemplate is the manifest_entry record schema.
// The partition field depends on the table's partition spec and is
// substituted in by the writer.
const AvroSchemaManifestEntryTemplate = `{
  "type": "record",
  "name": "manifest_entry",
  "fields": [
    {"name": "status", "type": "int"},
    {"name": "snapshot_id", "type": ["null", "long"], "default": null},
    {"name": "sequence_number", "type": ["null", "long"], "default": null},
    {"name": "file_sequence_number", "type": ["null", "long"], "default": null},
    {"name": "data_file", "type": {
      "type": "record",
      "name": "data_file",
      "fields": [
        {"name": "content", "type": "int", "default": 0},
        {"name": "file_path", "type": "string"},
        {"name": "file_format", "type": "string"},
        {"name": "partition", "type": %s},
        {"name": "record_count", "type": "long"},
        {"name": "file_size_in_bytes", "type": "long"},
        {"name": "column_sizes", "type": ["null", {"type": "map", "values": "long"}], "default": null},
        {"name": "value_counts", "type": ["null", {"type": "map", "values": "long"}], "default": null},
        {"name": "null_value_counts", "type": ["null", {"type": "map", "values": "long"}], "default": null},
        {"name": "nan_value_counts", "type": ["null", {"type": "map", "values": "long"}], "default": null},
        {"name": "lower_bounds", "type": ["null", {"type": "map", "values": "bytes"}], "default": null},
        {"name": "upper_bounds", "type": ["null", {"type": "map", "values": "bytes"}], "default": null},
        {"name": "key_metadata", "type": ["null", "bytes"], "default": null},
        {"name": "split_offsets", "type": ["null", {"type": "array", "items": "long"}], "default": null},
        {"name": "equality_ids", "type": ["null", {"type": "array", "items": "int"}], "default": null},
        {"name": "sort_order_id", "type": ["null", "int"], "default": null}
      ]
    }}
  ]
}`

// ManifestListReader decodes a manifest list file.
type ManifestListReader struct {
	ocf *goavro.OCFReader
}

// NewManifestListReader opens a manifest list stream.
func NewManifestListReader(r io.Reader) (*ManifestListReader, error) {
	ocf, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create OCF reader: %w", err)
	}
	return &ManifestListReader{ocf: ocf}, nil
}

// Read decodes every manifest file record in the list.
func (r *ManifestListReader) Read() ([]ManifestFile, error) {
	var manifests []ManifestFile

	for r.ocf.Scan() {
		record, err := r.ocf.Read()
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest list record: %w", err)
		}
		m, ok := record.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unexpected manifest list record type %T", record)
		}

		mf := ManifestFile{
			ManifestPath:       getString(m, "manifest_path"),
			ManifestLength:     getInt64(m, "manifest_length"),
			PartitionSpecID:    getInt(m, "partition_spec_id"),
			Content:            ManifestContent(getInt(m, "content")),
			SequenceNumber:     getInt64(m, "sequence_number"),
			MinSequenceNumber:  getInt64(m, "min_sequence_number"),
			AddedSnapshotID:    getInt64(m, "added_snapshot_id"),
			AddedFilesCount:    getInt(m, "added_files_count"),
			ExistingFilesCount: getInt(m, "existing_files_count"),
			DeletedFilesCount:  getInt(m, "deleted_files_count"),
			AddedRowsCount:     getInt64(m, "added_rows_count"),
			ExistingRowsCount:  getInt64(m, "existing_rows_count"),
			DeletedRowsCount:   getInt64(m, "deleted_rows_count"),
			KeyMetadata:        getOptionalBytes(m, "key_metadata"),
		}

		if partitions, ok := m["partitions"].([]any); ok {
			mf.Partitions = make([]PartitionFieldSummary, len(partitions))
			for i, p := range partitions {
				pm, ok := p.(map[string]any)
				if !ok {
					continue
				}
				mf.Partitions[i] = PartitionFieldSummary{
					ContainsNull: getBool(pm, "contains_null"),
					ContainsNaN:  getOptionalBool(pm, "contains_nan"),
					LowerBound:   getOptionalBytes(pm, "lower_bound"),
					UpperBound:   getOptionalBytes(pm, "upper_bound"),
				}
			}
		}

		manifests = append(manifests, mf)
	}

	if err := r.ocf.Err(); err != nil {
		return nil, fmt.Errorf("error reading manifest list: %w", err)
	}
	return manifests, nil
}

// ManifestReader decodes a manifest file.
type ManifestReader struct {
	ocf      *goavro.OCFReader
	metadata map[string][]byte
}

// NewManifestReader opens a manifest stream.
func NewManifestReader(r io.Reader) (*ManifestReader, error) {
	ocf, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create OCF reader: %w", err)
	}
	return &ManifestReader{ocf: ocf, metadata: ocf.MetaData()}, nil
}

// Metadata returns the container file's key/value metadata block.
func (r *ManifestReader) Metadata() map[string][]byte {
	return r.metadata
}

// Read decodes the manifest header metadata and every entry.
func (r *ManifestReader) Read() (*Manifest, error) {
	manifest := &Manifest{Entries: make([]ManifestEntry, 0)}

	if schemaData, ok := r.metadata["schema"]; ok {
		var schema struct {
			SchemaID int `json:"schema-id"`
		}
		json.Unmarshal(schemaData, &schema)
		manifest.SchemaID = schema.SchemaID
	}
	if specData, ok := r.metadata["partition-spec"]; ok {
		var spec struct {
			SpecID int `json:"spec-id"`
		}
		json.Unmarshal(specData, &spec)
		manifest.PartitionSpecID = spec.SpecID
	}
	if specID, ok := r.metadata["partition-spec-id"]; ok {
		if n, err := strconv.Atoi(string(specID)); err == nil {
			manifest.PartitionSpecID = n
		}
	}
	if contentData, ok := r.metadata["content"]; ok {
		// V1 manifests carry no content key and default to data.
		switch string(contentData) {
		case "deletes", "1":
			manifest.Content = ManifestContentDelete
		default:
			manifest.Content = ManifestContentData
		}
	}

	for r.ocf.Scan() {
		record, err := r.ocf.Read()
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest entry: %w", err)
		}
		m, ok := record.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unexpected manifest entry type %T", record)
		}

		entry := ManifestEntry{
			Status:             EntryStatus(getInt(m, "status")),
			SnapshotID:         getOptionalInt64(m, "snapshot_id"),
			SequenceNumber:     getOptionalInt64(m, "sequence_number"),
			FileSequenceNumber: getOptionalInt64(m, "file_sequence_number"),
		}

		if df, ok := m["data_file"].(map[string]any); ok {
			entry.DataFile = DataFile{
				Content:         FileContent(getInt(df, "content")),
				FilePath:        getString(df, "file_path"),
				FileFormat:      FileFormat(getString(df, "file_format")),
				RecordCount:     getInt64(df, "record_count"),
				FileSizeInBytes: getInt64(df, "file_size_in_bytes"),
				ColumnSizes:     getFieldIDMap(df, "column_sizes"),
				ValueCounts:     getFieldIDMap(df, "value_counts"),
				NullValueCounts: getFieldIDMap(df, "null_value_counts"),
				NaNValueCounts:  getFieldIDMap(df, "nan_value_counts"),
				LowerBounds:     getFieldIDBytesMap(df, "lower_bounds"),
				UpperBounds:     getFieldIDBytesMap(df, "upper_bounds"),
				KeyMetadata:     getOptionalBytes(df, "key_metadata"),
				SplitOffsets:    getInt64Array(df, "split_offsets"),
				EqualityIDs:     getIntArray(df, "equality_ids"),
				SortOrderID:     getOptionalInt(df, "sort_order_id"),
			}

			if partition, ok := df["partition"].(map[string]any); ok {
				entry.DataFile.PartitionData = normalizePartition(partition)
			}
		}

		manifest.Entries = append(manifest.Entries, entry)
	}

	if err := r.ocf.Err(); err != nil {
		return nil, fmt.Errorf("error reading manifest: %w", err)
	}
	return manifest, nil
}

// ReadManifestList decodes a complete manifest list from a reader.
func ReadManifestList(r io.Reader) ([]ManifestFile, error) {
	reader, err := NewManifestListReader(r)
	if err != nil {
		return nil, err
	}
	return reader.Read()
}

// ReadManifest decodes a complete manifest from a reader.
func ReadManifest(r io.Reader) (*Manifest, error) {
	reader, err := NewManifestReader(r)
	if err != nil {
		return nil, err
	}
	return reader.Read()
}

// ManifestListWriter produces manifest list files.
type ManifestListWriter struct {
	buffer *bytes.Buffer
	ocf    *goavro.OCFWriter
}

// NewManifestListWriter creates a deflate-compressed manifest list writer.
func NewManifestListWriter() (*ManifestListWriter, error) {
	codec, err := goavro.NewCodec(AvroSchemaManifestList)
	if err != nil {
		return nil, fmt.Errorf("failed to create avro codec: %w", err)
	}

	buf := new(bytes.Buffer)
	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               buf,
		Codec:           codec,
		CompressionName: "deflate",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create OCF writer: %w", err)
	}

	return &ManifestListWriter{buffer: buf, ocf: ocf}, nil
}

// Append writes one manifest file record.
func (w *ManifestListWriter) Append(mf ManifestFile) error {
	record := map[string]any{
		"manifest_path":        mf.ManifestPath,
		"manifest_length":      mf.ManifestLength,
		"partition_spec_id":    mf.PartitionSpecID,
		"content":              int(mf.Content),
		"sequence_number":      mf.SequenceNumber,
		"min_sequence_number":  mf.MinSequenceNumber,
		"added_snapshot_id":    mf.AddedSnapshotID,
		"added_files_count":    mf.AddedFilesCount,
		"existing_files_count": mf.ExistingFilesCount,
		"deleted_files_count":  mf.DeletedFilesCount,
		"added_rows_count":     mf.AddedRowsCount,
		"existing_rows_count":  mf.ExistingRowsCount,
		"deleted_rows_count":   mf.DeletedRowsCount,
		"key_metadata":         unionBytes(mf.KeyMetadata),
	}

	partitions := make([]any, len(mf.Partitions))
	for i, p := range mf.Partitions {
		ps := map[string]any{
			"contains_null": p.ContainsNull,
			"lower_bound":   unionBytes(p.LowerBound),
			"upper_bound":   unionBytes(p.UpperBound),
		}
		if p.ContainsNaN != nil {
			ps["contains_nan"] = goavro.Union("boolean", *p.ContainsNaN)
		} else {
			ps["contains_nan"] = nil
		}
		partitions[i] = ps
	}
	record["partitions"] = partitions

	return w.ocf.Append([]any{record})
}

// Bytes returns the encoded container file.
func (w *ManifestListWriter) Bytes() []byte {
	return w.buffer.Bytes()
}

// ManifestWriter produces manifest files. The partition spec shapes the
// embedded entry schema and the container metadata carries the schema
// id, spec id, content and format version the reader expects.
type ManifestWriter struct {
	buffer *bytes.Buffer
	ocf    *goavro.OCFWriter
}

// NewManifestWriter creates a manifest writer for the given spec.
func NewManifestWriter(schemaID, specID int, content ManifestContent, spec *PartitionSpec) (*ManifestWriter, error) {
	partitionSchema := buildPartitionAvroSchema(spec)
	avroSchema := fmt.Sprintf(AvroSchemaManifestEntryTemplate, partitionSchema)

	codec, err := goavro.NewCodec(avroSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to create avro codec: %w", err)
	}

	metadata := map[string][]byte{
		"schema":         []byte(fmt.Sprintf(`{"schema-id": %d}`, schemaID)),
		"partition-spec": []byte(fmt.Sprintf(`{"spec-id": %d}`, specID)),
		"content":        []byte(content.String()),
		"format-version": []byte("2"),
	}

	buf := new(bytes.Buffer)
	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               buf,
		Codec:           codec,
		CompressionName: "deflate",
		MetaData:        metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create OCF writer: %w", err)
	}

	return &ManifestWriter{buffer: buf, ocf: ocf}, nil
}

func buildPartitionAvroSchema(spec *PartitionSpec) string {
	if spec == nil || len(spec.Fields) == 0 {
		return `{"type": "record", "name": "partition_data", "fields": []}`
	}

	fields := make([]map[string]any, len(spec.Fields))
	for i, f := range spec.Fields {
		avroType := `["null", "string"]`
		switch {
		case f.Transform == TransformYear, f.Transform == TransformMonth,
			f.Transform == TransformDay, f.Transform == TransformHour,
			f.IsBucket():
			avroType = `["null", "int"]`
		}
		fields[i] = map[string]any{
			"name":    f.Name,
			"type":    json.RawMessage(avroType),
			"default": nil,
		}
	}

	schema := map[string]any{
		"type":   "record",
		"name":   "partition_data",
		"fields": fields,
	}
	data, _ := json.Marshal(schema)
	return string(data)
}

// Append writes one manifest entry.
func (w *ManifestWriter) Append(entry ManifestEntry) error {
	record := map[string]any{
		"status":               int(entry.Status),
		"snapshot_id":          unionInt64(entry.SnapshotID),
		"sequence_number":      unionInt64(entry.SequenceNumber),
		"file_sequence_number": unionInt64(entry.FileSequenceNumber),
	}

	df := entry.DataFile
	dataFile := map[string]any{
		"content":            int(df.Content),
		"file_path":          df.FilePath,
		"file_format":        string(df.FileFormat),
		"record_count":       df.RecordCount,
		"file_size_in_bytes": df.FileSizeInBytes,
		"column_sizes":       unionFieldIDMap(df.ColumnSizes),
		"value_counts":       unionFieldIDMap(df.ValueCounts),
		"null_value_counts":  unionFieldIDMap(df.NullValueCounts),
		"nan_value_counts":   unionFieldIDMap(df.NaNValueCounts),
		"lower_bounds":       unionFieldIDBytesMap(df.LowerBounds),
		"upper_bounds":       unionFieldIDBytesMap(df.UpperBounds),
		"key_metadata":       unionBytes(df.KeyMetadata),
	}

	partition := make(map[string]any, len(df.PartitionData))
	for k, v := range df.PartitionData {
		switch pv := v.(type) {
		case nil:
			partition[k] = nil
		case string:
			partition[k] = goavro.Union("string", pv)
		case int:
			partition[k] = goavro.Union("int", int32(pv))
		case int32:
			partition[k] = goavro.Union("int", pv)
		case int64:
			partition[k] = goavro.Union("int", int32(pv))
		default:
			partition[k] = goavro.Union("string", fmt.Sprintf("%v", pv))
		}
	}
	dataFile["partition"] = partition

	if len(df.SplitOffsets) > 0 {
		offsets := make([]any, len(df.SplitOffsets))
		for i, o := range df.SplitOffsets {
			offsets[i] = o
		}
		dataFile["split_offsets"] = goavro.Union("array", offsets)
	} else {
		dataFile["split_offsets"] = nil
	}

	if len(df.EqualityIDs) > 0 {
		ids := make([]any, len(df.EqualityIDs))
		for i, id := range df.EqualityIDs {
			ids[i] = id
		}
		dataFile["equality_ids"] = goavro.Union("array", ids)
	} else {
		dataFile["equality_ids"] = nil
	}

	if df.SortOrderID != nil {
		dataFile["sort_order_id"] = goavro.Union("int", *df.SortOrderID)
	} else {
		dataFile["sort_order_id"] = nil
	}

	record["data_file"] = dataFile
	return w.ocf.Append([]any{record})
}

// Bytes returns the encoded container file.
func (w *ManifestWriter) Bytes() []byte {
	return w.buffer.Bytes()
}

// goavro decodes union values as single-key maps keyed by the branch
// name. The helpers below unwrap them and coerce numerics.

func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func getInt64(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func getBool(m map[string]any, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}

func getOptionalBool(m map[string]any, key string) *bool {
	switch v := unwrapUnion(m[key]).(type) {
	case bool:
		return &v
	}
	return nil
}

func getOptionalBytes(m map[string]any, key string) []byte {
	if b, ok := unwrapUnion(m[key]).([]byte); ok {
		return b
	}
	return nil
}

func getOptionalInt64(m map[string]any, key string) *int64 {
	switch v := unwrapUnion(m[key]).(type) {
	case int64:
		return &v
	case int32:
		n := int64(v)
		return &n
	case int:
		n := int64(v)
		return &n
	case float64:
		n := int64(v)
		return &n
	}
	return nil
}

func getOptionalInt(m map[string]any, key string) *int {
	switch v := unwrapUnion(m[key]).(type) {
	case int32:
		n := int(v)
		return &n
	case int:
		return &v
	case int64:
		n := int(v)
		return &n
	case float64:
		n := int(v)
		return &n
	}
	return nil
}

func getFieldIDMap(m map[string]any, key string) map[int]int64 {
	data, ok := unwrapUnion(m[key]).(map[string]any)
	if !ok {
		return nil
	}
	result := make(map[int]int64, len(data))
	for k, val := range data {
		fieldID, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		switch v := val.(type) {
		case int64:
			result[fieldID] = v
		case int32:
			result[fieldID] = int64(v)
		case float64:
			result[fieldID] = int64(v)
		}
	}
	return result
}

func getFieldIDBytesMap(m map[string]any, key string) map[int][]byte {
	data, ok := unwrapUnion(m[key]).(map[string]any)
	if !ok {
		return nil
	}
	result := make(map[int][]byte, len(data))
	for k, val := range data {
		fieldID, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		if b, ok := val.([]byte); ok {
			result[fieldID] = b
		}
	}
	return result
}

func getInt64Array(m map[string]any, key string) []int64 {
	arr, ok := unwrapUnion(m[key]).([]any)
	if !ok {
		return nil
	}
	result := make([]int64, len(arr))
	for i, val := range arr {
		switch v := val.(type) {
		case int64:
			result[i] = v
		case int32:
			result[i] = int64(v)
		case float64:
			result[i] = int64(v)
		}
	}
	return result
}

func getIntArray(m map[string]any, key string) []int {
	arr, ok := unwrapUnion(m[key]).([]any)
	if !ok {
		return nil
	}
	result := make([]int, len(arr))
	for i, val := range arr {
		switch v := val.(type) {
		case int:
			result[i] = v
		case int32:
			result[i] = int(v)
		case int64:
			result[i] = int(v)
		case float64:
			result[i] = int(v)
		}
	}
	return result
}

// unwrapUnion strips the single-key union wrapper goavro places around
// nullable values. Non-union values pass through untouched.
func unwrapUnion(v any) any {
	if m, ok := v.(map[string]any); ok && len(m) == 1 {
		for branch, inner := range m {
			switch branch {
			case "boolean", "int", "long", "float", "double",
				"string", "bytes", "map", "array":
				return inner
			}
		}
	}
	return v
}

// normalizePartition unwraps union wrappers from every partition value
// so downstream code sees plain scalars.
func normalizePartition(partition map[string]any) map[string]any {
	out := make(map[string]any, len(partition))
	for k, v := range partition {
		out[k] = unwrapUnion(v)
	}
	return out
}

func unionInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return goavro.Union("long", *v)
}

func unionBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return goavro.Union("bytes", b)
}

func unionFieldIDMap(m map[int]int64) any {
	if len(m) == 0 {
		return nil
	}
	result := make(map[string]any, len(m))
	for k, v := range m {
		result[strconv.Itoa(k)] = v
	}
	return goavro.Union("map", result)
}

func unionFieldIDBytesMap(m map[int][]byte) any {
	if len(m) == 0 {
		return nil
	}
	result := make(map[string]any, len(m))
	for k, v := range m {
		result[strconv.Itoa(k)] = v
	}
	return goavro.Union("map", result)
}

// DecodeBound decodes a single-value binary bound into its column type.
func DecodeBound(data []byte, typ Type) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	buf := bytes.NewReader(data)

	if t, ok := typ.(PrimitiveType); ok {
		switch t.TypeID() {
		case TypeBoolean:
			return data[0] != 0, nil
		case TypeInt:
			var v int32
			binary.Read(buf, binary.LittleEndian, &v)
			return v, nil
		case TypeLong:
			var v int64
			binary.Read(buf, binary.LittleEndian, &v)
			return v, nil
		case TypeFloat:
			var v float32
			binary.Read(buf, binary.LittleEndian, &v)
			return v, nil
		case TypeDouble:
			var v float64
			binary.Read(buf, binary.LittleEndian, &v)
			return v, nil
		case TypeString:
			return string(data), nil
		case TypeBinary:
			return data, nil
		}
	}
	return data, nil
}
