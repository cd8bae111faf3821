package sample

import (
	"bytes"
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// ParquetReader decodes rows from parquet bytes through arrow.
type ParquetReader struct{}

// ReadRows implements RowReader.
func (ParquetReader) ReadRows(ctx context.Context, data []byte, limit int) ([]string, []map[string]any, error) {
	pqReader, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create parquet reader: %w", err)
	}
	defer pqReader.Close()

	arrowReader, err := pqarrow.NewFileReader(pqReader, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create arrow reader: %w", err)
	}

	tbl, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read parquet table: %w", err)
	}
	defer tbl.Release()

	schema := tbl.Schema()
	columns := make([]string, schema.NumFields())
	for i := range columns {
		columns[i] = schema.Field(i).Name
	}

	n := int(tbl.NumRows())
	if limit > 0 && n > limit {
		n = limit
	}
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = make(map[string]any, len(columns))
	}

	for c := 0; c < int(tbl.NumCols()); c++ {
		name := columns[c]
		row := 0
		for _, chunk := range tbl.Column(c).Data().Chunks() {
			for i := 0; i < chunk.Len() && row < n; i++ {
				if chunk.IsNull(i) {
					rows[row][name] = nil
				} else {
					rows[row][name] = chunk.GetOneForMarshal(i)
				}
				row++
			}
			if row >= n {
				break
			}
		}
	}

	return columns, rows, nil
}
