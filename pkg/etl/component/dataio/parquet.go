package dataio

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/common"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/datafactory/pkg/etl/core/table"
)

const parquetParallelism = 1

// parquetCodec stores every column as an optional leaf. Text and timestamps are UTF8.
type parquetCodec struct{}

func (parquetCodec) Decode(r io.Reader, limit int) (*table.Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	file, err := buffer.NewBufferFile(data)
	if err != nil {
		return nil, err
	}
	pr, err := reader.NewParquetColumnReader(file, parquetParallelism)
	if err != nil {
		return nil, err
	}
	defer pr.ReadStop()

	rows := pr.GetNumRows()
	if limit > 0 && int64(limit) < rows {
		rows = int64(limit)
	}

	t := table.Empty()
	for _, inPath := range pr.SchemaHandler.ValueColumns {
		exPath := pr.SchemaHandler.InPathToExPath[inPath]
		parts := strings.Split(exPath, common.PAR_GO_PATH_DELIMITER)
		name := parts[len(parts)-1]

		var values []interface{}
		if rows > 0 {
			values, _, _, err = pr.ReadColumnByPath(inPath, rows)
			if err != nil {
				return nil, fmt.Errorf("read column %s: %w", name, err)
			}
		}
		cells := make([]string, rows)
		for i := range cells {
			if i < len(values) {
				cells[i] = parquetCell(values[i])
			}
		}
		if err := t.Set(InferColumn(table.UniqueName(t, name), cells)); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func parquetCell(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case bool:
		if val {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprint(val)
	}
}

func parquetMetadata(c *table.Column) string {
	name := strings.NewReplacer(",", "_", "=", "_").Replace(c.Name())
	var typ string
	switch c.Kind() {
	case table.KindFloat:
		typ = "type=DOUBLE"
	case table.KindInt:
		typ = "type=INT64"
	case table.KindBool:
		typ = "type=BOOLEAN"
	default:
		typ = "type=BYTE_ARRAY, convertedtype=UTF8"
	}
	return "name=" + name + ", " + typ + ", repetitiontype=OPTIONAL"
}

func (parquetCodec) Encode(w io.Writer, t *table.Table) error {
	cols := t.Columns()
	md := make([]string, len(cols))
	for j, c := range cols {
		md[j] = parquetMetadata(c)
	}

	var buf bytes.Buffer
	pw, err := writer.NewCSVWriterFromWriter(md, &buf, parquetParallelism)
	if err != nil {
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i := 0; i < t.NumRows(); i++ {
		rec := make([]*string, len(cols))
		for j, c := range cols {
			if c.IsNull(i) {
				continue
			}
			s := c.Format(i)
			if c.Kind() == table.KindBool {
				s = strings.ToLower(s)
			}
			rec[j] = &s
		}
		if err := pw.WriteString(rec); err != nil {
			return err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}
