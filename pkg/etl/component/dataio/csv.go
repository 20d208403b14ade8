package dataio

import (
	"encoding/csv"
	"errors"
	"io"

	"github.com/tigerroll/datafactory/pkg/etl/core/table"
)

type csvCodec struct{}

func (csvCodec) Decode(r io.Reader, limit int) (*table.Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return table.Empty(), nil
		}
		return nil, err
	}
	if len(header) > 0 {
		header[0] = trimBOM(header[0])
	}

	var records [][]string
	for limit <= 0 || len(records) < limit {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return fromRows(header, records)
}

func (csvCodec) Encode(w io.Writer, t *table.Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Names()); err != nil {
		return err
	}
	cols := t.Columns()
	rec := make([]string, len(cols))
	for i := 0; i < t.NumRows(); i++ {
		for j, c := range cols {
			rec[j] = c.Format(i)
		}
		if err := writer.Write(rec); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func trimBOM(s string) string {
	if len(s) >= 3 && s[0] == 0xEF && s[1] == 0xBB && s[2] == 0xBF {
		return s[3:]
	}
	return s
}
