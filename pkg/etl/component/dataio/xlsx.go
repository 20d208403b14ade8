package dataio

import (
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/tigerroll/datafactory/pkg/etl/core/table"
)

const defaultSheet = "Sheet1"

// xlsxCodec reads the first worksheet and writes a single "Sheet1".
type xlsxCodec struct{}

func (xlsxCodec) Decode(r io.Reader, limit int) (*table.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return table.Empty(), nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return table.Empty(), nil
	}
	records := rows[1:]
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return fromRows(rows[0], records)
}

func (xlsxCodec) Encode(w io.Writer, t *table.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]interface{}, 0, t.NumCols())
	for _, name := range t.Names() {
		header = append(header, name)
	}
	if err := f.SetSheetRow(defaultSheet, "A1", &header); err != nil {
		return err
	}

	cols := t.Columns()
	for i := 0; i < t.NumRows(); i++ {
		row := make([]interface{}, len(cols))
		for j, c := range cols {
			row[j] = xlsxValue(c, i)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(defaultSheet, cell, &row); err != nil {
			return err
		}
	}
	_, err := f.WriteTo(w)
	return err
}

// xlsxValue keeps numbers numeric and writes times and booleans in their text form.
func xlsxValue(c *table.Column, i int) interface{} {
	switch c.Kind() {
	case table.KindTime, table.KindBool:
		if c.IsNull(i) {
			return nil
		}
		return c.Format(i)
	}
	return c.Value(i)
}
