package dataio

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/tigerroll/datafactory/pkg/etl/core/table"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/serialization"
)

// jsonCodec reads and writes an array of records, keeping column order as first seen.
type jsonCodec struct{}

func (jsonCodec) Decode(r io.Reader, limit int) (*table.Table, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	if err := expectDelim(dec, '['); err != nil {
		return nil, err
	}
	var (
		header  []string
		indexOf = make(map[string]int)
		records [][]string
	)
	for dec.More() {
		var rec map[string]interface{}
		keys, err := decodeRecord(dec, &rec)
		if err != nil {
			return nil, err
		}
		if limit > 0 && len(records) >= limit {
			continue
		}
		row := make([]string, len(header))
		for _, k := range keys {
			if _, ok := indexOf[k]; !ok {
				indexOf[k] = len(header)
				header = append(header, k)
				row = append(row, "")
			}
			row[indexOf[k]] = cellText(rec[k])
		}
		records = append(records, row)
	}
	if err := expectDelim(dec, ']'); err != nil {
		return nil, err
	}
	return fromRows(header, records)
}

// decodeRecord reads one object, returning its keys in document order.
func decodeRecord(dec *json.Decoder, rec *map[string]interface{}) ([]string, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	*rec = make(map[string]interface{})
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		if _, seen := (*rec)[key]; !seen {
			keys = append(keys, key)
		}
		(*rec)[key] = value
	}
	return keys, expectDelim(dec, '}')
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected '%v', got %v", want, tok)
	}
	return nil
}

func cellText(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "True"
		}
		return "False"
	default:
		data, err := serialization.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}

func (jsonCodec) Encode(w io.Writer, t *table.Table) error {
	bw := bufio.NewWriter(w)
	cols := t.Columns()
	keys := make([][]byte, len(cols))
	for j, c := range cols {
		k, err := json.Marshal(c.Name())
		if err != nil {
			return err
		}
		keys[j] = k
	}

	bw.WriteByte('[')
	for i := 0; i < t.NumRows(); i++ {
		if i > 0 {
			bw.WriteByte(',')
		}
		bw.WriteByte('{')
		for j, c := range cols {
			if j > 0 {
				bw.WriteByte(',')
			}
			bw.Write(keys[j])
			bw.WriteByte(':')
			v, err := json.Marshal(jsonValue(c, i))
			if err != nil {
				return err
			}
			bw.Write(v)
		}
		bw.WriteByte('}')
	}
	bw.WriteByte(']')
	return bw.Flush()
}

func jsonValue(c *table.Column, i int) interface{} {
	v := c.Value(i)
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil
		}
	case time.Time:
		return table.FormatTime(val)
	}
	return v
}
