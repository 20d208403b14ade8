// Package table implements the in-memory, column-oriented record set processed by every pipeline stage.
// Column order is preserved for CSV output and row identity is positional.
package table

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
)

// Table is an ordered set of equally long columns.
type Table struct {
	cols  []*Column
	index map[string]int
	nrows int
}

// New builds a table from columns. All columns must have the same length and distinct names.
func New(cols ...*Column) (*Table, error) {
	t := Empty()
	for _, c := range cols {
		if t.Has(c.Name()) {
			return nil, exception.NewPipelineErrorf("table", "duplicate column '%s'", c.Name())
		}
		if err := t.Set(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// MustNew is New for statically known inputs; it panics on error.
func MustNew(cols ...*Column) *Table {
	t, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return t
}

// Empty returns a table with no rows and no columns.
func Empty() *Table {
	return &Table{index: make(map[string]int)}
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	if t == nil {
		return 0
	}
	return t.nrows
}

// NumCols returns the column count.
func (t *Table) NumCols() int {
	if t == nil {
		return 0
	}
	return len(t.cols)
}

// IsEmpty reports whether the table has no rows or no columns.
func (t *Table) IsEmpty() bool {
	return t == nil || t.nrows == 0 || len(t.cols) == 0
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.name
	}
	return names
}

// Columns returns the columns in order. The slice is a copy; the columns are shared.
func (t *Table) Columns() []*Column {
	return append([]*Column(nil), t.cols...)
}

// Col returns the named column or nil.
func (t *Table) Col(name string) *Column {
	if i, ok := t.index[name]; ok {
		return t.cols[i]
	}
	return nil
}

// Has reports whether a column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// FindFold returns the actual name of the column matching name case-insensitively.
func (t *Table) FindFold(name string) (string, bool) {
	if t.Has(name) {
		return name, true
	}
	for _, c := range t.cols {
		if strings.EqualFold(c.name, name) {
			return c.name, true
		}
	}
	return "", false
}

// Set replaces the same-named column in place or appends a new one.
func (t *Table) Set(c *Column) error {
	if len(t.cols) > 0 && c.Len() != t.nrows {
		return exception.NewPipelineErrorf("table", "column '%s' has %d rows, table has %d", c.Name(), c.Len(), t.nrows, exception.ErrColumnLength)
	}
	if len(t.cols) == 0 {
		t.nrows = c.Len()
	}
	if i, ok := t.index[c.name]; ok {
		t.cols[i] = c
		return nil
	}
	t.index[c.name] = len(t.cols)
	t.cols = append(t.cols, c)
	return nil
}

// Insert places a new column at position pos (clamped to the valid range).
func (t *Table) Insert(pos int, c *Column) error {
	if t.Has(c.name) {
		return t.Set(c)
	}
	if err := t.Set(c); err != nil {
		return err
	}
	if pos < 0 {
		pos = 0
	}
	last := len(t.cols) - 1
	if pos >= last {
		return nil
	}
	copy(t.cols[pos+1:], t.cols[pos:last])
	t.cols[pos] = c
	t.reindex()
	return nil
}

// Drop removes the named columns. Unknown names are ignored.
func (t *Table) Drop(names ...string) {
	if len(names) == 0 {
		return
	}
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	kept := t.cols[:0]
	for _, c := range t.cols {
		if !drop[c.name] {
			kept = append(kept, c)
		}
	}
	t.cols = kept
	t.reindex()
	if len(t.cols) == 0 {
		t.nrows = 0
	}
}

// Rename changes a column name. Renaming onto an existing column fails.
func (t *Table) Rename(oldName, newName string) error {
	i, ok := t.index[oldName]
	if !ok {
		return exception.NewPipelineErrorf("table", "column '%s' not found", oldName)
	}
	if oldName == newName {
		return nil
	}
	if t.Has(newName) {
		return exception.NewPipelineErrorf("table", "column '%s' already exists", newName)
	}
	renamed := *t.cols[i]
	renamed.name = newName
	t.cols[i] = &renamed
	t.reindex()
	return nil
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.cols))
	for i, c := range t.cols {
		t.index[c.name] = i
	}
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := Empty()
	out.nrows = t.nrows
	for _, c := range t.cols {
		out.index[c.name] = len(out.cols)
		out.cols = append(out.cols, c.Clone())
	}
	return out
}

// Take returns a new table with the given rows in order.
func (t *Table) Take(rows []int) *Table {
	out := Empty()
	out.nrows = len(rows)
	for _, c := range t.cols {
		out.index[c.name] = len(out.cols)
		out.cols = append(out.cols, c.Take(rows))
	}
	return out
}

// Filter keeps the rows for which keep[i] is true.
func (t *Table) Filter(keep []bool) *Table {
	rows := make([]int, 0, t.nrows)
	for i := 0; i < t.nrows; i++ {
		if keep[i] {
			rows = append(rows, i)
		}
	}
	return t.Take(rows)
}

// Head returns the first n rows (or all rows when n is not smaller than the row count).
func (t *Table) Head(n int) *Table {
	if n < 0 || n >= t.nrows {
		return t.Clone()
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return t.Take(rows)
}

// RowKey builds a string identifying the values of row i across cols.
func RowKey(i int, cols []*Column) string {
	var b strings.Builder
	for _, c := range cols {
		if c.IsNull(i) {
			b.WriteString("\x00")
		} else {
			b.WriteString(strconv.Itoa(int(c.kind)))
			b.WriteString(":")
			b.WriteString(c.Format(i))
		}
		b.WriteString("\x1f")
	}
	return b.String()
}

// DuplicateRows marks each row that repeats an earlier row on the named columns
// (all columns when none are named). The first occurrence is never marked.
func (t *Table) DuplicateRows(names ...string) []bool {
	cols := t.cols
	if len(names) > 0 {
		cols = make([]*Column, 0, len(names))
		for _, n := range names {
			if c := t.Col(n); c != nil {
				cols = append(cols, c)
			}
		}
	}
	dup := make([]bool, t.nrows)
	seen := make(map[string]struct{}, t.nrows)
	for i := 0; i < t.nrows; i++ {
		key := RowKey(i, cols)
		if _, ok := seen[key]; ok {
			dup[i] = true
			continue
		}
		seen[key] = struct{}{}
	}
	return dup
}

// GroupRows returns the row indices sharing each value of key, groups in first-seen order.
// Rows with a missing key belong to no group.
func GroupRows(key *Column) [][]int {
	index := map[string]int{}
	var out [][]int
	for i := 0; i < key.Len(); i++ {
		if key.IsNull(i) {
			continue
		}
		k := key.Format(i)
		g, ok := index[k]
		if !ok {
			g = len(out)
			index[k] = g
			out = append(out, nil)
		}
		out[g] = append(out[g], i)
	}
	return out
}

// HConcat joins tables side by side. Shorter tables are padded with missing values and
// repeated column names are renamed "<name>_<n>".
func HConcat(tables ...*Table) *Table {
	rows := 0
	for _, t := range tables {
		if t.NumRows() > rows {
			rows = t.NumRows()
		}
	}
	out := Empty()
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, c := range t.cols {
			col := c.Pad(rows)
			name := UniqueName(out, c.name)
			if name != c.name {
				col = col.WithName(name)
			}
			_ = out.Set(col)
		}
	}
	return out
}

// UniqueName returns name, or name suffixed with "_<n>" when the table already has it.
func UniqueName(t *Table, name string) string {
	if !t.Has(name) {
		return name
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s_%d", name, n)
		if !t.Has(candidate) {
			return candidate
		}
	}
}

// Equal reports whether two tables have the same columns in the same order with the same values.
func (t *Table) Equal(o *Table) bool {
	if t.NumRows() != o.NumRows() || t.NumCols() != o.NumCols() {
		return false
	}
	for i, c := range t.cols {
		if !c.Equal(o.cols[i]) {
			return false
		}
	}
	return true
}

type columnSnapshot struct {
	Name  string
	Kind  Kind
	Nums  []float64
	Strs  []string
	Times []time.Time
	Bools []bool
	Valid []bool
}

type tableSnapshot struct {
	Rows    int
	Columns []columnSnapshot
}

// GobEncode implements gob.GobEncoder.
func (t *Table) GobEncode() ([]byte, error) {
	snap := tableSnapshot{Rows: t.nrows}
	for _, c := range t.cols {
		snap.Columns = append(snap.Columns, columnSnapshot{
			Name: c.name, Kind: c.kind, Nums: c.nums, Strs: c.strs, Times: c.times, Bools: c.bools, Valid: c.valid,
		})
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (t *Table) GobDecode(data []byte) error {
	var snap tableSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return err
	}
	t.cols = nil
	t.index = make(map[string]int, len(snap.Columns))
	t.nrows = snap.Rows
	for _, s := range snap.Columns {
		c := &Column{name: s.Name, kind: s.Kind, nums: s.Nums, strs: s.Strs, times: s.Times, bools: s.Bools, valid: s.Valid}
		// gob drops empty slices; restore them so Len() matches.
		if c.Len() != snap.Rows {
			c = NewNull(s.Name, s.Kind, snap.Rows)
		}
		t.index[c.name] = len(t.cols)
		t.cols = append(t.cols, c)
	}
	return nil
}
