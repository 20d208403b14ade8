package preprocess

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
)

const (
	notSpecified     = "Not Specified"
	maxOneHotLevels  = 10
	commonWordSample = 1000
)

// groupKeyCandidates name the customer-like columns rows are grouped by.
var groupKeyCandidates = []string{"Customer_ID", "CustomerID", "ID", "User_ID", "UserID", "UserName"}

var positiveValues = []string{
	"yes", "y", "true", "t", "1", "positive", "pos", "p", "success",
	"pass", "approved", "high", "good", "active", "available", "present",
	"completed", "achieved", "confirmed", "valid", "succeeded", "done",
	"in_use", "in_service", "on_time", "on_schedule", "in_stock",
	"in_progress", "in_transit", "employed", "self-employed",
}

// balanceLoanTypes maps balance columns to the loan type they evidence.
var balanceLoanTypes = []struct{ column, loanType string }{
	{"AutoLoanBalance", "Auto"},
	{"StudentLoanBalance", "Student"},
	{"PersonalLoanBalance", "Personal"},
	{"MortgageBalance", "Mortgage"},
}

// CategoricalStrategy splits multi-value text, encodes binary or low-cardinality columns
// and fills missing categories.
type CategoricalStrategy struct{}

func (s *CategoricalStrategy) Name() string { return CategoricalProcessing }

func (s *CategoricalStrategy) Apply(ctx context.Context, ec *execution.Context, t *table.Table) (model.Outcome, error) {
	if t.IsEmpty() {
		return model.Outcome{Table: t}, nil
	}
	out := t.Clone()
	groupKey := findGroupKey(ec, out)
	changes := 0

	multi := 0
	for _, c := range out.ColumnsOfKind(table.KindString) {
		if hasComma(c) && groupKey != "" {
			changes += splitMultiValue(ec, out, c, groupKey)
			multi++
		}
	}
	if multi > 0 {
		ec.Log.Debugf("%s: %d multi-value columns processed", s.Name(), multi)
	}

	if ec.Engine().OnehotEncodeCategorical {
		changes += oneHotEncode(ec, out)
	} else {
		n, err := binarize(ec, out)
		if err != nil {
			return model.Outcome{}, err
		}
		changes += n
	}

	changes += fillCategories(ec, out, groupKey)
	return model.Outcome{Table: out, Changes: changes}, nil
}

func findGroupKey(ec *execution.Context, t *table.Table) string {
	names := t.Names()
	return execution.Remember(ec.Memo, execution.Fingerprint("groupkey", names...), func() string {
		sorted := append([]string(nil), names...)
		sort.Strings(sorted)
		for _, name := range sorted {
			for _, candidate := range groupKeyCandidates {
				if strings.EqualFold(name, candidate) {
					return name
				}
			}
		}
		return ""
	})
}

func hasComma(c *table.Column) bool {
	for i := 0; i < c.Len(); i++ {
		if v, ok := c.Str(i); ok && strings.Contains(v, ",") {
			return true
		}
	}
	return false
}

// splitMultiValue spreads a comma-separated list over the rows of each group, one item
// per row, honouring loan types evidenced by positive balances.
func splitMultiValue(ec *execution.Context, t *table.Table, c *table.Column, groupKey string) int {
	common := commonWords(c)
	changed := 0
	for _, rows := range table.GroupRows(t.Col(groupKey)) {
		if len(rows) <= 1 {
			continue
		}
		var items []string
		for _, i := range rows {
			if v, ok := c.Str(i); ok {
				if v != "" {
					items = parseItems(v, common)
				}
				break
			}
		}

		required := map[int]string{}
		var fromBalance []string
		for _, i := range rows {
			for _, bt := range balanceLoanTypes {
				for _, bc := range t.Columns() {
					if !strings.Contains(bc.Name(), bt.column) || !bc.IsNumeric() {
						continue
					}
					if v := bc.Float(i); v > 0 {
						required[i] = bt.loanType
						if !containsString(fromBalance, bt.loanType) {
							fromBalance = append(fromBalance, bt.loanType)
						}
					}
				}
			}
		}
		if len(items) == 0 && len(fromBalance) > 0 {
			items = append(items, fromBalance...)
		}
		for len(items) < len(rows) {
			items = append(items, notSpecified)
		}

		remaining := append([]int(nil), rows...)
		for _, i := range rows {
			loanType, ok := required[i]
			if !ok {
				continue
			}
			if pos := indexOf(items, loanType); pos >= 0 {
				c.SetStr(i, loanType)
				items = append(items[:pos], items[pos+1:]...)
				remaining = removeInt(remaining, i)
				changed++
			}
		}
		for j, i := range remaining {
			if j < len(items) {
				c.SetStr(i, items[j])
			} else {
				c.SetStr(i, notSpecified)
			}
			changed++
		}
	}
	ec.Log.Debugf("Processed multi-value column %s with groupby key %s", c.Name(), groupKey)
	return changed
}

func parseItems(v string, common map[string]bool) []string {
	v = strings.ReplaceAll(v, " and ", ", ")
	var items []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		part = removeCommonWords(part, common)
		if strings.EqualFold(part, notSpecified) {
			continue
		}
		items = append(items, part)
	}
	return items
}

// commonWords finds words longer than three letters that occur at least as often as a
// threshold halfway between the median and the 95th percentile word frequency.
func commonWords(c *table.Column) map[string]bool {
	counts := map[string]int{}
	replacer := strings.NewReplacer("-", " ", "_", " ", "/", " ")
	for i := 0; i < c.Len() && i < commonWordSample; i++ {
		v, ok := c.Str(i)
		if !ok {
			continue
		}
		for _, w := range strings.Fields(replacer.Replace(strings.ToLower(v))) {
			counts[w]++
		}
	}
	if len(counts) == 0 {
		return nil
	}
	freqs := make([]int, 0, len(counts))
	for _, n := range counts {
		freqs = append(freqs, n)
	}
	sort.Ints(freqs)
	var median float64
	if n := len(freqs); n%2 == 0 {
		median = float64(freqs[n/2]+freqs[n/2-1]) / 2
	} else {
		median = float64(freqs[n/2])
	}
	upper := float64(freqs[min(len(freqs)-1, int(float64(len(freqs))*0.95))])
	threshold := max(2, int(median+(upper-median)*0.5))

	out := map[string]bool{}
	for w, n := range counts {
		if n >= threshold && len(w) > 3 {
			out[w] = true
		}
	}
	return out
}

func removeCommonWords(text string, common map[string]bool) string {
	if len(common) == 0 {
		return text
	}
	var kept []string
	for _, w := range strings.Fields(text) {
		if !common[strings.ToLower(w)] {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		return text
	}
	return strings.Join(kept, " ")
}

// binarize maps text columns with two or three values, one of them positive, to 1/0.
func binarize(ec *execution.Context, t *table.Table) (int, error) {
	fold := cases.Fold()
	positive := map[string]bool{}
	for _, p := range append(append([]string(nil), ec.Engine().BinaryPatterns...), positiveValues...) {
		positive[fold.String(p)] = true
	}

	n := 0
	for _, c := range t.ColumnsOfKind(table.KindString) {
		if strings.Contains(strings.ToLower(c.Name()), "name") {
			continue
		}
		var levels []string
		for _, v := range c.Unique() {
			if strings.TrimSpace(v) != "" {
				levels = append(levels, v)
			}
		}
		if len(levels) < 2 || len(levels) > 3 {
			continue
		}
		hits := map[string]bool{}
		for _, v := range levels {
			if positive[fold.String(v)] {
				hits[v] = true
			}
		}
		if len(hits) == 0 {
			ec.Log.Infof("No positive value found for column %s, treating as non-binary", c.Name())
			continue
		}
		vals := make([]float64, c.Len())
		for i := range vals {
			if v, ok := c.Str(i); ok && hits[v] {
				vals[i] = 1
			}
		}
		if err := t.Set(table.NewInt(c.Name(), vals)); err != nil {
			return n, err
		}
		ec.Log.Debugf("Processing binary column %s with positive values %v", c.Name(), sortedKeys(hits))
		n++
	}
	if n > 0 {
		ec.Log.Debugf("%s: %d binary categorical columns encoded", CategoricalProcessing, n)
	}
	return n, nil
}

// oneHotEncode replaces single-valued text columns with at most ten levels by one 0/1
// column per level, appended at the end.
func oneHotEncode(ec *execution.Context, t *table.Table) int {
	var encoded []string
	var dummies []*table.Column
	for _, c := range t.ColumnsOfKind(table.KindString) {
		if hasComma(c) || c.NUnique() > maxOneHotLevels {
			continue
		}
		levels := c.Unique()
		sort.Strings(levels)
		for _, level := range levels {
			vals := make([]float64, c.Len())
			for i := range vals {
				if v, ok := c.Str(i); ok && v == level {
					vals[i] = 1
				}
			}
			dummies = append(dummies, table.NewInt(c.Name()+"_"+level, vals))
		}
		encoded = append(encoded, c.Name())
	}
	if len(encoded) == 0 {
		return 0
	}
	t.Drop(encoded...)
	for _, d := range dummies {
		_ = t.Set(d.WithName(table.UniqueName(t, d.Name())))
	}
	ec.Log.Debugf("One-hot encoding completed for columns: %s", strings.Join(encoded, ", "))
	return len(encoded)
}

// fillCategories fills missing text first from the row's group, then with the column mode.
// Columns whose name contains "id" get no mode fill.
func fillCategories(ec *execution.Context, t *table.Table, groupKey string) int {
	processed := 0
	var keyGroups [][]int
	if groupKey != "" {
		keyGroups = table.GroupRows(t.Col(groupKey))
	}
	for _, c := range t.ColumnsOfKind(table.KindString) {
		before := blankCount(c)
		if before == 0 {
			continue
		}
		mode, hasMode := categoryMode(c)

		for _, rows := range keyGroups {
			fill := ""
			for _, i := range rows {
				if v, ok := c.Str(i); ok && v != "" {
					fill = v
					break
				}
			}
			if fill == "" {
				continue
			}
			for _, i := range rows {
				if v, ok := c.Str(i); !ok || v == "" {
					c.SetStr(i, fill)
				}
			}
		}
		if hasMode {
			for i := 0; i < c.Len(); i++ {
				if c.IsNull(i) {
					c.SetStr(i, mode)
				}
			}
		}
		if blankCount(c) < before {
			processed++
		}
	}
	if processed > 0 {
		ec.Log.Debugf("%s: %d categorical columns with missing values imputed", CategoricalProcessing, processed)
	}
	return processed
}

func categoryMode(c *table.Column) (string, bool) {
	if strings.Contains(strings.ToLower(c.Name()), "id") {
		return "", false
	}
	counts := map[string]int{}
	for i := 0; i < c.Len(); i++ {
		if v, ok := c.Str(i); ok && v != "" {
			counts[v]++
		}
	}
	best, bestN := "", 0
	for v, n := range counts {
		if n > bestN || (n == bestN && v < best) {
			best, bestN = v, n
		}
	}
	return best, bestN > 0
}

func blankCount(c *table.Column) int {
	n := 0
	for i := 0; i < c.Len(); i++ {
		if v, ok := c.Str(i); !ok || v == "" {
			n++
		}
	}
	return n
}

func containsString(list []string, s string) bool {
	return indexOf(list, s) >= 0
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func removeInt(list []int, v int) []int {
	for i, x := range list {
		if x == v {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
