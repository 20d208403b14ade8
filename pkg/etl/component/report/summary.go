package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/tigerroll/datafactory/pkg/etl/core/table"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
)

// writeSummary writes the statistical summary of t to path.
func writeSummary(path, dataset string, t *table.Table, metrics map[string]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return exception.NewPipelineErrorf(moduleName, "creating %s", path, err)
	}
	w := bufio.NewWriter(f)
	Summarize(w, dataset, t, metrics)
	if err := w.Flush(); err != nil {
		f.Close()
		return exception.NewPipelineErrorf(moduleName, "writing %s", path, err)
	}
	return f.Close()
}

// Summarize renders shape, quality metrics, column types, descriptive statistics,
// missing values and unique counts of t.
func Summarize(w io.Writer, dataset string, t *table.Table, metrics map[string]float64) {
	fmt.Fprintf(w, "Dataset: %s\n", dataset)
	fmt.Fprintf(w, "Shape: (%d, %d)\n\n", t.NumRows(), t.NumCols())

	if len(metrics) > 0 {
		fmt.Fprintln(w, "Quality Metrics:")
		for _, k := range sortedKeys(metrics) {
			fmt.Fprintf(w, "  %s: %.2f%%\n", k, metrics[k])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "Data Types:")
	kinds := map[string]int{}
	for _, c := range t.Columns() {
		kinds[c.Kind().String()]++
	}
	for _, k := range sortedCountKeys(kinds) {
		fmt.Fprintf(w, "  %s: %d columns\n", k, kinds[k])
	}

	fmt.Fprintln(w, "\nDescriptive Statistics:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tcount\tunique\tmean\tstd\tmin\t25%\t50%\t75%\tmax\t")
	for _, c := range t.Columns() {
		count := c.Len() - c.NullCount()
		if !c.IsNumeric() {
			fmt.Fprintf(tw, "%s\t%d\t%d\t\t\t\t\t\t\t\t\n", c.Name(), count, c.NUnique())
			continue
		}
		vals := c.NonNull()
		if len(vals) == 0 {
			fmt.Fprintf(tw, "%s\t0\t0\t\t\t\t\t\t\t\t\n", c.Name())
			continue
		}
		sorted := table.Sorted(vals)
		fmt.Fprintf(tw, "%s\t%d\t\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n", c.Name(), count,
			num(table.Mean(vals)), num(table.StdDev(vals)), num(sorted[0]),
			num(table.Quantile(sorted, 0.25)), num(table.Quantile(sorted, 0.5)),
			num(table.Quantile(sorted, 0.75)), num(sorted[len(sorted)-1]))
	}
	tw.Flush()

	fmt.Fprintln(w, "\nMissing Values Summary:")
	missing := make([]*table.Column, 0, t.NumCols())
	for _, c := range t.Columns() {
		if c.NullCount() > 0 {
			missing = append(missing, c)
		}
	}
	sort.SliceStable(missing, func(i, j int) bool { return missing[i].MissingRatio() > missing[j].MissingRatio() })
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tMissing Count\tMissing Percentage\t")
	for _, c := range missing {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t\n", c.Name(), c.NullCount(), 100*c.MissingRatio())
	}
	tw.Flush()

	fmt.Fprintln(w, "\nUnique Values Count:")
	cols := append([]*table.Column(nil), t.Columns()...)
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].NUnique() > cols[j].NUnique() })
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, c := range cols {
		fmt.Fprintf(tw, "%s\t%d\t\n", c.Name(), c.NUnique())
	}
	tw.Flush()
}

func num(v float64) string {
	return fmt.Sprintf("%.6g", v)
}

func sortedCountKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
