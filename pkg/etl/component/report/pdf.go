package report

import (
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgpdf"

	"github.com/tigerroll/datafactory/pkg/etl/core/table"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/logger"
)

// renderMu serializes chart rendering across datasets reported in parallel.
var renderMu sync.Mutex

var lineageColumns = map[string]bool{"LoadBatchID": true, "LoadDate": true, "LastUpdated": true}

const (
	pageWidth    = 12 * vg.Inch
	pageHeight   = 10 * vg.Inch
	maxHistBins  = 30
	gridColumns  = 3
	heatmapSteps = 21
)

type chartOptions struct {
	maxColumns       int
	numeric          []string
	correlation      []string
	showCorrelations bool
	generated        time.Time
}

// writePDF renders the title page, numeric distributions, the correlation matrix and the
// missing value chart of t into one PDF.
func writePDF(path, dataset string, t *table.Table, opts chartOptions) error {
	log := logger.ForDataset(dataset)
	if t.IsEmpty() {
		log.Warnf("Dataframe is empty, skipping report generation")
		return nil
	}
	if opts.maxColumns <= 0 {
		opts.maxColumns = 10
	}

	renderMu.Lock()
	defer renderMu.Unlock()

	c := vgpdf.New(pageWidth, pageHeight)
	pages := []func(draw.Canvas){
		func(dc draw.Canvas) { titlePage(dataset, opts.generated).Draw(dc) },
		func(dc draw.Canvas) { distributions(log, dc, pick(t, opts.numeric, opts.maxColumns)) },
		func(dc draw.Canvas) { correlationPlot(log, t, pick(t, opts.correlation, opts.maxColumns), opts.showCorrelations).Draw(dc) },
		func(dc draw.Canvas) { missingPlot(log, t).Draw(dc) },
	}
	for i, page := range pages {
		if i > 0 {
			c.NextPage()
		}
		page(draw.New(c))
	}

	f, err := os.Create(path)
	if err != nil {
		return exception.NewPipelineErrorf(moduleName, "creating %s", path, err)
	}
	if _, err := c.WriteTo(f); err != nil {
		f.Close()
		return exception.NewPipelineErrorf(moduleName, "writing %s", path, err)
	}
	return f.Close()
}

// pick returns the selected numeric columns present in t, or the first max numeric columns.
func pick(t *table.Table, selected []string, max int) []*table.Column {
	var cols []*table.Column
	if len(selected) > 0 {
		for _, name := range selected {
			if c := t.Col(name); c != nil && c.IsNumeric() {
				cols = append(cols, c)
			}
		}
		return cols
	}
	cols = t.NumericColumns()
	if len(cols) > max {
		cols = cols[:max]
	}
	return cols
}

// message returns an axis-less plot showing text.
func message(text string) *plot.Plot {
	p := plot.New()
	p.Title.Text = text
	p.HideAxes()
	return p
}

func titlePage(dataset string, generated time.Time) *plot.Plot {
	return message(fmt.Sprintf("Data Quality Report\n\nDataset: %s\n\nGenerated: %s",
		dataset, generated.Format("2006-01-02 15:04")))
}

// distributions draws one histogram per column on a grid of at most three columns.
func distributions(log logger.DatasetLogger, dc draw.Canvas, cols []*table.Column) {
	if len(cols) == 0 {
		log.Warnf("No numeric columns found for distribution plots")
		message("No numeric columns available for distribution plots").Draw(dc)
		return
	}
	nCols := min(gridColumns, len(cols))
	nRows := (len(cols) + nCols - 1) / nCols
	tiles := draw.Tiles{
		Rows: nRows, Cols: nCols,
		PadTop: vg.Points(30), PadBottom: vg.Points(10), PadLeft: vg.Points(10), PadRight: vg.Points(10),
		PadX: vg.Points(20), PadY: vg.Points(20),
	}
	header := message("Numeric Distributions")
	header.Draw(draw.Crop(dc, 0, 0, dc.Max.Y-dc.Min.Y-vg.Points(30), 0))

	for i, c := range cols {
		histogram(log, c).Draw(tiles.At(dc, i%nCols, i/nCols))
	}
}

func histogram(log logger.DatasetLogger, c *table.Column) *plot.Plot {
	data := c.NonNull()
	if len(data) == 0 {
		return message("No data for " + c.Name())
	}
	bins := min(maxHistBins, c.NUnique())
	if bins < 1 {
		bins = 1
	}
	h, err := plotter.NewHist(plotter.Values(data), bins)
	if err != nil {
		log.Errorf("Error plotting %s: %v", c.Name(), err)
		return message("Error plotting " + c.Name())
	}
	p := plot.New()
	p.Title.Text = c.Name()
	p.Add(h)
	return p
}

// corrGrid is a lower-triangular correlation matrix; cells above the diagonal are NaN.
type corrGrid struct {
	z [][]float64
}

func (g corrGrid) Dims() (c, r int)   { return len(g.z), len(g.z) }
func (g corrGrid) Z(c, r int) float64 { return g.z[r][c] }
func (g corrGrid) X(c int) float64    { return float64(c) }
func (g corrGrid) Y(r int) float64    { return float64(r) }

func correlationPlot(log logger.DatasetLogger, t *table.Table, cols []*table.Column, annotate bool) *plot.Plot {
	if len(cols) < 2 {
		log.Warnf("Not enough numeric columns for correlation matrix")
		return message("Not enough numeric columns for correlation matrix")
	}
	n := len(cols)
	names := make([]string, n)
	grid := corrGrid{z: make([][]float64, n)}
	var labels plotter.XYLabels
	for r := 0; r < n; r++ {
		names[r] = cols[r].Name()
		grid.z[r] = make([]float64, n)
		for c := 0; c < n; c++ {
			// row 0 is drawn at the bottom; keep the lower triangle of the top-down matrix
			if c > n-1-r {
				grid.z[r][c] = math.NaN()
				continue
			}
			v := table.Correlation(cols[n-1-r], cols[c])
			if c == n-1-r {
				v = 1
			}
			grid.z[r][c] = v
			if annotate && !math.IsNaN(v) {
				labels.XYs = append(labels.XYs, plotter.XY{X: float64(c), Y: float64(r)})
				labels.Labels = append(labels.Labels, fmt.Sprintf("%.2f", v))
			}
		}
	}

	p := plot.New()
	p.Title.Text = "Correlation Matrix"
	colors := moreland.SmoothBlueRed()
	colors.SetMin(-1)
	colors.SetMax(1)
	hm := plotter.NewHeatMap(grid, colors.Palette(heatmapSteps))
	hm.Min, hm.Max = -1, 1
	p.Add(hm)
	if annotate && len(labels.Labels) > 0 {
		if l, err := plotter.NewLabels(labels); err == nil {
			p.Add(l)
		} else {
			log.Errorf("Error annotating correlation matrix: %v", err)
		}
	}
	p.NominalX(names...)
	reversed := make([]string, n)
	for i, name := range names {
		reversed[n-1-i] = name
	}
	p.NominalY(reversed...)
	p.X.Tick.Label.Rotation = math.Pi / 2
	return p
}

// missingPlot charts the percentage of missing values per column, lineage columns excluded.
func missingPlot(log logger.DatasetLogger, t *table.Table) *plot.Plot {
	type missing struct {
		name string
		pct  float64
	}
	var cols []missing
	for _, c := range t.Columns() {
		if lineageColumns[c.Name()] || c.NullCount() == 0 {
			continue
		}
		cols = append(cols, missing{c.Name(), 100 * c.MissingRatio()})
	}
	if len(cols) == 0 {
		log.Infof("No missing values in dataset")
		return message("No missing values in dataset")
	}
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].pct > cols[j].pct })

	values := make(plotter.Values, len(cols))
	names := make([]string, len(cols))
	for i, m := range cols {
		values[i], names[i] = m.pct, m.name
	}
	bars, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		log.Errorf("Error generating missing values chart: %v", err)
		return message("Error generating missing values chart")
	}
	p := plot.New()
	p.Title.Text = "Missing Value Percentages"
	p.Y.Label.Text = "Percent Missing"
	p.Add(bars)
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 2
	return p
}
