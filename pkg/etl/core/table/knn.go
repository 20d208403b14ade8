package table

import (
	"math"
	"sort"
)

// KNNImpute fills missing values of the target columns with the mean of the k nearest
// donor rows. Distances use the NaN-aware Euclidean metric over the feature columns:
// squared differences are summed over coordinates present in both rows and scaled by
// total/present coordinates. When no donor shares a coordinate, the column mean is used.
// It returns the number of values filled.
func KNNImpute(t *Table, features []string, targets []string, k int) int {
	if k < 1 {
		k = 1
	}
	feats := make([]*Column, 0, len(features))
	for _, name := range features {
		if c := t.Col(name); c != nil && c.IsNumeric() {
			feats = append(feats, c)
		}
	}
	if len(feats) == 0 {
		return 0
	}

	// Snapshot feature values so imputations do not feed later distances.
	n := t.NumRows()
	grid := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, len(feats))
		for j, c := range feats {
			row[j] = c.Float(i)
		}
		grid[i] = row
	}

	filled := 0
	for _, name := range targets {
		col := t.Col(name)
		if col == nil || !col.IsNumeric() {
			continue
		}
		original := append([]float64(nil), col.Nums()...)
		colMean := Mean(col.NonNull())

		var donors []int
		for i, v := range original {
			if !math.IsNaN(v) {
				donors = append(donors, i)
			}
		}
		if len(donors) == 0 {
			continue
		}

		for i, v := range original {
			if !math.IsNaN(v) {
				continue
			}
			type neighbour struct {
				row  int
				dist float64
			}
			candidates := make([]neighbour, 0, len(donors))
			for _, d := range donors {
				if dist, ok := nanEuclidean(grid[i], grid[d]); ok {
					candidates = append(candidates, neighbour{row: d, dist: dist})
				}
			}
			if len(candidates) == 0 {
				col.SetFloat(i, colMean)
				filled++
				continue
			}
			sort.SliceStable(candidates, func(a, b int) bool { return candidates[a].dist < candidates[b].dist })
			if len(candidates) > k {
				candidates = candidates[:k]
			}
			sum := 0.0
			for _, c := range candidates {
				sum += original[c.row]
			}
			col.SetFloat(i, sum/float64(len(candidates)))
			filled++
		}
	}
	return filled
}

func nanEuclidean(a, b []float64) (float64, bool) {
	sum := 0.0
	present := 0
	for j := range a {
		if math.IsNaN(a[j]) || math.IsNaN(b[j]) {
			continue
		}
		d := a[j] - b[j]
		sum += d * d
		present++
	}
	if present == 0 {
		return 0, false
	}
	return math.Sqrt(float64(len(a)) / float64(present) * sum), true
}
