// Package report writes the quality artifacts of validated datasets: a JSON validation
// report, a plain text statistical summary and a PDF of charts.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/datafactory/pkg/etl/core/config"
	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/logger"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/serialization"
)

const moduleName = "report"

// SubDir is the directory under report_dir that holds every artifact.
const SubDir = "DataFactoryReports"

// Reporter generates the quality artifacts of a dataset. It is safe for concurrent use.
type Reporter struct {
	provider *config.Provider
	now      func() time.Time

	mu        sync.Mutex
	generated map[string]bool
}

// NewReporter returns a reporter writing under the configured report directory.
func NewReporter(provider *config.Provider) *Reporter {
	return &Reporter{provider: provider, now: time.Now, generated: make(map[string]bool)}
}

// Dir returns the directory reports are written to.
func (r *Reporter) Dir() string {
	return filepath.Join(r.provider.Engine().ReportDir, SubDir)
}

// GenerateReport writes the artifacts enabled in configuration. A result is reported once
// per dataset and validation pass unless result.ForceRegenerate is set, and is marked
// ReportGenerated afterwards. Individual artifact failures are aggregated into the error.
func (r *Reporter) GenerateReport(ctx context.Context, dataset string, t *table.Table, result *model.ValidationResult) error {
	if dataset == "" {
		return exception.NewPipelineError(moduleName, "dataset name not set for quality report", nil)
	}
	if result == nil {
		return exception.NewPipelineErrorf(moduleName, "no validation result for %s", dataset)
	}
	log := logger.ForDataset(dataset)
	if result.ReportGenerated && !result.ForceRegenerate {
		log.Infof("Report for %s already generated, skipping", dataset)
		return nil
	}
	key := fmt.Sprintf("%s_%d", dataset, result.ValidationPass)
	r.mu.Lock()
	if r.generated[key] && !result.ForceRegenerate {
		r.mu.Unlock()
		log.Infof("Skipping duplicate report generation for %s", key)
		return nil
	}
	r.generated[key] = true
	r.mu.Unlock()
	result.ReportGenerated = true

	logSummary(log, result)

	if err := ctx.Err(); err != nil {
		return err
	}
	dir := r.Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return exception.NewPipelineError(moduleName, "creating report directory", err)
	}

	engine := r.provider.Engine()
	var errs *multierror.Error
	if engine.StatisticalReport || engine.DataQualityReport {
		if err := writeSummary(filepath.Join(dir, dataset+"_summary.txt"), dataset, t, result.QualityMetrics); err != nil {
			errs = multierror.Append(errs, err)
		} else {
			log.Infof("Statistical summary for %s generated", dataset)
		}
	}
	if engine.ValidationReport {
		if err := r.writeJSON(filepath.Join(dir, dataset+"_validation_report.json"), dataset, t, result); err != nil {
			errs = multierror.Append(errs, err)
		} else {
			log.Infof("Validation JSON report for %s generated", dataset)
		}
	}
	if engine.DataQualityReport {
		opts := chartOptions{
			maxColumns:       engine.ReportMaxColumns,
			numeric:          engine.ReportNumericColumns,
			correlation:      engine.ReportCorrelationColumns,
			showCorrelations: engine.ShowCorrelationValues,
			generated:        r.now(),
		}
		if err := writePDF(filepath.Join(dir, dataset+"_quality_report.pdf"), dataset, t, opts); err != nil {
			errs = multierror.Append(errs, err)
		} else {
			log.Infof("Data quality report for %s generated", dataset)
		}
	}
	return errs.ErrorOrNil()
}

func logSummary(log logger.DatasetLogger, result *model.ValidationResult) {
	if result.Status == model.StatusPassed {
		log.Infof("Validation pass #%d: Data validation passed", result.ValidationPass)
		return
	}
	log.Warnf("Validation pass #%d: Data validation %s with %d issues", result.ValidationPass, result.Status, len(result.Issues))
	log.Warnf("Quality score: %.1f/100.0", result.QualityScore)
	if len(result.QualityMetrics) > 0 {
		parts := make([]string, 0, len(result.QualityMetrics))
		for _, k := range sortedKeys(result.QualityMetrics) {
			parts = append(parts, fmt.Sprintf("%s: %.1f%%", k, result.QualityMetrics[k]))
		}
		log.Debugf("Quality metrics: %s", strings.Join(parts, ", "))
	}
}

// writeJSON saves the validation result together with the dataset shape.
func (r *Reporter) writeJSON(path, dataset string, t *table.Table, result *model.ValidationResult) error {
	if t.IsEmpty() {
		logger.ForDataset(dataset).Warnf("Dataframe is empty, skipping JSON report generation")
		return nil
	}
	result.Dataset = dataset
	result.RowCount = t.NumRows()
	result.ColumnCount = t.NumCols()

	issues := make([]interface{}, len(result.Issues))
	for i, issue := range result.Issues {
		doc := map[string]interface{}{
			"type":     issue.Type,
			"message":  issue.Message,
			"severity": string(issue.Severity),
		}
		if issue.Field != "" {
			doc["field"] = issue.Field
		}
		if len(issue.Details) > 0 {
			doc["details"] = issue.Details
		}
		issues[i] = doc
	}
	metrics := make(map[string]interface{}, len(result.QualityMetrics))
	for k, v := range result.QualityMetrics {
		metrics[k] = v
	}
	steps := make([]interface{}, len(result.Steps))
	for i, s := range result.Steps {
		steps[i] = map[string]interface{}{
			"name":         s.Name,
			"status":       string(s.Status),
			"issues_count": s.IssuesCount,
			"duration_ms":  s.DurationMs,
		}
	}
	doc := map[string]interface{}{
		"dataset_name":          dataset,
		"timestamp":             r.now().Format(time.RFC3339),
		"status":                string(result.Status),
		"issues_count":          len(result.Issues),
		"issues":                issues,
		"tests_passed":          result.TestsPassed,
		"tests_failed":          result.TestsFailed,
		"dataset_quality_score": result.QualityScore,
		"quality_metrics":       metrics,
		"validation_pass":       result.ValidationPass,
		"report_generated":      result.ReportGenerated,
		"row_count":             result.RowCount,
		"column_count":          result.ColumnCount,
		"steps":                 steps,
		"processing_time_ms":    result.DurationMs,
	}
	data, err := serialization.MarshalIndent(doc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return exception.NewPipelineErrorf(moduleName, "writing %s", path, err)
	}
	return nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
