// Package model defines the result types exchanged between pipeline stages and reported to users.
package model

import (
	"math"
	"time"

	"github.com/tigerroll/datafactory/pkg/etl/core/table"
)

// Severity classifies a validation issue.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Status is the outcome of a validation run.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusWarning Status = "warning"
	StatusFailed  Status = "failed"
	StatusError   Status = "error"
)

// Issue is one finding of a validation strategy.
type Issue struct {
	Type     string                 `json:"type"`
	Message  string                 `json:"message"`
	Severity Severity               `json:"severity"`
	Field    string                 `json:"field,omitempty"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// ValidationResult accumulates the findings of one validation run.
type ValidationResult struct {
	Status          Status             `json:"status"`
	Issues          []Issue            `json:"issues"`
	TestsPassed     int                `json:"tests_passed"`
	TestsFailed     int                `json:"tests_failed"`
	QualityMetrics  map[string]float64 `json:"quality_metrics"`
	QualityScore    float64            `json:"dataset_quality_score"`
	ValidationPass  int                `json:"validation_pass"`
	ReportGenerated bool               `json:"report_generated"`
	ForceRegenerate bool               `json:"-"`

	Dataset     string        `json:"dataset_name,omitempty"`
	RowCount    int           `json:"row_count"`
	ColumnCount int           `json:"column_count"`
	Steps       []StepSummary `json:"steps,omitempty"`
	StartedAt   time.Time     `json:"processing_started"`
	DurationMs  float64       `json:"processing_time_ms"`
}

// StepSummary is the contribution of one validation strategy to a combined result.
type StepSummary struct {
	Name        string  `json:"name"`
	Status      Status  `json:"status"`
	IssuesCount int     `json:"issues_count"`
	DurationMs  float64 `json:"duration_ms"`
}

// NewValidationResult returns an empty, passing result.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		Status:         StatusPassed,
		Issues:         []Issue{},
		QualityMetrics: map[string]float64{},
		QualityScore:   100,
	}
}

// AddIssue records an issue and counts a failed test.
func (r *ValidationResult) AddIssue(issue Issue) {
	if issue.Severity == "" {
		issue.Severity = SeverityWarning
	}
	r.Issues = append(r.Issues, issue)
	r.TestsFailed++
}

// Pass counts a passed test.
func (r *ValidationResult) Pass() {
	r.TestsPassed++
}

// CountBySeverity returns the number of critical and warning issues.
func (r *ValidationResult) CountBySeverity() (critical, warning int) {
	for _, issue := range r.Issues {
		switch issue.Severity {
		case SeverityCritical:
			critical++
		case SeverityWarning:
			warning++
		}
	}
	return critical, warning
}

// Finalize derives Status and QualityScore from the accumulated issues.
// Any critical issue fails the run; otherwise any warning downgrades it to warning.
func (r *ValidationResult) Finalize() {
	critical, warning := r.CountBySeverity()
	switch {
	case critical > 0:
		r.Status = StatusFailed
	case warning > 0:
		r.Status = StatusWarning
	default:
		r.Status = StatusPassed
	}
	r.QualityScore = QualityScore(critical, warning)
}

// Merge appends the issues, counters and metrics of other into r. Metric keys are prefixed.
func (r *ValidationResult) Merge(prefix string, other *ValidationResult) {
	if other == nil {
		return
	}
	r.Issues = append(r.Issues, other.Issues...)
	r.TestsPassed += other.TestsPassed
	r.TestsFailed += other.TestsFailed
	for k, v := range other.QualityMetrics {
		if prefix != "" {
			k = prefix + "." + k
		}
		r.QualityMetrics[k] = v
	}
}

// QualityScore returns max(0, 100 - 10*critical - 2*warning).
func QualityScore(critical, warning int) float64 {
	return math.Max(0, 100-10*float64(critical)-2*float64(warning))
}

// Outcome is what a strategy or step hands back: the resulting table and how much it changed.
// Validation steps also attach the result they produced.
type Outcome struct {
	Table      *table.Table
	Changes    int
	Validation *ValidationResult
}

// DatasetStatus is the per-dataset processing status.
type DatasetStatus string

const (
	DatasetSuccess DatasetStatus = "success"
	DatasetError   DatasetStatus = "error"
)

// DatasetResult is the orchestrator's record of one processed dataset.
type DatasetResult struct {
	Dataset    string
	Status     DatasetStatus
	FileCount  int
	OutputPath string
	Error      string
	Table      *table.Table
	Validation *ValidationResult
}

// Succeeded reports whether the dataset was processed successfully.
func (r DatasetResult) Succeeded() bool {
	return r.Status == DatasetSuccess
}

// StepStatus is the lifecycle state of one step execution.
type StepStatus string

const (
	StepStarted   StepStatus = "STARTED"
	StepCompleted StepStatus = "COMPLETED"
	StepCached    StepStatus = "CACHED"
	StepFailed    StepStatus = "FAILED"
	StepAborted   StepStatus = "ABORTED"
)

// StepExecution records one executor step run, for listeners.
type StepExecution struct {
	ID        string
	Dataset   string
	StepName  string
	Kind      string
	Status    StepStatus
	StartTime time.Time
	EndTime   time.Time
	RowsIn    int
	RowsOut   int
	Columns   int
	Changes   int
	Err       error
}

// Duration is the wall time between start and end, zero while running.
func (s *StepExecution) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}
