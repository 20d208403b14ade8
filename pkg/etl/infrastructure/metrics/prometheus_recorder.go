package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	metrics "github.com/tigerroll/datafactory/pkg/etl/core/metrics"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of metrics.MetricRecorder.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	stepDurationSeconds *prometheus.HistogramVec
	stepStatusCounter   *prometheus.CounterVec
	fixesCounter        *prometheus.CounterVec
	datasetCounter      *prometheus.CounterVec
	qualityScore        *prometheus.GaugeVec
	cacheLookups        *prometheus.CounterVec
	operationSeconds    *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a recorder with its own registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		stepDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "datafactory_step_duration_seconds",
			Help:    "Duration of pipeline step executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"dataset", "step", "status"}),
		stepStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datafactory_step_started_total",
			Help: "Total number of pipeline steps started.",
		}, []string{"dataset", "step"}),
		fixesCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datafactory_fixes_total",
			Help: "Total number of values changed by fixer strategies.",
		}, []string{"dataset", "strategy"}),
		datasetCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datafactory_dataset_total",
			Help: "Total number of processed datasets by status.",
		}, []string{"status"}),
		qualityScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "datafactory_quality_score",
			Help: "Latest dataset quality score per validation pass.",
		}, []string{"dataset", "pass"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datafactory_cache_lookups_total",
			Help: "Cache lookups by tier and result.",
		}, []string{"tier", "result"}),
		operationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "datafactory_operation_duration_seconds",
			Help:    "Duration of miscellaneous operations such as loading, saving and reporting.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "dataset"}),
	}

	registry.MustRegister(
		r.stepDurationSeconds,
		r.stepStatusCounter,
		r.fixesCounter,
		r.datasetCounter,
		r.qualityScore,
		r.cacheLookups,
		r.operationSeconds,
	)
	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes every gathered metric to path in the text exposition format.
func (r *PrometheusRecorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return exception.NewPipelineError("metrics", "failed to write metrics textfile", err)
	}
	logger.Infof("Metrics written to %s", path)
	return nil
}

func (r *PrometheusRecorder) RecordDatasetEnd(ctx context.Context, result *model.DatasetResult) {
	r.datasetCounter.WithLabelValues(string(result.Status)).Inc()
}

func (r *PrometheusRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	r.stepStatusCounter.WithLabelValues(execution.Dataset, execution.StepName).Inc()
	logger.Debugf("Metrics: Step '%s' started.", execution.StepName)
}

func (r *PrometheusRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	if execution.EndTime.IsZero() {
		return
	}
	duration := execution.Duration().Seconds()
	r.stepDurationSeconds.WithLabelValues(execution.Dataset, execution.StepName, string(execution.Status)).Observe(duration)
	logger.Debugf("Metrics: Step '%s' ended. Duration: %.3fs", execution.StepName, duration)
}

func (r *PrometheusRecorder) RecordFixes(ctx context.Context, dataset, strategy string, count int) {
	if count <= 0 {
		return
	}
	r.fixesCounter.WithLabelValues(dataset, strategy).Add(float64(count))
}

func (r *PrometheusRecorder) RecordQualityScore(ctx context.Context, dataset string, pass int, score float64) {
	r.qualityScore.WithLabelValues(dataset, strconv.Itoa(pass)).Set(score)
}

func (r *PrometheusRecorder) RecordCacheLookup(ctx context.Context, tier, result string) {
	r.cacheLookups.WithLabelValues(tier, result).Inc()
}

// RecordDuration observes duration under the "operation" label; the "dataset" tag is optional.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.operationSeconds.WithLabelValues(name, tags["dataset"]).Observe(duration.Seconds())
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
