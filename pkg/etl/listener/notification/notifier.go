// Package notification announces the end of a run.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/port"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/logger"
)

// LogNotifier writes the run summary to the log: one line per dataset and a total.
type LogNotifier struct{}

func NewLogNotifier() port.Notifier {
	return &LogNotifier{}
}

// NotifyRunCompletion logs failed datasets at WARN level.
func (n *LogNotifier) NotifyRunCompletion(ctx context.Context, runID string, results []model.DatasetResult, elapsed time.Duration) {
	succeeded := 0
	for _, r := range results {
		log := logger.ForDataset(r.Dataset)
		if r.Succeeded() {
			succeeded++
			score := "n/a"
			if r.Validation != nil {
				score = fmt.Sprintf("%.2f%%", r.Validation.QualityScore)
			}
			log.Infof("Run notification: success, %d file(s), quality score %s -> %s", r.FileCount, score, r.OutputPath)
			continue
		}
		log.Warnf("Run notification: error, %d file(s): %s", r.FileCount, r.Error)
	}

	if succeeded == len(results) && len(results) > 0 {
		logger.Infof("Run %s finished: %d/%d datasets succeeded in %s", runID, succeeded, len(results), elapsed.Round(time.Millisecond))
	} else {
		logger.Warnf("Run %s finished: %d/%d datasets succeeded in %s", runID, succeeded, len(results), elapsed.Round(time.Millisecond))
	}
}

var _ port.Notifier = (*LogNotifier)(nil)
