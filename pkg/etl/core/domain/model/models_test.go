package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
)

func TestQualityScoreIsBounded(t *testing.T) {
	for critical := 0; critical < 20; critical++ {
		for warning := 0; warning < 60; warning += 7 {
			score := model.QualityScore(critical, warning)
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 100.0)
		}
	}
	assert.Equal(t, 100.0, model.QualityScore(0, 0))
	assert.Equal(t, 86.0, model.QualityScore(1, 2))
	assert.Equal(t, 0.0, model.QualityScore(11, 0))
}

func TestFinalizeDerivesStatus(t *testing.T) {
	r := model.NewValidationResult()
	r.Pass()
	r.Finalize()
	assert.Equal(t, model.StatusPassed, r.Status)

	r.AddIssue(model.Issue{Type: "missing_values", Message: "too many"})
	r.Finalize()
	assert.Equal(t, model.StatusWarning, r.Status)
	assert.Equal(t, 98.0, r.QualityScore)

	r.AddIssue(model.Issue{Type: "missing_columns", Message: "gone", Severity: model.SeverityCritical})
	r.Finalize()
	assert.Equal(t, model.StatusFailed, r.Status)
	assert.Equal(t, 88.0, r.QualityScore)
	assert.Equal(t, 1, r.TestsPassed)
	assert.Equal(t, 2, r.TestsFailed)
}

func TestMergePrefixesMetrics(t *testing.T) {
	total := model.NewValidationResult()
	part := model.NewValidationResult()
	part.QualityMetrics["completeness"] = 0.9
	part.AddIssue(model.Issue{Type: "duplicates", Message: "dup"})

	total.Merge("data_quality", part)

	assert.Len(t, total.Issues, 1)
	assert.Equal(t, 0.9, total.QualityMetrics["data_quality.completeness"])
}
