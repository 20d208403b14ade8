package validate

import (
	"context"
	"fmt"
	"math"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
)

var (
	fraudIndicators = []string{"IsFraudulent", "IsOnlineTransaction", "IsUsedChip", "IsUsedPIN"}
	marketPrices    = []string{"OpenValue", "CloseValue", "HighestValue", "LowestValue", "GoldPrice", "OilPrice"}
)

// DomainValidator applies the business rules of the dataset's domain. Datasets are matched
// on their name the same way domain fixers are selected.
type DomainValidator struct{}

// Name implements port.Validator.
func (v *DomainValidator) Name() string { return DomainValidation }

// Validate implements port.Validator.
func (v *DomainValidator) Validate(_ context.Context, ec *execution.Context, t *table.Table) (*model.ValidationResult, error) {
	r := model.NewValidationResult()
	defer r.Finalize()

	if t.IsEmpty() {
		r.AddIssue(emptyIssue())
		return r, nil
	}

	switch {
	case ec.Is("loan"):
		validateLoan(r, t)
	case ec.Is("fraud"):
		validateFraud(r, t)
	case ec.Is("market"):
		validateMarket(r, ec, t)
	case ec.Is("macro"):
		validateMacro(r, t)
	}
	return r, nil
}

// rangeRule reports the present values of a numeric column matching bad as one issue.
type rangeRule struct {
	column    string
	issueType string
	message   string
	bad       func(float64) bool
}

func (rule rangeRule) check(r *model.ValidationResult, t *table.Table) {
	c := numeric(t, rule.column)
	if c == nil {
		return
	}
	if n := countWhere(c, rule.bad); n > 0 {
		r.AddIssue(model.Issue{
			Type:    rule.issueType,
			Message: fmt.Sprintf(rule.message, n),
			Field:   rule.column,
			Details: map[string]interface{}{"count": n},
		})
		return
	}
	r.Pass()
}

func validateLoan(r *model.ValidationResult, t *table.Table) {
	rangeRule{"CreditScore", "invalid_credit_scores", "Found %d invalid credit scores (not between 300-850)",
		func(v float64) bool { return v < 300 || v > 850 }}.check(r, t)

	if amount, income := numeric(t, "LoanAmount"), numeric(t, "AnnualIncome"); amount != nil && income != nil {
		n := 0
		for i := 0; i < t.NumRows(); i++ {
			if inc := income.Float(i); inc > 0 && amount.Float(i) > 10*inc {
				n++
			}
		}
		if n > 0 {
			r.AddIssue(model.Issue{
				Type:    "high_loan_to_income_ratio",
				Message: fmt.Sprintf("Found %d loans with amount > 10x annual income", n),
				Details: map[string]interface{}{"count": n},
			})
		} else {
			r.Pass()
		}
	}

	rangeRule{"InterestRate", "invalid_interest_rates", "Found %d invalid interest rates (not between 0-100%%)",
		func(v float64) bool { return v < 0 || v > 100 }}.check(r, t)
}

func validateFraud(r *model.ValidationResult, t *table.Table) {
	rangeRule{"TransactionAmount", "negative_transaction_amounts", "Found %d negative transaction amounts",
		func(v float64) bool { return v < 0 }}.check(r, t)

	for _, name := range fraudIndicators {
		c := t.Col(name)
		if c == nil {
			continue
		}
		if n := nonBinary(c); n > 0 {
			r.AddIssue(model.Issue{
				Type:    "invalid_binary_indicators",
				Message: fmt.Sprintf("Found %d invalid values in %s (not 0 or 1)", n, name),
				Field:   name,
			})
			continue
		}
		r.Pass()
	}
}

// nonBinary counts the rows of c that hold neither 0 nor 1. Missing values count.
func nonBinary(c *table.Column) int {
	n := 0
	for i := 0; i < c.Len(); i++ {
		if c.IsNull(i) {
			n++
			continue
		}
		switch {
		case c.Kind() == table.KindBool:
		case c.IsNumeric():
			if v := c.Float(i); v != 0 && v != 1 {
				n++
			}
		default:
			if s := c.Format(i); s != "0" && s != "1" {
				n++
			}
		}
	}
	return n
}

func validateMarket(r *model.ValidationResult, ec *execution.Context, t *table.Table) {
	for _, name := range marketPrices {
		rangeRule{name, "negative_prices", "Found %d negative values in " + name,
			func(v float64) bool { return v < 0 }}.check(r, t)
	}

	high, low := numeric(t, "HighestValue"), numeric(t, "LowestValue")
	if high == nil || low == nil {
		return
	}
	inverted := 0
	for i := 0; i < t.NumRows(); i++ {
		if high.Float(i) < low.Float(i) {
			inverted++
		}
	}
	if inverted > 0 {
		r.AddIssue(model.Issue{
			Type:    "invalid_high_low_relationship",
			Message: fmt.Sprintf("Found %d cases where HighestValue < LowestValue", inverted),
			Details: map[string]interface{}{"count": inverted},
		})
	} else {
		r.Pass()
	}

	open, closing := numeric(t, "OpenValue"), numeric(t, "CloseValue")
	if open == nil || closing == nil {
		return
	}
	complete, outside := 0, 0
	for i := 0; i < t.NumRows(); i++ {
		o, c, h, l := open.Float(i), closing.Float(i), high.Float(i), low.Float(i)
		if math.IsNaN(o) || math.IsNaN(c) || math.IsNaN(h) || math.IsNaN(l) {
			continue
		}
		complete++
		if o > h || o < l || c > h || c < l {
			outside++
		}
	}
	switch {
	case complete == 0:
		ec.Log.Infof("No rows with complete price data for Open/Close/High/Low validation")
		r.Pass()
	case outside > 0:
		r.AddIssue(model.Issue{
			Type:    "prices_out_of_range",
			Message: fmt.Sprintf("Found %d cases where Open/Close are outside High/Low range", outside),
			Details: map[string]interface{}{"count": outside},
		})
	default:
		r.Pass()
	}
}

func validateMacro(r *model.ValidationResult, t *table.Table) {
	rangeRule{"UnemploymentRate", "invalid_unemployment_rates", "Found %d invalid unemployment rates (not between 0-100%%)",
		func(v float64) bool { return v < 0 || v > 100 }}.check(r, t)
	rangeRule{"GDP", "negative_gdp", "Found %d cases with zero or negative GDP",
		func(v float64) bool { return v <= 0 }}.check(r, t)
	rangeRule{"InflationRate", "extreme_inflation_rates", "Found %d extreme inflation rates (< -20%% or > 100%%)",
		func(v float64) bool { return v < -20 || v > 100 }}.check(r, t)
}

// numeric returns the named column when it exists and is numeric.
func numeric(t *table.Table, name string) *table.Column {
	c := t.Col(name)
	if c == nil || !c.IsNumeric() {
		return nil
	}
	return c
}
