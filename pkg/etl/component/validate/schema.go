package validate

import (
	"context"
	"fmt"
	"strings"

	"github.com/tigerroll/datafactory/pkg/etl/core/config"
	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
)

// SchemaValidator checks that every target-schema column is present with a compatible type.
// Identity columns are populated by the storage layer and are not required.
type SchemaValidator struct{}

// Name implements port.Validator.
func (v *SchemaValidator) Name() string { return SchemaValidation }

// Validate implements port.Validator.
func (v *SchemaValidator) Validate(_ context.Context, ec *execution.Context, t *table.Table) (*model.ValidationResult, error) {
	r := model.NewValidationResult()
	defer r.Finalize()

	if t.IsEmpty() {
		r.AddIssue(emptyIssue())
		return r, nil
	}

	schema := ec.Schema()
	identity := map[string]bool{}
	for _, name := range schema.Identities() {
		identity[name] = true
	}

	var missing []string
	required := 0
	for _, col := range schema.Columns {
		if identity[col.Name] {
			continue
		}
		required++
		if !t.Has(col.Name) {
			missing = append(missing, col.Name)
		}
	}
	if len(missing) > 0 {
		r.AddIssue(model.Issue{
			Type:     "missing_columns",
			Message:  fmt.Sprintf("Missing required columns: %s", strings.Join(missing, ", ")),
			Severity: model.SeverityCritical,
			Details:  map[string]interface{}{"columns": missing},
		})
	} else {
		r.Pass()
	}
	if required > 0 {
		r.QualityMetrics["schema_coverage"] = 100 * float64(required-len(missing)) / float64(required)
	}

	for _, col := range schema.Columns {
		c := t.Col(col.Name)
		if c == nil {
			continue
		}
		if !compatible(c, config.ParseSQLType(col.Type)) {
			r.AddIssue(model.Issue{
				Type:     "type_mismatch",
				Message:  fmt.Sprintf("Column '%s' expected type %s, got %s", col.Name, col.Type, c.Kind()),
				Severity: model.SeverityWarning,
				Field:    col.Name,
				Details:  map[string]interface{}{"expected": col.Type, "actual": c.Kind().String()},
			})
			continue
		}
		r.Pass()
	}
	return r, nil
}

// compatible reports whether a column of c's kind can hold values of the SQL type.
// Unknown SQL types are accepted.
func compatible(c *table.Column, typ config.SQLType) bool {
	switch {
	case typ.IsInteger(), typ.IsDecimal():
		return c.IsNumeric()
	case typ.IsDate():
		return c.Kind() == table.KindTime
	case typ.IsText(), typ.IsUUID():
		return c.Kind() == table.KindString
	case typ.IsBool():
		return c.Kind() == table.KindBool || (c.IsNumeric() && onlyBinary(c))
	}
	return true
}

// onlyBinary reports whether every row of a numeric column holds 0 or 1.
func onlyBinary(c *table.Column) bool {
	for _, v := range c.Nums() {
		if v != 0 && v != 1 {
			return false
		}
	}
	return true
}

func emptyIssue() model.Issue {
	return model.Issue{Type: "empty_dataset", Message: "Dataset is empty", Severity: model.SeverityCritical}
}
