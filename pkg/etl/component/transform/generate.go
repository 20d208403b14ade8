package transform

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/tigerroll/datafactory/pkg/etl/core/config"
	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/port"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
)

// fieldDomains is searched in order; the first pattern contained in a field name wins.
var fieldDomains = []struct {
	domain   string
	patterns []string
}{
	{"price", []string{"price", "amount", "cost", "value", "fee", "balance"}},
	{"percentage", []string{"rate", "percent", "ratio", "yield", "return", "interest", "discount"}},
	{"currency", []string{"currency", "curr", "iso_code"}},
	{"transaction", []string{"transaction"}},
	{"market", []string{"market", "exchange", "index", "ticker", "symbol"}},
	{"stock", []string{"open", "close", "high", "low", "volume", "adj"}},
	{"volatility", []string{"volatility", "deviation", "var", "risk"}},
	{"risk", []string{"risk", "score", "rating", "grade", "level"}},
	{"probability", []string{"probability", "likelihood", "chance"}},
	{"status", []string{"status", "state", "flag", "indicator"}},
	{"date", []string{"date", "time", "day", "month", "year", "quarter"}},
	{"person", []string{"name", "customer", "client", "user", "person"}},
	{"contact", []string{"email", "phone", "address", "contact"}},
	{"id", []string{"id", "key", "code", "number", "no", "uuid", "guid"}},
	{"category", []string{"category", "type", "class", "group", "segment"}},
}

const genericDomain = "generic"

var (
	firstNames   = []string{"John", "Emma", "Michael", "Sophia", "William", "Olivia", "James", "Ava", "Robert", "Isabella"}
	lastNames    = []string{"Smith", "Johnson", "Williams", "Jones", "Brown", "Davis", "Miller", "Wilson", "Taylor", "Anderson"}
	statuses     = []string{"On Time", "Late", "Defaulted"}
	categories   = []string{"Corporate", "Personal", "Checking", "Savings", "Investment", "Fund"}
	transactions = []string{"Deposit", "Withdrawal", "Transfer", "Payment", "Refund"}

	// Business hours 9..16 weighted toward midday.
	transactionHourWeights = []float64{0.1, 0.15, 0.15, 0.2, 0.15, 0.1, 0.1, 0.05}

	idFieldPattern = regexp.MustCompile(`(?i)id$`)
)

// DataGenerationStrategy fills the columns left pending by the schema mapping with values
// shaped by their SQL type and the domain inferred from their name, then restores
// relations between generated fields and dataset-specific key uniqueness.
type DataGenerationStrategy struct {
	loader port.Loader
}

// NewDataGenerationStrategy returns a generator reading cooked outputs through loader.
func NewDataGenerationStrategy(loader port.Loader) *DataGenerationStrategy {
	return &DataGenerationStrategy{loader: loader}
}

func (s *DataGenerationStrategy) Name() string { return DataGeneration }

func (s *DataGenerationStrategy) Apply(ctx context.Context, ec *execution.Context, t *table.Table) (model.Outcome, error) {
	if t.IsEmpty() {
		return model.Outcome{Table: t}, nil
	}
	if len(ec.PendingFields) == 0 {
		ec.Log.Infof("No fields marked for synthetic data generation")
		return model.Outcome{Table: t}, nil
	}
	schema := ec.Schema()
	if schema.IsEmpty() {
		ec.Log.Warnf("No schema found for dataset %s", ec.Dataset)
		return model.Outcome{Table: t}, nil
	}

	out := t.Clone()
	g := &generator{
		ec:  ec,
		rnd: ec.Rand,
		src: randSource{ec.Rand},
		ids: func(field string) []float64 { return s.existingIDs(ctx, ec, field) },
	}
	generated := 0
	for _, field := range ec.PendingFields {
		raw, ok := schema.TypeOf(field)
		if !ok {
			ec.Log.Warnf("Field %s not found in schema, skipping generation", field)
			continue
		}
		domain := inferDomain(ec, field)
		ec.Log.Debugf("Generating data for %s (%s, domain: %s)", field, raw, domain)
		if err := out.Set(g.generate(out.NumRows(), field, parseType(ec, raw), domain)); err != nil {
			return model.Outcome{}, err
		}
		generated++
	}

	changes := generated + relateFields(ec, out)
	out, removed := EnsureUnique(ec, out)
	return model.Outcome{Table: out, Changes: changes + removed}, nil
}

func inferDomain(ec *execution.Context, field string) string {
	return execution.Remember(ec.Memo, "domain:"+field, func() string {
		lower := strings.ToLower(field)
		for _, d := range fieldDomains {
			for _, p := range d.patterns {
				if strings.Contains(lower, p) {
					return d.domain
				}
			}
		}
		return genericDomain
	})
}

// existingIDs returns ID values written by other datasets of this run for field.
func (s *DataGenerationStrategy) existingIDs(ctx context.Context, ec *execution.Context, field string) []float64 {
	engine := ec.Engine()
	if !engine.MaintainIDRelationships || s.loader == nil {
		return nil
	}
	if len(engine.IDRelationshipFields) > 0 && !slices.Contains(engine.IDRelationshipFields, field) {
		return nil
	}
	exclude := fmt.Sprintf("%s_cooked.%s", ec.Dataset, engine.OutputFormat)
	values, err := ec.Shared.IDs.Lookup(engine.OutputDir, field, exclude, s.scanner(ctx, ec))
	if err != nil {
		ec.Log.Warnf("Error building ID field inventory: %v", err)
	}
	return values
}

// scanner collects the non-zero values of ID columns from every cooked file in a directory.
func (s *DataGenerationStrategy) scanner(ctx context.Context, ec *execution.Context) execution.IDScanner {
	return func(dir string) (map[string][]execution.IDSource, error) {
		ec.Log.Infof("Building ID field inventory from %s", dir)
		paths, err := filepath.Glob(filepath.Join(dir, "*_cooked.*"))
		if err != nil {
			return nil, err
		}
		relationship := ec.Engine().IDRelationshipFields
		found := map[string][]execution.IDSource{}
		for _, path := range paths {
			t, err := s.loader.Load(ctx, path)
			if err != nil {
				ec.Log.Warnf("Error processing %s for ID inventory: %v", path, err)
				continue
			}
			for _, c := range t.Columns() {
				if !c.IsNumeric() || !(slices.Contains(relationship, c.Name()) || idFieldPattern.MatchString(c.Name())) {
					continue
				}
				var values []float64
				seen := map[float64]bool{}
				for _, v := range c.NonNull() {
					if v != 0 && !seen[v] {
						seen[v] = true
						values = append(values, v)
					}
				}
				if len(values) > 0 {
					found[c.Name()] = append(found[c.Name()], execution.IDSource{Source: filepath.Base(path), Values: values})
					ec.Log.Debugf("Found %d unique %s values in %s", len(values), c.Name(), filepath.Base(path))
				}
			}
		}
		if len(found) > 0 {
			ec.Log.Infof("ID field inventory built with %d fields", len(found))
		}
		return found, nil
	}
}

// randSource feeds the dataset's seeded generator to gonum distributions.
type randSource struct{ r *rand.Rand }

func (s randSource) Uint64() uint64   { return s.r.Uint64() }
func (s randSource) Seed(seed uint64) { s.r.Seed(int64(seed)) }

type generator struct {
	ec  *execution.Context
	rnd *rand.Rand
	src randSource
	ids func(field string) []float64

	// highs remembers generated highest values so lows can follow them.
	highs []float64
}

func (g *generator) generate(n int, field string, t config.SQLType, domain string) *table.Column {
	switch {
	case t.IsUUID():
		vals := make([]string, n)
		for i := range vals {
			vals[i] = uuid.NewString()
		}
		return table.NewString(field, vals, nil)
	case t.IsText():
		return g.text(n, field, t, domain)
	case t.IsInteger():
		return g.integer(n, field, domain)
	case t.IsDecimal():
		return g.decimal(n, field, t, domain)
	case t.IsDateTime():
		return g.datetime(n, field)
	case t.IsDate():
		return table.NewTime(field, g.dates(n, field), nil)
	case t.IsBool():
		return g.boolean(n, field)
	default:
		g.ec.Log.Warnf("Unknown SQL type: %s, using generic generation", t.Base)
		vals := make([]string, n)
		for i := range vals {
			vals[i] = fmt.Sprintf("%s_%d", field, i)
		}
		return table.NewString(field, vals, nil)
	}
}

// between returns an integer in [lo, hi).
func (g *generator) between(lo, hi int) int { return lo + g.rnd.Intn(hi-lo) }

func (g *generator) choice(options []string) string { return options[g.rnd.Intn(len(options))] }

func (g *generator) text(n int, field string, t config.SQLType, domain string) *table.Column {
	maxLength := 50
	if t.Length > 0 {
		maxLength = t.Length
	}
	lower := strings.ToLower(field)
	vals := make([]string, n)
	for i := range vals {
		switch {
		case field == "AccountID" || (strings.HasSuffix(lower, "id") && strings.Contains(lower, "account")):
			vals[i] = g.accountID()
		case domain == "currency":
			vals[i] = "USD"
		case domain == "market":
			vals[i] = "NASDAQ"
		case domain == "status":
			vals[i] = g.choice(statuses)
		case domain == "category":
			vals[i] = g.choice(categories)
		case domain == "transaction":
			vals[i] = g.choice(transactions)
		case domain == "id":
			prefix := field
			if r := []rune(field); len(r) > 3 {
				prefix = string(r[:3])
			}
			vals[i] = fmt.Sprintf("%s%d", cases.Upper(language.Und).String(prefix), g.between(100000, 999999))
		case domain == "person":
			if maxLength < 15 {
				vals[i] = g.choice(lastNames)
			} else {
				vals[i] = g.choice(firstNames) + " " + g.choice(lastNames)
			}
		default:
			vals[i] = g.word(maxLength)
		}
		vals[i] = truncate(vals[i], t.Length)
	}
	return table.NewString(field, vals, nil)
}

func (g *generator) word(maxLength int) string {
	var b strings.Builder
	b.WriteByte(byte('A' + g.rnd.Intn(26)))
	for j := 0; j < min(maxLength-1, g.between(3, 10)); j++ {
		b.WriteByte(byte('a' + g.rnd.Intn(26)))
	}
	return b.String()
}

// accountID draws "ACC" followed by six digits until one not yet claimed in this run appears.
func (g *generator) accountID() string {
	for {
		id := fmt.Sprintf("ACC%06d", g.between(100000, 1000000))
		if g.ec.Shared.Accounts.Claim(id) {
			return id
		}
	}
}

func (g *generator) integer(n int, field, domain string) *table.Column {
	lower := strings.ToLower(field)
	vals := make([]float64, n)
	switch {
	case domain == "id" || strings.HasSuffix(lower, "id"):
		if existing := g.ids(field); len(existing) > 0 {
			g.ec.Log.Debugf("Reusing existing %s values from other datasets", field)
			if len(existing) >= n {
				for i, j := range g.rnd.Perm(len(existing))[:n] {
					vals[i] = existing[j]
				}
			} else {
				for i := range vals {
					vals[i] = existing[g.rnd.Intn(len(existing))]
				}
			}
			break
		}
		start := g.between(1000, 9999)
		for i := range vals {
			vals[i] = float64(start + i)
		}
	case domain == "stock" && strings.Contains(lower, "volume"):
		d := distuv.LogNormal{Mu: 10, Sigma: 1, Src: g.src}
		for i := range vals {
			vals[i] = math.Trunc(d.Rand())
		}
	case containsAny(lower, "count", "num", "qty"):
		// Geometric(p=0.2) on 1, 2, ... as the ceiling of an exponential.
		d := distuv.Exponential{Rate: -math.Log(1 - 0.2), Src: g.src}
		for i := range vals {
			vals[i] = math.Floor(d.Rand()) + 1
		}
	case domain == "risk" || strings.Contains(lower, "score"):
		if strings.Contains(lower, "percent") {
			d := distuv.Normal{Mu: 70, Sigma: 15, Src: g.src}
			for i := range vals {
				vals[i] = math.Trunc(clamp(d.Rand(), 0, 100))
			}
		} else {
			d := distuv.Normal{Mu: 5, Sigma: 2, Src: g.src}
			for i := range vals {
				vals[i] = math.RoundToEven(clamp(d.Rand(), 1, 10))
			}
		}
	default:
		for i := range vals {
			vals[i] = float64(g.between(1, 1000))
		}
	}
	return table.NewInt(field, vals)
}

func (g *generator) decimal(n int, field string, t config.SQLType, domain string) *table.Column {
	scale := 2
	if t.HasScale {
		scale = t.Scale
	}
	lower := strings.ToLower(field)
	if containsAny(lower, "ratio", "rate", "percent") {
		scale = min(scale, 2)
	}
	if field == "GDP" {
		vals := make([]float64, n)
		for i := range vals {
			vals[i] = float64(g.between(100000, 10000000))
		}
		return table.NewInt(field, vals)
	}

	var sample func() float64
	rounded := true
	switch {
	case domain == "price" && strings.Contains(lower, "price"):
		sample = distuv.LogNormal{Mu: 4, Sigma: 0.5, Src: g.src}.Rand
	case domain == "price":
		sample = distuv.LogNormal{Mu: 6, Sigma: 1.2, Src: g.src}.Rand
	case domain == "stock" && strings.Contains(lower, "high"):
		d := distuv.LogNormal{Mu: 4, Sigma: 0.5, Src: g.src}
		g.highs = make([]float64, n)
		for i := range g.highs {
			g.highs[i] = d.Rand()
		}
		return table.NewFloat(field, roundedCopy(g.highs, scale))
	case domain == "stock" && strings.Contains(lower, "low") && len(g.highs) == n:
		discount := distuv.Uniform{Min: 0.01, Max: 0.15, Src: g.src}
		vals := make([]float64, n)
		for i := range vals {
			vals[i] = g.highs[i] * (1 - discount.Rand())
		}
		return table.NewFloat(field, roundedCopy(vals, scale))
	case domain == "percentage" && strings.Contains(lower, "ratio"):
		sample = distuv.Beta{Alpha: 2, Beta: 5, Src: g.src}.Rand
	case domain == "percentage":
		d := distuv.Beta{Alpha: 2, Beta: 5, Src: g.src}
		sample = func() float64 { return d.Rand() * 100 }
	case domain == "risk" || domain == "volatility":
		d := distuv.Normal{Mu: 0.05, Sigma: 0.02, Src: g.src}
		sample = func() float64 { return math.Abs(d.Rand()) }
	case strings.Contains(lower, "interestrate"):
		// Interest rates stay within 1..30 percent, skewed low.
		d := distuv.Beta{Alpha: 2, Beta: 5, Src: g.src}
		sample = func() float64 { return d.Rand()*29 + 1 }
		rounded = false
	default:
		sample = distuv.Uniform{Min: 0, Max: 100, Src: g.src}.Rand
	}
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = sample()
	}
	if rounded {
		vals = roundedCopy(vals, scale)
	}
	return table.NewFloat(field, vals)
}

// dates generates calendar dates relative to the run clock.
func (g *generator) dates(n int, field string) []time.Time {
	now := g.ec.Now()
	today := dateOf(now.Year(), now.Month(), now.Day())
	lower := strings.ToLower(field)
	out := make([]time.Time, n)
	switch {
	case containsAny(lower, "date", "created", "transaction"):
		// Recent dates are more common; nothing older than two years.
		d := distuv.Exponential{Rate: 1.0 / 180, Src: g.src}
		for i := range out {
			out[i] = today.AddDate(0, 0, -min(int(d.Rand()), 365*2))
		}
	case containsAny(lower, "maturity", "expiry", "due"):
		for i := range out {
			out[i] = today.AddDate(0, 0, g.between(365, 365*10))
		}
	case containsAny(lower, "report", "as_of"):
		start := today.AddDate(0, 0, -365*5)
		for i := range out {
			first := dateOf(start.Year(), start.Month()+time.Month(g.rnd.Intn(60)), 1)
			out[i] = first.AddDate(0, 1, -1)
		}
	default:
		start := today.AddDate(0, 0, -365*5)
		span := int(today.Sub(start).Hours() / 24)
		for i := range out {
			out[i] = start.AddDate(0, 0, g.rnd.Intn(span))
		}
	}
	return out
}

func (g *generator) datetime(n int, field string) *table.Column {
	days := g.dates(n, field)
	lower := strings.ToLower(field)
	business := containsAny(lower, "transaction", "timestamp")
	hours := distuv.NewCategorical(transactionHourWeights, g.src)
	out := make([]time.Time, n)
	for i, d := range days {
		hour := g.rnd.Intn(24)
		if business {
			hour = 9 + int(hours.Rand())
		}
		out[i] = time.Date(d.Year(), d.Month(), d.Day(), hour, g.rnd.Intn(60), g.rnd.Intn(60), 0, time.UTC)
	}
	return table.NewTime(field, out, nil)
}

func (g *generator) boolean(n int, field string) *table.Column {
	lower := strings.ToLower(field)
	p := 0.5
	switch {
	case containsAny(lower, "active", "valid", "available"):
		p = 0.8
	case containsAny(lower, "deleted", "failed", "error"):
		p = 0.1
	case containsAny(lower, "verified", "premium"):
		p = 0.4
	case strings.Contains(lower, "flag"):
		p = 0.2
	}
	d := distuv.Bernoulli{P: p, Src: g.src}
	vals := make([]bool, n)
	for i := range vals {
		vals[i] = d.Rand() == 1
	}
	return table.NewBool(field, vals, nil)
}

func dateOf(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func roundedCopy(vals []float64, places int) []float64 {
	out := append([]float64(nil), vals...)
	roundAll(out, places)
	return out
}

func clamp(v, lo, hi float64) float64 { return math.Max(lo, math.Min(hi, v)) }

func containsAny(s string, parts ...string) bool {
	for _, p := range parts {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
