package executor_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/datafactory/pkg/etl/core/domain/model"
	"github.com/tigerroll/datafactory/pkg/etl/core/execution"
	"github.com/tigerroll/datafactory/pkg/etl/core/port"
	"github.com/tigerroll/datafactory/pkg/etl/core/table"
	"github.com/tigerroll/datafactory/pkg/etl/engine/executor"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
	etltest "github.com/tigerroll/datafactory/pkg/etl/test"
)

const inputPath = "raw/loan.csv"

type memSaver struct {
	saved map[string]*table.Table
	err   error
}

func (s *memSaver) Save(_ context.Context, t *table.Table, path string) error {
	if s.err != nil {
		return s.err
	}
	s.saved[path] = t.Clone()
	return nil
}

type memCache struct {
	entries map[string]*table.Table
	puts    []string
}

func (c *memCache) Get(dataset, step string) (*table.Table, bool) {
	t, ok := c.entries[dataset+"_"+step]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

func (c *memCache) Put(t *table.Table, dataset, step string) error {
	c.puts = append(c.puts, step)
	c.entries[dataset+"_"+step] = t.Clone()
	return nil
}

func (c *memCache) Clear(string) error { return nil }
func (c *memCache) DeleteAll() error   { return nil }

type recordingListener struct {
	before []string
	after  []model.StepExecution
}

func (l *recordingListener) BeforeStep(_ context.Context, se *model.StepExecution) {
	l.before = append(l.before, se.StepName)
}

func (l *recordingListener) AfterStep(_ context.Context, se *model.StepExecution) {
	l.after = append(l.after, *se)
}

// fakeStep adds delta to column "x" unless it fails or empties the table.
type fakeStep struct {
	name       string
	kind       port.StepKind
	delta      float64
	fail       bool
	empty      bool
	validation *model.ValidationResult
	panics     bool
	calls      int
}

func (s *fakeStep) Name() string        { return s.name }
func (s *fakeStep) Kind() port.StepKind { return s.kind }

func (s *fakeStep) Execute(_ context.Context, _ *execution.Context, t *table.Table) (model.Outcome, error) {
	s.calls++
	switch {
	case s.panics:
		panic("unexpected state")
	case s.fail:
		return model.Outcome{Table: t}, errors.New("strategy failed")
	case s.empty:
		return model.Outcome{Table: table.Empty()}, nil
	}
	out := t.Clone()
	c := out.Col("x")
	for i := 0; i < c.Len(); i++ {
		c.SetFloat(i, c.Float(i)+s.delta)
	}
	return model.Outcome{Table: out, Changes: c.Len(), Validation: s.validation}, nil
}

type fixture struct {
	ec     *execution.Context
	loader *etltest.StubLoader
	saver  *memSaver
	out    string
}

func newFixture(t *testing.T, params map[string]interface{}) *fixture {
	t.Helper()
	root := t.TempDir()
	provider := etltest.NewTestProvider(t, root, params, nil)
	return &fixture{
		ec: etltest.NewTestContext("Loan", provider),
		loader: &etltest.StubLoader{Tables: map[string]*table.Table{
			inputPath: table.MustNew(table.NewFloat("x", []float64{1, 2, 3})),
		}},
		saver: &memSaver{saved: map[string]*table.Table{}},
		out:   filepath.Join(root, "cooked", "Loan_cooked.csv"),
	}
}

func validation(pass int, score float64) *model.ValidationResult {
	r := model.NewValidationResult()
	r.ValidationPass = pass
	r.QualityScore = score
	return r
}

func TestExecute_RunsStepsInOrderAndSaves(t *testing.T) {
	f := newFixture(t, nil)
	listener := &recordingListener{}
	e := executor.New(f.loader, f.saver, executor.WithListeners(listener))
	e.AddStep(&fakeStep{name: "A", kind: port.KindCleaning, delta: 1}).
		AddStep(&fakeStep{name: "V1", kind: port.KindValidation, validation: validation(1, 80)}).
		AddStep(&fakeStep{name: "B", kind: port.KindFixing, delta: 10}).
		AddStep(&fakeStep{name: "V2", kind: port.KindValidation, validation: validation(2, 96)})
	require.Len(t, e.Steps(), 4)

	res := e.Execute(context.Background(), f.ec, inputPath, f.out)
	require.True(t, res.Success, "%v", res.Err)
	assert.NoError(t, res.Err)
	assert.Equal(t, []float64{12, 13, 14}, res.Table.Col("x").Nums())
	require.NotNil(t, res.Validation)
	assert.Equal(t, 2, res.Validation.ValidationPass)
	assert.Equal(t, 96.0, res.Validation.QualityScore)
	assert.Equal(t, []float64{12, 13, 14}, f.saver.saved[f.out].Col("x").Nums())

	assert.Equal(t, []string{"A", "V1", "B", "V2"}, listener.before)
	require.Len(t, listener.after, 4)
	for _, se := range listener.after {
		assert.Equal(t, model.StepCompleted, se.Status, se.StepName)
		assert.Equal(t, "Loan", se.Dataset)
		assert.NotEmpty(t, se.ID)
		assert.Equal(t, 3, se.RowsOut)
		assert.False(t, se.EndTime.Before(se.StartTime))
	}
	assert.Equal(t, string(port.KindFixing), listener.after[2].Kind)
	assert.Equal(t, 3, listener.after[2].Changes)
}

func TestExecute_LoadFailure(t *testing.T) {
	f := newFixture(t, nil)
	s := &fakeStep{name: "A", kind: port.KindCleaning}
	e := executor.New(f.loader, f.saver).AddStep(s)

	res := e.Execute(context.Background(), f.ec, "raw/missing.csv", f.out)
	assert.False(t, res.Success)
	assert.Nil(t, res.Table)
	assert.Error(t, res.Err)
	assert.Zero(t, s.calls)
	assert.Empty(t, f.saver.saved)
}

func TestExecute_EmptyStepResultAborts(t *testing.T) {
	f := newFixture(t, nil)
	listener := &recordingListener{}
	after := &fakeStep{name: "C", kind: port.KindFixing}
	e := executor.New(f.loader, f.saver, executor.WithListeners(listener)).
		AddStep(&fakeStep{name: "A", kind: port.KindCleaning, delta: 1}).
		AddStep(&fakeStep{name: "B", kind: port.KindTransformation, empty: true}).
		AddStep(after)

	res := e.Execute(context.Background(), f.ec, inputPath, f.out)
	assert.False(t, res.Success)
	assert.Nil(t, res.Table)
	assert.ErrorIs(t, res.Err, exception.ErrEmptyTable)
	assert.Zero(t, after.calls)
	assert.Empty(t, f.saver.saved)
	require.Len(t, listener.after, 2)
	assert.Equal(t, model.StepAborted, listener.after[1].Status)
}

func TestExecute_FailedStepContinuesWithItsInput(t *testing.T) {
	f := newFixture(t, nil)
	listener := &recordingListener{}
	e := executor.New(f.loader, f.saver, executor.WithListeners(listener)).
		AddStep(&fakeStep{name: "A", kind: port.KindCleaning, fail: true}).
		AddStep(&fakeStep{name: "B", kind: port.KindFixing, delta: 1})

	res := e.Execute(context.Background(), f.ec, inputPath, f.out)
	require.True(t, res.Success)
	assert.Equal(t, []float64{2, 3, 4}, res.Table.Col("x").Nums())
	assert.Equal(t, model.StepFailed, listener.after[0].Status)
	assert.Error(t, listener.after[0].Err)
	assert.Equal(t, model.StepCompleted, listener.after[1].Status)
}

func TestExecute_PanicBecomesFailure(t *testing.T) {
	f := newFixture(t, nil)
	e := executor.New(f.loader, f.saver).AddStep(&fakeStep{name: "A", kind: port.KindFixing, panics: true})

	res := e.Execute(context.Background(), f.ec, inputPath, f.out)
	assert.False(t, res.Success)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "unexpected state")
}

func TestExecute_SaveFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.saver.err = errors.New("disk full")
	e := executor.New(f.loader, f.saver).AddStep(&fakeStep{name: "A", kind: port.KindCleaning, delta: 1})

	res := e.Execute(context.Background(), f.ec, inputPath, f.out)
	assert.False(t, res.Success)
	assert.Contains(t, res.Err.Error(), "disk full")
	require.NotNil(t, res.Table)
	assert.Equal(t, []float64{2, 3, 4}, res.Table.Col("x").Nums())
}

func TestExecute_CacheHitSkipsStep(t *testing.T) {
	f := newFixture(t, nil)
	cache := &memCache{entries: map[string]*table.Table{
		"Loan_A": table.MustNew(table.NewFloat("x", []float64{100, 200, 300})),
	}}
	listener := &recordingListener{}
	cached := &fakeStep{name: "A", kind: port.KindCleaning, delta: 1}
	e := executor.New(f.loader, f.saver, executor.WithCache(cache), executor.WithListeners(listener)).
		AddStep(cached).
		AddStep(&fakeStep{name: "B", kind: port.KindFixing, delta: 1})

	res := e.Execute(context.Background(), f.ec, inputPath, f.out)
	require.True(t, res.Success)
	assert.Zero(t, cached.calls)
	assert.Equal(t, []float64{101, 201, 301}, res.Table.Col("x").Nums())
	assert.Equal(t, []string{"B"}, cache.puts)
	assert.Equal(t, model.StepCached, listener.after[0].Status)
	assert.Equal(t, []float64{101, 201, 301}, cache.entries["Loan_B"].Col("x").Nums())
}

type validationCache struct {
	*memCache
	results map[string]*model.ValidationResult
}

func (c *validationCache) GetValidation(dataset, step string) (*model.ValidationResult, bool) {
	r, ok := c.results[dataset+"_"+step]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

func (c *validationCache) PutValidation(r *model.ValidationResult, dataset, step string) error {
	cp := *r
	c.results[dataset+"_"+step] = &cp
	return nil
}

func TestExecute_ValidationStepCachedWithItsResult(t *testing.T) {
	f := newFixture(t, nil)
	cache := &validationCache{
		memCache: &memCache{entries: map[string]*table.Table{}},
		results:  map[string]*model.ValidationResult{},
	}
	check := &fakeStep{name: "DataValidation_Pre", kind: port.KindValidation, validation: validation(1, 72)}
	newExecutor := func() *executor.Executor {
		return executor.New(f.loader, f.saver, executor.WithCache(cache)).AddStep(check)
	}

	first := newExecutor().Execute(context.Background(), f.ec, inputPath, f.out)
	require.True(t, first.Success)
	require.Contains(t, cache.results, "Loan_DataValidation_Pre")

	second := newExecutor().Execute(context.Background(), f.ec, inputPath, f.out)
	require.True(t, second.Success)
	assert.Equal(t, 1, check.calls, "second run served from the cache")
	require.NotNil(t, second.Validation)
	assert.Equal(t, 72.0, second.Validation.QualityScore)
	assert.Equal(t, 1, second.Validation.ValidationPass)
}

func TestExecute_ValidationStepRunsWithoutCachedResult(t *testing.T) {
	f := newFixture(t, nil)
	cache := &memCache{entries: map[string]*table.Table{
		"Loan_DataValidation_Pre": table.MustNew(table.NewFloat("x", []float64{1, 2, 3})),
	}}
	check := &fakeStep{name: "DataValidation_Pre", kind: port.KindValidation, validation: validation(1, 90)}

	res := executor.New(f.loader, f.saver, executor.WithCache(cache)).AddStep(check).
		Execute(context.Background(), f.ec, inputPath, f.out)

	require.True(t, res.Success)
	assert.Equal(t, 1, check.calls)
	require.NotNil(t, res.Validation)
	assert.Equal(t, 90.0, res.Validation.QualityScore)
}

func TestExecute_Checkpoints(t *testing.T) {
	f := newFixture(t, map[string]interface{}{"checkpointing": true})
	e := executor.New(f.loader, f.saver).
		AddStep(&fakeStep{name: "DataCleaning", kind: port.KindCleaning, delta: 1}).
		AddStep(&fakeStep{name: "DataFixer", kind: port.KindFixing, delta: 1})

	res := e.Execute(context.Background(), f.ec, inputPath, f.out)
	require.True(t, res.Success)

	dir := filepath.Dir(f.out)
	cleaning := f.saver.saved[filepath.Join(dir, "Loan_cooked_DataCleaning_checkpoint.csv")]
	require.NotNil(t, cleaning)
	assert.Equal(t, []float64{2, 3, 4}, cleaning.Col("x").Nums())
	assert.Contains(t, f.saver.saved, filepath.Join(dir, "Loan_cooked_DataFixer_checkpoint.csv"))
	assert.Len(t, f.saver.saved, 3)
}

func TestExecute_CancelledContextStopsAtStepBoundary(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	second := &fakeStep{name: "B", kind: port.KindFixing}
	e := executor.New(f.loader, f.saver).
		AddStep(&cancellingStep{cancel: cancel}).
		AddStep(second)

	res := e.Execute(ctx, f.ec, inputPath, f.out)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Zero(t, second.calls)
}

type cancellingStep struct{ cancel context.CancelFunc }

func (s *cancellingStep) Name() string        { return "cancel" }
func (s *cancellingStep) Kind() port.StepKind { return port.KindCleaning }

func (s *cancellingStep) Execute(_ context.Context, _ *execution.Context, t *table.Table) (model.Outcome, error) {
	s.cancel()
	return model.Outcome{Table: t}, nil
}

func TestCheckpointPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "Macro_cooked_DataFixer_checkpoint.parquet"),
		executor.CheckpointPath(filepath.Join("out", "Macro_cooked.parquet"), "DataFixer"))
}
