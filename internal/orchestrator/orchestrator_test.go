package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	outingerrors "outing/internal/errors"
	"outing/internal/evaluator"
	"outing/internal/schema"
)

type stubPlanner struct {
	intent       *schema.NormalizedIntent
	normalizeErr error

	planFn      func(rtc *RuntimeContext) (*schema.ExecutableToolPlan, error)
	planCalls   int
	seenIntents []*schema.NormalizedIntent
	seenCtxs    []*RuntimeContext
}

func (p *stubPlanner) Normalize(_ context.Context, _ string) (*schema.NormalizedIntent, error) {
	if p.normalizeErr != nil {
		return nil, p.normalizeErr
	}
	return p.intent, nil
}

func (p *stubPlanner) Plan(_ context.Context, intent *schema.NormalizedIntent, rtc *RuntimeContext) (*schema.ExecutableToolPlan, error) {
	p.planCalls++
	p.seenIntents = append(p.seenIntents, intent)
	p.seenCtxs = append(p.seenCtxs, rtc)
	if p.planFn != nil {
		return p.planFn(rtc)
	}
	return &schema.ExecutableToolPlan{
		ToolCalls:       []schema.ToolCall{schema.NewSearchCall(schema.TextSearchArgs{Query: "stub"})},
		SelectionPolicy: map[string]any{"strategy": "llm"},
	}, nil
}

type stubExecutor struct {
	candidates []schema.CandidateVenue
	err        error

	calls     int
	seenPlans []*schema.ExecutableToolPlan
}

func (e *stubExecutor) Execute(_ context.Context, plan *schema.ExecutableToolPlan, _ *schema.NormalizedIntent) (*schema.Execution, error) {
	e.calls++
	e.seenPlans = append(e.seenPlans, plan)
	if e.err != nil {
		return nil, e.err
	}
	return &schema.Execution{Candidates: e.candidates}, nil
}

type stubEvaluator struct {
	fn    func(call int, minRating float64, candidates []schema.CandidateVenue) (*schema.EvaluationReport, []schema.ScoredCandidate, error)
	calls int
}

func (e *stubEvaluator) Evaluate(_ *schema.NormalizedIntent, candidates []schema.CandidateVenue, _ map[string]bool, minRating float64) (*schema.EvaluationReport, []schema.ScoredCandidate, error) {
	e.calls++
	return e.fn(e.calls, minRating, candidates)
}

func failingEvalReport() *schema.EvaluationReport {
	return &schema.EvaluationReport{
		OK:             false,
		HardViolations: []string{schema.ViolationNoCandidates},
		ReplanSuggestions: []string{
			schema.SuggestBroadenQueries,
			schema.SuggestExpandRadiusBias,
			schema.SuggestRelaxMinRating,
		},
	}
}

func testIntent() *schema.NormalizedIntent {
	return &schema.NormalizedIntent{
		ActivityType:     "tea house",
		City:             "Seattle",
		TimeWindow:       schema.TimeWindow{Day: "Sunday", StartLocal: "15:00", EndLocal: "18:00"},
		MaxTravelMinutes: 30,
		PartySize:        2,
		BudgetLevel:      schema.BudgetMedium,
		Preferences:      map[string]any{"quiet": true},
	}
}

func ratedVenue(id string, rating float64, reviews, price int, category string) schema.CandidateVenue {
	return schema.CandidateVenue{
		VenueID:          id,
		Name:             "Venue " + id,
		Category:         category,
		Address:          "1 Test St",
		Rating:           &rating,
		UserRatingsTotal: &reviews,
		PriceLevel:       &price,
	}
}

func TestRunSuccessAssemblesPlan(t *testing.T) {
	planner := &stubPlanner{intent: testIntent()}
	executor := &stubExecutor{candidates: []schema.CandidateVenue{
		ratedVenue("v1", 4.8, 1500, 3, "restaurant"),
		ratedVenue("v2", 4.2, 300, 1, "tea"),
		ratedVenue("v3", 4.5, 900, 2, "cafe"),
	}}
	orch := New(planner, executor, evaluator.New(nil))

	result := orch.Run(context.Background(), "quiet tea in Seattle", RunContext{})

	require.Equal(t, StatusOK, result.Status)
	require.NotEmpty(t, result.RequestID)
	require.Nil(t, result.Err)
	require.Equal(t, 1, result.Iterations)
	require.NotNil(t, result.Plan)
	require.Equal(t, "Venue v1", result.Plan.Primary.Name)
	require.Contains(t, result.Plan.Primary.Rationale, "Strong ratings signal")
	require.Contains(t, result.Plan.Primary.Rationale, "Popular spot with lots of reviews")
	// Three candidates, num_backups defaults to 3: both non-primary venues
	// become backups.
	require.Len(t, result.Plan.Backups, 2)
	require.Equal(t, schema.Schedule{ArriveAt: "15:00", LeaveAt: "18:00"}, result.Plan.Schedule)
	require.NotEmpty(t, result.Plan.Tips)
	require.NotEmpty(t, result.Plan.Assumptions)
	require.NotNil(t, result.Cost)
}

func TestRunScheduleDefaults(t *testing.T) {
	intent := testIntent()
	intent.TimeWindow = schema.TimeWindow{}
	planner := &stubPlanner{intent: intent}
	executor := &stubExecutor{candidates: []schema.CandidateVenue{
		ratedVenue("v1", 4.8, 1500, 2, "cafe"),
	}}
	orch := New(planner, executor, evaluator.New(nil))

	result := orch.Run(context.Background(), "anything", RunContext{})

	require.Equal(t, StatusOK, result.Status)
	require.Equal(t, schema.Schedule{ArriveAt: "14:00", LeaveAt: "17:00"}, result.Plan.Schedule)
}

func TestRunNormalizeFailureIsFatal(t *testing.T) {
	planner := &stubPlanner{normalizeErr: errors.New("401 authentication failed")}
	executor := &stubExecutor{}
	orch := New(planner, executor, evaluator.New(nil))

	result := orch.Run(context.Background(), "prompt", RunContext{})

	require.Equal(t, StatusError, result.Status)
	require.NotNil(t, result.Err)
	require.Equal(t, outingerrors.CodeAPIAuth, result.Err.Code)
	require.Equal(t, result.RequestID, result.Err.RequestID)
	require.Zero(t, executor.calls)
}

func TestRunIterationBudget(t *testing.T) {
	planner := &stubPlanner{intent: testIntent()}
	executor := &stubExecutor{candidates: []schema.CandidateVenue{
		ratedVenue("v1", 3.0, 100, 2, "cafe"),
	}}
	eval := &stubEvaluator{fn: func(int, float64, []schema.CandidateVenue) (*schema.EvaluationReport, []schema.ScoredCandidate, error) {
		return failingEvalReport(), nil, nil
	}}
	orch := New(planner, executor, eval)

	result := orch.Run(context.Background(), "prompt", RunContext{MaxIterations: 2})

	require.Equal(t, StatusNoResult, result.Status)
	require.Nil(t, result.Plan)
	require.Equal(t, 2, result.Iterations)
	require.Equal(t, 2, planner.planCalls)
	require.Equal(t, 2, executor.calls)
	require.NotNil(t, result.EvalReport)
	require.False(t, result.EvalReport.OK)
	require.Len(t, result.Candidates, 1)
}

func TestRunRelaxesMinRatingWithinIteration(t *testing.T) {
	// Every candidate is rated 3.5, below the 4.0 default. The first
	// evaluation fails, the threshold relaxes to 3.5 and the re-evaluation
	// succeeds without consuming a second iteration.
	planner := &stubPlanner{intent: testIntent()}
	executor := &stubExecutor{candidates: []schema.CandidateVenue{
		ratedVenue("v1", 3.5, 400, 2, "cafe"),
		ratedVenue("v2", 3.5, 200, 2, "cafe"),
	}}
	orch := New(planner, executor, evaluator.New(nil))

	result := orch.Run(context.Background(), "prompt", RunContext{MaxIterations: 3})

	require.Equal(t, StatusOK, result.Status)
	require.Equal(t, 1, result.Iterations)
	require.Equal(t, 1, planner.planCalls)
	require.Equal(t, 1, executor.calls)
	require.Len(t, result.Ranked, 2)
}

func TestRunRelaxationStopsAtFloor(t *testing.T) {
	planner := &stubPlanner{intent: testIntent()}
	executor := &stubExecutor{candidates: []schema.CandidateVenue{
		ratedVenue("v1", 1.0, 100, 2, "cafe"),
	}}
	var thresholds []float64
	eval := &stubEvaluator{fn: func(_ int, minRating float64, _ []schema.CandidateVenue) (*schema.EvaluationReport, []schema.ScoredCandidate, error) {
		thresholds = append(thresholds, minRating)
		return failingEvalReport(), nil, nil
	}}
	orch := New(planner, executor, eval)

	result := orch.Run(context.Background(), "prompt", RunContext{MaxIterations: 6})

	require.Equal(t, StatusNoResult, result.Status)
	// One relaxation step per iteration, 4.0 down to the 2.0 floor; once the
	// floor is reached there is no in-iteration re-evaluation.
	require.Equal(t, []float64{
		4.0, 3.5,
		3.5, 3.0,
		3.0, 2.5,
		2.5, 2.0,
		2.0,
		2.0,
	}, thresholds)
}

func TestRunFallbackPlanOnPlannerFailure(t *testing.T) {
	planner := &stubPlanner{
		intent: testIntent(),
		planFn: func(*RuntimeContext) (*schema.ExecutableToolPlan, error) {
			return nil, errors.New("llm timeout")
		},
	}
	executor := &stubExecutor{candidates: []schema.CandidateVenue{
		ratedVenue("v1", 4.6, 800, 2, "tea"),
	}}
	orch := New(planner, executor, evaluator.New(nil))

	result := orch.Run(context.Background(), "prompt", RunContext{})

	require.Equal(t, StatusOK, result.Status)
	require.True(t, result.Executable.IsFallback())
	require.Len(t, result.Executable.ToolCalls, 1)
	call := result.Executable.ToolCalls[0]
	require.Equal(t, schema.ToolSearch, call.Tool)
	require.NotNil(t, call.Search)
	require.Contains(t, call.Search.Query, "Seattle")
	require.Contains(t, call.Search.Query, "tea house")
	require.Equal(t, 10, call.Search.MaxResults)
}

func TestRunDegradesOnExecutorFailure(t *testing.T) {
	planner := &stubPlanner{intent: testIntent()}
	executor := &stubExecutor{err: errors.New("connection refused")}
	orch := New(planner, executor, evaluator.New(nil))

	result := orch.Run(context.Background(), "prompt", RunContext{MaxIterations: 2})

	require.Equal(t, StatusNoResult, result.Status)
	require.Empty(t, result.Candidates)
	require.NotNil(t, result.EvalReport)
	require.Contains(t, result.EvalReport.HardViolations, schema.ViolationNoCandidates)
}

func TestRunDegradesOnEvaluatorFailure(t *testing.T) {
	planner := &stubPlanner{intent: testIntent()}
	executor := &stubExecutor{candidates: []schema.CandidateVenue{
		ratedVenue("v1", 4.8, 1500, 2, "cafe"),
	}}
	eval := &stubEvaluator{fn: func(int, float64, []schema.CandidateVenue) (*schema.EvaluationReport, []schema.ScoredCandidate, error) {
		return nil, nil, errors.New("scoring blew up")
	}}
	orch := New(planner, executor, eval)

	result := orch.Run(context.Background(), "prompt", RunContext{MaxIterations: 2})

	// A degraded evaluation never satisfies the success condition.
	require.Equal(t, StatusNoResult, result.Status)
	require.Nil(t, result.EvalReport)
	require.Len(t, result.Candidates, 1)
}

func TestRunReplanExpandsTravelRadius(t *testing.T) {
	original := testIntent()
	planner := &stubPlanner{intent: original}
	executor := &stubExecutor{candidates: []schema.CandidateVenue{
		ratedVenue("v1", 3.0, 100, 2, "cafe"),
	}}
	eval := &stubEvaluator{fn: func(int, float64, []schema.CandidateVenue) (*schema.EvaluationReport, []schema.ScoredCandidate, error) {
		return failingEvalReport(), nil, nil
	}}
	orch := New(planner, executor, eval, WithMinRating(2.0))

	result := orch.Run(context.Background(), "prompt", RunContext{MaxIterations: 3})

	require.Equal(t, StatusNoResult, result.Status)
	require.Len(t, planner.seenIntents, 3)
	require.Equal(t, 30, planner.seenIntents[0].MaxTravelMinutes)
	require.Equal(t, 40, planner.seenIntents[1].MaxTravelMinutes)
	require.Equal(t, 50, planner.seenIntents[2].MaxTravelMinutes)
	// Replanning is copy-on-write; the caller's intent is untouched.
	require.Equal(t, 30, original.MaxTravelMinutes)
}

func TestRunTravelRadiusCeiling(t *testing.T) {
	intent := testIntent()
	intent.MaxTravelMinutes = 55
	planner := &stubPlanner{intent: intent}
	executor := &stubExecutor{}
	eval := &stubEvaluator{fn: func(int, float64, []schema.CandidateVenue) (*schema.EvaluationReport, []schema.ScoredCandidate, error) {
		return failingEvalReport(), nil, nil
	}}
	orch := New(planner, executor, eval, WithMinRating(2.0))

	orch.Run(context.Background(), "prompt", RunContext{MaxIterations: 3})

	require.Equal(t, 60, planner.seenIntents[1].MaxTravelMinutes)
	require.Equal(t, 60, planner.seenIntents[2].MaxTravelMinutes)
}

func TestRunRejectedOptionsReachPlannerAndEvaluator(t *testing.T) {
	planner := &stubPlanner{intent: testIntent()}
	executor := &stubExecutor{candidates: []schema.CandidateVenue{
		ratedVenue("rejected", 4.9, 2000, 2, "cafe"),
		ratedVenue("kept", 4.5, 500, 2, "cafe"),
	}}
	orch := New(planner, executor, evaluator.New(nil))
	orch.RejectOption("rejected")
	orch.SetPreferenceSignal("vibe", "quiet")

	result := orch.Run(context.Background(), "prompt", RunContext{})

	require.Equal(t, StatusOK, result.Status)
	require.Equal(t, []string{"rejected"}, planner.seenCtxs[0].RejectedOptions)
	require.Equal(t, "quiet", planner.seenCtxs[0].PreferenceSignals["vibe"])
	require.Len(t, result.Ranked, 1)
	require.Equal(t, "kept", result.Ranked[0].Venue.VenueID)
}

func TestRunRecoversFromPanic(t *testing.T) {
	planner := &stubPlanner{intent: testIntent()}
	executor := &stubExecutor{candidates: []schema.CandidateVenue{
		ratedVenue("v1", 4.8, 1500, 2, "cafe"),
	}}
	eval := &stubEvaluator{fn: func(int, float64, []schema.CandidateVenue) (*schema.EvaluationReport, []schema.ScoredCandidate, error) {
		panic("boom")
	}}
	orch := New(planner, executor, eval)

	result := orch.Run(context.Background(), "prompt", RunContext{})

	require.Equal(t, StatusError, result.Status)
	require.NotNil(t, result.Err)
	require.Equal(t, outingerrors.CodeInternal, result.Err.Code)
	require.Equal(t, result.RequestID, result.Err.RequestID)
}

type reportingPlanner struct{ stubPlanner }

func (p *reportingPlanner) LLMUsage() LLMUsage {
	return LLMUsage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120, CostUSD: 0.0005}
}

type countingExecutor struct{ stubExecutor }

func (e *countingExecutor) APICallCount() int { return 3 }

func TestRunCostSummaryFromReporters(t *testing.T) {
	planner := &reportingPlanner{stubPlanner: stubPlanner{intent: testIntent()}}
	executor := &countingExecutor{stubExecutor: stubExecutor{candidates: []schema.CandidateVenue{
		ratedVenue("v1", 4.8, 1500, 2, "cafe"),
	}}}
	orch := New(planner, executor, evaluator.New(nil))

	result := orch.Run(context.Background(), "prompt", RunContext{})

	require.Equal(t, StatusOK, result.Status)
	require.Equal(t, 120, result.Cost.LLM.TotalTokens)
	require.Equal(t, 3, result.Cost.Places.APICalls)
	require.InDelta(t, 0.051, result.Cost.Places.CostUSD, 1e-9)
	require.InDelta(t, 0.0515, result.Cost.TotalCostUSD, 1e-9)
}

func TestFallbackPlanQuery(t *testing.T) {
	plan := FallbackPlan(&schema.NormalizedIntent{ActivityType: "board game cafe", City: "Portland"})

	require.True(t, plan.IsFallback())
	require.Equal(t, "Generated by fallback rule engine (LLM unavailable)", plan.Notes)
	require.Equal(t, "board game cafe in Portland", plan.ToolCalls[0].Search.Query)
}
