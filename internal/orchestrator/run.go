package orchestrator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"outing/internal/logging"
	"outing/internal/schema"
)

const (
	defaultMinRating = 4.0
	relaxStep        = 0.5
	relaxFloor       = 2.0

	maxTravelCeiling   = 60
	travelExpandStep   = 10
	fallbackMaxResults = 10
)

// Run executes one full recommendation flow for a user prompt:
// normalize -> (plan -> execute -> evaluate -> replan)* -> assemble.
//
// Every outcome is a structured Result; panics and collaborator failures
// are classified, never re-raised. Plan failures fall back to a rule-based
// plan, execute failures degrade to an empty candidate set, and evaluate
// failures degrade to an unscored pass-through ranking. Only normalize
// failures are fatal.
func (o *Orchestrator) Run(ctx context.Context, userPrompt string, rc RunContext) (result *Result) {
	rc = rc.withDefaults()
	requestID := uuid.NewString()
	start := time.Now()
	logger := o.logger.With("request_id", requestID)

	o.metrics.IncActiveRequests()
	defer o.metrics.DecActiveRequests()

	defer func() {
		if p := recover(); p != nil {
			resp := o.policy.Classify(fmt.Errorf("orchestration panic: %v", p),
				map[string]any{"operation": "orchestrate"}, requestID)
			logger.Error("orchestration panicked", "panic", p, "code", resp.Code)
			o.metrics.RecordError(string(resp.Code))
			o.metrics.ObserveRequest(string(StatusError), time.Since(start))
			result = &Result{Status: StatusError, RequestID: requestID, Err: resp}
		}
	}()

	// The session lock spans the whole run: rejected options and preference
	// signals are read each iteration and must not change mid-run.
	o.mu.Lock()
	defer o.mu.Unlock()

	logger.Info("starting orchestration",
		"prompt_length", len(userPrompt),
		"max_iterations", rc.MaxIterations,
		"max_tool_calls", rc.MaxToolCalls)

	intent, err := o.planner.Normalize(ctx, userPrompt)
	if err != nil {
		resp := o.policy.Classify(err, map[string]any{"operation": "normalize"}, requestID)
		logger.Error("intent normalization failed", "code", resp.Code)
		o.metrics.RecordError(string(resp.Code))
		o.metrics.ObserveRequest(string(StatusError), time.Since(start))
		return &Result{Status: StatusError, RequestID: requestID, Err: resp}
	}
	logger.Info("intent normalized",
		"city", intent.City,
		"activity_type", intent.ActivityType,
		"party_size", intent.PartySize,
		"budget_level", intent.BudgetLevel)

	minRating := o.minRating

	var (
		lastEval       *schema.EvaluationReport
		lastCandidates []schema.CandidateVenue
	)

	for it := 1; it <= rc.MaxIterations; it++ {
		iterLog := logger.With("iteration", it)
		rtc := &RuntimeContext{
			Iteration:         it,
			MaxToolCalls:      rc.MaxToolCalls,
			RejectedOptions:   o.rejectedIDsLocked(),
			PreferenceSignals: o.preferenceSignalsLocked(),
			LastEval:          lastEval,
		}

		executable, err := o.planner.Plan(ctx, intent, rtc)
		if err != nil {
			iterLog.Warn("plan generation failed, using rule-based fallback", "error", err)
			executable = FallbackPlan(intent)
		}

		execution, err := o.executor.Execute(ctx, executable, intent)
		if err != nil {
			iterLog.Warn("tool execution failed, degrading to empty candidate set", "error", err)
			execution = &schema.Execution{}
		}
		candidates := execution.Candidates
		lastCandidates = candidates
		iterLog.Info("tool execution completed", "candidates", len(candidates))

		report, ranked := o.evaluate(intent, candidates, minRating, iterLog)
		if report != nil {
			lastEval = report
		}

		// One relaxation step per iteration: when nothing passes the hard
		// constraints, lower the rating threshold by 0.5 (floor 2.0) and
		// re-evaluate the same candidates without spending an iteration.
		if report != nil && !report.OK && minRating > relaxFloor &&
			hasViolation(report, schema.ViolationNoCandidates) {
			relaxed := math.Max(minRating-relaxStep, relaxFloor)
			iterLog.Info("no candidates passed, relaxing rating threshold",
				"min_rating", minRating, "relaxed_to", relaxed)
			minRating = relaxed
			report, ranked = o.evaluate(intent, candidates, minRating, iterLog)
			if report != nil {
				lastEval = report
			}
		}

		if report != nil && report.OK {
			plan := assemble(intent, ranked)
			iterLog.Info("orchestration completed",
				"primary", plan.Primary.Name,
				"backups", len(plan.Backups),
				"duration_ms", time.Since(start).Milliseconds())
			o.metrics.ObserveIterations(it)
			o.metrics.ObserveRequest(string(StatusOK), time.Since(start))
			return &Result{
				Status:     StatusOK,
				RequestID:  requestID,
				Intent:     intent,
				Executable: executable,
				Candidates: candidates,
				Ranked:     ranked,
				EvalReport: report,
				Plan:       plan,
				Iterations: it,
				Cost:       o.costSummary(),
			}
		}

		if report != nil {
			intent = applyReplan(intent, report.ReplanSuggestions, iterLog)
		}
	}

	logger.Warn("orchestration exhausted iteration budget",
		"iterations", rc.MaxIterations,
		"last_candidates", len(lastCandidates),
		"duration_ms", time.Since(start).Milliseconds())
	o.metrics.ObserveIterations(rc.MaxIterations)
	o.metrics.ObserveRequest(string(StatusNoResult), time.Since(start))
	return &Result{
		Status:     StatusNoResult,
		RequestID:  requestID,
		Intent:     intent,
		Candidates: lastCandidates,
		EvalReport: lastEval,
		Iterations: rc.MaxIterations,
		Cost:       o.costSummary(),
	}
}

// evaluate wraps the evaluator with the degrade rule: on failure the
// candidates pass through unsorted with zero scores and the report is
// treated as absent for this iteration.
func (o *Orchestrator) evaluate(
	intent *schema.NormalizedIntent,
	candidates []schema.CandidateVenue,
	minRating float64,
	logger *logging.Logger,
) (*schema.EvaluationReport, []schema.ScoredCandidate) {
	report, ranked, err := o.evaluator.Evaluate(intent, candidates, o.rejectedOptions, minRating)
	if err != nil {
		logger.Warn("evaluation failed, degrading to unscored pass-through", "error", err)
		degraded := make([]schema.ScoredCandidate, len(candidates))
		for i, cand := range candidates {
			degraded[i] = schema.ScoredCandidate{Venue: cand}
		}
		return nil, degraded
	}
	logger.Info("evaluation completed", "ranked", len(ranked), "ok", report.OK)
	return report, ranked
}

// FallbackPlan builds the deterministic rule-based plan used when the
// planner is unavailable: one text search for the activity in the city.
func FallbackPlan(intent *schema.NormalizedIntent) *schema.ExecutableToolPlan {
	query := fmt.Sprintf("%s in %s", intent.ActivityType, intent.City)
	return &schema.ExecutableToolPlan{
		ToolCalls: []schema.ToolCall{
			schema.NewSearchCall(schema.TextSearchArgs{
				Query:      query,
				MaxResults: fallbackMaxResults,
			}),
		},
		SelectionPolicy: map[string]any{"strategy": "fallback"},
		Notes:           "Generated by fallback rule engine (LLM unavailable)",
	}
}

// applyReplan returns a fresh intent with the replan suggestions applied.
// Only expand_radius_bias has an effect today; the input intent is never
// mutated.
func applyReplan(intent *schema.NormalizedIntent, suggestions []string, logger *logging.Logger) *schema.NormalizedIntent {
	for _, s := range suggestions {
		if s != schema.SuggestExpandRadiusBias {
			continue
		}
		next := intent.Clone()
		next.MaxTravelMinutes = min(next.MaxTravelMinutes+travelExpandStep, maxTravelCeiling)
		logger.Debug("expanded travel radius for replan",
			"max_travel_minutes", next.MaxTravelMinutes)
		return next
	}
	return intent
}

func hasViolation(report *schema.EvaluationReport, violation string) bool {
	for _, v := range report.HardViolations {
		if v == violation {
			return true
		}
	}
	return false
}

// assemble builds the FinalPlan from the ranked list: the top entry is the
// primary, the next numBackups entries are backups, and each option carries
// up to three rationale lines derived from its score components.
func assemble(intent *schema.NormalizedIntent, ranked []schema.ScoredCandidate) *schema.FinalPlan {
	numBackups := intent.NumBackups()
	take := max(numBackups+1, 2)
	if take > len(ranked) {
		take = len(ranked)
	}

	options := make([]schema.PlanOption, take)
	for i, sc := range ranked[:take] {
		options[i] = planOption(sc)
	}

	backups := options[1:]
	if len(backups) > numBackups {
		backups = backups[:numBackups]
	}

	startLocal := intent.TimeWindow.StartLocal
	if startLocal == "" {
		startLocal = "14:00"
	}
	endLocal := intent.TimeWindow.EndLocal
	if endLocal == "" {
		endLocal = "17:00"
	}

	return &schema.FinalPlan{
		Primary:  options[0],
		Backups:  backups,
		Schedule: schema.Schedule{ArriveAt: startLocal, LeaveAt: endLocal},
		Tips: []string{
			"Sunday afternoons can be busy, so consider booking ahead if possible.",
			"If you prefer quiet, ask for a corner seat or an off-peak slot.",
			"If the primary is full, use a backup with a similar vibe and price.",
		},
		Assumptions: []string{
			"Opening hours and reservation status can change; verify before going.",
			"This plan optimizes for your stated time window and preferences under a bounded search budget.",
		},
	}
}

func planOption(sc schema.ScoredCandidate) schema.PlanOption {
	var rationale []string
	if sc.Score.Rating > 0.4 {
		rationale = append(rationale, "Strong ratings signal")
	}
	if sc.Score.Popularity > 0.6 {
		rationale = append(rationale, "Popular spot with lots of reviews")
	}
	if sc.Score.PriceFit > 0.6 {
		rationale = append(rationale, "Matches your budget preference")
	}
	if sc.Score.PrefBonus > 0 {
		rationale = append(rationale, "Likely matches your preference signals (e.g., quieter vibe)")
	}
	if len(rationale) > 3 {
		rationale = rationale[:3]
	}
	return schema.PlanOption{
		VenueID:   sc.Venue.VenueID,
		Name:      sc.Venue.Name,
		Address:   sc.Venue.Address,
		Rationale: rationale,
	}
}
