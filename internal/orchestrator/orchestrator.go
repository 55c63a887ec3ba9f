package orchestrator

import (
	"context"
	"sort"
	"sync"

	outingerrors "outing/internal/errors"
	"outing/internal/logging"
	"outing/internal/metrics"
	"outing/internal/schema"
)

// Planner turns free text into a normalized intent and intents into
// executable tool plans. Both steps may fail with classified errors.
type Planner interface {
	Normalize(ctx context.Context, userPrompt string) (*schema.NormalizedIntent, error)
	Plan(ctx context.Context, intent *schema.NormalizedIntent, rtc *RuntimeContext) (*schema.ExecutableToolPlan, error)
}

// Executor runs a tool plan against the venue search service and returns
// deduplicated, enriched candidates.
type Executor interface {
	Execute(ctx context.Context, plan *schema.ExecutableToolPlan, intent *schema.NormalizedIntent) (*schema.Execution, error)
}

// Evaluator ranks candidates under an explicit minimum-rating threshold.
// The orchestrator owns the live threshold and relaxes it between calls.
type Evaluator interface {
	Evaluate(intent *schema.NormalizedIntent, candidates []schema.CandidateVenue, rejectedIDs map[string]bool, minRating float64) (*schema.EvaluationReport, []schema.ScoredCandidate, error)
}

// RunContext bounds a single run: how many plan/execute/evaluate iterations
// may happen and how many tool calls a plan may carry.
type RunContext struct {
	MaxToolCalls  int
	MaxIterations int
}

// DefaultRunContext mirrors the default budgets of the CLI surface.
func DefaultRunContext() RunContext {
	return RunContext{MaxToolCalls: 6, MaxIterations: 3}
}

func (rc RunContext) withDefaults() RunContext {
	if rc.MaxToolCalls <= 0 {
		rc.MaxToolCalls = 6
	}
	if rc.MaxIterations <= 0 {
		rc.MaxIterations = 3
	}
	return rc
}

// RuntimeContext is the per-iteration state handed to the planner so it can
// avoid rejected venues and react to the previous evaluation.
type RuntimeContext struct {
	Iteration         int
	MaxToolCalls      int
	RejectedOptions   []string
	PreferenceSignals map[string]any
	LastEval          *schema.EvaluationReport
}

// Status classifies the outcome of a run.
type Status string

const (
	// StatusOK means a FinalPlan was assembled.
	StatusOK Status = "ok"
	// StatusNoResult means the iteration budget ran out without a passing
	// evaluation; the result still carries the last candidates and report.
	StatusNoResult Status = "no_result"
	// StatusError means the run failed fatally with a classified error.
	StatusError Status = "error"
)

// Result is the single output shape of Run. Exactly one of Plan and Err is
// set for StatusOK and StatusError; StatusNoResult sets neither.
type Result struct {
	Status     Status                      `json:"status"`
	RequestID  string                      `json:"request_id"`
	Intent     *schema.NormalizedIntent    `json:"intent,omitempty"`
	Executable *schema.ExecutableToolPlan  `json:"executable,omitempty"`
	Candidates []schema.CandidateVenue     `json:"candidates,omitempty"`
	Ranked     []schema.ScoredCandidate    `json:"ranked,omitempty"`
	EvalReport *schema.EvaluationReport    `json:"eval_report,omitempty"`
	Plan       *schema.FinalPlan           `json:"plan,omitempty"`
	Iterations int                         `json:"iterations"`
	Cost       *CostSummary                `json:"cost_summary,omitempty"`
	Err        *outingerrors.ErrorResponse `json:"error,omitempty"`
}

// Orchestrator drives the normalize -> plan -> execute -> evaluate -> replan
// loop and owns the per-session state (rejected venues, preference signals).
//
// A single instance may be shared across goroutines: Run holds the session
// lock for the whole call, so concurrent runs on the same instance serialize
// and never observe partially updated session state.
type Orchestrator struct {
	planner   Planner
	executor  Executor
	evaluator Evaluator
	logger    *logging.Logger
	metrics   *metrics.Metrics
	policy    outingerrors.RetryPolicy
	minRating float64

	mu                sync.Mutex
	rejectedOptions   map[string]bool
	preferenceSignals map[string]any
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMetrics sets the metrics sink. A nil sink disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithRetryPolicy sets the policy used to classify fatal errors.
func WithRetryPolicy(policy outingerrors.RetryPolicy) Option {
	return func(o *Orchestrator) { o.policy = policy }
}

// WithMinRating overrides the starting minimum-rating threshold.
func WithMinRating(minRating float64) Option {
	return func(o *Orchestrator) { o.minRating = minRating }
}

// New builds an Orchestrator over the three collaborators.
func New(planner Planner, executor Executor, evaluator Evaluator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		planner:           planner,
		executor:          executor,
		evaluator:         evaluator,
		logger:            logging.Nop(),
		policy:            outingerrors.DefaultRetryPolicy(),
		minRating:         defaultMinRating,
		rejectedOptions:   make(map[string]bool),
		preferenceSignals: make(map[string]any),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.OrNop(o.logger)
	return o
}

// RejectOption marks a venue as rejected for every later run of this
// session; the evaluator filters it out and the planner is told to avoid it.
func (o *Orchestrator) RejectOption(venueID string) {
	if venueID == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejectedOptions[venueID] = true
}

// SetPreferenceSignal records a session-scoped preference hint passed to the
// planner on every iteration.
func (o *Orchestrator) SetPreferenceSignal(key string, value any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.preferenceSignals[key] = value
}

// RejectedOptions returns the rejected venue ids in sorted order.
func (o *Orchestrator) RejectedOptions() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rejectedIDsLocked()
}

func (o *Orchestrator) rejectedIDsLocked() []string {
	ids := make([]string, 0, len(o.rejectedOptions))
	for id := range o.rejectedOptions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (o *Orchestrator) preferenceSignalsLocked() map[string]any {
	signals := make(map[string]any, len(o.preferenceSignals))
	for k, v := range o.preferenceSignals {
		signals[k] = v
	}
	return signals
}
