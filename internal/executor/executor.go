package executor

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	outingerrors "outing/internal/errors"
	"outing/internal/logging"
	"outing/internal/metrics"
	"outing/internal/places"
	"outing/internal/schema"
)

// Tool calls within one plan run concurrently, bounded by this limit.
const maxConcurrentCalls = 4

// Travel minutes to search radius meters.
const radiusPerTravelMinute = 800

// Executor runs tool plans against the venue search API. Results are folded
// back in plan order, so candidate ordering is deterministic regardless of
// which call finishes first.
type Executor struct {
	places  places.API
	logger  *logging.Logger
	metrics *metrics.Metrics

	apiCalls atomic.Int64
}

// New builds an Executor over a venue search API.
func New(api places.API, logger *logging.Logger, m *metrics.Metrics) *Executor {
	return &Executor{
		places:  api,
		logger:  logging.OrNop(logger),
		metrics: m,
	}
}

// APICallCount reports how many outbound API calls this executor has made,
// for cost accounting.
func (e *Executor) APICallCount() int {
	return int(e.apiCalls.Load())
}

// outcome is the captured result of one tool call.
type outcome struct {
	result schema.ToolResult
	found  []places.Place
	detail *places.Place
}

// Execute validates the plan, runs every tool call and returns the
// deduplicated candidate set. Individual call failures become failed tool
// results; only a malformed plan fails the whole execution.
func (e *Executor) Execute(ctx context.Context, plan *schema.ExecutableToolPlan, intent *schema.NormalizedIntent) (*schema.Execution, error) {
	start := time.Now()

	if errs := schema.ValidatePlan(plan, 0); len(errs) > 0 {
		e.logger.Warn("tool plan validation failed", "errors", errs)
		return nil, outingerrors.NewErrorResponse(
			outingerrors.CodeValidation, "invalid tool call parameters", "").
			WithDetails(map[string]any{"errors": errs})
	}

	e.logger.Info("executing tool plan",
		"tool_calls", len(plan.ToolCalls), "fallback", plan.IsFallback())

	outcomes := make([]outcome, len(plan.ToolCalls))
	group := new(errgroup.Group)
	group.SetLimit(maxConcurrentCalls)
	for i, call := range plan.ToolCalls {
		group.Go(func() error {
			outcomes[i] = e.runCall(ctx, call, intent)
			return nil
		})
	}
	_ = group.Wait()

	execution := foldOutcomes(plan.ToolCalls, outcomes)

	successful := 0
	for _, tr := range execution.ToolResults {
		if tr.OK {
			successful++
		}
	}
	e.logger.Info("tool execution completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"candidates", len(execution.Candidates),
		"successful_calls", successful)

	return execution, nil
}

func (e *Executor) runCall(ctx context.Context, call schema.ToolCall, intent *schema.NormalizedIntent) outcome {
	switch call.Tool {
	case schema.ToolSearch:
		return e.runSearch(ctx, call, intent)
	case schema.ToolDetails:
		return e.runDetails(ctx, call)
	default:
		e.logger.Warn("skipping unknown tool", "tool", call.Tool)
		return outcome{result: schema.ToolResult{Tool: call.Tool, Error: "unknown_tool"}}
	}
}

func (e *Executor) runSearch(ctx context.Context, call schema.ToolCall, intent *schema.NormalizedIntent) outcome {
	e.apiCalls.Add(1)

	radius := call.Search.RadiusM
	if radius <= 0 && intent != nil {
		radius = intent.MaxTravelMinutes * radiusPerTravelMinute
	}
	var origin string
	if intent != nil {
		origin = intent.OriginLatLng
	}

	found, err := e.places.TextSearch(ctx, places.TextSearchRequest{
		Query:          call.Search.Query,
		LocationLatLng: origin,
		RadiusM:        radius,
		MaxResults:     call.Search.MaxResults,
	})
	if err != nil {
		e.logger.Error("text search failed", "query", call.Search.Query, "error", err)
		return outcome{result: schema.ToolResult{Tool: call.Tool, Error: err.Error()}}
	}

	return outcome{
		result: schema.ToolResult{
			Tool: call.Tool,
			OK:   true,
			Data: map[string]any{"results_count": len(found)},
		},
		found: found,
	}
}

func (e *Executor) runDetails(ctx context.Context, call schema.ToolCall) outcome {
	e.apiCalls.Add(1)

	detail, err := e.places.Details(ctx, call.Details.PlaceID)
	if err != nil {
		e.logger.Error("details lookup failed", "place_id", call.Details.PlaceID, "error", err)
		return outcome{result: schema.ToolResult{Tool: call.Tool, Error: err.Error()}}
	}

	return outcome{
		result: schema.ToolResult{
			Tool: call.Tool,
			OK:   true,
			Data: map[string]any{"place_id": detail.PlaceID},
		},
		detail: detail,
	}
}

// foldOutcomes merges call outcomes in plan order: searches insert
// candidates keyed by venue id (later hits refresh earlier data without
// reordering), details enrich candidates already found.
func foldOutcomes(calls []schema.ToolCall, outcomes []outcome) *schema.Execution {
	results := make([]schema.ToolResult, 0, len(outcomes))
	byID := make(map[string]*schema.CandidateVenue)
	var order []string

	for i := range outcomes {
		out := &outcomes[i]
		results = append(results, out.result)
		if !out.result.OK {
			continue
		}

		switch calls[i].Tool {
		case schema.ToolSearch:
			for _, place := range out.found {
				if place.PlaceID == "" {
					continue
				}
				cand := candidateFromPlace(place)
				if _, seen := byID[cand.VenueID]; !seen {
					order = append(order, cand.VenueID)
				}
				byID[cand.VenueID] = &cand
			}
		case schema.ToolDetails:
			if out.detail == nil {
				continue
			}
			if cand, ok := byID[out.detail.PlaceID]; ok {
				enrichCandidate(cand, out.detail)
			}
		}
	}

	candidates := make([]schema.CandidateVenue, 0, len(order))
	for _, id := range order {
		candidates = append(candidates, *byID[id])
	}
	return &schema.Execution{ToolResults: results, Candidates: candidates}
}

func candidateFromPlace(place places.Place) schema.CandidateVenue {
	name := place.Name
	if name == "" {
		name = "Unknown"
	}
	return schema.CandidateVenue{
		VenueID:          place.PlaceID,
		PlaceID:          place.PlaceID,
		Name:             name,
		Category:         place.Category(),
		Address:          place.FormattedAddress,
		Rating:           place.Rating,
		UserRatingsTotal: place.UserRatingsTotal,
		PriceLevel:       place.PriceLevel,
		LatLng:           place.LatLngString(),
	}
}

// enrichCandidate overlays detail fields onto a search result, keeping the
// search value where the detail response omits a field.
func enrichCandidate(cand *schema.CandidateVenue, detail *places.Place) {
	if detail.Rating != nil {
		cand.Rating = detail.Rating
	}
	if detail.UserRatingsTotal != nil {
		cand.UserRatingsTotal = detail.UserRatingsTotal
	}
	if detail.PriceLevel != nil {
		cand.PriceLevel = detail.PriceLevel
	}
	if detail.FormattedAddress != "" {
		cand.Address = detail.FormattedAddress
	}
	if latlng := detail.LatLngString(); latlng != "" {
		cand.LatLng = latlng
	}
}
