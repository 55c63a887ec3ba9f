package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	outingerrors "outing/internal/errors"
	"outing/internal/orchestrator"
	"outing/internal/places"
	"outing/internal/schema"
)

type fakePlaces struct {
	mu       sync.Mutex
	searches []places.TextSearchRequest
	details  []string

	searchResults map[string][]places.Place
	searchErr     error
	detailResults map[string]*places.Place
	detailErr     error
}

func (f *fakePlaces) TextSearch(_ context.Context, req places.TextSearchRequest) ([]places.Place, error) {
	f.mu.Lock()
	f.searches = append(f.searches, req)
	f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchResults[req.Query], nil
}

func (f *fakePlaces) Details(_ context.Context, placeID string) (*places.Place, error) {
	f.mu.Lock()
	f.details = append(f.details, placeID)
	f.mu.Unlock()
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	if p, ok := f.detailResults[placeID]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("place %s not found", placeID)
}

func ptr[T any](v T) *T { return &v }

func place(id, name string, rating float64) places.Place {
	return places.Place{
		PlaceID:          id,
		Name:             name,
		Rating:           ptr(rating),
		UserRatingsTotal: ptr(100),
		Types:            []string{"cafe"},
		FormattedAddress: name + " St",
	}
}

func searchPlan(queries ...string) *schema.ExecutableToolPlan {
	plan := &schema.ExecutableToolPlan{
		SelectionPolicy: map[string]any{"strategy": "top_rated"},
	}
	for _, q := range queries {
		plan.ToolCalls = append(plan.ToolCalls,
			schema.NewSearchCall(schema.TextSearchArgs{Query: q, MaxResults: 5}))
	}
	return plan
}

func testIntent() *schema.NormalizedIntent {
	return &schema.NormalizedIntent{
		City:             "Seattle",
		ActivityType:     "tea house",
		BudgetLevel:      schema.BudgetMedium,
		MaxTravelMinutes: 30,
		OriginLatLng:     "47.6,-122.3",
	}
}

func TestExecuteSearchProducesCandidates(t *testing.T) {
	fake := &fakePlaces{
		searchResults: map[string][]places.Place{
			"tea house in Seattle": {place("p1", "Steep", 4.5), place("p2", "Leaf", 4.2)},
		},
	}
	exec := New(fake, nil, nil)

	out, err := exec.Execute(context.Background(), searchPlan("tea house in Seattle"), testIntent())
	require.NoError(t, err)
	require.Len(t, out.ToolResults, 1)
	require.True(t, out.ToolResults[0].OK)
	require.Equal(t, 2, out.ToolResults[0].Data["results_count"])

	require.Len(t, out.Candidates, 2)
	require.Equal(t, "p1", out.Candidates[0].VenueID)
	require.Equal(t, "Steep", out.Candidates[0].Name)
	require.Equal(t, "cafe", out.Candidates[0].Category)
	require.Equal(t, "Steep St", out.Candidates[0].Address)
	require.Equal(t, 1, exec.APICallCount())
}

func TestExecuteDeduplicatesAcrossSearches(t *testing.T) {
	fake := &fakePlaces{
		searchResults: map[string][]places.Place{
			"first":  {place("p1", "Steep", 4.5), place("p2", "Leaf", 4.2)},
			"second": {place("p2", "Leaf", 4.3), place("p3", "Pot", 4.0)},
		},
	}
	exec := New(fake, nil, nil)

	out, err := exec.Execute(context.Background(), searchPlan("first", "second"), testIntent())
	require.NoError(t, err)
	require.Len(t, out.Candidates, 3)
	// First occurrence fixes the position, the later hit refreshes the data.
	require.Equal(t, []string{"p1", "p2", "p3"}, candidateIDs(out))
	require.InDelta(t, 4.3, *out.Candidates[1].Rating, 1e-9)
	require.Equal(t, 2, exec.APICallCount())
}

func TestExecuteDetailsEnrichesCandidate(t *testing.T) {
	found := place("p1", "Steep", 4.5)
	found.PriceLevel = nil
	fake := &fakePlaces{
		searchResults: map[string][]places.Place{"tea": {found}},
		detailResults: map[string]*places.Place{
			"p1": {
				PlaceID:          "p1",
				Rating:           ptr(4.7),
				PriceLevel:       ptr(2),
				FormattedAddress: "1 Pine St",
				Geometry: &places.Geometry{
					Location: places.LatLng{Lat: 47.61, Lng: -122.33},
				},
			},
		},
	}
	exec := New(fake, nil, nil)

	plan := searchPlan("tea")
	plan.ToolCalls = append(plan.ToolCalls, schema.NewDetailsCall("p1"))

	out, err := exec.Execute(context.Background(), plan, testIntent())
	require.NoError(t, err)
	require.Len(t, out.Candidates, 1)

	cand := out.Candidates[0]
	require.InDelta(t, 4.7, *cand.Rating, 1e-9)
	require.Equal(t, 2, *cand.PriceLevel)
	require.Equal(t, "1 Pine St", cand.Address)
	require.Equal(t, "47.61,-122.33", cand.LatLng)
	// Detail response without user_ratings_total keeps the search value.
	require.Equal(t, 100, *cand.UserRatingsTotal)
}

func TestExecuteDetailsForUnknownVenueIsIgnored(t *testing.T) {
	fake := &fakePlaces{
		searchResults: map[string][]places.Place{"tea": {place("p1", "Steep", 4.5)}},
		detailResults: map[string]*places.Place{
			"p9": {PlaceID: "p9", Name: "Elsewhere"},
		},
	}
	exec := New(fake, nil, nil)

	plan := searchPlan("tea")
	plan.ToolCalls = append(plan.ToolCalls, schema.NewDetailsCall("p9"))

	out, err := exec.Execute(context.Background(), plan, testIntent())
	require.NoError(t, err)
	require.Len(t, out.Candidates, 1)
	require.Equal(t, "p1", out.Candidates[0].VenueID)
	require.True(t, out.ToolResults[1].OK)
}

func TestExecuteFailedCallBecomesFailedResult(t *testing.T) {
	fake := &fakePlaces{searchErr: errors.New("quota exceeded")}
	exec := New(fake, nil, nil)

	out, err := exec.Execute(context.Background(), searchPlan("tea"), testIntent())
	require.NoError(t, err)
	require.Len(t, out.ToolResults, 1)
	require.False(t, out.ToolResults[0].OK)
	require.Contains(t, out.ToolResults[0].Error, "quota exceeded")
	require.Empty(t, out.Candidates)
}

func TestExecuteUnknownToolSkipped(t *testing.T) {
	fake := &fakePlaces{
		searchResults: map[string][]places.Place{"tea": {place("p1", "Steep", 4.5)}},
	}
	exec := New(fake, nil, nil)

	plan := searchPlan("tea")
	plan.ToolCalls = append(plan.ToolCalls, schema.ToolCall{Tool: "teleport"})

	out, err := exec.Execute(context.Background(), plan, testIntent())
	require.NoError(t, err)
	require.Len(t, out.ToolResults, 2)
	require.False(t, out.ToolResults[1].OK)
	require.Equal(t, "unknown_tool", out.ToolResults[1].Error)
	require.Len(t, out.Candidates, 1)
	// Unknown tools never hit the API.
	require.Equal(t, 1, exec.APICallCount())
}

func TestExecuteInvalidPlanFails(t *testing.T) {
	exec := New(&fakePlaces{}, nil, nil)

	plan := &schema.ExecutableToolPlan{
		ToolCalls: []schema.ToolCall{schema.NewSearchCall(schema.TextSearchArgs{Query: "  "})},
	}

	_, err := exec.Execute(context.Background(), plan, testIntent())
	resp, ok := outingerrors.AsErrorResponse(err)
	require.True(t, ok)
	require.Equal(t, outingerrors.CodeValidation, resp.Code)
}

func TestExecuteRadiusDefaultsFromIntent(t *testing.T) {
	fake := &fakePlaces{}
	exec := New(fake, nil, nil)

	_, err := exec.Execute(context.Background(), searchPlan("tea"), testIntent())
	require.NoError(t, err)
	require.Len(t, fake.searches, 1)
	require.Equal(t, "47.6,-122.3", fake.searches[0].LocationLatLng)
	require.Equal(t, 30*radiusPerTravelMinute, fake.searches[0].RadiusM)
}

func TestExecuteExplicitRadiusKept(t *testing.T) {
	fake := &fakePlaces{}
	exec := New(fake, nil, nil)

	plan := &schema.ExecutableToolPlan{
		ToolCalls: []schema.ToolCall{
			schema.NewSearchCall(schema.TextSearchArgs{Query: "tea", RadiusM: 1500}),
		},
	}
	_, err := exec.Execute(context.Background(), plan, testIntent())
	require.NoError(t, err)
	require.Equal(t, 1500, fake.searches[0].RadiusM)
}

func TestExecutorSatisfiesOrchestratorInterfaces(t *testing.T) {
	exec := New(&fakePlaces{}, nil, nil)
	var _ orchestrator.Executor = exec
	var _ orchestrator.APICallCounter = exec
}

func candidateIDs(e *schema.Execution) []string {
	ids := make([]string, 0, len(e.Candidates))
	for _, c := range e.Candidates {
		ids = append(ids, c.VenueID)
	}
	return ids
}
