package schema

// TimeWindow is the requested visiting window in local time.
type TimeWindow struct {
	Day        string `json:"day"`
	StartLocal string `json:"start_local"`
	EndLocal   string `json:"end_local"`
}

// NormalizedIntent is the canonical request shape produced by the planner's
// normalize step. The orchestrator threads a copy of it through each
// iteration; replanning returns a fresh copy rather than mutating in place.
type NormalizedIntent struct {
	ActivityType       string         `json:"activity_type"`
	City               string         `json:"city"`
	TimeWindow         TimeWindow     `json:"time_window"`
	OriginLatLng       string         `json:"origin_latlng,omitempty"`
	MaxTravelMinutes   int            `json:"max_travel_minutes"`
	PartySize          int            `json:"party_size"`
	BudgetLevel        string         `json:"budget_level"`
	Preferences        map[string]any `json:"preferences"`
	HardConstraints    map[string]any `json:"hard_constraints"`
	OutputRequirements map[string]any `json:"output_requirements"`
}

// Budget levels accepted in NormalizedIntent.BudgetLevel.
const (
	BudgetLow    = "low"
	BudgetMedium = "medium"
	BudgetHigh   = "high"
)

// Clone returns a deep enough copy for the orchestrator's copy-on-write
// replan step: the maps are copied one level deep, which covers every
// mutation the loop performs.
func (n *NormalizedIntent) Clone() *NormalizedIntent {
	if n == nil {
		return nil
	}
	cp := *n
	cp.Preferences = copyMap(n.Preferences)
	cp.HardConstraints = copyMap(n.HardConstraints)
	cp.OutputRequirements = copyMap(n.OutputRequirements)
	return &cp
}

// PrefersQuiet reports whether the intent carries a truthy "quiet"
// preference signal.
func (n *NormalizedIntent) PrefersQuiet() bool {
	if n == nil {
		return false
	}
	b, ok := n.Preferences["quiet"].(bool)
	return ok && b
}

// NumBackups returns the requested number of backup options, defaulting to 3.
func (n *NormalizedIntent) NumBackups() int {
	if n == nil {
		return 3
	}
	switch v := n.OutputRequirements["num_backups"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 3
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// CandidateVenue is a venue returned by the search step. VenueID is the
// dedup key across repeated searches within a run. Rating, review count and
// price level are pointers because the upstream API omits them freely.
type CandidateVenue struct {
	VenueID          string   `json:"venue_id"`
	PlaceID          string   `json:"place_id,omitempty"`
	Name             string   `json:"name"`
	Category         string   `json:"category"`
	Address          string   `json:"address"`
	Rating           *float64 `json:"rating,omitempty"`
	UserRatingsTotal *int     `json:"user_ratings_total,omitempty"`
	PriceLevel       *int     `json:"price_level,omitempty"`
	LatLng           string   `json:"latlng,omitempty"`
}

// ToolResult records the outcome of a single tool call.
type ToolResult struct {
	Tool  string         `json:"tool"`
	OK    bool           `json:"ok"`
	Data  map[string]any `json:"data,omitempty"`
	Error string         `json:"error,omitempty"`
}

// Execution is the executor's output for one plan: every tool result plus
// the deduplicated, enriched candidate set.
type Execution struct {
	ToolResults []ToolResult     `json:"tool_results"`
	Candidates  []CandidateVenue `json:"candidates"`
}

// ScoreBreakdown is the per-candidate component breakdown computed by the
// evaluator. All components live in [0, 1]; PrefBonus can push Total
// slightly above the weighted base.
type ScoreBreakdown struct {
	Total      float64 `json:"total"`
	Rating     float64 `json:"rating"`
	Popularity float64 `json:"popularity"`
	PriceFit   float64 `json:"price_fit"`
	PrefBonus  float64 `json:"pref_bonus"`
}

// ScoredCandidate pairs a surviving candidate with its score breakdown.
type ScoredCandidate struct {
	Venue CandidateVenue `json:"venue"`
	Score ScoreBreakdown `json:"score"`
}

// EvaluationReport summarises one evaluation pass. ScoreBreakdown holds at
// most the top 20 entries; the ranked list returned alongside the report is
// never truncated.
type EvaluationReport struct {
	OK                bool                      `json:"ok"`
	HardViolations    []string                  `json:"hard_violations,omitempty"`
	ScoreBreakdown    map[string]ScoreBreakdown `json:"score_breakdown,omitempty"`
	ReplanSuggestions []string                  `json:"replan_suggestions,omitempty"`
}

// Hard-violation and replan-suggestion identifiers shared between the
// evaluator and the orchestrator.
const (
	ViolationNoCandidates = "no_candidates_pass_hard_constraints"

	SuggestBroadenQueries   = "broaden_queries"
	SuggestExpandRadiusBias = "expand_radius_bias"
	SuggestRelaxMinRating   = "relax_min_rating"
)

// PlanOption is one recommended venue with up to three rationale lines.
type PlanOption struct {
	VenueID   string   `json:"venue_id"`
	Name      string   `json:"name"`
	Address   string   `json:"address"`
	Rationale []string `json:"rationale"`
}

// Schedule is the suggested arrival and departure time for the final plan.
type Schedule struct {
	ArriveAt string `json:"arrive_at"`
	LeaveAt  string `json:"leave_at"`
}

// FinalPlan is assembled exactly once per successful run and never mutated
// afterwards.
type FinalPlan struct {
	Primary     PlanOption   `json:"primary"`
	Backups     []PlanOption `json:"backups"`
	Schedule    Schedule     `json:"schedule"`
	Tips        []string     `json:"tips"`
	Assumptions []string     `json:"assumptions"`
}
