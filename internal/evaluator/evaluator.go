package evaluator

import (
	"math"
	"sort"
	"strings"

	"outing/internal/logging"
	"outing/internal/schema"
)

// Scoring weights and normalisation constants. A rating of 5.0 maps to a
// full rating component, 1200 reviews saturate popularity, and price level 2
// is treated as the neutral budget midpoint.
const (
	weightRating     = 0.45
	weightPopularity = 0.30
	weightPriceFit   = 0.15
	quietBonus       = 0.15

	ratingBaseline   = 4.0
	popularityScale  = 1200.0
	neutralPrice     = 2.0
	breakdownTopSize = 20
)

// DefaultMinRating is the starting hard-constraint threshold. The
// orchestrator owns the live value and may relax it between calls.
const DefaultMinRating = 4.0

// Evaluator ranks candidate venues against a normalized intent. It holds no
// mutable state between calls; every threshold is an explicit argument.
type Evaluator struct {
	logger *logging.Logger
}

// New returns an Evaluator. A nil logger is replaced with a no-op one.
func New(logger *logging.Logger) *Evaluator {
	return &Evaluator{logger: logging.OrNop(logger)}
}

// Evaluate filters candidates against the hard constraints (rejection list
// and minimum rating), scores the survivors and returns the report plus the
// full ranked list. Candidates without a rating are not filtered by the
// rating threshold; their rating component scores zero instead.
//
// The ranked list is sorted by total descending with a stable sort, so
// equally scored candidates keep their input order. The report's breakdown
// map carries at most the top 20 entries; the ranked list is never
// truncated.
func (e *Evaluator) Evaluate(
	intent *schema.NormalizedIntent,
	candidates []schema.CandidateVenue,
	rejectedIDs map[string]bool,
	minRating float64,
) (*schema.EvaluationReport, []schema.ScoredCandidate, error) {
	ranked := make([]schema.ScoredCandidate, 0, len(candidates))
	for _, cand := range candidates {
		if rejectedIDs[cand.VenueID] {
			continue
		}
		if cand.Rating != nil && *cand.Rating < minRating {
			continue
		}
		ranked = append(ranked, schema.ScoredCandidate{
			Venue: cand,
			Score: scoreCandidate(intent, cand),
		})
	}

	if len(ranked) == 0 {
		e.logger.Debug("no candidates passed hard constraints",
			"candidates", len(candidates), "min_rating", minRating)
		return &schema.EvaluationReport{
			OK:             false,
			HardViolations: []string{schema.ViolationNoCandidates},
			ReplanSuggestions: []string{
				schema.SuggestBroadenQueries,
				schema.SuggestExpandRadiusBias,
				schema.SuggestRelaxMinRating,
			},
		}, nil, nil
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score.Total > ranked[j].Score.Total
	})

	breakdown := make(map[string]schema.ScoreBreakdown, min(len(ranked), breakdownTopSize))
	for i, sc := range ranked {
		if i == breakdownTopSize {
			break
		}
		breakdown[sc.Venue.VenueID] = sc.Score
	}

	e.logger.Debug("evaluation complete",
		"survivors", len(ranked), "min_rating", minRating,
		"top", ranked[0].Venue.VenueID)

	return &schema.EvaluationReport{OK: true, ScoreBreakdown: breakdown}, ranked, nil
}

func scoreCandidate(intent *schema.NormalizedIntent, cand schema.CandidateVenue) schema.ScoreBreakdown {
	var rating, reviews, price float64
	if cand.Rating != nil {
		rating = *cand.Rating
	}
	if cand.UserRatingsTotal != nil {
		reviews = float64(*cand.UserRatingsTotal)
	}
	price = neutralPrice
	if cand.PriceLevel != nil {
		price = float64(*cand.PriceLevel)
	}

	scoreRating := clamp((rating-ratingBaseline)/1.0, 0, 1)
	scorePopularity := math.Min(reviews/popularityScale, 1.0)
	scorePriceFit := 1.0 - math.Min(math.Abs(price-neutralPrice)/2.0, 1.0)

	var prefBonus float64
	if intent.PrefersQuiet() && matchesQuietCategory(cand.Category) {
		prefBonus = quietBonus
	}

	return schema.ScoreBreakdown{
		Total:      weightRating*scoreRating + weightPopularity*scorePopularity + weightPriceFit*scorePriceFit + prefBonus,
		Rating:     scoreRating,
		Popularity: scorePopularity,
		PriceFit:   scorePriceFit,
		PrefBonus:  prefBonus,
	}
}

func matchesQuietCategory(category string) bool {
	c := strings.ToLower(category)
	return strings.Contains(c, "lodging") || strings.Contains(c, "tea")
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
