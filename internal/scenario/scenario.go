// Package scenario provides fixture-backed planner and executor
// implementations so the engine can run fully offline, for demos and for
// end-to-end tests that must not touch external APIs.
package scenario

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"outing/internal/schema"
)

//go:embed testdata/default.yaml
var defaultYAML []byte

// Scenario is one offline fixture: the intent the planner will produce and
// the candidate set the executor will return.
type Scenario struct {
	Name       string
	Intent     schema.NormalizedIntent
	Candidates []schema.CandidateVenue
}

// YAML wire shapes. The schema types carry json tags for the API surface;
// scenario files are yaml, so the fields are mirrored here.
type fileScenario struct {
	Name       string          `yaml:"name"`
	Intent     fileIntent      `yaml:"intent"`
	Candidates []fileCandidate `yaml:"candidates"`
}

type fileIntent struct {
	ActivityType     string         `yaml:"activity_type"`
	City             string         `yaml:"city"`
	Day              string         `yaml:"day"`
	StartLocal       string         `yaml:"start_local"`
	EndLocal         string         `yaml:"end_local"`
	OriginLatLng     string         `yaml:"origin_latlng"`
	MaxTravelMinutes int            `yaml:"max_travel_minutes"`
	PartySize        int            `yaml:"party_size"`
	BudgetLevel      string         `yaml:"budget_level"`
	Preferences      map[string]any `yaml:"preferences"`
	HardConstraints  map[string]any `yaml:"hard_constraints"`
}

type fileCandidate struct {
	VenueID          string   `yaml:"venue_id"`
	Name             string   `yaml:"name"`
	Category         string   `yaml:"category"`
	Address          string   `yaml:"address"`
	Rating           *float64 `yaml:"rating"`
	UserRatingsTotal *int     `yaml:"user_ratings_total"`
	PriceLevel       *int     `yaml:"price_level"`
	LatLng           string   `yaml:"latlng"`
}

// Load reads a scenario file from disk.
func Load(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	s, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates scenario YAML.
func Parse(raw []byte) (*Scenario, error) {
	var file fileScenario
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse scenario yaml: %w", err)
	}

	s := &Scenario{
		Name: file.Name,
		Intent: schema.NormalizedIntent{
			ActivityType: file.Intent.ActivityType,
			City:         file.Intent.City,
			TimeWindow: schema.TimeWindow{
				Day:        file.Intent.Day,
				StartLocal: file.Intent.StartLocal,
				EndLocal:   file.Intent.EndLocal,
			},
			OriginLatLng:     file.Intent.OriginLatLng,
			MaxTravelMinutes: file.Intent.MaxTravelMinutes,
			PartySize:        file.Intent.PartySize,
			BudgetLevel:      file.Intent.BudgetLevel,
			Preferences:      file.Intent.Preferences,
			HardConstraints:  file.Intent.HardConstraints,
		},
	}
	for _, c := range file.Candidates {
		s.Candidates = append(s.Candidates, schema.CandidateVenue{
			VenueID:          c.VenueID,
			PlaceID:          c.VenueID,
			Name:             c.Name,
			Category:         c.Category,
			Address:          c.Address,
			Rating:           c.Rating,
			UserRatingsTotal: c.UserRatingsTotal,
			PriceLevel:       c.PriceLevel,
			LatLng:           c.LatLng,
		})
	}

	if errs := schema.ValidateIntent(&s.Intent); len(errs) > 0 {
		return nil, fmt.Errorf("invalid scenario intent: %s", strings.Join(errs, "; "))
	}
	for i, c := range s.Candidates {
		if c.VenueID == "" {
			return nil, fmt.Errorf("candidates[%d]: venue_id is required", i)
		}
	}
	return s, nil
}

// Default returns the embedded demo scenario.
func Default() *Scenario {
	s, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded scenario is invalid: %v", err))
	}
	return s
}

func (s *Scenario) cloneCandidates() []schema.CandidateVenue {
	return slices.Clone(s.Candidates)
}
