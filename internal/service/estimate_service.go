package service

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"sitekit/internal/domain"
	"sitekit/internal/validation"
)

const (
	estimateSpread      = 0.10
	maxSquareFeet       = 1_000_000
	minLocationFactor   = 0.5
	maxLocationFactor   = 3.0
	defaultLocationRate = 1.0
)

// Costo base por pie cuadrado segun tipo de proyecto.
var baseRates = map[string]float64{
	"residential": 150,
	"commercial":  200,
	"renovation":  100,
	"industrial":  175,
}

var qualityFactors = map[string]float64{
	"standard": 1.0,
	"premium":  1.35,
	"luxury":   1.75,
}

// Costos fijos por feature opcional.
var featureCosts = map[string]float64{
	"basement":     25000,
	"garage":       18000,
	"hvac_upgrade": 9000,
	"landscaping":  7500,
	"pool":         35000,
	"smart_home":   8000,
	"solar_panels": 15000,
}

type EstimateInput struct {
	ProjectType    string   `json:"project_type"`
	SquareFeet     float64  `json:"square_feet"`
	Quality        string   `json:"quality"`
	Features       []string `json:"features"`
	LocationFactor float64  `json:"location_factor"`
}

// CostCalculator calcula estimaciones de obra. No guarda estado.
type CostCalculator struct {
	now func() time.Time
}

func NewCostCalculator() *CostCalculator {
	return &CostCalculator{now: func() time.Time { return time.Now().UTC() }}
}

// Calculate devuelve la estimacion o los errores por campo si la entrada es invalida.
func (c *CostCalculator) Calculate(in EstimateInput) (domain.CostEstimate, validation.Errors) {
	in.ProjectType = strings.ToLower(strings.TrimSpace(in.ProjectType))
	in.Quality = strings.ToLower(strings.TrimSpace(in.Quality))
	if in.Quality == "" {
		in.Quality = "standard"
	}
	if in.LocationFactor == 0 {
		in.LocationFactor = defaultLocationRate
	}

	if errs := validateEstimate(in); !errs.OK() {
		return domain.CostEstimate{}, errs
	}

	rate := baseRates[in.ProjectType] * qualityFactors[in.Quality]
	base := in.SquareFeet * rate * in.LocationFactor

	features := dedupe(in.Features)
	breakdown := make(map[string]float64, len(features))
	var featureTotal float64
	for _, f := range features {
		cost := featureCosts[f] * in.LocationFactor
		breakdown[f] = roundDollars(cost)
		featureTotal += cost
	}

	total := base + featureTotal
	return domain.CostEstimate{
		ID:          uuid.NewString(),
		ProjectType: in.ProjectType,
		SquareFeet:  in.SquareFeet,
		Quality:     in.Quality,
		Features:    features,
		Base:        roundDollars(base),
		FeatureCost: roundDollars(featureTotal),
		Total:       roundDollars(total),
		Low:         roundDollars(total * (1 - estimateSpread)),
		High:        roundDollars(total * (1 + estimateSpread)),
		Breakdown:   breakdown,
		ComputedAt:  c.now(),
	}, nil
}

func validateEstimate(in EstimateInput) validation.Errors {
	sqft := strconv.FormatFloat(in.SquareFeet, 'f', -1, 64)
	errs := validation.NewForm().
		Field("project_type", in.ProjectType,
			validation.RequiredRule("project_type"),
			validation.Check(inSet(baseRates), "unknown project type"),
		).
		Field("square_feet", sqft,
			validation.Check(validation.PositiveNumber, "square_feet must be a positive number"),
			validation.Check(func(string) bool { return in.SquareFeet <= maxSquareFeet }, "square_feet is too large"),
		).
		Field("quality", in.Quality,
			validation.Check(inSet(qualityFactors), "unknown quality level"),
		).
		Field("location_factor", strconv.FormatFloat(in.LocationFactor, 'f', -1, 64),
			validation.Check(func(string) bool {
				return in.LocationFactor >= minLocationFactor && in.LocationFactor <= maxLocationFactor
			}, "location_factor out of range"),
		).
		Validate()

	for _, f := range in.Features {
		if _, ok := featureCosts[strings.ToLower(strings.TrimSpace(f))]; !ok {
			errs["features"] = "unknown feature: " + f
			break
		}
	}
	return errs
}

func inSet(set map[string]float64) func(string) bool {
	return func(s string) bool {
		_, ok := set[s]
		return ok
	}
}

func dedupe(features []string) []string {
	seen := make(map[string]struct{}, len(features))
	out := make([]string, 0, len(features))
	for _, f := range features {
		f = strings.ToLower(strings.TrimSpace(f))
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func roundDollars(v float64) float64 {
	return math.Round(v)
}
