package domain

import (
	"math"
	"time"
)

// ScoringInput is the raw-equivalent record collected by the scoring surface.
type ScoringInput struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	DiscoveryDOY   int     `json:"discovery_doy"`
	DiscoveryHour  int     `json:"discovery_hour"`
	State          string  `json:"state"`
	OwnerDescr     string  `json:"owner_descr"`
	Season         string  `json:"season"`
	StatCauseDescr string  `json:"stat_cause_descr"`
	CauseSimple    string  `json:"cause_simple,omitempty"`
}

// FeatureFromInput applies the engine's hygiene rules to a scoring input:
// hour and day-of-year are clamped, blank categoricals become the unknown
// label and a blank simplified cause is derived from the cause description.
func FeatureFromInput(in ScoringInput, defaults Defaults) FeatureRecord {
	defaults = defaults.Merge()

	doy := in.DiscoveryDOY
	if doy < 1 || doy > 366 {
		doy = defaults.DayOfYear
	}

	cause := cleanCategorical(Text(in.StatCauseDescr), defaults.Unknown)
	simple := in.CauseSimple
	if simple == "" {
		simple = simplifyCause(Text(in.StatCauseDescr), defaults.Unknown)
	}

	lat, lon := in.Latitude, in.Longitude
	if math.IsNaN(lat) || math.IsInf(lat, 0) {
		lat = defaults.Latitude
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) {
		lon = defaults.Longitude
	}

	return FeatureRecord{
		Latitude:       lat,
		Longitude:      lon,
		DiscoveryDOY:   doy,
		DiscoveryHour:  clampHour(in.DiscoveryHour),
		State:          cleanCategorical(Text(in.State), defaults.Unknown),
		StatCauseDescr: cause,
		OwnerDescr:     cleanCategorical(Text(in.OwnerDescr), defaults.Unknown),
		Season:         cleanCategorical(Text(in.Season), defaults.Unknown),
		CauseSimple:    simple,
	}
}

// Prediction is the scored outcome for one incident.
type Prediction struct {
	RiskTier      string             `json:"risk_tier"`
	ClassIndex    int                `json:"class_index"`
	Probabilities map[string]float64 `json:"probabilities"`
	Features      FeatureRecord      `json:"features"`
	ScoredAt      time.Time          `json:"scored_at"`
}

// NewPrediction picks the most probable tier. classes and probs are parallel;
// ties resolve to the lower class index.
func NewPrediction(classes []string, probs []float64, features FeatureRecord) Prediction {
	best := 0
	for i := range probs {
		if probs[i] > probs[best] {
			best = i
		}
	}
	byTier := make(map[string]float64, len(classes))
	for i, c := range classes {
		if i < len(probs) {
			byTier[c] = probs[i]
		}
	}
	tier := ""
	if best < len(classes) {
		tier = classes[best]
	}
	return Prediction{
		RiskTier:      tier,
		ClassIndex:    best,
		Probabilities: byTier,
		Features:      features,
		ScoredAt:      clock.Now().UTC(),
	}
}

// Restamped returns a copy of p scored now. The probability map is copied so
// the result can be handed out independently of the original.
func (p Prediction) Restamped() Prediction {
	probs := make(map[string]float64, len(p.Probabilities))
	for k, v := range p.Probabilities {
		probs[k] = v
	}
	p.Probabilities = probs
	p.ScoredAt = clock.Now().UTC()
	return p
}
