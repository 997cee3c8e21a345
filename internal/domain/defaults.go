package domain

import "strings"

// Defaults is the single table of fill values the engine falls back to when a
// value is missing and no batch statistic can be computed.
type Defaults struct {
	Hour         int     `yaml:"hour" json:"hour"`
	DayOfYear    int     `yaml:"day_of_year" json:"day_of_year"`
	Unknown      string  `yaml:"unknown" json:"unknown"`
	UnmappedRisk string  `yaml:"unmapped_risk" json:"unmapped_risk"`
	Latitude     float64 `yaml:"latitude" json:"latitude"`
	Longitude    float64 `yaml:"longitude" json:"longitude"`
	FireDuration float64 `yaml:"fire_duration" json:"fire_duration"`
}

// DefaultTable returns the built-in defaults. Latitude and longitude default
// to the geographic center of the contiguous United States.
func DefaultTable() Defaults {
	return Defaults{
		Hour:         12,
		DayOfYear:    183,
		Unknown:      "Unknown",
		UnmappedRisk: RiskHigh,
		Latitude:     39.83,
		Longitude:    -98.58,
		FireDuration: -1,
	}
}

// Merge returns d with out-of-range hour, day-of-year and risk entries and a
// blank unknown label replaced by the built-in value. A zero Defaults yields
// the built-in table. Otherwise zero numbers are taken as set: hour 0, a zero
// FireDuration and a 0,0 coordinate are kept, so a partial override must be
// built on DefaultTable:
//
//	d := DefaultTable()
//	d.Hour = 5
func (d Defaults) Merge() Defaults {
	base := DefaultTable()
	if d == (Defaults{}) {
		return base
	}
	if d.Hour < 0 || d.Hour > 23 {
		d.Hour = base.Hour
	}
	if d.DayOfYear < 1 || d.DayOfYear > 366 {
		d.DayOfYear = base.DayOfYear
	}
	if strings.TrimSpace(d.Unknown) == "" {
		d.Unknown = base.Unknown
	}
	switch d.UnmappedRisk {
	case RiskLow, RiskMedium, RiskHigh:
	default:
		d.UnmappedRisk = base.UnmappedRisk
	}
	return d
}

// Risk tiers produced by the classifier and by size-class bucketing.
const (
	RiskLow    = "Low"
	RiskMedium = "Medium"
	RiskHigh   = "High"
)

// RiskTiers lists the tiers in class-index order: 0=Low, 1=Medium, 2=High.
var RiskTiers = []string{RiskLow, RiskMedium, RiskHigh}

// Seasons in calendar order, plus the unknown bucket.
const (
	SeasonWinter = "Winter"
	SeasonSpring = "Spring"
	SeasonSummer = "Summer"
	SeasonFall   = "Fall"
)

// Simplified cause labels.
const (
	CauseHuman   = "Human"
	CauseNatural = "Natural"
)

// prunedColumns are dropped unconditionally: identifiers, free-text names and
// high-missing metadata.
var prunedColumns = []string{
	"LOCAL_FIRE_REPORT_ID", "LOCAL_INCIDENT_ID", "FIRE_CODE", "FIRE_NAME",
	"ICS_209_INCIDENT_NUMBER", "ICS_209_NAME", "MTBS_ID", "MTBS_FIRE_NAME",
	"COMPLEX_NAME", "FIPS_CODE", "FIPS_NAME",
	"FIRE_DURATION", "DISCOVERY_HOUR_MISSING", "CONT_HOUR_MISSING",
}

// containmentColumns are pruned too unless the containment variant is enabled.
var containmentColumns = []string{ColContDate, ColContDOY, ColContTime}

var humanCauses = map[string]struct{}{
	"Arson":          {},
	"Debris Burning": {},
	"Equipment Use":  {},
	"Smoking":        {},
	"Campfire":       {},
	"Children":       {},
	"Fireworks":      {},
}

var naturalCauses = map[string]struct{}{
	"Lightning": {},
}
