package domain

import (
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrMissingTargetColumn is returned on the training path when the source has
// no FIRE_SIZE column at all.
var ErrMissingTargetColumn = errors.New("source has no " + ColFireSize + " column")

// FeatureRecord is the engineered, model-ready view of one incident.
type FeatureRecord struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	DiscoveryDOY   int     `json:"discovery_doy"`
	DiscoveryHour  int     `json:"discovery_hour"`
	State          string  `json:"state"`
	StatCauseDescr string  `json:"stat_cause_descr"`
	OwnerDescr     string  `json:"owner_descr"`
	Season         string  `json:"season"`
	CauseSimple    string  `json:"cause_simple"`

	// Training path only.
	FireSize  float64 `json:"fire_size,omitempty"`
	RiskLevel string  `json:"risk_level,omitempty"`

	// Containment variant only.
	ContDOY      int     `json:"cont_doy,omitempty"`
	ContHour     int     `json:"cont_hour,omitempty"`
	FireDuration float64 `json:"fire_duration,omitempty"`
}

// Numeric returns the value of a numeric feature column.
func (r FeatureRecord) Numeric(col string) (float64, bool) {
	switch col {
	case ColLatitude:
		return r.Latitude, true
	case ColLongitude:
		return r.Longitude, true
	case ColDiscoveryDOY:
		return float64(r.DiscoveryDOY), true
	case ColDiscoveryHour:
		return float64(r.DiscoveryHour), true
	case ColContDOY:
		return float64(r.ContDOY), true
	case ColContHour:
		return float64(r.ContHour), true
	case ColFireDuration:
		return r.FireDuration, true
	case ColFireSize:
		return r.FireSize, true
	default:
		return 0, false
	}
}

// Categorical returns the value of a categorical feature column.
func (r FeatureRecord) Categorical(col string) (string, bool) {
	switch col {
	case ColState:
		return r.State, true
	case ColStatCauseDescr:
		return r.StatCauseDescr, true
	case ColOwnerDescr:
		return r.OwnerDescr, true
	case ColSeason:
		return r.Season, true
	case ColCauseSimple:
		return r.CauseSimple, true
	case ColRiskLevel:
		return r.RiskLevel, true
	default:
		return "", false
	}
}

// ImputationStats are the fill values used for missing numerics. Returned by
// Engineer and accepted back through Options.Stats so that scoring fills gaps
// exactly the way training did.
type ImputationStats struct {
	Hour      int     `json:"hour"`
	DayOfYear int     `json:"day_of_year"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	ContHour  int     `json:"cont_hour,omitempty"`
	ContDOY   int     `json:"cont_doy,omitempty"`
}

// EngineReport summarises what the engine had to repair.
type EngineReport struct {
	InputRows         int
	OutputRows        int
	DroppedTargetRows int
	// Imputed counts filled values per column.
	Imputed map[string]int
	// SchemaDefaults lists columns absent from the source that were filled
	// column-wide from the defaults table.
	SchemaDefaults []string
}

// Options controls an Engineer run.
type Options struct {
	// Target enables the training path: FIRE_SIZE cleaning with row
	// exclusion and RISK_LEVEL derivation.
	Target bool
	// Containment keeps containment columns and derives CONT_HOUR, CONT_DOY
	// and FIRE_DURATION.
	Containment bool
	// Defaults is the fill table, normalised with Merge. The zero value means
	// the built-in table; a partial override should start from DefaultTable.
	Defaults Defaults
	// Stats, when set, replaces batch medians as the fill source.
	Stats *ImputationStats
}

// Result is the output of Engineer.
type Result struct {
	Records []FeatureRecord
	Stats   ImputationStats
	Report  EngineReport
}

// Engineer turns a raw batch into feature records. It never mutates the input
// frame. Malformed fields degrade to imputed or default values; the only row
// rejection is an uncoercible FIRE_SIZE on the training path.
func Engineer(frame *RawFrame, opts Options) (Result, error) {
	defaults := opts.Defaults.Merge()

	cols := pruned(frame, opts.Containment)
	n := frame.Len()
	report := EngineReport{InputRows: n, Imputed: map[string]int{}}
	var stats ImputationStats

	fireSizes, hasTarget := cols[ColFireSize]
	if opts.Target && !hasTarget {
		return Result{}, ErrMissingTargetColumn
	}

	// Discovery hour: median over the whole batch, before target exclusion.
	hours, hourFill := engineerHours(cols, ColDiscoveryTime, n, opts.Stats, statHour, defaults, &report)
	stats.Hour = hourFill

	// Discovery date, day of year and season.
	discDates, discOK := parseDates(cols, ColDiscoveryDate, n)
	doys, doyFill := engineerDOY(discDates, discOK, cols, ColDiscoveryDate, "", n, opts.Stats, statDOY, defaults, &report)
	stats.DayOfYear = doyFill

	seasons := make([]string, n)
	for i := range seasons {
		if discOK[i] {
			seasons[i] = SeasonOf(discDates[i].Month())
		} else {
			seasons[i] = defaults.Unknown
		}
	}

	causes := column(cols, ColStatCauseDescr, n)
	simple := make([]string, n)
	for i, c := range causes {
		simple[i] = simplifyCause(c, defaults.Unknown)
	}

	var contHours, contDOYs []int
	var durations []float64
	if opts.Containment {
		var contHourFill, contDOYFill int
		contHours, contHourFill = engineerHours(cols, ColContTime, n, opts.Stats, statContHour, defaults, &report)
		contDates, contOK := parseDates(cols, ColContDate, n)
		contDOYs, contDOYFill = engineerDOY(contDates, contOK, cols, ColContDate, ColContDOY, n, opts.Stats, statContDOY, defaults, &report)
		stats.ContHour = contHourFill
		stats.ContDOY = contDOYFill

		durations = make([]float64, n)
		for i := range durations {
			if discOK[i] && contOK[i] {
				durations[i] = math.Floor(contDates[i].Sub(discDates[i]).Hours() / 24)
			} else {
				durations[i] = defaults.FireDuration
			}
		}
	}

	// Target cleaning decides which rows survive.
	keep := make([]bool, n)
	sizes := make([]float64, n)
	for i := range keep {
		keep[i] = true
		if !opts.Target {
			continue
		}
		v, ok := CleanTarget(fireSizes[i])
		if !ok {
			keep[i] = false
			report.DroppedTargetRows++
			continue
		}
		sizes[i] = v
	}

	// Latitude and longitude medians are taken over the surviving rows.
	lats, latFill := engineerCoordinate(cols, ColLatitude, keep, n, opts.Stats, statLatitude, defaults.Latitude, &report)
	lons, lonFill := engineerCoordinate(cols, ColLongitude, keep, n, opts.Stats, statLongitude, defaults.Longitude, &report)
	stats.Latitude = latFill
	stats.Longitude = lonFill

	states := column(cols, ColState, n)
	owners := column(cols, ColOwnerDescr, n)
	sizeClasses := column(cols, ColFireSizeClass, n)
	for _, c := range []string{ColState, ColOwnerDescr, ColStatCauseDescr} {
		if _, ok := cols[c]; !ok {
			report.SchemaDefaults = append(report.SchemaDefaults, c)
		}
	}

	records := make([]FeatureRecord, 0, n)
	for i := 0; i < n; i++ {
		if !keep[i] {
			continue
		}
		rec := FeatureRecord{
			Latitude:       lats[i],
			Longitude:      lons[i],
			DiscoveryDOY:   doys[i],
			DiscoveryHour:  hours[i],
			State:          cleanCategorical(states[i], defaults.Unknown),
			StatCauseDescr: cleanCategorical(causes[i], defaults.Unknown),
			OwnerDescr:     cleanCategorical(owners[i], defaults.Unknown),
			Season:         seasons[i],
			CauseSimple:    simple[i],
		}
		if opts.Target {
			rec.FireSize = sizes[i]
			rec.RiskLevel = riskFromSizeClass(sizeClasses[i], defaults.UnmappedRisk)
		}
		if opts.Containment {
			rec.ContHour = contHours[i]
			rec.ContDOY = contDOYs[i]
			rec.FireDuration = durations[i]
		}
		records = append(records, rec)
	}

	report.OutputRows = len(records)
	sort.Strings(report.SchemaDefaults)
	return Result{Records: records, Stats: stats, Report: report}, nil
}

// pruned returns the frame's columns minus the unconditional drop list. The
// map is a copy; column slices are shared read-only.
func pruned(frame *RawFrame, containment bool) map[string][]Field {
	cols := make(map[string][]Field, len(frame.columns))
	for name, values := range frame.columns {
		cols[name] = values
	}
	for _, name := range prunedColumns {
		delete(cols, name)
	}
	if !containment {
		for _, name := range containmentColumns {
			delete(cols, name)
		}
	}
	return cols
}

// column returns the named column, or an all-NULL column when absent.
func column(cols map[string][]Field, name string, n int) []Field {
	if v, ok := cols[name]; ok {
		return v
	}
	return make([]Field, n)
}

type statKey int

const (
	statHour statKey = iota
	statDOY
	statContHour
	statContDOY
	statLatitude
	statLongitude
)

func frozenInt(stats *ImputationStats, key statKey) (int, bool) {
	if stats == nil {
		return 0, false
	}
	switch key {
	case statHour:
		return stats.Hour, true
	case statDOY:
		return stats.DayOfYear, true
	case statContHour:
		return stats.ContHour, true
	case statContDOY:
		return stats.ContDOY, true
	}
	return 0, false
}

func frozenFloat(stats *ImputationStats, key statKey) (float64, bool) {
	if stats == nil {
		return 0, false
	}
	switch key {
	case statLatitude:
		return stats.Latitude, true
	case statLongitude:
		return stats.Longitude, true
	}
	return 0, false
}

// engineerHours parses an encoded-time column into clamped hours and fills the
// gaps. An absent column is filled column-wide with the default hour.
func engineerHours(cols map[string][]Field, name string, n int, frozen *ImputationStats, key statKey, defaults Defaults, report *EngineReport) ([]int, int) {
	out := make([]int, n)
	values, ok := cols[name]
	if !ok {
		fill, frozenOK := frozenInt(frozen, key)
		if !frozenOK {
			fill = defaults.Hour
		}
		for i := range out {
			out[i] = fill
		}
		report.SchemaDefaults = append(report.SchemaDefaults, name)
		return out, fill
	}

	parsed := make([]bool, n)
	var seen []float64
	for i, v := range values {
		h, ok := HourOf(v)
		if !ok {
			continue
		}
		out[i] = h
		parsed[i] = true
		seen = append(seen, float64(h))
	}

	fill, frozenOK := frozenInt(frozen, key)
	if !frozenOK {
		fill = defaults.Hour
		if m, ok := median(seen); ok {
			fill = clampHour(int(math.Round(m)))
		}
	}
	for i := range out {
		if !parsed[i] {
			out[i] = fill
			report.Imputed[hourColumnFor(name)]++
		}
	}
	return out, fill
}

func hourColumnFor(timeCol string) string {
	if timeCol == ColContTime {
		return ColContHour
	}
	return ColDiscoveryHour
}

// parseDates converts a Julian-day column to calendar dates. ok[i] is false
// for rows whose value is missing or not convertible.
func parseDates(cols map[string][]Field, name string, n int) ([]time.Time, []bool) {
	dates := make([]time.Time, n)
	ok := make([]bool, n)
	values, present := cols[name]
	if !present {
		return dates, ok
	}
	for i, v := range values {
		jd, valid := v.Float()
		if !valid {
			continue
		}
		dates[i], ok[i] = DateFromJulian(jd)
	}
	return dates, ok
}

// engineerDOY derives day-of-year from parsed dates. Rows without a date fall
// back to the optional raw DOY column, then to the fill value. An absent date
// column with no raw DOY fallback is a schema-level default.
func engineerDOY(dates []time.Time, ok []bool, cols map[string][]Field, dateCol, rawCol string, n int, frozen *ImputationStats, key statKey, defaults Defaults, report *EngineReport) ([]int, int) {
	outCol := ColDiscoveryDOY
	if key == statContDOY {
		outCol = ColContDOY
	}

	out := make([]int, n)
	have := make([]bool, n)
	var seen []float64
	raw, hasRaw := cols[rawCol]
	for i := range out {
		switch {
		case ok[i]:
			out[i] = dates[i].YearDay()
		case hasRaw:
			v, valid := raw[i].Float()
			if !valid || v < 1 || v > 366 {
				continue
			}
			out[i] = int(v)
		default:
			continue
		}
		have[i] = true
		seen = append(seen, float64(out[i]))
	}

	_, hasDate := cols[dateCol]
	fill, frozenOK := frozenInt(frozen, key)
	if !frozenOK {
		fill = defaults.DayOfYear
		if m, ok := median(seen); ok {
			fill = int(math.Round(m))
		}
	}
	if !hasDate && !hasRaw {
		report.SchemaDefaults = append(report.SchemaDefaults, dateCol)
	}
	for i := range out {
		if !have[i] {
			out[i] = fill
			if hasDate || hasRaw {
				report.Imputed[outCol]++
			}
		}
	}
	return out, fill
}

// engineerCoordinate coerces a coordinate column and fills unparseable values
// with the median over kept rows.
func engineerCoordinate(cols map[string][]Field, name string, keep []bool, n int, frozen *ImputationStats, key statKey, def float64, report *EngineReport) ([]float64, float64) {
	out := make([]float64, n)
	values, present := cols[name]
	parsed := make([]bool, n)
	var seen []float64
	if present {
		for i, v := range values {
			f, ok := v.Float()
			if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
				continue
			}
			out[i] = f
			parsed[i] = true
			if keep[i] {
				seen = append(seen, f)
			}
		}
	} else {
		report.SchemaDefaults = append(report.SchemaDefaults, name)
	}

	fill, frozenOK := frozenFloat(frozen, key)
	if !frozenOK {
		fill = def
		if m, ok := median(seen); ok {
			fill = m
		}
	}
	for i := range out {
		if !parsed[i] {
			out[i] = fill
			if present && keep[i] {
				report.Imputed[name]++
			}
		}
	}
	return out, fill
}

// HourOf converts an encoded clock time (930 -> 09:30) to its hour. The token
// is coerced to an integer, zero-padded to four digits and the first two
// characters are read as the hour, clamped to [0,23]. Missing or unparseable
// tokens report false.
func HourOf(token Field) (int, bool) {
	v, ok := token.Float()
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) >= 1e18 {
		return 0, false
	}
	s := zfill(strconv.FormatInt(int64(v), 10), 4)
	h, err := strconv.Atoi(s[:2])
	if err != nil {
		return 0, false
	}
	return clampHour(h), true
}

// zfill left-pads s with zeros to width, keeping a leading sign in front.
func zfill(s string, width int) string {
	if len(s) >= width {
		return s
	}
	pad := strings.Repeat("0", width-len(s))
	if s != "" && (s[0] == '-' || s[0] == '+') {
		return s[:1] + pad + s[1:]
	}
	return pad + s
}

func clampHour(h int) int {
	if h < 0 {
		return 0
	}
	if h > 23 {
		return 23
	}
	return h
}

// julianUnixEpoch is the Julian day number of 1970-01-01T00:00:00Z.
const julianUnixEpoch = 2440587.5

// DateFromJulian converts a Julian day number to a UTC calendar time. Values
// that are not finite or fall outside years 1678–2261 are not convertible.
func DateFromJulian(jd float64) (time.Time, bool) {
	if math.IsNaN(jd) || math.IsInf(jd, 0) {
		return time.Time{}, false
	}
	days := jd - julianUnixEpoch
	if math.Abs(days) > 200000 {
		return time.Time{}, false
	}
	whole := math.Floor(days)
	frac := days - whole
	t := time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, int(whole)).
		Add(time.Duration(math.Round(frac * 24 * float64(time.Hour))))
	if t.Year() < 1678 || t.Year() > 2261 {
		return time.Time{}, false
	}
	return t, true
}

// DayOfYearOf returns the Gregorian day-of-year for a Julian day number, or
// the default mid-year day when the number is not convertible.
func DayOfYearOf(jd float64) int {
	t, ok := DateFromJulian(jd)
	if !ok {
		return DefaultTable().DayOfYear
	}
	return t.YearDay()
}

// SeasonOf maps a calendar month to its meteorological season. Months outside
// 1–12 map to Unknown.
func SeasonOf(m time.Month) string {
	switch m {
	case time.December, time.January, time.February:
		return SeasonWinter
	case time.March, time.April, time.May:
		return SeasonSpring
	case time.June, time.July, time.August:
		return SeasonSummer
	case time.September, time.October, time.November:
		return SeasonFall
	default:
		return DefaultTable().Unknown
	}
}

// SimplifyCause buckets a cause description into Human, Natural or Unknown by
// exact, case-sensitive lookup.
func SimplifyCause(cause Field) string {
	return simplifyCause(cause, DefaultTable().Unknown)
}

func simplifyCause(cause Field, unknown string) string {
	if !cause.Valid {
		return unknown
	}
	if _, ok := humanCauses[cause.Raw]; ok {
		return CauseHuman
	}
	if _, ok := naturalCauses[cause.Raw]; ok {
		return CauseNatural
	}
	return unknown
}

// RiskFromSizeClass buckets a fire size class: A/B Low, C/D/E Medium and
// anything else, including a missing class, High.
func RiskFromSizeClass(class Field) string {
	return riskFromSizeClass(class, DefaultTable().UnmappedRisk)
}

func riskFromSizeClass(class Field, unmapped string) string {
	if !class.Valid {
		return unmapped
	}
	switch class.Raw {
	case "A", "B":
		return RiskLow
	case "C", "D", "E":
		return RiskMedium
	default:
		return unmapped
	}
}

// CleanTarget coerces a fire size to a number, clamps negatives to zero and
// applies log1p. Values that cannot be coerced to a finite number report false.
func CleanTarget(size Field) (float64, bool) {
	v, ok := size.Float()
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if v < 0 {
		v = 0
	}
	return math.Log1p(v), true
}

func cleanCategorical(f Field, unknown string) string {
	if !f.Valid || strings.TrimSpace(f.Raw) == "" {
		return unknown
	}
	return f.Raw
}

// median returns the median of values; false when values is empty.
func median(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid], true
	}
	return (s[mid-1] + s[mid]) / 2, true
}
