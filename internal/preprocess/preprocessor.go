package preprocess

import (
	"fmt"

	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
)

// Layout is the ordered column routing of the model input vector.
type Layout struct {
	Numeric     []string `json:"numeric"`
	Categorical []string `json:"categorical"`
}

// DefaultLayout returns the canonical nine-feature layout, with the
// containment columns appended to the numeric block when requested.
func DefaultLayout(containment bool) Layout {
	numeric := []string{
		domain.ColLatitude,
		domain.ColLongitude,
		domain.ColDiscoveryDOY,
		domain.ColDiscoveryHour,
	}
	if containment {
		numeric = append(numeric, domain.ColContDOY, domain.ColContHour, domain.ColFireDuration)
	}
	return Layout{
		Numeric: numeric,
		Categorical: []string{
			domain.ColState,
			domain.ColStatCauseDescr,
			domain.ColOwnerDescr,
			domain.ColSeason,
			domain.ColCauseSimple,
		},
	}
}

// Preprocessor is a fitted scaler plus one encoder per categorical column.
// It is immutable after construction.
type Preprocessor struct {
	layout   Layout
	strategy Strategy
	scaler   *StandardScaler
	encoders []Encoder
	width    int
}

// Fit learns scaler parameters and encoder vocabularies from a batch.
func Fit(records []domain.FeatureRecord, layout Layout, strategy Strategy) (*Preprocessor, error) {
	if len(records) == 0 {
		return nil, ErrEmptyBatch
	}

	rows := make([][]float64, len(records))
	for i, rec := range records {
		row, err := numericRow(rec, layout.Numeric)
		if err != nil {
			return nil, err
		}
		rows[i] = row
	}
	scaler := NewStandardScaler(layout.Numeric)
	if err := scaler.Fit(rows); err != nil {
		return nil, fmt.Errorf("fit scaler: %w", err)
	}

	encoders := make([]Encoder, len(layout.Categorical))
	for j, col := range layout.Categorical {
		values := make([]string, len(records))
		for i, rec := range records {
			v, ok := rec.Categorical(col)
			if !ok {
				return nil, fmt.Errorf("unknown categorical column %s", col)
			}
			values[i] = v
		}
		enc, err := NewEncoder(strategy, col)
		if err != nil {
			return nil, err
		}
		if err := enc.Fit(values); err != nil {
			return nil, fmt.Errorf("fit encoder %s: %w", col, err)
		}
		encoders[j] = enc
	}

	return New(layout, strategy, scaler, encoders)
}

// New assembles a Preprocessor from already-fitted parts, typically restored
// from disk. Encoders must be given in the layout's categorical order.
func New(layout Layout, strategy Strategy, scaler *StandardScaler, encoders []Encoder) (*Preprocessor, error) {
	if scaler == nil {
		return nil, fmt.Errorf("scaler: %w", ErrNotFitted)
	}
	if err := scaler.Validate(); err != nil {
		return nil, err
	}
	if len(scaler.Columns) != len(layout.Numeric) {
		return nil, fmt.Errorf("scaler covers %d columns, layout has %d: %w",
			len(scaler.Columns), len(layout.Numeric), ErrWidthMismatch)
	}
	for j, col := range layout.Numeric {
		if scaler.Columns[j] != col {
			return nil, fmt.Errorf("scaler column %d is %s, layout expects %s", j, scaler.Columns[j], col)
		}
	}
	if len(encoders) != len(layout.Categorical) {
		return nil, fmt.Errorf("got %d encoders for %d categorical columns", len(encoders), len(layout.Categorical))
	}

	width := len(layout.Numeric)
	for j, enc := range encoders {
		if enc == nil || len(enc.Vocabulary()) == 0 {
			return nil, fmt.Errorf("encoder %s: %w", layout.Categorical[j], ErrNotFitted)
		}
		if enc.Column() != layout.Categorical[j] {
			return nil, fmt.Errorf("encoder %d is for %s, layout expects %s", j, enc.Column(), layout.Categorical[j])
		}
		width += enc.Width()
	}

	return &Preprocessor{
		layout:   layout,
		strategy: strategy,
		scaler:   scaler,
		encoders: encoders,
		width:    width,
	}, nil
}

// Transform produces the model input vector for one record.
func (p *Preprocessor) Transform(rec domain.FeatureRecord) ([]float64, error) {
	row, err := numericRow(rec, p.layout.Numeric)
	if err != nil {
		return nil, err
	}
	scaled, err := p.scaler.Transform(row)
	if err != nil {
		return nil, err
	}

	out := make([]float64, 0, p.width)
	out = append(out, scaled...)
	for j, enc := range p.encoders {
		v, ok := rec.Categorical(p.layout.Categorical[j])
		if !ok {
			return nil, fmt.Errorf("unknown categorical column %s", p.layout.Categorical[j])
		}
		out = enc.Encode(out, v)
	}
	return out, nil
}

// TransformBatch transforms every record, stopping at the first error.
func (p *Preprocessor) TransformBatch(records []domain.FeatureRecord) ([][]float64, error) {
	out := make([][]float64, len(records))
	for i, rec := range records {
		row, err := p.Transform(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out[i] = row
	}
	return out, nil
}

// FeatureNames lists the output columns in vector order.
func (p *Preprocessor) FeatureNames() []string {
	names := make([]string, 0, p.width)
	names = append(names, p.layout.Numeric...)
	for _, enc := range p.encoders {
		names = append(names, enc.Names()...)
	}
	return names
}

// Width is the length of every output vector.
func (p *Preprocessor) Width() int { return p.width }

func (p *Preprocessor) Layout() Layout { return p.layout }

func (p *Preprocessor) Strategy() Strategy { return p.strategy }

func (p *Preprocessor) Scaler() *StandardScaler { return p.scaler }

// Encoders returns the encoders in categorical-column order.
func (p *Preprocessor) Encoders() []Encoder { return append([]Encoder(nil), p.encoders...) }

// Vocabulary returns the known categories of a categorical column.
func (p *Preprocessor) Vocabulary(column string) ([]string, bool) {
	for _, enc := range p.encoders {
		if enc.Column() == column {
			return enc.Vocabulary(), true
		}
	}
	return nil, false
}

// Vocabularies returns every categorical column's known categories.
func (p *Preprocessor) Vocabularies() map[string][]string {
	out := make(map[string][]string, len(p.encoders))
	for _, enc := range p.encoders {
		out[enc.Column()] = enc.Vocabulary()
	}
	return out
}

func numericRow(rec domain.FeatureRecord, columns []string) ([]float64, error) {
	row := make([]float64, len(columns))
	for j, col := range columns {
		v, ok := rec.Numeric(col)
		if !ok {
			return nil, fmt.Errorf("unknown numeric column %s", col)
		}
		row[j] = v
	}
	return row, nil
}
