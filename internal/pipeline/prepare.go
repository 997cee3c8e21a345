package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/wildfire-risk-service/internal/artifact"
	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
	"github.com/couchcryptid/wildfire-risk-service/internal/observability"
	"github.com/couchcryptid/wildfire-risk-service/internal/preprocess"
)

// Source reads the raw incident table wholesale.
type Source interface {
	FetchAll(ctx context.Context) (*domain.RawFrame, error)
}

// Fetch retry backoff: start at 200ms, double each retry, cap at 5s.
const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// MatrixFile is the training-matrix file name written next to the bundle.
const MatrixFile = "features.csv"

// PrepareOptions configures a preparation run.
type PrepareOptions struct {
	Strategy    preprocess.Strategy
	Containment bool
	Defaults    domain.Defaults
	ArtifactDir string
	// WriteMatrix exports the training matrix to ArtifactDir/features.csv.
	WriteMatrix bool
	// MaxAttempts bounds source fetch attempts; values below 1 mean 1.
	MaxAttempts int
}

// PrepareResult summarises a completed run.
type PrepareResult struct {
	Report       domain.EngineReport
	Stats        domain.ImputationStats
	FeatureNames []string
	MatrixPath   string
}

// Preparer runs the training-side flow: fetch, engineer, fit, persist.
type Preparer struct {
	source  Source
	opts    PrepareOptions
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewPreparer creates a Preparer reading from source.
func NewPreparer(source Source, opts PrepareOptions, logger *slog.Logger, metrics *observability.Metrics) *Preparer {
	return &Preparer{source: source, opts: opts, logger: logger, metrics: metrics}
}

// Run executes one preparation. Nothing is written to the bundle until the
// preprocessor is fitted and, when requested, the training matrix is staged.
func (p *Preparer) Run(ctx context.Context) (PrepareResult, error) {
	start := time.Now()
	p.logger.Info("preparation started",
		"strategy", p.opts.Strategy,
		"containment", p.opts.Containment,
		"artifact_dir", p.opts.ArtifactDir,
	)

	frame, err := p.fetch(ctx)
	if err != nil {
		return PrepareResult{}, err
	}
	p.metrics.RecordsRead.Add(float64(frame.Len()))

	defaults := p.opts.Defaults.Merge()
	res, err := domain.Engineer(frame, domain.Options{
		Target:      true,
		Containment: p.opts.Containment,
		Defaults:    defaults,
	})
	if err != nil {
		return PrepareResult{}, fmt.Errorf("engineer features: %w", err)
	}
	p.observeReport(res.Report)
	if len(res.Records) == 0 {
		return PrepareResult{}, fmt.Errorf("no usable rows: all %d rows dropped", res.Report.InputRows)
	}

	pre, err := preprocess.Fit(res.Records, preprocess.DefaultLayout(p.opts.Containment), p.opts.Strategy)
	if err != nil {
		return PrepareResult{}, fmt.Errorf("fit preprocessor: %w", err)
	}

	out := PrepareResult{
		Report:       res.Report,
		Stats:        res.Stats,
		FeatureNames: pre.FeatureNames(),
	}

	// The matrix is staged first so a failed export leaves no new bundle.
	var staged string
	if p.opts.WriteMatrix {
		if err := os.MkdirAll(p.opts.ArtifactDir, 0o755); err != nil {
			return PrepareResult{}, fmt.Errorf("create artifact dir: %w", err)
		}
		staged = filepath.Join(p.opts.ArtifactDir, MatrixFile+".tmp")
		if err := writeMatrixFile(staged, pre, res.Records); err != nil {
			os.Remove(staged)
			return PrepareResult{}, err
		}
	}

	if err := artifact.SavePreprocessing(p.opts.ArtifactDir, pre, res.Stats, defaults); err != nil {
		p.logger.Error("persist preprocessing failed", "error", err, "artifact_dir", p.opts.ArtifactDir)
		if staged != "" {
			os.Remove(staged)
		}
		return PrepareResult{}, fmt.Errorf("save preprocessing: %w", err)
	}

	if staged != "" {
		path := filepath.Join(p.opts.ArtifactDir, MatrixFile)
		if err := os.Rename(staged, path); err != nil {
			return PrepareResult{}, fmt.Errorf("publish training matrix: %w", err)
		}
		out.MatrixPath = path
	}

	elapsed := time.Since(start)
	p.metrics.PrepareDuration.Observe(elapsed.Seconds())
	p.logger.Info("preparation complete",
		"rows_in", res.Report.InputRows,
		"rows_out", res.Report.OutputRows,
		"width", pre.Width(),
		"duration", elapsed,
	)
	return out, nil
}

// fetch reads the source, retrying transient failures with backoff.
func (p *Preparer) fetch(ctx context.Context) (*domain.RawFrame, error) {
	attempts := p.opts.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := initialBackoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		frame, err := p.source.FetchAll(ctx)
		if err == nil {
			p.logger.Info("source fetched", "rows", frame.Len(), "columns", len(frame.Columns()))
			return frame, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == attempts {
			break
		}
		p.logger.Warn("fetch failed, retrying", "error", err, "attempt", attempt, "backoff", backoff)
		p.metrics.FetchRetries.Inc()
		if !retry.SleepWithContext(ctx, backoff) {
			return nil, ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
	return nil, fmt.Errorf("fetch source after %d attempts: %w", attempts, lastErr)
}

func (p *Preparer) observeReport(r domain.EngineReport) {
	if r.DroppedTargetRows > 0 {
		p.logger.Warn("rows dropped for unusable fire size", "count", r.DroppedTargetRows)
		p.metrics.TargetRowsDropped.Add(float64(r.DroppedTargetRows))
	}

	cols := make([]string, 0, len(r.Imputed))
	for c := range r.Imputed {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	for _, c := range cols {
		p.logger.Debug("values imputed", "column", c, "count", r.Imputed[c])
		p.metrics.FieldsImputed.WithLabelValues(c).Add(float64(r.Imputed[c]))
	}

	for _, c := range r.SchemaDefaults {
		p.logger.Warn("source column missing, filled with default", "column", c)
		p.metrics.SchemaDefaults.WithLabelValues(c).Inc()
	}
}

func writeMatrixFile(path string, pre *preprocess.Preprocessor, records []domain.FeatureRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create training matrix: %w", err)
	}
	if err := WriteMatrix(f, pre, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
