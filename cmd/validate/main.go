// Command validate checks a model bundle before it is deployed: the
// preprocessing artifacts restore cleanly, every vocabulary is populated, the
// classifier accepts the preprocessor's output and a smoke prediction
// succeeds. An exported training matrix is checked against the manifest too.
//
// Usage:
//
//	go run ./cmd/validate -artifact-dir models -matrix models/features.csv
package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/couchcryptid/wildfire-risk-service/internal/artifact"
	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// smokeInputs cover each season and a range of owners and causes, including
// values the vocabularies will not know.
var smokeInputs = []domain.ScoringInput{
	{Latitude: 38.5, Longitude: -120.2, DiscoveryDOY: 186, DiscoveryHour: 16, State: "CA", OwnerDescr: "USFS", Season: domain.SeasonSummer, StatCauseDescr: "Lightning"},
	{Latitude: 30.3, Longitude: -84.2, DiscoveryDOY: 40, DiscoveryHour: 11, State: "FL", OwnerDescr: "PRIVATE", Season: domain.SeasonWinter, StatCauseDescr: "Debris Burning"},
	{Latitude: 44.0, Longitude: -121.3, DiscoveryDOY: 280, DiscoveryHour: 2, State: "OR", OwnerDescr: "BLM", Season: domain.SeasonFall, StatCauseDescr: "Arson"},
	{Latitude: 0, Longitude: 0, DiscoveryDOY: 100, DiscoveryHour: 0, State: "ZZ", OwnerDescr: "", Season: "", StatCauseDescr: "Meteor"},
}

func main() {
	dir := flag.String("artifact-dir", "models", "model bundle directory")
	matrixPath := flag.String("matrix", "", "optional path to an exported training matrix")
	flag.Parse()

	if code := run(*dir, *matrixPath); code != 0 {
		os.Exit(code)
	}
}

func run(dir, matrixPath string) int {
	fmt.Println("=== Wildfire Model Bundle Validation ===")
	fmt.Println()

	bundle, err := artifact.Load(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load bundle: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateManifest(bundle),
		validateVocabularies(bundle),
		validateSmoke(bundle),
	}
	if matrixPath != "" {
		phases = append(phases, validateMatrix(bundle, matrixPath))
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Bundle: strategy=%s width=%d trees=%d classes=%v\n",
		bundle.Manifest.Strategy, bundle.Manifest.Width, len(bundle.Classifier.Trees), bundle.Classifier.Classes())

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: Manifest ──

func validateManifest(b *artifact.Bundle) *phase {
	p := &phase{name: "Phase 1: Manifest consistency"}

	names := b.Preprocessor.FeatureNames()
	if len(names) != len(b.Manifest.FeatureNames) {
		p.errorf("manifest lists %d features, preprocessor produces %d", len(b.Manifest.FeatureNames), len(names))
	} else {
		for i := range names {
			if names[i] != b.Manifest.FeatureNames[i] {
				p.errorf("feature %d: manifest %q, preprocessor %q", i, b.Manifest.FeatureNames[i], names[i])
			}
		}
	}

	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			p.errorf("duplicate feature name %q", n)
		}
		seen[n] = true
	}

	if b.Classifier.InputWidth() != b.Manifest.Width {
		p.errorf("classifier width %d, manifest width %d", b.Classifier.InputWidth(), b.Manifest.Width)
	}
	if len(b.Classifier.Classes()) != len(domain.RiskTiers) {
		p.errorf("classifier has %d classes, expected %d", len(b.Classifier.Classes()), len(domain.RiskTiers))
	}
	return p
}

// ── Phase 2: Vocabularies ──

func validateVocabularies(b *artifact.Bundle) *phase {
	p := &phase{name: "Phase 2: Categorical vocabularies"}

	for _, col := range b.Preprocessor.Layout().Categorical {
		vocab, ok := b.Preprocessor.Vocabulary(col)
		if !ok {
			p.errorf("%s: no encoder", col)
			continue
		}
		if len(vocab) == 0 {
			p.errorf("%s: empty vocabulary", col)
		}
		for i := 1; i < len(vocab); i++ {
			if vocab[i-1] >= vocab[i] {
				p.errorf("%s: vocabulary not sorted and unique at %q", col, vocab[i])
				break
			}
		}
	}
	return p
}

// ── Phase 3: Smoke predictions ──

func validateSmoke(b *artifact.Bundle) *phase {
	p := &phase{name: "Phase 3: Smoke predictions"}

	for i, in := range smokeInputs {
		rec := domain.FeatureFromInput(in, b.Defaults)
		x, err := b.Preprocessor.Transform(rec)
		if err != nil {
			p.errorf("input %d: transform: %v", i, err)
			continue
		}
		for j, v := range x {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				p.errorf("input %d: feature %d is %v", i, j, v)
			}
		}
		probs, err := b.Classifier.PredictProba(x)
		if err != nil {
			p.errorf("input %d: classify: %v", i, err)
			continue
		}
		sum := 0.0
		for _, v := range probs {
			if v < 0 || v > 1 {
				p.errorf("input %d: probability %v out of range", i, v)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-6 {
			p.errorf("input %d: probabilities sum to %v", i, sum)
		}
	}
	return p
}

// ── Phase 4: Training matrix ──

func validateMatrix(b *artifact.Bundle, path string) *phase {
	p := &phase{name: "Phase 4: Training matrix"}

	f, err := os.Open(path)
	if err != nil {
		p.errorf("open: %v", err)
		return p
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		p.errorf("read header: %v", err)
		return p
	}
	want := append(b.Preprocessor.FeatureNames(), domain.ColRiskLevel, domain.ColFireSize)
	if len(header) != len(want) {
		p.errorf("header has %d columns, expected %d", len(header), len(want))
		return p
	}
	for i := range want {
		if header[i] != want[i] {
			p.errorf("column %d: got %q, expected %q", i, header[i], want[i])
		}
	}

	tiers := make(map[string]bool, len(domain.RiskTiers))
	for _, t := range domain.RiskTiers {
		tiers[t] = true
	}

	width := b.Preprocessor.Width()
	rows := 0
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			p.errorf("row %d: %v", rows+2, err)
			return p
		}
		rows++
		for j := 0; j < width; j++ {
			if _, err := strconv.ParseFloat(row[j], 64); err != nil {
				p.errorf("row %d column %s: %q is not numeric", rows+1, header[j], row[j])
			}
		}
		if !tiers[row[width]] {
			p.errorf("row %d: unknown risk level %q", rows+1, row[width])
		}
	}
	if rows == 0 {
		p.errorf("no data rows")
	}
	fmt.Printf("  Matrix rows: %d\n", rows)
	return p
}
