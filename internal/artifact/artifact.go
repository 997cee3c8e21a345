// Package artifact persists and loads the model bundle: the fitted
// preprocessing state written by the prepare job and the classifier produced
// by the external trainer.
//
// Layout of a bundle directory:
//
//	manifest.json          encoding strategy, column layout, defaults table
//	scaler.json            numeric scaler parameters
//	encoders/<COLUMN>.json one vocabulary per categorical column
//	imputation.json        frozen fill values for missing numerics
//	classifier.json        tree-ensemble classifier
//
// Each file loads independently; a missing one is reported as
// ErrMissingArtifact naming the file. The manifest carries a fingerprint of
// the fitted preprocessing state and the classifier must carry the same one,
// so a classifier trained against earlier encodings is rejected.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
	"github.com/couchcryptid/wildfire-risk-service/internal/model"
	"github.com/couchcryptid/wildfire-risk-service/internal/preprocess"
)

// ErrMissingArtifact is returned when a required bundle file does not exist.
var ErrMissingArtifact = errors.New("missing artifact")

// ErrStaleClassifier is returned when the classifier was trained against
// different preprocessing state than the bundle holds.
var ErrStaleClassifier = errors.New("classifier does not match preprocessing state")

// File names within a bundle directory.
const (
	ManifestFile   = "manifest.json"
	ScalerFile     = "scaler.json"
	ImputationFile = "imputation.json"
	ClassifierFile = "classifier.json"
	EncoderDir     = "encoders"
)

const manifestVersion = 1

// Manifest describes how the preprocessing state was produced.
type Manifest struct {
	Version      int                 `json:"version"`
	Strategy     preprocess.Strategy `json:"strategy"`
	Layout       preprocess.Layout   `json:"layout"`
	FeatureNames []string            `json:"feature_names"`
	Width        int                 `json:"width"`
	Defaults     domain.Defaults     `json:"defaults"`
	Fingerprint  string              `json:"fingerprint"`
}

type encoderFile struct {
	Column   string              `json:"column"`
	Strategy preprocess.Strategy `json:"strategy"`
	Classes  []string            `json:"classes"`
}

// Bundle is everything the scoring path needs.
type Bundle struct {
	Manifest     Manifest
	Preprocessor *preprocess.Preprocessor
	Classifier   *model.Forest
	Stats        domain.ImputationStats
	Defaults     domain.Defaults
}

// SavePreprocessing writes the manifest, scaler, encoders and imputation stats
// to dir, creating it if needed. A classifier already in dir is left in place
// but no longer loads unless the preprocessing state is unchanged.
func SavePreprocessing(dir string, p *preprocess.Preprocessor, stats domain.ImputationStats, defaults domain.Defaults) error {
	if err := os.MkdirAll(filepath.Join(dir, EncoderDir), 0o755); err != nil {
		return fmt.Errorf("create bundle dir: %w", err)
	}

	fp, err := Fingerprint(p)
	if err != nil {
		return err
	}
	manifest := Manifest{
		Version:      manifestVersion,
		Strategy:     p.Strategy(),
		Layout:       p.Layout(),
		FeatureNames: p.FeatureNames(),
		Width:        p.Width(),
		Defaults:     defaults.Merge(),
		Fingerprint:  fp,
	}
	if err := writeJSON(filepath.Join(dir, ManifestFile), manifest); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, ScalerFile), p.Scaler()); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, ImputationFile), stats); err != nil {
		return err
	}
	for _, enc := range p.Encoders() {
		ef := encoderFile{Column: enc.Column(), Strategy: p.Strategy(), Classes: enc.Vocabulary()}
		if err := writeJSON(encoderPath(dir, enc.Column()), ef); err != nil {
			return err
		}
	}
	return nil
}

// LoadPreprocessing restores the preprocessing state without the classifier.
func LoadPreprocessing(dir string) (*Bundle, error) {
	var manifest Manifest
	if err := readJSON(filepath.Join(dir, ManifestFile), &manifest); err != nil {
		return nil, err
	}
	if manifest.Version != manifestVersion {
		return nil, fmt.Errorf("manifest version %d not supported", manifest.Version)
	}

	var scaler preprocess.StandardScaler
	if err := readJSON(filepath.Join(dir, ScalerFile), &scaler); err != nil {
		return nil, err
	}

	encoders := make([]preprocess.Encoder, 0, len(manifest.Layout.Categorical))
	for _, col := range manifest.Layout.Categorical {
		var ef encoderFile
		if err := readJSON(encoderPath(dir, col), &ef); err != nil {
			return nil, err
		}
		if ef.Column != col {
			return nil, fmt.Errorf("encoder file for %s holds column %s", col, ef.Column)
		}
		if ef.Strategy != manifest.Strategy {
			return nil, fmt.Errorf("encoder %s uses strategy %s, manifest says %s", col, ef.Strategy, manifest.Strategy)
		}
		enc, err := preprocess.RestoreEncoder(ef.Strategy, col, ef.Classes)
		if err != nil {
			return nil, err
		}
		encoders = append(encoders, enc)
	}

	p, err := preprocess.New(manifest.Layout, manifest.Strategy, &scaler, encoders)
	if err != nil {
		return nil, fmt.Errorf("restore preprocessor: %w", err)
	}
	if p.Width() != manifest.Width {
		return nil, fmt.Errorf("restored width %d, manifest says %d: %w", p.Width(), manifest.Width, preprocess.ErrWidthMismatch)
	}
	fp, err := Fingerprint(p)
	if err != nil {
		return nil, err
	}
	if fp != manifest.Fingerprint {
		return nil, fmt.Errorf("scaler or encoder files do not match manifest fingerprint %q", manifest.Fingerprint)
	}

	var stats domain.ImputationStats
	if err := readJSON(filepath.Join(dir, ImputationFile), &stats); err != nil {
		return nil, err
	}

	return &Bundle{
		Manifest:     manifest,
		Preprocessor: p,
		Stats:        stats,
		Defaults:     manifest.Defaults.Merge(),
	}, nil
}

// Load restores the full bundle and checks that the classifier was trained
// against this preprocessing state and accepts its output width.
func Load(dir string) (*Bundle, error) {
	b, err := LoadPreprocessing(dir)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, ClassifierFile)
	clf, err := model.LoadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingArtifact, path)
		}
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if clf.BundleFingerprint != b.Manifest.Fingerprint {
		return nil, fmt.Errorf("%w: classifier fingerprint %q, bundle %q",
			ErrStaleClassifier, clf.BundleFingerprint, b.Manifest.Fingerprint)
	}
	if clf.InputWidth() != b.Preprocessor.Width() {
		return nil, fmt.Errorf("classifier expects %d features, preprocessor produces %d: %w",
			clf.InputWidth(), b.Preprocessor.Width(), model.ErrFeatureWidth)
	}
	b.Classifier = clf
	return b, nil
}

// SaveClassifier writes a classifier into a prepared bundle directory,
// stamping it with the manifest fingerprint.
func SaveClassifier(dir string, clf *model.Forest) error {
	var manifest Manifest
	if err := readJSON(filepath.Join(dir, ManifestFile), &manifest); err != nil {
		return err
	}
	stamped := *clf
	stamped.BundleFingerprint = manifest.Fingerprint
	return writeJSON(filepath.Join(dir, ClassifierFile), &stamped)
}

// Fingerprint hashes the parts of the preprocessing state a classifier
// depends on: strategy, layout, feature names, scaler and vocabularies.
func Fingerprint(p *preprocess.Preprocessor) (string, error) {
	state := struct {
		Strategy     preprocess.Strategy        `json:"strategy"`
		Layout       preprocess.Layout          `json:"layout"`
		FeatureNames []string                   `json:"feature_names"`
		Scaler       *preprocess.StandardScaler `json:"scaler"`
		Vocabularies map[string][]string        `json:"vocabularies"`
	}{p.Strategy(), p.Layout(), p.FeatureNames(), p.Scaler(), p.Vocabularies()}

	data, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("fingerprint preprocessing state: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func encoderPath(dir, column string) string {
	return filepath.Join(dir, EncoderDir, column+".json")
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrMissingArtifact, path)
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
