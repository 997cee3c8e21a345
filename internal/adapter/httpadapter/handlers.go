package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
	"github.com/couchcryptid/wildfire-risk-service/internal/pipeline"
)

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var in domain.ScoringInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	in.State = strings.ToUpper(strings.TrimSpace(in.State))
	if err := validateInput(in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := s.scorer.Score(r.Context(), in)
	if err != nil {
		s.writeScoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleScoreRecord scores a raw-equivalent record keyed by source column
// name. Missing columns are imputed with the training statistics.
func (s *Server) handleScoreRecord(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "record is empty")
		return
	}

	rec := make(domain.RawIncidentRecord, len(body))
	for col, v := range body {
		rec[strings.ToUpper(col)] = domain.FieldFromValue(v)
	}
	if err := validateRecordLocation(rec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := s.scorer.ScoreRecord(r.Context(), rec)
	if err != nil {
		s.writeScoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleVocabulary(w http.ResponseWriter, _ *http.Request) {
	vocab := s.scorer.Vocabularies()
	if vocab == nil {
		writeError(w, http.StatusServiceUnavailable, "prediction unavailable")
		return
	}
	writeJSON(w, http.StatusOK, vocab)
}

func (s *Server) writeScoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, pipeline.ErrUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "prediction unavailable")
		return
	}
	s.logger.Error("scoring failed", "error", err)
	writeError(w, http.StatusInternalServerError, "scoring failed")
}

func validateInput(in domain.ScoringInput) error {
	if in.DiscoveryDOY < 1 || in.DiscoveryDOY > 366 {
		return fmt.Errorf("discovery_doy %d out of range 1-366", in.DiscoveryDOY)
	}
	if in.DiscoveryHour < 0 || in.DiscoveryHour > 23 {
		return fmt.Errorf("discovery_hour %d out of range 0-23", in.DiscoveryHour)
	}
	return checkLocation(in.State, in.Latitude, in.Longitude)
}

// validateRecordLocation checks coordinates only when the record carries them.
func validateRecordLocation(rec domain.RawIncidentRecord) error {
	lat, latOK := rec[domain.ColLatitude].Float()
	lon, lonOK := rec[domain.ColLongitude].Float()
	if !latOK || !lonOK {
		return nil
	}
	state := ""
	if f := rec[domain.ColState]; f.Valid {
		state = strings.ToUpper(strings.TrimSpace(f.Raw))
	}
	return checkLocation(state, lat, lon)
}
