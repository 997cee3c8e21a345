package httpadapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/couchcryptid/wildfire-risk-service/internal/adapter/httpadapter"
	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
	"github.com/couchcryptid/wildfire-risk-service/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockScorer struct {
	readyErr  error
	scoreErr  error
	vocab     map[string][]string
	gotInput  domain.ScoringInput
	gotRecord domain.RawIncidentRecord
}

func (m *mockScorer) Score(_ context.Context, in domain.ScoringInput) (domain.Prediction, error) {
	m.gotInput = in
	if m.scoreErr != nil {
		return domain.Prediction{}, m.scoreErr
	}
	return domain.Prediction{
		RiskTier:      domain.RiskMedium,
		ClassIndex:    1,
		Probabilities: map[string]float64{domain.RiskLow: 0.2, domain.RiskMedium: 0.5, domain.RiskHigh: 0.3},
	}, nil
}

func (m *mockScorer) ScoreRecord(_ context.Context, rec domain.RawIncidentRecord) (domain.Prediction, error) {
	m.gotRecord = rec
	if m.scoreErr != nil {
		return domain.Prediction{}, m.scoreErr
	}
	return domain.Prediction{RiskTier: domain.RiskLow}, nil
}

func (m *mockScorer) Vocabularies() map[string][]string { return m.vocab }

func (m *mockScorer) CheckReadiness(_ context.Context) error { return m.readyErr }

func newTestServer(s *mockScorer) *httpadapter.Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return httpadapter.NewServer(":0", s, []string{"http://localhost:3000"}, logger)
}

func do(srv *httpadapter.Server, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

const validInput = `{"latitude":38.5,"longitude":-120.2,"discovery_doy":186,"discovery_hour":16,
	"state":"ca","owner_descr":"USFS","season":"Summer","stat_cause_descr":"Lightning"}`

func TestHealthzReturns200(t *testing.T) {
	rec := do(newTestServer(&mockScorer{}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzFollowsScorer(t *testing.T) {
	rec := do(newTestServer(&mockScorer{}), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(newTestServer(&mockScorer{readyErr: pipeline.ErrUnavailable}), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(newTestServer(&mockScorer{}), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestScore_ReturnsPrediction(t *testing.T) {
	s := &mockScorer{}
	rec := do(newTestServer(s), http.MethodPost, "/api/score", validInput)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var p domain.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, domain.RiskMedium, p.RiskTier)
	assert.InDelta(t, 0.5, p.Probabilities[domain.RiskMedium], 1e-9)
	assert.Equal(t, "CA", s.gotInput.State, "state is normalized before scoring")
}

func TestScore_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad json", `{"latitude":`, "bad json"},
		{"unknown field", `{"lat":1}`, "bad json"},
		{"doy range", `{"latitude":38.5,"longitude":-120.2,"discovery_doy":0,"discovery_hour":1,"state":"CA"}`, "discovery_doy"},
		{"hour range", `{"latitude":38.5,"longitude":-120.2,"discovery_doy":10,"discovery_hour":24,"state":"CA"}`, "discovery_hour"},
		{"latitude range", `{"latitude":91,"longitude":-120.2,"discovery_doy":10,"discovery_hour":1}`, "latitude"},
		{"outside state", `{"latitude":45.0,"longitude":-93.0,"discovery_doy":10,"discovery_hour":1,"state":"CA"}`, "outside CA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newTestServer(&mockScorer{}), http.MethodPost, "/api/score", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, errorBody(t, rec), tt.want)
		})
	}
}

func TestScore_UnknownStateSkipsBoundsCheck(t *testing.T) {
	body := `{"latitude":10,"longitude":10,"discovery_doy":10,"discovery_hour":1,"state":"ZZ"}`
	rec := do(newTestServer(&mockScorer{}), http.MethodPost, "/api/score", body)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestScore_Unavailable(t *testing.T) {
	rec := do(newTestServer(&mockScorer{scoreErr: pipeline.ErrUnavailable}), http.MethodPost, "/api/score", validInput)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "prediction unavailable", errorBody(t, rec))
}

func TestScore_InternalError(t *testing.T) {
	rec := do(newTestServer(&mockScorer{scoreErr: errors.New("classify: boom")}), http.MethodPost, "/api/score", validInput)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "scoring failed", errorBody(t, rec))
}

func TestScoreRecord_ConvertsFields(t *testing.T) {
	s := &mockScorer{}
	body := `{"latitude":38.5,"LONGITUDE":-120.2,"DISCOVERY_TIME":"0930","STATE":"CA","OWNER_DESCR":null}`
	rec := do(newTestServer(s), http.MethodPost, "/api/score/record", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, domain.Number(38.5), s.gotRecord[domain.ColLatitude])
	assert.Equal(t, domain.Text("0930"), s.gotRecord[domain.ColDiscoveryTime])
	assert.Equal(t, domain.Null(), s.gotRecord[domain.ColOwnerDescr])
}

func TestScoreRecord_Rejects(t *testing.T) {
	rec := do(newTestServer(&mockScorer{}), http.MethodPost, "/api/score/record", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(newTestServer(&mockScorer{}), http.MethodPost, "/api/score/record",
		`{"LATITUDE":30.0,"LONGITUDE":-85.0,"STATE":"WA"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec), "outside WA")
}

func TestVocabulary(t *testing.T) {
	s := &mockScorer{vocab: map[string][]string{domain.ColState: {"CA", "OR"}}}
	rec := do(newTestServer(s), http.MethodGet, "/api/vocabulary", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"CA", "OR"}, body[domain.ColState])

	rec = do(newTestServer(&mockScorer{}), http.MethodGet, "/api/vocabulary", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/score", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	newTestServer(&mockScorer{}).ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
