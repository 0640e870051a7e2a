package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l10dash/l10dash/pkg/agg"
	"github.com/l10dash/l10dash/pkg/config"
	"github.com/l10dash/l10dash/pkg/ingest"
	"github.com/l10dash/l10dash/pkg/store"
	"github.com/l10dash/l10dash/pkg/timeutil"
)

// idleRunner satisfies ingest.PassRunner for a scheduler that is never
// started.
type idleRunner struct{}

func (idleRunner) RunPass(context.Context) (*ingest.PassReport, error) {
	return &ingest.PassReport{}, nil
}

func setupServer(t *testing.T) (*server, store.Store) {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	st := store.NewStore(log, &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, st.Start(context.Background()))
	t.Cleanup(func() { _ = st.Stop() })

	zones, err := timeutil.LoadZones("Asia/Taipei", "America/Los_Angeles")
	require.NoError(t, err)

	cfg := &config.Config{}

	srv := &server{
		log:      log,
		cfg:      cfg,
		store:    st,
		engine:   agg.NewEngine(log, st, zones),
		sched:    ingest.NewScheduler(log, idleRunner{}, time.Hour, time.Hour),
		registry: prometheus.NewRegistry(),
	}

	return srv, st
}

func seedResult(
	t *testing.T, st store.Store,
	folder, archive, outcome string, observedAt time.Time,
) {
	t.Helper()

	_, err := st.InsertResult(context.Background(), &store.TestResult{
		FolderName:  folder,
		ArchiveName: archive,
		Model:       "ModelX",
		Serial:      "1830326000001",
		Outcome:     outcome,
		Station:     "ST2",
		ObservedAt:  observedAt,
		IngestedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
}

func doRequest(t *testing.T, srv *server, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	return rec
}

func TestHandleHealth(t *testing.T) {
	srv, _ := setupServer(t)

	rec := doRequest(t, srv, "/api/v1/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleStats_Windowed(t *testing.T) {
	srv, st := setupServer(t)

	inside := time.Date(2024, 1, 15, 18, 31, 0, 0, time.UTC)
	outside := inside.Add(48 * time.Hour)

	seedResult(t, st, "104732", "in.zip", store.OutcomePass, inside)
	seedResult(t, st, "104801", "out.zip", store.OutcomeFail, outside)

	from := inside.Add(-time.Hour).Unix()
	to := inside.Add(time.Hour).Unix()

	rec := doRequest(t, srv,
		"/api/v1/stats?from="+itoa(from)+"&to="+itoa(to))
	require.Equal(t, http.StatusOK, rec.Code)

	var summary agg.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))

	assert.EqualValues(t, 1, summary.Total)
	assert.EqualValues(t, 1, summary.Passed)
	assert.EqualValues(t, 0, summary.Failed)
}

func TestHandleStats_BadBound(t *testing.T) {
	srv, _ := setupServer(t)

	rec := doRequest(t, srv, "/api/v1/stats?from=notatime")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRecent_LimitClamp(t *testing.T) {
	srv, st := setupServer(t)

	base := time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedResult(t, st, "104732", itoa(int64(i))+".zip",
			store.OutcomePass, base.Add(time.Duration(i)*time.Minute))
	}

	rec := doRequest(t, srv, "/api/v1/recent?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var views []agg.ResultView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	assert.Len(t, views, 2)

	// Newest first.
	assert.Equal(t, "4.zip", views[0].ArchiveName)

	rec = doRequest(t, srv, "/api/v1/recent?limit=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleScannerStatus(t *testing.T) {
	srv, _ := setupServer(t)

	rec := doRequest(t, srv, "/api/v1/scanner/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var status scannerStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, ingest.StateWarming, status.State)
	assert.Nil(t, status.LastPass)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := setupServer(t)

	rec := doRequest(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleSeedSample(t *testing.T) {
	srv, _ := setupServer(t)
	srv.cfg.Server.DevEndpoints = true

	router := srv.buildRouter()

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(
			http.MethodPost, "/api/v1/seed-sample", nil,
		)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		return rec
	}

	rec := post()
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, len(sampleArchives), body["inserted"])

	// Seeding goes through the normal dedup path, so it is idempotent.
	rec = post()
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 0, body["inserted"])

	recGet := doRequest(t, srv, "/api/v1/recent")
	require.Equal(t, http.StatusOK, recGet.Code)

	var views []agg.ResultView
	require.NoError(t, json.Unmarshal(recGet.Body.Bytes(), &views))
	assert.Len(t, views, len(sampleArchives))
}

func TestHandleSeedSample_DisabledByDefault(t *testing.T) {
	srv, _ := setupServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/seed-sample", nil)
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
