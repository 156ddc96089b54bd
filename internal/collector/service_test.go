package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telemetry-client/internal/config"
	"telemetry-client/internal/models"
	"telemetry-client/internal/probe"
	"telemetry-client/internal/storage"
	"telemetry-client/internal/telemetry"
)

func newTestService(t *testing.T, writesPerHour int) (*Service, *httptest.Server) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "collector.db"), storage.CollectorSchema)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Default().Collector
	cfg.WritesPerHour = writesPerHour
	svc := NewService(db, &cfg, zerolog.Nop())

	srv := httptest.NewServer(svc.Routes())
	t.Cleanup(srv.Close)
	return svc, srv
}

func postJSON(t *testing.T, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(url, "application/json", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func register(t *testing.T, base string) models.ClientIdentity {
	t.Helper()
	resp, body := postJSON(t, base+"/client/register", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var ident models.ClientIdentity
	require.NoError(t, json.Unmarshal(body, &ident))
	require.True(t, ident.Valid())
	return ident
}

func TestRegisterAndStatus(t *testing.T) {
	_, srv := newTestService(t, 10)
	ident := register(t, srv.URL)

	resp, _ := postJSON(t, srv.URL+"/client/status", models.StatusRequest{ID: ident.ID, Token: ident.Token})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = postJSON(t, srv.URL+"/client/status", models.StatusRequest{ID: ident.ID, Token: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = postJSON(t, srv.URL+"/client/status", models.StatusRequest{ID: "missing", Token: ident.Token})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	other := register(t, srv.URL)
	assert.NotEqual(t, ident.ID, other.ID)
	assert.NotEqual(t, ident.Token, other.Token)
}

func TestCheckinValidation(t *testing.T) {
	svc, srv := newTestService(t, 10)
	ident := register(t, srv.URL)

	resp, _ := postJSON(t, srv.URL+"/client/checkin", models.CheckinRequest{ClientID: ident.ID, ClientToken: ident.Token, FPV: 1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = postJSON(t, srv.URL+"/client/checkin", models.CheckinRequest{ClientID: ident.ID, ClientToken: "bad", FPV: 1, FP: "abc"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = postJSON(t, srv.URL+"/client/checkin", models.CheckinRequest{
		ClientID:    ident.ID,
		ClientToken: ident.Token,
		Version:     "0.1.0",
		FPV:         1,
		FP:          "abc",
		UA:          "Mozilla/5.0",
		UAD:         &models.UserAgentData{Browser: "Chrome"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	checkins, err := svc.clients.Checkins(ident.ID)
	require.NoError(t, err)
	require.Len(t, checkins, 1)
	assert.Equal(t, "abc", checkins[0].FP)
	assert.Contains(t, checkins[0].UAD, `"browser":"Chrome"`)
}

func TestCountsAndBulk(t *testing.T) {
	_, srv := newTestService(t, 10)
	ident := register(t, srv.URL)
	page := "https://example.org/post"

	resp, err := http.Get(srv.URL + "/view/count?url=" + page)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	event := models.EventRequest{ClientID: ident.ID, ClientToken: ident.Token, URL: page}
	r, _ := postJSON(t, srv.URL+"/client/view", event)
	require.Equal(t, http.StatusOK, r.StatusCode)
	r, _ = postJSON(t, srv.URL+"/client/like", event)
	require.Equal(t, http.StatusOK, r.StatusCode)
	r, body := postJSON(t, srv.URL+"/client/like", event)
	require.Equal(t, http.StatusOK, r.StatusCode)
	assert.Contains(t, string(body), `"added":false`)

	resp, err = http.Get(srv.URL + "/like/count?url=" + page)
	require.NoError(t, err)
	var count models.URLCount
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&count))
	resp.Body.Close()
	assert.Equal(t, models.URLCount{URL: page, Count: 1}, count)

	r, body = postJSON(t, srv.URL+"/counts/bulk", models.BulkCountsRequest{URLs: []string{page, "https://example.org/unseen"}})
	require.Equal(t, http.StatusOK, r.StatusCode)
	var bulk models.BulkCountsResponse
	require.NoError(t, json.Unmarshal(body, &bulk))
	assert.Equal(t, []models.CounterRecord{
		{URL: page, ViewCount: 1, LikeCount: 1},
		{URL: "https://example.org/unseen"},
	}, bulk.Results)
}

func TestEventRequiresCredentials(t *testing.T) {
	_, srv := newTestService(t, 10)
	resp, _ := postJSON(t, srv.URL+"/client/view", models.EventRequest{ClientID: "x", ClientToken: "y", URL: "https://a"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWritesThrottled(t *testing.T) {
	_, srv := newTestService(t, 2)
	ident := register(t, srv.URL)
	event := models.EventRequest{ClientID: ident.ID, ClientToken: ident.Token, URL: "https://a"}

	for i := 0; i < 2; i++ {
		resp, _ := postJSON(t, srv.URL+"/client/view", event)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, _ := postJSON(t, srv.URL+"/client/view", event)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// likes have their own budget
	resp, _ = postJSON(t, srv.URL+"/client/like", event)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBodyLimits(t *testing.T) {
	_, srv := newTestService(t, 10)

	urls := make([]string, maxBulkURLs+1)
	for i := range urls {
		urls[i] = "https://a"
	}
	resp, _ := postJSON(t, srv.URL+"/counts/bulk", models.BulkCountsRequest{URLs: urls})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	huge := `{"urls":["` + strings.Repeat("a", maxBodyBytes) + `"]}`
	r, err := http.Post(srv.URL+"/counts/bulk", "application/json", strings.NewReader(huge))
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, r.StatusCode)

	r, err = http.Post(srv.URL+"/client/status", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
}

func TestRateLimiterWindow(t *testing.T) {
	limiter := NewRateLimiter(1, zerolog.Nop())
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("c1", models.ActionTypeView))
	assert.False(t, limiter.Allow("c1", models.ActionTypeView))
	assert.True(t, limiter.Allow("c2", models.ActionTypeView))
	assert.Equal(t, 0, limiter.Remaining("c1", models.ActionTypeView))

	now = now.Add(rateWindow + time.Second)
	assert.Equal(t, 1, limiter.Remaining("c1", models.ActionTypeView))
	assert.True(t, limiter.Allow("c1", models.ActionTypeView))
}

// TestTelemetryCycle drives the real client and runner against the service
func TestTelemetryCycle(t *testing.T) {
	svc, srv := newTestService(t, 10)

	cfg := config.Default().Telemetry
	cfg.BaseURL = srv.URL
	kv := storage.NewMemoryKV()
	client := telemetry.NewClient(&cfg, kv, zerolog.Nop())

	answer := "42"
	registry, err := probe.NewRegistry(
		probe.NewFunc("screen", func(context.Context) (probe.Outcome, error) {
			return probe.Value(map[string]any{"w": 1920, "h": 1080}), nil
		}),
		probe.NewFunc("math", func(context.Context) (probe.Outcome, error) {
			return probe.Value(answer), nil
		}),
		probe.NewFunc("battery", func(context.Context) (probe.Outcome, error) {
			return probe.NotSupported, nil
		}),
	)
	require.NoError(t, err)
	gen := probe.NewGenerator(registry, probe.NewVerifier(3, 0, zerolog.Nop()), zerolog.Nop())
	runner := telemetry.NewRunner(client, gen, nil, zerolog.Nop())
	ctx := context.Background()

	report := runner.Run(ctx)
	require.NoError(t, report.Err)
	assert.True(t, report.Registered)
	assert.Equal(t, telemetry.StateCheckedIn, report.State)

	ident, err := client.Identity()
	require.NoError(t, err)
	checkins, err := svc.clients.Checkins(ident.ID)
	require.NoError(t, err)
	require.Len(t, checkins, 1)
	assert.Equal(t, report.Fingerprint.FinalHash, checkins[0].FP)

	// unchanged environment: no second checkin
	report = runner.Run(ctx)
	require.NoError(t, report.Err)
	assert.True(t, report.Unchanged)
	checkins, _ = svc.clients.Checkins(ident.ID)
	assert.Len(t, checkins, 1)

	answer = "43"
	report = runner.Run(ctx)
	require.NoError(t, report.Err)
	assert.False(t, report.Unchanged)
	checkins, _ = svc.clients.Checkins(ident.ID)
	assert.Len(t, checkins, 2)

	ok, err := client.RecordView(ctx, "https://example.org/a#c")
	require.NoError(t, err)
	assert.True(t, ok)

	views, err := client.GetViewCount(ctx, "https://example.org/a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), views.Count)

	likes, err := client.GetLikeCount(ctx, "https://example.org/a")
	require.NoError(t, err)
	assert.Equal(t, int64(0), likes.Count)

	bulk, err := client.GetBulkCounts(ctx, []string{"https://example.org/a", "https://example.org/a", "https://example.org/b"})
	require.NoError(t, err)
	assert.Len(t, bulk.Raw.Results, 2)
	assert.Equal(t, models.Counts{ViewCount: 1}, bulk.Map["https://example.org/a"])
	assert.Equal(t, models.Counts{}, bulk.Map["https://example.org/b"])
}
