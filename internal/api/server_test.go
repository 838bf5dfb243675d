package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-downloader/internal/download"
	"github.com/JakeFAU/site-downloader/internal/metrics"
	"github.com/JakeFAU/site-downloader/internal/ratecontrol"
	"github.com/JakeFAU/site-downloader/internal/session"
	"github.com/JakeFAU/site-downloader/internal/status"
)

func newTestDeps(t *testing.T) (*session.Aggregator, *ratecontrol.Controller) {
	t.Helper()
	agg, err := session.NewAggregator(session.WithID("sess-1"))
	require.NoError(t, err)
	ctrl, err := ratecontrol.New(ratecontrol.DefaultConfig())
	require.NoError(t, err)
	return agg, ctrl
}

func serve(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(nil, nil, zap.NewNop()), http.MethodGet, "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_RequestIDPropagates(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestServer_StatusReportsSessionAndRate(t *testing.T) {
	t.Parallel()

	agg, ctrl := newTestDeps(t)
	require.NoError(t, agg.Record(download.Result{URL: "https://example.com/", FinalStatusCode: 200, Succeeded: true, TotalAttempts: 1}))
	require.NoError(t, agg.Record(download.Result{URL: "https://example.com/x", FinalStatusCode: 404, TotalAttempts: 1}))
	ctrl.RecordOutcome(status.ClientError, true)

	rec := serve(t, NewServer(agg, ctrl, zap.NewNop()), http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body statusView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "sess-1", body.Session.SessionID)
	assert.Equal(t, 2, body.Session.TotalRequests)
	assert.Equal(t, 1, body.Session.StatusCodes["404"])
	require.NotNil(t, body.Rate)
	assert.Equal(t, 1, body.Rate.ConsecutiveRateLimitHits)
	assert.InDelta(t, 0.02, body.Rate.CurrentDelaySeconds, 1e-9)
}

func TestServer_StatusWithoutSession(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(nil, nil, zap.NewNop()), http.MethodGet, "/status")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_ResetRate(t *testing.T) {
	t.Parallel()

	agg, ctrl := newTestDeps(t)
	for range 3 {
		ctrl.RecordOutcome(status.ClientError, true)
	}
	require.Equal(t, 3, ctrl.State().ConsecutiveRateLimitHits)

	s := NewServer(agg, ctrl, zap.NewNop())
	rec := serve(t, s, http.MethodPost, "/rate/reset")
	require.Equal(t, http.StatusOK, rec.Code)

	var view rateView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Zero(t, view.ConsecutiveRateLimitHits)
	assert.Equal(t, ratecontrol.DefaultConfig().Initial, ctrl.CurrentDelay())

	rec = serve(t, s, http.MethodGet, "/rate/reset")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_RateUnavailable(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, zap.NewNop())
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, s, http.MethodGet, "/rate").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, s, http.MethodPost, "/rate/reset").Code)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	metrics.Init()
	metrics.ObserveRetry("network-error")

	rec := serve(t, NewServer(nil, nil, zap.NewNop()), http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "downloader_retries_total")
}

type panicSource struct{}

func (panicSource) Report() session.Stats { panic("boom") }

func TestServer_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(panicSource{}, nil, zap.NewNop()), http.MethodGet, "/status")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_ListenAndServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(nil, nil, zap.NewNop()).ListenAndServe(ctx, addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
