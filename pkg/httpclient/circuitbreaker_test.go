package httpclient

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func breakerFor(name string) BreakerConfig {
	cfg := DefaultBreakerConfig(name)
	cfg.MinRequests = 3
	cfg.OpenFor = 100 * time.Millisecond
	return cfg
}

// upstream answers with whatever status is currently stored.
func upstream(t *testing.T, status *atomic.Int32, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(int(status.Load()))
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func send(t *testing.T, b *Breaker, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, http.NoBody)
	require.NoError(t, err)
	resp, err := b.Do(context.Background(), req)
	if resp != nil {
		t.Cleanup(func() { resp.Body.Close() })
	}
	return resp, err
}

func TestBreaker_ServerErrorsOpenThenTrialCloses(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusServiceUnavailable)
	srv := upstream(t, &status, "gateway down")

	b := NewBreaker(New(fastConfig(0)), breakerFor("sms-trip"), quietLogger())

	for range 3 {
		_, err := send(t, b, srv.URL)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sms-trip responded 503: gateway down")
	}
	require.Equal(t, gobreaker.StateOpen, b.State())

	_, err := send(t, b, srv.URL)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	status.Store(http.StatusOK)
	time.Sleep(150 * time.Millisecond)

	resp, err := send(t, b, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, gobreaker.StateClosed, b.State())

	assert.InDelta(t, 3, testutil.ToFloat64(upstreamCalls.WithLabelValues("sms-trip", "error")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(upstreamCalls.WithLabelValues("sms-trip", "rejected")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(upstreamCalls.WithLabelValues("sms-trip", "ok")), 0.001)
	assert.InDelta(t, 0, testutil.ToFloat64(breakerState.WithLabelValues("sms-trip")), 0.001)
}

func TestBreaker_ClientErrorsPassThrough(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusUnauthorized)
	srv := upstream(t, &status, `{"msg":"this access token does not exist"}`)

	b := NewBreaker(New(fastConfig(0)), breakerFor("kakao-4xx"), quietLogger())

	for range 5 {
		resp, err := send(t, b, srv.URL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.InDelta(t, 5, testutil.ToFloat64(upstreamCalls.WithLabelValues("kakao-4xx", "ok")), 0.001)
}

func TestBreaker_StaysClosedBelowMinRequests(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusInternalServerError)
	srv := upstream(t, &status, "")

	b := NewBreaker(New(fastConfig(0)), breakerFor("sms-min"), quietLogger())

	for range 2 {
		_, err := send(t, b, srv.URL)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreakerConfig_ReadyToTrip(t *testing.T) {
	cfg := DefaultBreakerConfig("coolsms")

	tests := []struct {
		name   string
		counts gobreaker.Counts
		want   bool
	}{
		{"no traffic", gobreaker.Counts{}, false},
		{"too few requests", gobreaker.Counts{Requests: 4, TotalFailures: 4}, false},
		{"below ratio", gobreaker.Counts{Requests: 10, TotalFailures: 4}, false},
		{"at ratio", gobreaker.Counts{Requests: 10, TotalFailures: 5}, true},
		{"all failing", gobreaker.Counts{Requests: 5, TotalFailures: 5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.readyToTrip(tt.counts))
		})
	}
}
