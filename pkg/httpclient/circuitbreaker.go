package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// Doer executes an HTTP request. Both Client and Breaker satisfy it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// ErrCircuitOpen is returned without calling the upstream while the breaker is open.
var ErrCircuitOpen = gobreaker.ErrOpenState

// BreakerConfig tunes the breaker guarding one upstream.
type BreakerConfig struct {
	Name string // upstream label in metrics and logs

	HalfOpenRequests uint32        // requests let through while half-open
	CountWindow      time.Duration // closed-state counts reset after this long
	OpenFor          time.Duration // time spent open before a trial request

	// The breaker opens once at least MinRequests were seen in the current
	// window and the share of failures reaches FailureRatio.
	MinRequests  uint32
	FailureRatio float64
}

// DefaultBreakerConfig suits a slow third-party API such as an SMS gateway.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		HalfOpenRequests: 1,
		CountWindow:      time.Minute,
		OpenFor:          30 * time.Second,
		MinRequests:      5,
		FailureRatio:     0.5,
	}
}

// readyToTrip reports whether counts warrant opening the breaker.
func (c BreakerConfig) readyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests == 0 || counts.Requests < c.MinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= c.FailureRatio
}

var (
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "auth",
			Subsystem: "upstream",
			Name:      "breaker_state",
			Help:      "Breaker state per upstream: 0 closed, 1 half-open, 2 open.",
		},
		[]string{"upstream"},
	)

	upstreamCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auth",
			Subsystem: "upstream",
			Name:      "calls_total",
			Help:      "Calls to third-party upstreams by outcome (ok, error, rejected).",
		},
		[]string{"upstream", "outcome"},
	)
)

var stateGauge = map[gobreaker.State]float64{
	gobreaker.StateClosed:   0,
	gobreaker.StateHalfOpen: 1,
	gobreaker.StateOpen:     2,
}

// Breaker puts a gobreaker circuit in front of a Client. Transport errors
// and 5xx responses count as failures; 4xx responses reach the caller as-is.
type Breaker struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[*http.Response]
	name   string
	logger *slog.Logger
}

// NewBreaker wraps client.
func NewBreaker(client *Client, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	b := &Breaker{client: client, name: cfg.Name, logger: logger}
	b.cb = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   cfg.HalfOpenRequests,
		Interval:      cfg.CountWindow,
		Timeout:       cfg.OpenFor,
		ReadyToTrip:   cfg.readyToTrip,
		OnStateChange: b.stateChanged,
	})
	breakerState.WithLabelValues(cfg.Name).Set(stateGauge[gobreaker.StateClosed])
	return b
}

func (b *Breaker) stateChanged(name string, from, to gobreaker.State) {
	b.logger.Warn("upstream breaker changed state",
		slog.String("upstream", name),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
	breakerState.WithLabelValues(name).Set(stateGauge[to])
}

// Do sends req through the breaker. A 5xx response is drained, closed and
// turned into an error.
func (b *Breaker) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := b.cb.Execute(func() (*http.Response, error) {
		resp, err := b.client.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < http.StatusInternalServerError {
			return resp, nil
		}
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%s responded %d: %s", b.name, resp.StatusCode, snippet)
	})

	outcome := "ok"
	switch {
	case errors.Is(err, ErrCircuitOpen), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "rejected"
		b.logger.WarnContext(ctx, "upstream call short-circuited", slog.String("upstream", b.name))
	case err != nil:
		outcome = "error"
	}
	upstreamCalls.WithLabelValues(b.name, outcome).Inc()
	return resp, err
}

// State returns the breaker's current state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
