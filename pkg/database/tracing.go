package database

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/DrOksusu/dba-portal-auth/pkg/database"

var queryDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "auth_db_query_duration_seconds",
		Help:    "Latency of traced PostgreSQL operations",
		Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	},
	[]string{"operation", "outcome"},
)

type slowQueryPolicy struct {
	threshold time.Duration
	logger    *slog.Logger
}

var slowQueries atomic.Pointer[slowQueryPolicy]

// SetSlowQueryLogging logs every traced operation slower than threshold as
// a warning. A zero threshold turns it off.
func SetSlowQueryLogging(threshold time.Duration, logger *slog.Logger) {
	if threshold <= 0 || logger == nil {
		slowQueries.Store(nil)
		return
	}
	slowQueries.Store(&slowQueryPolicy{threshold: threshold, logger: logger})
}

// TraceQuery opens a client span named db.<operation> and returns the
// function that closes it:
//
//	ctx, end := database.TraceQuery(ctx, "GetUserByPhone", query)
//	defer func() { end(err) }()
//
// pgx.ErrNoRows is an expected outcome for lookups and is not recorded as a
// span error.
func TraceQuery(ctx context.Context, operation, statement string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", operation),
			attribute.String("db.statement", statement),
		),
	)

	return ctx, func(err error) {
		elapsed := time.Since(start)

		outcome := "ok"
		switch {
		case err == nil:
		case errors.Is(err, pgx.ErrNoRows):
			outcome = "no_rows"
		default:
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		queryDuration.WithLabelValues(operation, outcome).Observe(elapsed.Seconds())

		p := slowQueries.Load()
		if p == nil || elapsed < p.threshold {
			return
		}
		attrs := []any{
			slog.String("operation", operation),
			slog.Duration("duration", elapsed),
			slog.String("outcome", outcome),
		}
		if err != nil && outcome == "error" {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		p.logger.WarnContext(ctx, "slow query", attrs...)
	}
}
