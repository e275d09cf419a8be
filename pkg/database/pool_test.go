package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryBackoff_ExponentialWithJitter(t *testing.T) {
	for attempt := 0; attempt < 3; attempt++ {
		base := defaultRetryBaseWait << attempt
		lo := time.Duration(float64(base) * (1 - retryJitterFraction))
		hi := time.Duration(float64(base) * (1 + retryJitterFraction))

		for i := 0; i < 20; i++ {
			d := retryBackoff(attempt)
			assert.GreaterOrEqual(t, d, lo, "attempt %d", attempt)
			assert.LessOrEqual(t, d, hi, "attempt %d", attempt)
		}
	}
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, isConnectionError(nil))
	assert.True(t, isConnectionError(errors.New("dial tcp 127.0.0.1:5432: connection refused")))
	assert.True(t, isConnectionError(errors.New("write: broken pipe")))
	assert.True(t, isConnectionError(errors.New("unexpected EOF")))
	assert.False(t, isConnectionError(errors.New("syntax error at or near \"(\"")))
	assert.False(t, isConnectionError(errors.New("duplicate key value violates unique constraint")))
}

func TestWithRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), nil, "op", isConnectionError, func() error {
		calls++
		return errors.New("relation \"users\" does not exist")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_FirstSuccess(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), nil, "op", always, func() error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_ContextCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := withRetry(ctx, nil, "op", always, func() error {
		calls++
		return errors.New("connection refused")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPostgresConfig_DSNEscapesCredentials(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: 5432, User: "auth", Password: "p@ss/word", DBName: "auth_db", SSLMode: "disable"}

	assert.Equal(t, "postgres://auth:p%40ss%2Fword@db:5432/auth_db?sslmode=disable", cfg.DSN())
}

func TestRedisConfig_Addr(t *testing.T) {
	assert.Equal(t, "localhost:6379", RedisConfig{Host: "localhost", Port: 6379}.Addr())
}
