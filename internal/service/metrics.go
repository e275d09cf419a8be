package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_sessions_issued_total",
			Help: "Total number of token pairs issued, by login path",
		},
		[]string{"path"},
	)

	verificationCodesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_verification_codes_sent_total",
			Help: "Total number of verification codes delivered to the notifier",
		},
	)

	verificationRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_verification_rate_limited_total",
			Help: "Total number of verification code requests rejected by the rate limit",
		},
	)

	verificationChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_verification_checks_total",
			Help: "Total number of verification code checks, by result",
		},
		[]string{"result"},
	)

	tokensSwept = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_tokens_swept_total",
			Help: "Total number of expired records removed by the sweeper",
		},
		[]string{"kind"},
	)
)
