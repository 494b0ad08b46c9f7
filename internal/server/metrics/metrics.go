// Package metrics holds the Prometheus collectors of the auth server.
//
// Collectors exist from package init so code paths can record without
// checks; Register exposes them on a registry once.
package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "authkeeper"

// Result label values.
const (
	ResultSuccess = "success"
	ResultInvalid = "invalid"
	ResultLocked  = "locked"
	ResultExpired = "expired"
	ResultReuse   = "reuse"
)

var (
	once sync.Once

	Logins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "auth", Name: "logins_total",
		Help: "Login attempts by result",
	}, []string{"result"})

	Lockouts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "auth", Name: "lockouts_total",
		Help: "Accounts locked after repeated failed logins",
	})

	Registrations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "auth", Name: "registrations_total",
		Help: "Successful registrations",
	})

	Refreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "auth", Name: "refreshes_total",
		Help: "Refresh token presentations by result",
	}, []string{"result"})

	PasswordResets = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "auth", Name: "password_resets_total",
		Help: "Password reset token consumptions by result",
	}, []string{"result"})

	EmailVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "auth", Name: "email_verifications_total",
		Help: "Email verification token consumptions by result",
	}, []string{"result"})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "http", Name: "requests_total",
		Help: "HTTP requests by route, method and status code",
	}, []string{"route", "method", "code"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	DBConnectRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "db", Name: "connect_retries_total",
		Help: "Failed database connection attempts that were retried",
	})
)

// Register adds every collector to r (prometheus.DefaultRegisterer when nil).
// Only the first call has an effect; duplicate registration is ignored.
func Register(r prometheus.Registerer) {
	once.Do(func() {
		if r == nil {
			r = prometheus.DefaultRegisterer
		}
		collectors := []prometheus.Collector{
			Logins, Lockouts, Registrations, Refreshes, PasswordResets, EmailVerifications,
			HTTPRequests, HTTPDuration, DBConnectRetries,
		}
		for _, c := range collectors {
			if err := r.Register(c); err != nil {
				var are prometheus.AlreadyRegisteredError
				if !errors.As(err, &are) {
					panic(err)
				}
			}
		}
	})
}
