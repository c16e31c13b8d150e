// Package metrics defines the portal's Prometheus metrics. They register with
// the default registry on import and are served by the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "portal"

// CommandsTotal counts handled commands.
// Labels:
//   - command: the command name (e.g. "AuthenticateUser")
//   - outcome: "ok", an error code (e.g. "user_not_found") or "error"
var CommandsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Total number of commands handled, by command and outcome.",
	},
	[]string{"command", "outcome"},
)

// CommandDuration measures handler latency including validation.
var CommandDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "command_duration_seconds",
		Help:      "Duration of command handling.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"command"},
)

// EventsPublishedTotal counts domain events handed to a publisher.
// Labels:
//   - event: the event name (e.g. "user.disabled")
//   - result: "ok" or "error"
var EventsPublishedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "Total number of domain events published, by event and result.",
	},
	[]string{"event", "result"},
)

// HousekeepingDeletedTotal counts rows purged by the housekeeping loop.
// Label:
//   - kind: "security_tokens" or "authentication_histories"
var HousekeepingDeletedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "housekeeping_deleted_total",
		Help:      "Total number of rows removed by housekeeping.",
	},
	[]string{"kind"},
)

// AccountsLockedTotal counts automatic lockouts after repeated MFA failures.
var AccountsLockedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "accounts_locked_total",
		Help:      "Total number of accounts locked by the lockout policy.",
	},
)
