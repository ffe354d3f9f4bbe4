// Package metrics exposes Prometheus counters for the bot and verify server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpdatesTotal counts handled Telegram updates by handler.
	UpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "communibot_updates_total",
		Help: "Handled Telegram updates by handler.",
	}, []string{"handler"})

	// HandlerErrorsTotal counts handler failures by handler.
	HandlerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "communibot_handler_errors_total",
		Help: "Handler failures by handler.",
	}, []string{"handler"})

	// RateLimitedTotal counts denials by limiter scope.
	RateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "communibot_rate_limited_total",
		Help: "Rate limiter denials by scope.",
	}, []string{"scope"})

	// LinksIssuedTotal counts magic-link emails sent.
	LinksIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "communibot_links_issued_total",
		Help: "Magic-link verification emails sent.",
	})

	// LinksCompletedTotal counts verification callbacks by outcome.
	LinksCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "communibot_links_completed_total",
		Help: "Verification callbacks by outcome.",
	}, []string{"outcome"})

	// CommunitiesCreatedTotal counts communities created through the wizard.
	CommunitiesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "communibot_communities_created_total",
		Help: "Communities created.",
	})

	// JoinsTotal counts join requests by resulting status.
	JoinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "communibot_joins_total",
		Help: "Community join requests by resulting status.",
	}, []string{"status"})
)
