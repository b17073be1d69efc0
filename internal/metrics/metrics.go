// Package metrics holds the Prometheus collectors shared across packages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haven_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "haven_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	SiteModeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haven_site_mode_total",
			Help: "Requests by hostname classification",
		},
		[]string{"mode"},
	)

	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haven_tenant_resolutions_total",
			Help: "Organization resolutions by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	SupersededNavigations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "haven_tenant_navigations_superseded_total",
			Help: "Resolutions discarded because a newer navigation started",
		},
	)

	GuardDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haven_guard_decisions_total",
			Help: "Route guard decisions by route and kind",
		},
		[]string{"route", "kind"},
	)

	PreviewMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haven_branding_preview_messages_total",
			Help: "Branding preview messages by acceptance",
		},
		[]string{"result"},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haven_content_cache_lookups_total",
			Help: "Copy and flag cache lookups by cache and result",
		},
		[]string{"cache", "result"},
	)
)
