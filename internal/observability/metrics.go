package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OffersTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "roadside_dispatch", Name: "offers_total", Help: "Total offers sent to drivers"})
	OfferOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "roadside_dispatch", Name: "offer_outcomes_total", Help: "Offer outcomes by kind"},
		[]string{"outcome"},
	)
	DispatchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "roadside_dispatch", Name: "dispatch_outcomes_total", Help: "Terminal dispatch outcomes per request"},
		[]string{"outcome"},
	)
	StaleResponsesTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "roadside_dispatch", Name: "stale_responses_total", Help: "Driver responses that no longer matched an active offer"})
	InFlightDispatches  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "roadside_dispatch", Name: "in_flight_dispatches", Help: "Requests currently being dispatched"})
	DriversOnline       = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "roadside_dispatch", Name: "drivers_online", Help: "Number of online drivers"})
	DispatchDuration    = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "roadside_dispatch", Name: "dispatch_duration_seconds", Help: "Time from dispatch start to terminal outcome", Buckets: prometheus.ExponentialBuckets(0.5, 2, 10)})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "roadside_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "roadside_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
