// Package metrics holds the Prometheus collectors for the planner and the
// HTTP API. Collectors register with the default registry on import.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MikeSquared-Agency/Larder/internal/csp"
)

var (
	// Model building
	ModelBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "larder_model_build_duration_seconds",
			Help:    "Time spent encoding a meal plan as a weighted CSP",
			Buckets: prometheus.DefBuckets,
		},
	)

	ModelVariables = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "larder_model_variables",
			Help:    "Number of CSP variables per built model",
			Buckets: prometheus.ExponentialBuckets(16, 2, 12),
		},
	)

	ModelTableCells = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "larder_model_table_cells",
			Help:    "Number of factor table cells per built model",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10),
		},
	)

	// Search
	SolveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "larder_solve_duration_seconds",
			Help:    "Time spent searching for a plan",
			Buckets: []float64{.001, .01, .05, .1, .5, 1, 5, 15, 30, 60},
		},
		[]string{"outcome"},
	)

	SolveNodes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "larder_solve_nodes",
			Help:    "Value assignments tried per search",
			Buckets: prometheus.ExponentialBuckets(10, 10, 8),
		},
	)

	PlansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larder_plans_total",
			Help: "Plans by final status",
		},
		[]string{"status", "source"},
	)

	PlansInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "larder_plans_in_flight",
			Help: "Plans currently being built or solved",
		},
	)

	// Catalogue
	CatalogSyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larder_catalog_syncs_total",
			Help: "Catalogue sync runs by result",
		},
		[]string{"result"},
	)

	CatalogRecipes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larder_catalog_recipes_total",
			Help: "Recipes seen during catalogue syncs",
		},
		[]string{"action"}, // "upserted", "rejected"
	)

	// HTTP API
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "larder_api_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "larder_api_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)

func RecordModelBuild(d time.Duration, stats csp.Stats) {
	ModelBuildDuration.Observe(d.Seconds())
	ModelVariables.Observe(float64(stats.Variables))
	ModelTableCells.Observe(float64(stats.TableCells))
}

// RecordSolve observes one search. outcome is "solved", "infeasible",
// "cancelled" or "error".
func RecordSolve(outcome string, d time.Duration, nodes int) {
	SolveDuration.WithLabelValues(outcome).Observe(d.Seconds())
	SolveNodes.Observe(float64(nodes))
}

func RecordPlan(status, source string) {
	if source == "" {
		source = "unknown"
	}
	PlansTotal.WithLabelValues(status, source).Inc()
}

// TrackInFlight moves the in-flight gauge up on start and down otherwise.
func TrackInFlight(start bool) {
	if start {
		PlansInFlight.Inc()
	} else {
		PlansInFlight.Dec()
	}
}

func RecordCatalogSync(upserted, rejected int, err error) {
	if err != nil {
		CatalogSyncs.WithLabelValues("error").Inc()
		return
	}
	CatalogSyncs.WithLabelValues("ok").Inc()
	CatalogRecipes.WithLabelValues("upserted").Add(float64(upserted))
	CatalogRecipes.WithLabelValues("rejected").Add(float64(rejected))
}

func RecordAPIRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	APIRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

func RecordRateLimited() {
	RateLimited.Inc()
}
