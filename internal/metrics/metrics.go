// Package metrics exposes Prometheus instruments for the wishlist service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ItemsAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wishlist_items_added_total",
		Help: "Items saved to a wishlist.",
	})
	ItemsRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wishlist_items_removed_total",
		Help: "Items removed from a wishlist.",
	})
	GuestMerges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wishlist_guest_merges_total",
		Help: "Guest to user merges by outcome.",
	}, []string{"outcome"})
	CountCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wishlist_count_cache_lookups_total",
		Help: "Count cache lookups by result.",
	}, []string{"result"})
	Conversions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wishlist_conversions_total",
		Help: "Purchased line items attributed to an earlier save.",
	})
	ConversionRevenue = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wishlist_conversion_revenue_total",
		Help: "Revenue of attributed line items.",
	})
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wishlist_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// ObserveRequest records one HTTP request.
func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
