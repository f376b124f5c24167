package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(catalogCacheTotal) }

var catalogCacheTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "catalog_cache_total",
		Help: "Service catalog cache lookups by view and result.",
	},
	[]string{"view", "result"}, // view: item|list; result: hit|miss|error
)

func IncCatalogCache(view, result string) {
	catalogCacheTotal.WithLabelValues(norm(view), norm(result)).Inc()
}
