package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// prefix is prepended to every collector name at registration.
const prefix = "billing_"

var (
	mu         sync.Mutex
	registered bool
	collectors []prometheus.Collector
)

// register queues collectors from each file's init; MustRegister publishes them.
func register(cs ...prometheus.Collector) {
	mu.Lock()
	defer mu.Unlock()
	collectors = append(collectors, cs...)
}

// MustRegister publishes the queued collectors on the default registry under
// the billing_ prefix. Later calls are no-ops.
func MustRegister() {
	mu.Lock()
	defer mu.Unlock()
	if registered {
		return
	}
	prometheus.WrapRegistererWithPrefix(prefix, prometheus.DefaultRegisterer).MustRegister(collectors...)
	registered = true
}

// norm lower-cases label values; blanks become "none".
func norm(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "none"
	}
	return s
}
