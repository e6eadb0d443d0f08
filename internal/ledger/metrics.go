package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics mirrors the ledgers as Prometheus counters.
type Metrics struct {
	requests        prometheus.Counter
	hits            prometheus.Counter
	misses          prometheus.Counter
	backendRequests prometheus.Counter
	errors          prometheus.Counter
	characters      prometheus.Counter
}

// NewMetrics registers the ledger counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounter(prometheus.CounterOpts{
			Name: "tts_proxy_requests_total",
			Help: "Synthesis requests answered from cache or backend.",
		}),
		hits: factory.NewCounter(prometheus.CounterOpts{
			Name: "tts_proxy_cache_hits_total",
			Help: "Synthesis requests served from the audio cache.",
		}),
		misses: factory.NewCounter(prometheus.CounterOpts{
			Name: "tts_proxy_cache_misses_total",
			Help: "Synthesis requests not found in the audio cache.",
		}),
		backendRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "tts_proxy_backend_requests_total",
			Help: "Calls made to the speech backend.",
		}),
		errors: factory.NewCounter(prometheus.CounterOpts{
			Name: "tts_proxy_errors_total",
			Help: "Requests that failed with a backend or internal error.",
		}),
		characters: factory.NewCounter(prometheus.CounterOpts{
			Name: "tts_proxy_characters_total",
			Help: "Characters sent to the speech backend.",
		}),
	}
}
