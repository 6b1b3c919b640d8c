package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus collectors used across the service
type Metrics struct {
	DecoderRequests  *prometheus.CounterVec
	DecodeDuration   prometheus.Histogram
	ProviderRequests *prometheus.CounterVec
	MetadataTasks    *prometheus.CounterVec
	EventsConsumed   *prometheus.CounterVec
	AbisLoaded       prometheus.Counter
}

// NewMetrics registers and returns the service metrics
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		DecoderRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "decoder_requests_total",
			Help: "Calldata decode requests by resulting accuracy",
		}, []string{"accuracy"}),

		DecodeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "decoder_decode_duration_seconds",
			Help:    "Time spent decoding calldata",
			Buckets: prometheus.DefBuckets,
		}),

		ProviderRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "Upstream metadata provider requests by provider and status",
		}, []string{"provider", "status"}),

		MetadataTasks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "metadata_tasks_total",
			Help: "Processed contract metadata tasks by result",
		}, []string{"result"}),

		EventsConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "events_consumed_total",
			Help: "Consumed transaction-service events by outcome",
		}, []string{"outcome"}),

		AbisLoaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "decoder_abis_loaded_total",
			Help: "ABIs hot-loaded into the decoder after startup",
		}),
	}
}

// Default returns metrics registered on the default prometheus registry
func Default() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}
