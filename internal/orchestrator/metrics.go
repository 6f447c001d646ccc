package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_provider_requests_total",
			Help: "Total number of provider requests by capability and outcome",
		},
		[]string{"provider", "capability", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "saga_provider_request_duration_seconds",
			Help:    "Duration of provider requests in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"provider", "capability"},
	)

	tokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_provider_tokens_total",
			Help: "Tokens consumed by direction (input or output)",
		},
		[]string{"provider", "direction"},
	)

	imagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_provider_images_total",
			Help: "Images generated, split by premium tier",
		},
		[]string{"provider", "premium"},
	)
)

const (
	statusOK          = "ok"
	statusAuthError   = "auth_error"
	statusError       = "error"
	statusUnsupported = "unsupported"
)
