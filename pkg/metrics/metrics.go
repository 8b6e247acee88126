// Package metrics declares the prometheus collectors exported by the trainer,
// the samplers, the evaluator and the shared parameter store.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are registered on the default registry through promauto.

var (
	// HttpRequestsTotal counts status server requests by method, path and status code.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grl_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	// HttpRequestDuration measures status server response time.
	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grl_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"method", "path"},
	)

	// TrainSteps counts processed training examples by embedding type.
	TrainSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grl_train_steps_total",
			Help: "Total number of training examples processed",
		},
		[]string{"emb_type"},
	)

	// TrainChunkDuration measures the time to sample and apply one chunk.
	TrainChunkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grl_train_chunk_seconds",
			Help:    "Duration of one sampled training chunk in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"emb_type"},
	)

	// TrainWorkerErrors counts failed workers.
	TrainWorkerErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grl_train_worker_errors_total",
			Help: "Total number of training workers that returned an error",
		},
	)

	// SamplerRetries counts rejected draws in rejection samplers.
	SamplerRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grl_sampler_retries_total",
			Help: "Total number of rejected draws in rejection samplers",
		},
		[]string{"sampler"},
	)

	// Accuracy is the last evaluated link-prediction accuracy.
	Accuracy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "grl_accuracy",
			Help: "Last evaluated link prediction accuracy",
		},
	)

	// SharedBuffers tracks the number of buffers in shared parameter stores.
	SharedBuffers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "grl_shm_buffers",
			Help: "Number of allocated shared buffers",
		},
	)

	// SharedBytes tracks the payload size of shared buffers.
	SharedBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "grl_shm_bytes",
			Help: "Total payload bytes of allocated shared buffers",
		},
	)

	// MirrorRows counts rows pushed and merged by mirrored arrays.
	MirrorRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grl_mirror_rows_total",
			Help: "Total number of rows sent or merged by mirrored arrays",
		},
		[]string{"direction"},
	)
)
