package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Registry holds the sealing metrics.
type Registry struct {
	// Facade operations
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Device key lifecycle
	DeviceKeyGenerationsTotal prometheus.Counter
	DeviceKeyResetsTotal      prometheus.Counter
	DeviceAuthDenialsTotal    prometheus.Counter

	registry *prometheus.Registry
}

// NewRegistry creates a registry with all metrics initialized.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}

	r.OperationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletseal_operations_total",
			Help: "Total number of seal and open operations",
		},
		[]string{"operation", "mode", "result"},
	)

	r.OperationDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "walletseal_operation_duration_seconds",
			Help:    "Seal and open duration in seconds, key derivation included",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		},
		[]string{"operation", "mode"},
	)

	r.DeviceKeyGenerationsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "walletseal_device_key_generations_total",
			Help: "Number of device keys generated",
		},
	)

	r.DeviceKeyResetsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "walletseal_device_key_resets_total",
			Help: "Number of device key resets",
		},
	)

	r.DeviceAuthDenialsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "walletseal_device_auth_denials_total",
			Help: "Device key uses refused outside the authentication window",
		},
	)

	return r
}

// RecordOperation records a facade operation with its duration.
func (r *Registry) RecordOperation(operation, mode string, err error, duration time.Duration) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	r.OperationsTotal.WithLabelValues(operation, mode, result).Inc()
	r.OperationDuration.WithLabelValues(operation, mode).Observe(duration.Seconds())
}

// GetPrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile dumps the registry in text exposition format, for the
// node_exporter textfile collector.
func (r *Registry) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
