// Package metrics exports sweep results to Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"adcrate/core"
)

// PrometheusExporter publishes the latest result of every sweep step.
// It implements core.Reporter.
type PrometheusExporter struct {
	source string

	measuredGauge  *prometheus.GaugeVec
	ratioGauge     *prometheus.GaugeVec
	overflowGauge  *prometheus.GaugeVec
	stepCounter    *prometheus.CounterVec
	overflowsTotal *prometheus.CounterVec
}

// NewPrometheusExporter registers the sweep metrics with the default registerer
func NewPrometheusExporter(source string) *PrometheusExporter {
	exporter := &PrometheusExporter{
		source: source,
		measuredGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "adcrate_measured_rate_hz",
				Help: "Sample rate delivered at the configured rate",
			},
			[]string{"source", "configured_hz"},
		),
		ratioGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "adcrate_rate_ratio",
				Help: "Measured over configured sample rate",
			},
			[]string{"source", "configured_hz"},
		),
		overflowGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "adcrate_step_overflows",
				Help: "Pool overflows seen during the last capture at the configured rate",
			},
			[]string{"source", "configured_hz"},
		),
		stepCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adcrate_steps_total",
				Help: "Completed sweep steps",
			},
			[]string{"source"},
		),
		overflowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adcrate_overflows_total",
				Help: "Pool overflows over all sweep steps",
			},
			[]string{"source"},
		),
	}

	prometheus.MustRegister(
		exporter.measuredGauge,
		exporter.ratioGauge,
		exporter.overflowGauge,
		exporter.stepCounter,
		exporter.overflowsTotal,
	)

	return exporter
}

// Report records one sweep step
func (pe *PrometheusExporter) Report(res core.SweepResult) error {
	rate := RateLabel(res.ConfiguredHz)
	pe.measuredGauge.WithLabelValues(pe.source, rate).Set(res.MeasuredHz)
	pe.ratioGauge.WithLabelValues(pe.source, rate).Set(res.Ratio)
	pe.overflowGauge.WithLabelValues(pe.source, rate).Set(float64(res.Overflows))
	pe.stepCounter.WithLabelValues(pe.source).Inc()
	pe.overflowsTotal.WithLabelValues(pe.source).Add(float64(res.Overflows))
	return nil
}

// RateLabel formats a configured rate the way the report table does
func RateLabel(hz float64) string {
	return strconv.FormatFloat(hz, 'f', 3, 64)
}

// Handler serves the default gatherer
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// StartServer serves /metrics on addr until the listener fails
func (pe *PrometheusExporter) StartServer(addr string) error {
	return http.ListenAndServe(addr, Handler())
}
