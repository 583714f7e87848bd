package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	NAMESPACE = "flowradar"
)

var (
	ReportsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "reports_total",
			Help:      "Reports generated, by outcome.",
			Namespace: NAMESPACE,
		},
		[]string{"outcome"},
	)
	SectionDuration = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "section_duration_seconds",
			Help:       "Time spent computing a report section.",
			Namespace:  NAMESPACE,
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"section"},
	)
	SectionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "section_failures_total",
			Help:      "Report sections that failed.",
			Namespace: NAMESPACE,
		},
		[]string{"section"},
	)
	Anomalies = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:      "anomalies",
			Help:      "Anomalies found by the latest report, by detector.",
			Namespace: NAMESPACE,
		},
		[]string{"detector"},
	)
	WindowBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name:      "window_bytes",
			Help:      "Total bytes observed in the latest report window.",
			Namespace: NAMESPACE,
		},
	)
	PublishErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "publish_errors_total",
			Help:      "Reports that could not be published.",
			Namespace: NAMESPACE,
		},
		[]string{"driver"},
	)
)

func init() {
	prometheus.MustRegister(ReportsGenerated)
	prometheus.MustRegister(SectionDuration)
	prometheus.MustRegister(SectionFailures)
	prometheus.MustRegister(Anomalies)
	prometheus.MustRegister(WindowBytes)
	prometheus.MustRegister(PublishErrors)
}

// ObserveSection records the duration and outcome of one report section.
func ObserveSection(section string, took time.Duration, err error) {
	SectionDuration.With(prometheus.Labels{"section": section}).Observe(took.Seconds())
	if err != nil {
		SectionFailures.With(prometheus.Labels{"section": section}).Inc()
	}
}
