package certificate

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the certificate lifecycle
var (
	// certd_issuance_total tracks issuance runs by outcome
	IssuanceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "certd",
			Name:      "issuance_total",
			Help:      "Total number of certificate issuance runs by outcome",
		},
		[]string{"status"},
	)

	// certd_issuance_duration_seconds tracks end-to-end run duration
	IssuanceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "certd",
			Name:      "issuance_duration_seconds",
			Help:      "Duration of certificate issuance runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17min
		},
		[]string{"status"},
	)

	// certd_certificate_expiry_days tracks days until expiry per domain
	CertificateExpiryDays = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "certd",
			Name:      "certificate_expiry_days",
			Help:      "Days until certificate expiry for each domain",
		},
		[]string{"domain"},
	)

	// certd_issuance_skipped_total counts runs that exited early because
	// the deployed certificate was still fresh
	IssuanceSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "certd",
			Name:      "issuance_skipped_total",
			Help:      "Total number of runs skipped because renewal was not required",
		},
	)
)

// Metric status label values
const (
	statusSuccess = "success"
	statusFailed  = "failed"
)

// observeRun records the outcome and duration of one orchestrator run
func observeRun(status string, started time.Time) {
	IssuanceTotal.WithLabelValues(status).Inc()
	IssuanceDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
}

// setExpiryGauge publishes the freshly deployed certificate's remaining
// lifetime for alerting
func setExpiryGauge(domain string, expiry time.Time) {
	CertificateExpiryDays.WithLabelValues(domain).Set(time.Until(expiry).Hours() / 24)
}
