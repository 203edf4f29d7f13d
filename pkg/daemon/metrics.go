package daemon

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	fluxmetrics "github.com/fluxcd/compose-sync/pkg/metrics"
)

var (
	// A pass makes one registry request per service, and at most two
	// round trips to the git host. Most short-lived (<0.1s) passes
	// will be failures.
	passDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: fluxmetrics.Namespace,
		Subsystem: "daemon",
		Name:      "pass_duration_seconds",
		Help:      "Duration of reconciliation passes, in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 15, 20, 30, 45, 60, 120},
	}, []string{fluxmetrics.LabelSuccess})
)
