package git

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	fluxmetrics "github.com/fluxcd/compose-sync/pkg/metrics"
)

const (
	MetricRepoReady   = 1
	MetricRepoUnready = 0
)

var (
	metricGitReady = prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
		Namespace: fluxmetrics.Namespace,
		Subsystem: "git",
		Name:      "ready",
		Help:      "Whether the working clone of the git repository is ready to use.",
	}, []string{})

	metricPushTotal = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: fluxmetrics.Namespace,
		Subsystem: "git",
		Name:      "push_total",
		Help:      "Number of pushes to the upstream git repository.",
	}, []string{fluxmetrics.LabelSuccess})
)
