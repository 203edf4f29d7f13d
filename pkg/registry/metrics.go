package registry

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	fluxmetrics "github.com/fluxcd/compose-sync/pkg/metrics"
)

var (
	requestDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: fluxmetrics.Namespace,
		Subsystem: "registry",
		Name:      "request_duration_seconds",
		Help:      "Duration of requests to the registry service, in seconds.",
		Buckets:   stdprometheus.DefBuckets,
	}, []string{fluxmetrics.LabelStatus})
)
