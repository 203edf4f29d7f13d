package reconcile

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	fluxmetrics "github.com/fluxcd/compose-sync/pkg/metrics"
)

var (
	servicesChecked = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: fluxmetrics.Namespace,
		Subsystem: "reconcile",
		Name:      "services_total",
		Help:      "Count of services checked against the registry, by outcome.",
	}, []string{fluxmetrics.LabelOutcome})
)
