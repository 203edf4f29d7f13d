package reconcile

import (
	"context"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	fluxerr "github.com/fluxcd/compose-sync/pkg/errors"
	"github.com/fluxcd/compose-sync/pkg/image"
	fluxmetrics "github.com/fluxcd/compose-sync/pkg/metrics"
	"github.com/fluxcd/compose-sync/pkg/registry"
)

// Manifest is the part of a compose file the reconciler reads and
// writes.
type Manifest interface {
	Services() ([]string, error)
	Image(service string) (string, error)
	SetImage(service, ref string) error
}

// Registry answers with the latest approved deployment of an image
// path. An image path it doesn't track gives an error of type
// Missing.
type Registry interface {
	LatestDeployment(ctx context.Context, servicePath string) (registry.Deployment, error)
}

// DriftKind is what checking a service found. DriftUnknown means the
// registry doesn't track the service's image, and DriftNoImage that
// the service is built rather than pulled. For DriftUpdate the
// manifest was rewritten with the registry's image.
type DriftKind string

const (
	DriftUnknown  DriftKind = "unknown"
	DriftNoImage  DriftKind = "no-image"
	DriftUpToDate DriftKind = "up-to-date"
	DriftUpdate   DriftKind = "update"
)

// Drift is the outcome of checking one service.
type Drift struct {
	Service string
	Kind    DriftKind
	Current string

	// Latest is the registry's image reference, for DriftUpToDate and
	// DriftUpdate.
	Latest string

	// Change says how Latest relates to Current, for DriftUpdate.
	Change image.Change
}

// Result reports on a reconciliation pass, one Drift per service
// checked, in manifest order.
type Result struct {
	Drifts []Drift
}

// Updates returns the services whose image was rewritten.
func (r Result) Updates() []Drift {
	var updates []Drift
	for _, d := range r.Drifts {
		if d.Kind == DriftUpdate {
			updates = append(updates, d)
		}
	}
	return updates
}

// Changed reports whether the manifest was written to.
func (r Result) Changed() bool {
	return len(r.Updates()) > 0
}

// Reconciler brings the image references in a manifest in line with
// the registry.
type Reconciler struct {
	Manifest Manifest
	Registry Registry
	Logger   log.Logger
}

// ReconcileOnce checks every service in the manifest against the
// registry, services one at a time in manifest order, and rewrites
// the image of each that differs from the registry's.
//
// The first error aborts the pass. Updates already written to the
// manifest stay there; the Result returned alongside the error lists
// them.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	var result Result
	services, err := r.Manifest.Services()
	if err != nil {
		return result, err
	}

	for _, service := range services {
		drift, err := r.reconcileService(ctx, log.With(logger, "service", service), service)
		if err != nil {
			return result, err
		}
		servicesChecked.With(fluxmetrics.LabelOutcome, string(drift.Kind)).Add(1)
		result.Drifts = append(result.Drifts, drift)
	}
	return result, nil
}

func (r *Reconciler) reconcileService(ctx context.Context, logger log.Logger, service string) (Drift, error) {
	drift := Drift{Service: service}

	current, err := r.Manifest.Image(service)
	if fluxerr.IsMissing(err) {
		level.Debug(logger).Log("info", "no image", "action", "skip service")
		drift.Kind = DriftNoImage
		return drift, nil
	}
	if err != nil {
		return drift, err
	}
	drift.Current = current

	ref, err := image.ParseRef(current)
	if err != nil {
		return drift, &fluxerr.Error{
			Type: fluxerr.User,
			Err:  errors.Wrapf(err, "service %q", service),
			Help: `The image of service "` + service + `" is not a valid image reference

It should be given as <image>[:<tag>], for example

    registry.example.com/org/web:1.4.0
`,
		}
	}

	latest, err := r.Registry.LatestDeployment(ctx, ref.Path())
	if fluxerr.IsMissing(err) {
		level.Debug(logger).Log("info", "image not tracked by registry", "path", ref.Path(), "action", "skip service")
		drift.Kind = DriftUnknown
		return drift, nil
	}
	if err != nil {
		return drift, err
	}
	drift.Latest = latest.DockerURL

	if latest.DockerURL == current {
		level.Debug(logger).Log("info", "up to date", "image", current)
		drift.Kind = DriftUpToDate
		return drift, nil
	}

	drift.Change = image.ChangeRepository
	if latestRef, err := image.ParseRef(latest.DockerURL); err == nil {
		drift.Change = image.Compare(ref, latestRef)
	}
	if err := r.Manifest.SetImage(service, latest.DockerURL); err != nil {
		return drift, err
	}
	drift.Kind = DriftUpdate
	logger.Log("info", "updated image", "current", current, "latest", latest.DockerURL, "change", drift.Change)
	return drift, nil
}
