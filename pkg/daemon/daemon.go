package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"

	fluxmetrics "github.com/fluxcd/compose-sync/pkg/metrics"
	"github.com/fluxcd/compose-sync/pkg/reconcile"
)

const DefaultInterval = 60 * time.Second

// Repo is the working clone of the repository holding the compose
// file.
type Repo interface {
	// SyncAndPublish pulls from the upstream, commits any change to
	// the compose file with the message given, and pushes. It returns
	// true if anything was pushed.
	SyncAndPublish(ctx context.Context, message string) (bool, error)
}

type Reconciler interface {
	ReconcileOnce(ctx context.Context) (reconcile.Result, error)
}

// Daemon runs reconciliation passes, once or at an interval.
type Daemon struct {
	Repo       Repo
	Reconciler Reconciler
	Logger     log.Logger

	// Message renders commit messages; when nil, DefaultMessage is
	// used.
	Message *Message

	// Interval is the time between the end of one pass and the start
	// of the next. DefaultInterval is used when it is zero.
	Interval time.Duration

	// SingleRun means run one pass, then return.
	SingleRun bool
}

func (d *Daemon) logger() log.Logger {
	if d.Logger == nil {
		return log.NewNopLogger()
	}
	return d.Logger
}

func (d *Daemon) message() *Message {
	if d.Message == nil {
		return DefaultMessage
	}
	return d.Message
}

// Pass runs one reconciliation pass: it brings the working clone up to
// date (publishing anything left over from an earlier pass), checks
// every service against the registry, and publishes the compose file if
// any service was updated.
//
// Any error fails the whole pass. Updates written to the compose file
// before the error are left there, uncommitted.
func (d *Daemon) Pass(ctx context.Context) (err error) {
	logger := d.logger()
	started := time.Now()
	defer func() {
		passDuration.With(
			fluxmetrics.LabelSuccess, fmt.Sprint(err == nil),
		).Observe(time.Since(started).Seconds())
	}()

	pushed, err := d.Repo.SyncAndPublish(ctx, d.message().RenderLeftovers())
	if err != nil {
		return err
	}
	if pushed {
		logger.Log("event", "published", "info", "pushed changes left by an earlier run")
	}

	result, err := d.Reconciler.ReconcileOnce(ctx)
	if err != nil {
		return err
	}
	updates := result.Updates()
	if len(updates) == 0 {
		logger.Log("event", "checked", "services", len(result.Drifts), "updates", 0)
		return nil
	}

	msg, err := d.message().Render(updates)
	if err != nil {
		return err
	}
	if _, err := d.Repo.SyncAndPublish(ctx, msg); err != nil {
		return err
	}
	logger.Log("event", "published", "services", len(result.Drifts), "updates", len(updates))
	return nil
}

// Loop runs passes until one fails, returning its error. With
// SingleRun it returns after the first pass. A pass in progress always
// runs to its end; closing stop makes Loop return nil instead of
// sleeping until the next pass.
func (d *Daemon) Loop(stop <-chan struct{}) error {
	logger := d.logger()
	interval := d.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	for {
		if err := d.Pass(context.Background()); err != nil {
			return err
		}
		if d.SingleRun {
			return nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-stop:
			timer.Stop()
			logger.Log("stopping", "true")
			return nil
		case <-timer.C:
		}
	}
}
