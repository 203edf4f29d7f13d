package git

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	fluxmetrics "github.com/fluxcd/compose-sync/pkg/metrics"
)

const defaultTimeout = 20 * time.Second

// Config holds some values we use when working in the working clone of
// a repo.
type Config struct {
	Branch    string        // branch to clone, or the remote's default when empty
	Path      string        // repo-relative path of the file we commit
	UserName  string        // committer
	UserEmail string        // committer
	Timeout   time.Duration // limit for each git command
}

// Checkout is a local working clone of the remote repo. It is owned by
// a single process for its lifetime, and has no locking.
type Checkout struct {
	dir      string
	created  bool
	upstream Remote
	config   Config
}

// Clone makes sure dir holds a working clone of the upstream repo,
// and returns it. An existing clone of the same remote is reused as
// it is; otherwise a shallow clone is made. When dir is empty a
// temporary directory is used, which is removed by Clean.
func Clone(ctx context.Context, dir string, upstream Remote, conf Config) (*Checkout, error) {
	metricGitReady.Set(MetricRepoUnready)
	if upstream.URL == "" {
		return nil, ErrNoRemote
	}
	if conf.Timeout <= 0 {
		conf.Timeout = defaultTimeout
	}

	c := &Checkout{dir: dir, upstream: upstream, config: conf}
	if c.dir == "" {
		tmp, err := ioutil.TempDir("", "compose-sync")
		if err != nil {
			return nil, errors.Wrap(err, "creating directory for working clone")
		}
		c.dir, c.created = tmp, true
	}

	reuse, err := c.existing(ctx)
	if err != nil {
		c.Clean()
		return nil, CloningError(upstream.SafeURL(), err)
	}
	if !reuse {
		ctx, cancel := context.WithTimeout(ctx, conf.Timeout)
		err := clone(ctx, c.dir, upstream.URL, conf.Branch)
		cancel()
		if err != nil {
			c.Clean()
			return nil, CloningError(upstream.SafeURL(), err)
		}
	}

	cctx, cancel := context.WithTimeout(ctx, conf.Timeout)
	defer cancel()
	if err := config(cctx, c.dir, conf.UserName, conf.UserEmail); err != nil {
		c.Clean()
		return nil, err
	}
	metricGitReady.Set(MetricRepoReady)
	return c, nil
}

// existing reports whether the directory already holds a clone of the
// upstream repo. A clone of some other repo is an error.
func (c *Checkout) existing(ctx context.Context) (bool, error) {
	if _, err := os.Stat(filepath.Join(c.dir, ".git")); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	origin, err := originURL(ctx, c.dir)
	if err != nil {
		return false, errors.Wrapf(err, "reading origin of existing clone in %s", c.dir)
	}
	if !c.upstream.Equivalent(origin) {
		return false, errors.Errorf("%s already holds a clone of %s", c.dir, Remote{origin}.SafeURL())
	}
	return true, nil
}

// Dir is the root of the working clone.
func (c *Checkout) Dir() string {
	return c.dir
}

// AbsolutePath returns the location of the configured file in the
// working clone.
func (c *Checkout) AbsolutePath() string {
	return filepath.Join(c.dir, c.config.Path)
}

// Upstream is the remote repo the checkout was cloned from.
func (c *Checkout) Upstream() Remote {
	return c.upstream
}

// SyncAndPublish commits any local change to the configured file with
// the message given, pulls the latest upstream state with the commit
// replayed on top, and pushes whatever commits the upstream doesn't
// have yet. It returns true if anything was pushed.
//
// A failed push leaves the commit in the working clone, so calling
// SyncAndPublish again retries it.
func (c *Checkout) SyncAndPublish(ctx context.Context, message string) (bool, error) {
	if c.HasChanges(ctx) {
		if err := c.run(ctx, func(ctx context.Context, dir string) error {
			return add(ctx, dir, c.config.Path)
		}); err != nil {
			return false, errors.Wrapf(err, "staging %s", c.config.Path)
		}
		if err := c.run(ctx, func(ctx context.Context, dir string) error {
			return commit(ctx, dir, message, c.config.Path)
		}); err != nil {
			return false, err
		}
	}

	if err := c.run(ctx, pull); err != nil {
		c.run(ctx, rebaseAbort)
		return false, PullError(c.upstream.SafeURL(), err)
	}

	var unpushed int
	if err := c.run(ctx, func(ctx context.Context, dir string) (err error) {
		unpushed, err = ahead(ctx, dir)
		return err
	}); err != nil {
		return false, err
	}
	if unpushed == 0 {
		return false, nil
	}

	if err := c.run(ctx, push); err != nil {
		metricPushTotal.With(fluxmetrics.LabelSuccess, "false").Add(1)
		return false, PushError(c.upstream.SafeURL(), err)
	}
	metricPushTotal.With(fluxmetrics.LabelSuccess, "true").Add(1)
	return true, nil
}

// HasChanges reports whether the configured file differs from the
// last commit.
func (c *Checkout) HasChanges(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	return check(ctx, c.dir, c.config.Path)
}

// HeadRevision is the commit checked out in the working clone.
func (c *Checkout) HeadRevision(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	return refRevision(ctx, c.dir, "HEAD")
}

// Clean removes the working clone, if it was made in a temporary
// directory.
func (c *Checkout) Clean() {
	if c.created && c.dir != "" {
		os.RemoveAll(c.dir)
	}
}

func (c *Checkout) run(ctx context.Context, op func(context.Context, string) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	return op(ctx, c.dir)
}
