package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fluxcd/compose-sync/pkg/config"
	"github.com/fluxcd/compose-sync/pkg/daemon"
	"github.com/fluxcd/compose-sync/pkg/git"
	"github.com/fluxcd/compose-sync/pkg/manifest"
	"github.com/fluxcd/compose-sync/pkg/reconcile"
	"github.com/fluxcd/compose-sync/pkg/registry"
)

const shutdownTimeout = 5 * time.Second

func runDaemon(cmd *cobra.Command, conf config.Config) error {
	logger := newLogger(cmd.ErrOrStderr(), conf.LogFormat, conf.LogLevel)
	logger.Log("started", true, "version", versionString())

	err := run(conf, logger, shutdownSignals(logger))
	if err != nil {
		logger.Log("err", err)
	}
	return err
}

// shutdownSignals returns a channel that is closed on SIGINT or
// SIGTERM.
func shutdownSignals(logger log.Logger) <-chan struct{} {
	stop := make(chan struct{})
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		logger.Log("signal", <-c)
		close(stop)
	}()
	return stop
}

// run wires the components together from conf and runs the loop
// until it returns, or until stop is closed.
func run(conf config.Config, logger log.Logger, stop <-chan struct{}) error {
	codec, err := manifest.CodecByName(conf.ManifestCodec)
	if err != nil {
		return err
	}
	message, err := daemon.NewMessage(conf.CommitTemplate, conf.ComposeFile)
	if err != nil {
		return err
	}
	beekeeper, err := newRegistryClient(conf, log.With(logger, "component", "registry"))
	if err != nil {
		return err
	}
	logger.Log("component", "registry", "url", beekeeper.SafeURL(), "tags", strings.Join(conf.Tags, ","))

	ctx := context.Background()
	checkout, err := git.Clone(ctx, conf.GitDir, git.Remote{URL: conf.GitURL}, git.Config{
		Branch:    conf.GitBranch,
		Path:      conf.ComposeFile,
		UserName:  conf.GitUser,
		UserEmail: conf.GitEmail,
		Timeout:   conf.GitTimeout,
	})
	if err != nil {
		return err
	}
	defer checkout.Clean()
	revision, err := checkout.HeadRevision(ctx)
	if err != nil {
		return err
	}
	logger.Log("component", "git", "url", checkout.Upstream().SafeURL(), "dir", checkout.Dir(), "branch", conf.GitBranch, "revision", revision)

	d := &daemon.Daemon{
		Repo: checkout,
		Reconciler: &reconcile.Reconciler{
			Manifest: manifest.New(checkout.AbsolutePath(), codec),
			Registry: beekeeper,
			Logger:   log.With(logger, "component", "reconcile"),
		},
		Logger:    log.With(logger, "component", "daemon"),
		Message:   message,
		Interval:  conf.Interval,
		SingleRun: conf.Once,
	}

	if conf.ListenMetrics == "" {
		return d.Loop(stop)
	}
	return loopWithMetrics(d, conf.ListenMetrics, log.With(logger, "component", "metrics"), stop)
}

func newRegistryClient(conf config.Config, logger log.Logger) (*registry.Client, error) {
	hc := &http.Client{Timeout: conf.RegistryTimeout}
	opts := []registry.Option{registry.Tags(conf.Tags)}
	if conf.RegistryRPS > 0 {
		limiter := &registry.RateLimiter{
			RPS:    conf.RegistryRPS,
			Burst:  conf.RegistryBurst,
			Logger: logger,
		}
		hc.Transport = limiter.RoundTripper(http.DefaultTransport)
		opts = append(opts, registry.Limiter(limiter))
	}
	return registry.NewClient(conf.RegistryURL, hc, logger, opts...)
}

// loopWithMetrics runs the loop alongside an HTTP server for
// Prometheus metrics. The server is shut down when the loop returns;
// if the server fails, the loop is stopped after its current pass and
// the server's error returned.
func loopWithMetrics(d *daemon.Daemon, addr string, logger log.Logger, stop <-chan struct{}) error {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	srv := &http.Server{Addr: addr, Handler: router}

	quit := make(chan struct{})
	var once sync.Once
	closeQuit := func() { once.Do(func() { close(quit) }) }
	go func() {
		select {
		case <-stop:
			closeQuit()
		case <-quit:
		}
	}()

	var g errgroup.Group
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		defer closeQuit()
		return d.Loop(quit)
	})
	g.Go(func() error {
		logger.Log("addr", addr)
		err := srv.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		closeQuit()
		return errors.Wrap(err, "serving metrics")
	})
	g.Go(func() error {
		<-done
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	})
	return g.Wait()
}
