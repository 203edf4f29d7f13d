package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/fluxcd/compose-sync/pkg/config"
)

var version string

// Environment variables that can be used in place of flags. A flag
// given on the command line wins over its environment variable.
var envVariables = map[string]string{
	"beekeeper-url":       "BEEKEEPER_URL",
	"compose-file":        "COMPOSE_FILE",
	"git-url":             "GIT_URL",
	"tags":                "BEEKEEPER_TAGS",
	"interval":            "POLL_INTERVAL",
	"once":                "ONCE",
	"git-branch":          "GIT_BRANCH",
	"git-dir":             "GIT_DIR_PATH",
	"git-user":            "GIT_USER",
	"git-email":           "GIT_EMAIL",
	"git-timeout":         "GIT_TIMEOUT",
	"git-commit-template": "GIT_COMMIT_TEMPLATE",
	"registry-timeout":    "REGISTRY_TIMEOUT",
	"registry-rps":        "REGISTRY_RPS",
	"registry-burst":      "REGISTRY_BURST",
	"manifest-codec":      "MANIFEST_CODEC",
	"log-format":          "LOG_FORMAT",
	"log-level":           "LOG_LEVEL",
	"listen-metrics":      "LISTEN_METRICS",
}

type rootOpts struct {
	config.Config
	tags     string
	interval int

	// for tests; os.LookupEnv when nil
	lookupEnv func(string) (string, bool)
	// run is given the validated config; runDaemon when nil
	run func(*cobra.Command, config.Config) error
}

func newRoot() *rootOpts {
	return &rootOpts{Config: config.Defaults()}
}

var rootLongHelp = strings.TrimSpace(`
compose-sync keeps the image versions in a docker-compose file, kept in
git, in step with the latest approved deployments recorded by beekeeper.

Each pass pulls the repository, asks beekeeper for the latest
deployment of every service in the compose file, rewrites the image of
any service that has drifted, and commits and pushes the result.

Every flag can also be given as an environment variable, e.g.,
--beekeeper-url as BEEKEEPER_URL.
`)

func versionString() string {
	if version == "" {
		return "unversioned"
	}
	return version
}

func (opts *rootOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "compose-sync",
		Short:         "Keep a docker-compose file in git up to date with beekeeper",
		Long:          rootLongHelp,
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE:       opts.PreRunE,
		RunE:          opts.RunE,
	}
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return config.NewUsageError(err.Error())
	})

	defaults := config.Defaults()
	flags := cmd.Flags()
	flags.StringVar(&opts.RegistryURL, "beekeeper-url", "", "base URL of the beekeeper registry service; may include basic auth credentials")
	flags.StringVar(&opts.ComposeFile, "compose-file", "", "path of the docker-compose file, relative to the root of the repository")
	flags.StringVar(&opts.GitURL, "git-url", "", "URL of the git repository holding the compose file; may include credentials")
	flags.StringVar(&opts.tags, "tags", "", "comma-separated tags the latest deployment must have")
	flags.IntVar(&opts.interval, "interval", int(defaults.Interval/time.Second), "seconds between the end of one pass and the start of the next")
	flags.BoolVar(&opts.Once, "once", false, "run a single pass, then exit")

	flags.StringVar(&opts.GitBranch, "git-branch", "", "branch to sync; the remote's default branch when empty")
	flags.StringVar(&opts.GitDir, "git-dir", "", "where to keep the working clone; a temporary directory when empty")
	flags.StringVar(&opts.GitUser, "git-user", defaults.GitUser, "committer name")
	flags.StringVar(&opts.GitEmail, "git-email", defaults.GitEmail, "committer email")
	flags.DurationVar(&opts.GitTimeout, "git-timeout", defaults.GitTimeout, "duration after which each git command times out")
	flags.StringVar(&opts.CommitTemplate, "git-commit-template", "", "text/template for commit messages, with sprig functions, given .ComposeFile and .Updates")

	flags.DurationVar(&opts.RegistryTimeout, "registry-timeout", defaults.RegistryTimeout, "timeout for each request to beekeeper")
	flags.Float64Var(&opts.RegistryRPS, "registry-rps", 0, "maximum requests per second to beekeeper; 0 for no limit")
	flags.IntVar(&opts.RegistryBurst, "registry-burst", defaults.RegistryBurst, "maximum burst of requests to beekeeper, when rate limited")

	flags.StringVar(&opts.ManifestCodec, "manifest-codec", defaults.ManifestCodec, "how to edit the compose file: yaml (in place) or json")
	flags.StringVar(&opts.LogFormat, "log-format", defaults.LogFormat, "fmt or json")
	flags.StringVar(&opts.LogLevel, "log-level", defaults.LogLevel, "debug, info, warn or error")
	flags.StringVar(&opts.ListenMetrics, "listen-metrics", "", "address to serve Prometheus metrics on, e.g., :3031; not served when empty")

	for name, env := range envVariables {
		if f := flags.Lookup(name); f != nil {
			f.Usage = fmt.Sprintf("%s (env %s)", f.Usage, env)
		}
	}
	return cmd
}

// PreRunE fills in anything not given on the command line from the
// environment, then checks the result.
func (opts *rootOpts) PreRunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return config.NewUsageError("expected no arguments")
	}
	lookup := opts.lookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		env, ok := envVariables[f.Name]
		if !ok || err != nil || cmd.Flags().Changed(f.Name) {
			return
		}
		value, ok := lookup(env)
		if !ok || value == "" {
			return
		}
		if e := f.Value.Set(value); e != nil {
			err = config.NewUsageError(fmt.Sprintf("invalid value %q for %s: %s", value, env, e))
		}
	})
	if err != nil {
		return err
	}

	opts.Tags = config.SplitTags(opts.tags)
	opts.Interval = time.Duration(opts.interval) * time.Second
	return opts.Validate()
}

func (opts *rootOpts) RunE(cmd *cobra.Command, _ []string) error {
	run := opts.run
	if run == nil {
		run = runDaemon
	}
	return run(cmd, opts.Config)
}
