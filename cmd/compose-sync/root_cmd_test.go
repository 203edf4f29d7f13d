package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/compose-sync/pkg/config"
)

var required = []string{
	"--beekeeper-url", "https://beekeeper.example.com",
	"--compose-file", "docker-compose.yml",
	"--git-url", "git@github.com:org/deploy",
}

// execute runs the root command with the args and environment given,
// and returns the config it would have run with.
func execute(t *testing.T, env map[string]string, args ...string) (config.Config, error) {
	var got config.Config
	opts := newRoot()
	opts.lookupEnv = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	opts.run = func(_ *cobra.Command, conf config.Config) error {
		got = conf
		return nil
	}
	cmd := opts.Command()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	// nil would mean os.Args
	cmd.SetArgs(append([]string{}, args...))
	_, err := cmd.ExecuteC()
	return got, err
}

func TestRootDefaults(t *testing.T) {
	conf, err := execute(t, nil, required...)
	require.NoError(t, err)

	assert.Equal(t, "https://beekeeper.example.com", conf.RegistryURL)
	assert.Equal(t, "docker-compose.yml", conf.ComposeFile)
	assert.Equal(t, "git@github.com:org/deploy", conf.GitURL)
	assert.Nil(t, conf.Tags)
	assert.Equal(t, 60*time.Second, conf.Interval)
	assert.False(t, conf.Once)
	assert.Equal(t, config.DefaultGitTimeout, conf.GitTimeout)
	assert.Equal(t, "yaml", conf.ManifestCodec)
	assert.Equal(t, "fmt", conf.LogFormat)
	assert.Equal(t, "info", conf.LogLevel)
	assert.Equal(t, "", conf.ListenMetrics)
}

func TestRootFlags(t *testing.T) {
	conf, err := execute(t, nil, append(required,
		"--tags", "prod,eu",
		"--interval", "5",
		"--once",
		"--git-branch", "main",
		"--registry-rps", "2.5",
		"--manifest-codec", "json",
		"--git-commit-template", "Bump {{ len .Updates }} images",
	)...)
	require.NoError(t, err)

	assert.Equal(t, []string{"prod", "eu"}, conf.Tags)
	assert.Equal(t, 5*time.Second, conf.Interval)
	assert.True(t, conf.Once)
	assert.Equal(t, "main", conf.GitBranch)
	assert.Equal(t, 2.5, conf.RegistryRPS)
	assert.Equal(t, "json", conf.ManifestCodec)
	assert.Equal(t, "Bump {{ len .Updates }} images", conf.CommitTemplate)
}

func TestRootEnvironment(t *testing.T) {
	conf, err := execute(t, map[string]string{
		"BEEKEEPER_URL":  "https://env.example.com",
		"COMPOSE_FILE":   "deploy/docker-compose.yml",
		"GIT_URL":        "https://git.example.com/org/deploy.git",
		"BEEKEEPER_TAGS": "prod",
		"POLL_INTERVAL":  "30",
		"ONCE":           "true",
		"GIT_TIMEOUT":    "1m",
		"LOG_LEVEL":      "debug",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", conf.RegistryURL)
	assert.Equal(t, "deploy/docker-compose.yml", conf.ComposeFile)
	assert.Equal(t, "https://git.example.com/org/deploy.git", conf.GitURL)
	assert.Equal(t, []string{"prod"}, conf.Tags)
	assert.Equal(t, 30*time.Second, conf.Interval)
	assert.True(t, conf.Once)
	assert.Equal(t, time.Minute, conf.GitTimeout)
	assert.Equal(t, "debug", conf.LogLevel)
}

func TestRootFlagWinsOverEnvironment(t *testing.T) {
	conf, err := execute(t, map[string]string{
		"BEEKEEPER_URL": "https://env.example.com",
		"POLL_INTERVAL": "30",
	}, append(required, "--interval", "10")...)
	require.NoError(t, err)

	assert.Equal(t, "https://beekeeper.example.com", conf.RegistryURL)
	assert.Equal(t, 10*time.Second, conf.Interval)
}

func TestRootUsageErrors(t *testing.T) {
	for name, c := range map[string]struct {
		env  map[string]string
		args []string
	}{
		"nothing given":  {args: []string{}},
		"no compose":     {args: []string{"--beekeeper-url", "http://b", "--git-url", "file:///tmp/repo"}},
		"extra argument": {args: append(required, "extra")},
		"unknown flag":   {args: append(required, "--no-such-flag")},
		"bad flag value": {args: append(required, "--interval", "soon")},
		"bad env value":  {env: map[string]string{"POLL_INTERVAL": "soon"}, args: required},
		"zero interval":  {args: append(required, "--interval", "0")},
		"bad log level":  {args: append(required, "--log-level", "loud")},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, c.env, c.args...)
			var usage *config.UsageError
			assert.True(t, errors.As(err, &usage), "%v", err)
		})
	}
}

func TestRootVersion(t *testing.T) {
	for _, v := range []string{"", "1.2.0"} {
		version = v
		out := new(bytes.Buffer)
		cmd := newRoot().Command()
		cmd.SetOut(out)
		cmd.SetArgs([]string{"--version"})
		require.NoError(t, cmd.Execute())
		if v == "" {
			v = "unversioned"
		}
		assert.Equal(t, v, strings.TrimSpace(out.String()))
	}
	version = ""
}
