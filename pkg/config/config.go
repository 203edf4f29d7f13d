// Package config holds the configuration of compose-sync. A Config is
// built once, from flags and the environment, and handed to the
// constructors of each component; nothing else reads flags or the
// environment.
package config

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultInterval        = 60 * time.Second
	DefaultGitTimeout      = 20 * time.Second
	DefaultRegistryTimeout = 10 * time.Second
	DefaultGitUser         = "compose-sync"
	DefaultGitEmail        = "compose-sync@users.noreply.github.com"
	DefaultManifestCodec   = "yaml"
	DefaultLogFormat       = "fmt"
	DefaultLogLevel        = "info"
)

var (
	manifestCodecs = []string{"yaml", "json"}
	logFormats     = []string{"fmt", "json"}
	logLevels      = []string{"debug", "info", "warn", "error"}
)

// UsageError means the command line (or environment) was wrong, and
// the usage should be shown.
type UsageError struct {
	error
}

func NewUsageError(msg string) *UsageError {
	return &UsageError{error: errors.New(msg)}
}

func (e *UsageError) Unwrap() error {
	return e.error
}

type Config struct {
	RegistryURL string
	ComposeFile string
	GitURL      string
	Tags        []string

	Interval time.Duration
	Once     bool

	GitBranch  string
	GitDir     string
	GitUser    string
	GitEmail   string
	GitTimeout time.Duration

	RegistryTimeout time.Duration
	RegistryRPS     float64
	RegistryBurst   int

	ManifestCodec  string
	CommitTemplate string

	LogFormat     string
	LogLevel      string
	ListenMetrics string
}

// Defaults returns a Config with everything but the required values
// filled in.
func Defaults() Config {
	return Config{
		Interval:        DefaultInterval,
		GitUser:         DefaultGitUser,
		GitEmail:        DefaultGitEmail,
		GitTimeout:      DefaultGitTimeout,
		RegistryTimeout: DefaultRegistryTimeout,
		RegistryBurst:   1,
		ManifestCodec:   DefaultManifestCodec,
		LogFormat:       DefaultLogFormat,
		LogLevel:        DefaultLogLevel,
	}
}

// Validate returns a *UsageError describing the first problem found,
// or nil if the config can be used.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.RegistryURL) == "" {
		missing = append(missing, "--beekeeper-url")
	}
	if strings.TrimSpace(c.ComposeFile) == "" {
		missing = append(missing, "--compose-file")
	}
	if strings.TrimSpace(c.GitURL) == "" {
		missing = append(missing, "--git-url")
	}
	if len(missing) > 0 {
		return NewUsageError(fmt.Sprintf("missing required value(s): %s", strings.Join(missing, ", ")))
	}

	if clean := path.Clean(filepath.ToSlash(c.ComposeFile)); filepath.IsAbs(c.ComposeFile) || clean == ".." || strings.HasPrefix(clean, "../") {
		return NewUsageError(fmt.Sprintf("--compose-file must be relative to the root of the repository, got %q", c.ComposeFile))
	}
	if c.Interval <= 0 {
		return NewUsageError("--interval must be a positive number of seconds")
	}
	if c.GitTimeout <= 0 {
		return NewUsageError("--git-timeout must be positive")
	}
	if c.RegistryTimeout <= 0 {
		return NewUsageError("--registry-timeout must be positive")
	}
	if c.RegistryRPS < 0 {
		return NewUsageError("--registry-rps must not be negative")
	}
	for _, o := range []struct {
		flag, value string
		allowed     []string
	}{
		{"--manifest-codec", c.ManifestCodec, manifestCodecs},
		{"--log-format", c.LogFormat, logFormats},
		{"--log-level", c.LogLevel, logLevels},
	} {
		if !contains(o.allowed, o.value) {
			return NewUsageError(fmt.Sprintf("%s must be one of %s, got %q", o.flag, strings.Join(o.allowed, ", "), o.value))
		}
	}
	return nil
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

// SplitTags splits a comma-separated tag filter, dropping blanks.
func SplitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
