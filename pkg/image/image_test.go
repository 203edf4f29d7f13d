package image

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestParseRef(t *testing.T) {
	for _, x := range []struct {
		test   string
		domain string
		path   string
		tag    string
		digest string
	}{
		{"alpine", "", "alpine", "", ""},
		{"alpine:mytag", "", "alpine", "mytag", ""},
		{"org/web:v1", "", "org/web", "v1", ""},
		{"org/team/web:v1", "", "org/team/web", "v1", ""},
		{"quay.io/org/web:v1.2.3", "quay.io", "quay.io/org/web", "v1.2.3", ""},
		// A port on the registry host is never a tag
		{"localhost/hello:v1.1", "localhost", "localhost/hello", "v1.1", ""},
		{"localhost:5000/hello", "localhost:5000", "localhost:5000/hello", "", ""},
		{"localhost:5000/hello:v1.1", "localhost:5000", "localhost:5000/hello", "v1.1", ""},
		{"registry:5000/path/to/repo:mytag", "registry:5000", "registry:5000/path/to/repo", "mytag", ""},
		{"org/web@sha256:abcdef", "", "org/web", "", "sha256:abcdef"},
		{"org/web:v2@sha256:abcdef", "", "org/web", "v2", "sha256:abcdef"},
	} {
		ref, err := ParseRef(x.test)
		if !assert.NoError(t, err, x.test) {
			continue
		}
		assert.Equal(t, x.test, ref.String(), "%q does not stringify as itself", x.test)
		assert.Equal(t, x.domain, ref.Domain, x.test)
		assert.Equal(t, x.path, ref.Path(), x.test)
		assert.Equal(t, x.tag, ref.Tag, x.test)
		assert.Equal(t, x.digest, ref.Digest, x.test)
	}
}

func TestParseRefErrorCases(t *testing.T) {
	for _, x := range []string{
		"",
		":tag",
		"alpine:",
		"/leading/slash",
		"trailing/slash/",
		"org/web:v1:v2",
		"org/web@",
		"@sha256:abc",
	} {
		_, err := ParseRef(x)
		if assert.Error(t, err, "expected %q to fail parsing", x) {
			assert.Equal(t, ErrInvalidImageRef, errors.Cause(err), x)
		}
	}
}

func TestCompare(t *testing.T) {
	for _, x := range []struct {
		from, to string
		change   Change
	}{
		{"org/web:v1", "org/web:v1", ChangeNone},
		{"org/web:v1.0.0", "org/web:v1.1.0", ChangeUpgrade},
		{"org/web:1.10.0", "org/web:1.9.2", ChangeDowngrade},
		{"org/web:latest", "org/web:abc123", ChangeRetag},
		{"org/web:v1", "org/web:v1@sha256:abc", ChangeRetag},
		{"org/web:v1", "org/other:v1", ChangeRepository},
		{"org/web:v1", "quay.io/org/web:v1", ChangeRepository},
	} {
		assert.Equal(t, x.change, Compare(MustParseRef(x.from), MustParseRef(x.to)), "%s -> %s", x.from, x.to)
	}
}
