package manifest

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrPathNotFound is returned by a Codec when nothing (or an
	// explicit null) is found at the path given.
	ErrPathNotFound = errors.New("path not found")
	// ErrWrongKind is returned by a Codec when the value at a path is
	// not the kind asked for, e.g., a list where a mapping is needed.
	ErrWrongKind = errors.New("value at path is the wrong kind")
)

// Codec reads and edits a structured document addressed by a path of
// mapping keys. Implementations must preserve everything in the
// document other than the value being set, and must produce YAML.
type Codec interface {
	// Keys returns the keys of the mapping at path, in the order in
	// which the codec writes them.
	Keys(doc []byte, path ...string) ([]string, error)
	// Get returns the scalar value at path.
	Get(doc []byte, path ...string) (string, error)
	// Set replaces the existing scalar at path with value, returning
	// the new document.
	Set(doc []byte, value string, path ...string) ([]byte, error)
}

// CodecByName returns the codec registered under name: "yaml" (the
// default, editing in place) or "json" (round-tripping through JSON).
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "yaml":
		return YAML, nil
	case "json":
		return JSON, nil
	}
	return nil, errors.Errorf("unknown manifest codec %q (expected one of yaml, json)", name)
}

func pathError(err error, path []string) error {
	return errors.Wrapf(err, "at %q", strings.Join(path, "."))
}
