package image

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
)

var (
	ErrInvalidImageRef   = errors.New("invalid image reference")
	ErrBlankImageRef     = errors.Wrap(ErrInvalidImageRef, "blank image name")
	ErrMalformedImageRef = errors.Wrap(ErrInvalidImageRef, `expected image reference as <image>[:<tag>][@<digest>]`)
)

// Name represents an unversioned (i.e., untagged) image a.k.a., an
// image repo. These sometimes include a domain, e.g., quay.io or
// localhost:5000, and always include a path with at least one
// element.
//
// Examples (stringified):
//   * alpine
//   * org/web
//   * quay.io/org/web
//   * localhost:5000/arbitrary/path/to/repo
type Name struct {
	Domain, Image string
}

func (i Name) String() string {
	if i.Image == "" {
		return ""
	}
	var host string
	if i.Domain != "" {
		host = i.Domain + "/"
	}
	return host + i.Image
}

// Ref represents a versioned image. Both the tag and the digest are
// optional. A Ref stringifies to exactly what it was parsed from.
//
// Examples (stringified):
//  * alpine:3.5
//  * org/web:v1
//  * localhost:5000/path/to/repo:revision-sha1
//  * org/web@sha256:0123abcd...
type Ref struct {
	Name
	Tag    string
	Digest string
}

func (i Ref) String() string {
	s := i.Name.String()
	if i.Tag != "" {
		s += ":" + i.Tag
	}
	if i.Digest != "" {
		s += "@" + i.Digest
	}
	return s
}

// Path is the image reference with the tag and digest stripped. It is
// the identity under which the image is known to the registry
// service.
func (i Ref) Path() string {
	return i.Name.String()
}

// ParseRef parses a string representation of an image reference.
//
// The first path element is taken to be a domain if it contains a
// `.` or a `:`, or is `localhost`. The tag is whatever follows a
// colon in the remainder, so a registry port is never mistaken for a
// tag: `localhost:5000/web:v1` has the path `localhost:5000/web` and
// the tag `v1`. For references without a domain this is the same as
// splitting at the first colon.
func ParseRef(s string) (Ref, error) {
	var id Ref
	if s == "" {
		return id, errors.Wrapf(ErrBlankImageRef, "parsing %q", s)
	}

	rest := s
	if at := strings.Index(rest, "@"); at >= 0 {
		id.Digest = rest[at+1:]
		rest = rest[:at]
		if id.Digest == "" || rest == "" {
			return Ref{}, errors.Wrapf(ErrMalformedImageRef, "parsing %q", s)
		}
	}

	if strings.HasPrefix(rest, "/") || strings.HasSuffix(rest, "/") {
		return Ref{}, errors.Wrapf(ErrMalformedImageRef, "parsing %q", s)
	}

	elements := strings.Split(rest, "/")
	if len(elements) > 1 && isDomain(elements[0]) {
		id.Domain = elements[0]
		id.Image = strings.Join(elements[1:], "/")
	} else {
		id.Image = rest
	}

	// Figure out if there's a tag
	imageParts := strings.Split(id.Image, ":")
	switch len(imageParts) {
	case 1:
		break
	case 2:
		if imageParts[0] == "" || imageParts[1] == "" {
			return Ref{}, errors.Wrapf(ErrMalformedImageRef, "parsing %q", s)
		}
		id.Image = imageParts[0]
		id.Tag = imageParts[1]
	default:
		return Ref{}, errors.Wrapf(ErrMalformedImageRef, "parsing %q", s)
	}

	return id, nil
}

func isDomain(element string) bool {
	return element == "localhost" || strings.ContainsAny(element, ".:")
}

// Change describes how one image reference relates to the one that
// replaces it.
type Change string

const (
	ChangeNone       Change = "none"
	ChangeRepository Change = "repository"
	ChangeUpgrade    Change = "upgrade"
	ChangeDowngrade  Change = "downgrade"
	ChangeRetag      Change = "retag"
)

// Compare classifies the change from one image reference to another.
// Upgrade and downgrade are only reported when both tags are semantic
// versions; any other difference within the same path is a retag.
func Compare(from, to Ref) Change {
	switch {
	case from.String() == to.String():
		return ChangeNone
	case from.Path() != to.Path():
		return ChangeRepository
	}
	fv, ferr := semver.NewVersion(from.Tag)
	tv, terr := semver.NewVersion(to.Tag)
	if ferr != nil || terr != nil {
		return ChangeRetag
	}
	switch cmp := tv.Compare(fv); {
	case cmp > 0:
		return ChangeUpgrade
	case cmp < 0:
		return ChangeDowngrade
	default:
		return ChangeRetag
	}
}

func (c Change) String() string {
	return string(c)
}

// MustParseRef is for tests and constants.
func MustParseRef(s string) Ref {
	ref, err := ParseRef(s)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", s, err))
	}
	return ref
}
