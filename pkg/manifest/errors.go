package manifest

import (
	"github.com/pkg/errors"

	fluxerr "github.com/fluxcd/compose-sync/pkg/errors"
)

func MissingFileError(path string) error {
	return &fluxerr.Error{
		Type: fluxerr.User,
		Err:  errors.Wrap(ErrMissingFile, path),
		Help: `Could not find the compose file

The compose file

    ` + path + `

does not exist in the working clone of the git repository. Check that
--compose-file is given relative to the root of the repository, and
that the file exists on the branch being synced.
`,
	}
}

func MalformedError(path string, actual error) error {
	return &fluxerr.Error{
		Type: fluxerr.User,
		Err:  errors.Wrapf(ErrMalformed, "%s: %s", path, actual),
		Help: `The compose file has no services

The compose file

    ` + path + `

could not be read as a YAML document with a top-level "services"
mapping. Each service listed there needs an "image" to be kept up to
date.
`,
	}
}

func lookupError(path, service string, actual error) error {
	return &fluxerr.Error{
		Type: fluxerr.User,
		Err:  errors.Wrapf(actual, "service %q in %s", service, path),
		Help: `Could not read or update a service in the compose file

The service "` + service + `" could not be looked up in

    ` + path + `

Service names are matched exactly (including case) against the keys
of the "services" mapping.
`,
	}
}
