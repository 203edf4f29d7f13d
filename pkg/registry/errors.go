package registry

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	fluxerr "github.com/fluxcd/compose-sync/pkg/errors"
)

// APIError is the base error when the registry service gives a
// non-"HTTP 20x" response, retrievable with errors.As.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (err *APIError) Error() string {
	if err.Body == "" {
		return err.Status
	}
	return fmt.Sprintf("%s (%s)", err.Status, err.Body)
}

// IsMissing reports whether the registry doesn't know the thing asked
// about.
func (err *APIError) IsMissing() bool {
	return err.StatusCode == http.StatusNotFound
}

func notTrackedError(servicePath string, actual *APIError) error {
	return &fluxerr.Error{
		Type: fluxerr.Missing,
		Err:  errors.Wrapf(actual, "%s is not tracked by the registry", servicePath),
		Help: `The registry service has no deployments for this image

    ` + servicePath + `

Services whose image is not tracked are left as they are.
`,
	}
}

func registryError(servicePath string, actual error) error {
	return &fluxerr.Error{
		Type: fluxerr.Server,
		Err:  errors.Wrapf(actual, "fetching latest deployment of %s", servicePath),
		Help: `Problem asking the registry service for the latest deployment

The request for the latest approved image of

    ` + servicePath + `

failed. This may be because the registry service is unavailable, the
URL given with --beekeeper-url is wrong or its credentials are not
accepted, or the response was not understood.

The compose file has not been committed; the problem needs to be
fixed before compose-sync is started again.
`,
	}
}
