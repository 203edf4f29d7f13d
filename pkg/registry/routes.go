package registry

import (
	"net/url"
	"path"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
)

const (
	LatestDeployment = "LatestDeployment"
)

// NewRouter returns the routes of the beekeeper API we consume. It is
// used both to construct request URLs, and (in tests) to serve them.
func NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.NewRoute().Name(LatestDeployment).Methods("GET").Path("/deployments/{path:.+}/latest")
	return r
}

// MakeURL builds the URL for the named route under endpoint,
// substituting the route variables given as name, value pairs and
// adding any non-empty query values.
func MakeURL(endpoint *url.URL, router *mux.Router, routeName string, query url.Values, routeVars ...string) (*url.URL, error) {
	if len(routeVars)%2 != 0 {
		panic("routeVars must be even!")
	}
	route := router.Get(routeName)
	if route == nil {
		return nil, errors.New("no route with name " + routeName)
	}
	routeURL, err := route.URLPath(routeVars...)
	if err != nil {
		return nil, errors.Wrapf(err, "retrieving route path %s", routeName)
	}

	u := *endpoint
	u.Path = path.Join(endpoint.Path, routeURL.Path)
	u.RawPath = ""
	v := url.Values{}
	for k, vals := range query {
		for _, val := range vals {
			if val != "" {
				v.Add(k, val)
			}
		}
	}
	u.RawQuery = v.Encode()
	return &u, nil
}
