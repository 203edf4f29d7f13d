package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fluxerr "github.com/fluxcd/compose-sync/pkg/errors"
)

type request struct {
	path     string
	tags     []string
	user     string
	password string
}

// fakeBeekeeper serves the latest deployment route with the given
// status and body, recording what it was asked.
func fakeBeekeeper(t *testing.T, status int, body string) (*httptest.Server, *[]request) {
	var seen []request
	router := NewRouter()
	router.Get(LatestDeployment).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, password, _ := r.BasicAuth()
		seen = append(seen, request{
			path:     mux.Vars(r)["path"],
			tags:     r.URL.Query()["tags"],
			user:     user,
			password: password,
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, &seen
}

func TestLatestDeployment(t *testing.T) {
	server, seen := fakeBeekeeper(t, http.StatusOK, `{"docker_url": "registry.example.com/team/web:1.4.0", "created": "2020-01-01"}`)

	c, err := NewClient(server.URL, server.Client(), nil)
	require.NoError(t, err)

	d, err := c.LatestDeployment(context.Background(), "registry.example.com/team/web")
	require.NoError(t, err)
	assert.Equal(t, Deployment{Path: "registry.example.com/team/web", DockerURL: "registry.example.com/team/web:1.4.0"}, d)

	require.Len(t, *seen, 1)
	assert.Equal(t, "registry.example.com/team/web", (*seen)[0].path)
	assert.Empty(t, (*seen)[0].tags)
}

func TestLatestDeploymentTags(t *testing.T) {
	server, seen := fakeBeekeeper(t, http.StatusOK, `{"docker_url": "localhost:5000/web:2"}`)

	c, err := NewClient(server.URL, server.Client(), nil, Tags([]string{"prod", " ", "eu "}))
	require.NoError(t, err)

	_, err = c.LatestDeployment(context.Background(), "localhost:5000/web")
	require.NoError(t, err)
	require.Len(t, *seen, 1)
	assert.Equal(t, "localhost:5000/web", (*seen)[0].path)
	assert.Equal(t, []string{"prod,eu"}, (*seen)[0].tags)
}

func TestLatestDeploymentBasicAuth(t *testing.T) {
	server, seen := fakeBeekeeper(t, http.StatusOK, `{"docker_url": "web:1"}`)

	c, err := NewClient("http://bob:s3cret@"+server.Listener.Addr().String(), server.Client(), nil)
	require.NoError(t, err)
	assert.NotContains(t, c.SafeURL(), "s3cret")

	_, err = c.LatestDeployment(context.Background(), "web")
	require.NoError(t, err)

	require.Len(t, *seen, 1)
	assert.Equal(t, "bob", (*seen)[0].user)
	assert.Equal(t, "s3cret", (*seen)[0].password)
}

func TestLatestDeploymentNotTracked(t *testing.T) {
	server, _ := fakeBeekeeper(t, http.StatusNotFound, `no such image`)

	c, err := NewClient(server.URL, server.Client(), nil)
	require.NoError(t, err)

	_, err = c.LatestDeployment(context.Background(), "team/unknown")
	require.Error(t, err)
	assert.True(t, fluxerr.IsMissing(err))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "no such image", apiErr.Body)
}

func TestLatestDeploymentFailures(t *testing.T) {
	for name, tc := range map[string]struct {
		status int
		body   string
	}{
		"server error":      {http.StatusInternalServerError, `oops`},
		"unauthorized":      {http.StatusUnauthorized, ``},
		"not JSON":          {http.StatusOK, `<html></html>`},
		"no docker_url":     {http.StatusOK, `{"image": "web:1"}`},
		"docker_url number": {http.StatusOK, `{"docker_url": 5}`},
		"blank docker_url":  {http.StatusOK, `{"docker_url": "  "}`},
	} {
		t.Run(name, func(t *testing.T) {
			server, _ := fakeBeekeeper(t, tc.status, tc.body)
			c, err := NewClient(server.URL, server.Client(), nil)
			require.NoError(t, err)

			_, err = c.LatestDeployment(context.Background(), "web")
			require.Error(t, err)
			assert.False(t, fluxerr.IsMissing(err))
			assert.True(t, fluxerr.Is(err, fluxerr.Server))
			assert.NotEmpty(t, fluxerr.Help(err))
		})
	}
}

func TestLatestDeploymentUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c, err := NewClient(url, nil, nil)
	require.NoError(t, err)
	_, err = c.LatestDeployment(context.Background(), "web")
	require.Error(t, err)
	assert.True(t, fluxerr.Is(err, fluxerr.Server))
}

func TestNewClientBadURL(t *testing.T) {
	for _, u := range []string{"", "beekeeper.example.com", "/deployments", "http://%zz"} {
		_, err := NewClient(u, nil, nil)
		assert.Error(t, err, u)
	}
}

func TestLatestDeploymentRecoversLimiter(t *testing.T) {
	var calls int32
	router := NewRouter()
	router.Get(LatestDeployment).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"docker_url": "web:1"}`))
	})
	server := httptest.NewServer(router)
	defer server.Close()

	limiter := &RateLimiter{RPS: 100, Burst: 1}
	hc := &http.Client{Transport: limiter.RoundTripper(http.DefaultTransport)}
	c, err := NewClient(server.URL, hc, nil, Limiter(limiter))
	require.NoError(t, err)

	_, err = c.LatestDeployment(context.Background(), "web")
	require.Error(t, err)
	assert.Equal(t, 50.0, limiter.Limit())

	_, err = c.LatestDeployment(context.Background(), "web")
	require.NoError(t, err)
	assert.Equal(t, 75.0, limiter.Limit())
}
