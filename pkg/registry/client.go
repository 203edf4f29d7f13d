package registry

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Jeffail/gabs"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
)

const dockerURLField = "docker_url"

// Deployment is the registry's record of the latest approved build of
// an image.
type Deployment struct {
	// Path is the image path the deployment was asked for
	Path string

	// DockerURL is the authoritative image reference, tag included
	DockerURL string
}

// Client asks the registry service ("beekeeper") for the latest
// approved deployment of an image path. It makes exactly one request
// per call, and never retries.
type Client struct {
	client   *http.Client
	router   *mux.Router
	endpoint *url.URL
	tags     []string
	limiter  *RateLimiter
	logger   log.Logger
}

type Option func(*Client)

// Tags narrows which builds count as the latest to those carrying all
// of the given tags.
func Tags(tags []string) Option {
	return func(c *Client) {
		for _, t := range tags {
			if t = strings.TrimSpace(t); t != "" {
				c.tags = append(c.tags, t)
			}
		}
	}
}

// Limiter makes the client report successful requests to the rate
// limiter, so it can recover after backing off. The limiter's
// RoundTripper must also be part of the HTTP client's transport.
func Limiter(l *RateLimiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// NewClient returns a client for the registry service at endpoint.
// Credentials in the endpoint URL are sent as HTTP basic auth.
func NewClient(endpoint string, hc *http.Client, logger log.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing registry URL")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("registry URL %q must be absolute, e.g., https://beekeeper.example.com", u.Redacted())
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	c := &Client{
		client:   hc,
		router:   NewRouter(),
		endpoint: u,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SafeURL returns the registry URL with any password removed.
func (c *Client) SafeURL() string {
	return c.endpoint.Redacted()
}

// LatestDeployment returns the latest approved deployment of the
// image path. If the registry doesn't track the path (HTTP 404), the
// error is of type Missing (see errors.IsMissing); any other failure
// is of type Server.
func (c *Client) LatestDeployment(ctx context.Context, servicePath string) (Deployment, error) {
	query := url.Values{}
	if len(c.tags) > 0 {
		query.Set("tags", strings.Join(c.tags, ","))
	}
	u, err := MakeURL(c.endpoint, c.router, LatestDeployment, query, "path", servicePath)
	if err != nil {
		return Deployment{}, registryError(servicePath, errors.Wrap(err, "constructing URL"))
	}

	req, err := http.NewRequest("GET", u.String(), nil)
	if err != nil {
		return Deployment{}, registryError(servicePath, errors.Wrapf(err, "constructing request %s", u.Redacted()))
	}
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		requestDuration.With("status", "error").Observe(time.Since(start).Seconds())
		return Deployment{}, registryError(servicePath, errors.Wrap(err, "executing HTTP request"))
	}
	defer resp.Body.Close()
	requestDuration.With("status", strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return Deployment{}, registryError(servicePath, errors.Wrap(err, "reading response body"))
	}

	level.Debug(c.logger).Log("method", req.Method, "url", u.Redacted(), "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
		if apiErr.IsMissing() {
			return Deployment{}, notTrackedError(servicePath, apiErr)
		}
		return Deployment{}, registryError(servicePath, apiErr)
	}

	if c.limiter != nil {
		c.limiter.Recover()
	}

	dockerURL, err := decodeDockerURL(body)
	if err != nil {
		return Deployment{}, registryError(servicePath, err)
	}
	return Deployment{Path: servicePath, DockerURL: dockerURL}, nil
}

func decodeDockerURL(body []byte) (string, error) {
	parsed, err := gabs.ParseJSON(body)
	if err != nil {
		return "", errors.Wrap(err, "decoding response from registry")
	}
	value := parsed.Search(dockerURLField).Data()
	s, ok := value.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("response from registry has no %s string (got %v)", dockerURLField, value)
	}
	return strings.TrimSpace(s), nil
}
