// Package progressapi talks to the remote job-progress service: the query
// endpoint that reports a subject's step board and the stop endpoint that asks
// the server to drop its tracking state.
package progressapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/JakeFAU/progress-tracker/internal/progress"
)

const maxResponseBodySize = 1 << 20 // 1MB

const (
	defaultRequestTimeout      = 5 * time.Second
	defaultMaxIdleConnsPerHost = 4
	defaultIdleConnTimeout     = 60 * time.Second
)

// ErrEmptySubject is returned when a request is made without a subject.
var ErrEmptySubject = errors.New("subject is required")

// StatusError reports a non-2xx response from the progress service.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %s", e.Method, e.URL, e.Status)
}

// Result is the outcome of a successful query.
type Result struct {
	Envelope progress.Envelope
	Latency  time.Duration
}

// Options tune a Client. Zero values take defaults.
type Options struct {
	// RequestTimeout bounds each query and stop call.
	RequestTimeout time.Duration
	// HTTPClient overrides the pooled client, mostly for tests.
	HTTPClient *http.Client
}

// Client issues progress queries, stop notifications and job starts. It is safe for
// concurrent use.
type Client struct {
	baseURL    *url.URL
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient builds a Client rooted at baseURL (e.g. http://localhost:8080).
// Timeouts are applied per request through the context, not on the
// http.Client, so a slow stop call cannot eat into a query's budget.
func NewClient(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", baseURL)
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		}
	}
	return &Client{baseURL: u, timeout: timeout, httpClient: hc}, nil
}

// Query fetches the progress envelope for subject. Transport failures and
// non-2xx statuses are returned as errors (the latter as *StatusError); an
// unparseable body wraps progress.ErrDecode. A response with success=false is
// not an error.
func (c *Client) Query(ctx context.Context, subject string) (Result, error) {
	if subject == "" {
		return Result{}, ErrEmptySubject
	}
	start := time.Now()
	body, err := c.do(ctx, http.MethodGet, c.endpoint("api", "progress", subject))
	latency := time.Since(start)
	if err != nil {
		return Result{Latency: latency}, err
	}
	env, err := progress.Decode(body)
	if err != nil {
		return Result{Latency: latency}, err
	}
	return Result{Envelope: env, Latency: latency}, nil
}

// Stop tells the server to clean up its tracking state for subject. The
// response body is ignored.
func (c *Client) Stop(ctx context.Context, subject string) error {
	if subject == "" {
		return ErrEmptySubject
	}
	_, err := c.do(ctx, http.MethodPost, c.endpoint("api", "progress", "stop", subject))
	return err
}

// Start asks the service to begin a job for subject. Only the local
// simulated service exposes this endpoint; a job already running for subject
// comes back as a *StatusError with Code 409.
func (c *Client) Start(ctx context.Context, subject string) error {
	if subject == "" {
		return ErrEmptySubject
	}
	_, err := c.do(ctx, http.MethodPost, c.endpoint("api", "progress", "start", subject))
	return err
}

// Close releases idle pooled connections. The client stays usable.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}

func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.baseURL.String() + "/" + strings.Join(escaped, "/")
}

func (c *Client) do(ctx context.Context, method, target string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: method, URL: target, Code: resp.StatusCode, Status: resp.Status}
	}
	return body, nil
}
