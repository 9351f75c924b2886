package vectorize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/Aleph-Alpha/vectorstore/v1/observability"
	"github.com/Aleph-Alpha/vectorstore/v1/tracer"
	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
)

const component = "vectorize"

const (
	contentTypeJSON   = "application/json"
	contentTypeNDJSON = "application/x-ndjson"

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 32 << 20
	// maxErrorBodyBytes bounds the body kept on a RemoteError.
	maxErrorBodyBytes = 2048
)

var spanTracer = otel.Tracer("github.com/Aleph-Alpha/vectorstore/v1/vectorize")

// Client is a vectordb.Store backed by one Cloudflare Vectorize v2 index.
//
// A Client holds only immutable configuration, a shared *http.Client and a
// rate limiter, so it is safe for concurrent use. Cancelling a context stops
// waiting for the response but cannot recall a request already sent: an
// abandoned insert or delete may still be applied.
type Client struct {
	cfg        Config
	indexesURL string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     Logger
	observer   observability.Observer
	closed     atomic.Bool
}

var (
	_ vectordb.Store     = (*Client)(nil)
	_ vectordb.Describer = (*Client)(nil)
)

// NewClient validates cfg and builds a client. No request is sent until the
// first operation.
func NewClient(cfg Config) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base := strings.TrimRight(cfg.APIBaseURL, "/")
	c := &Client{
		cfg:        cfg,
		indexesURL: fmt.Sprintf("%s/accounts/%s/vectorize/v2/indexes", base, url.PathEscape(cfg.AccountID)),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     cfg.Logger,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	return c, nil
}

// WithObserver sets the observer for this client and returns the client for method chaining.
func (c *Client) WithObserver(observer observability.Observer) *Client {
	c.observer = observer
	return c
}

// WithLogger sets the logger for this client and returns the client for method chaining.
func (c *Client) WithLogger(logger Logger) *Client {
	c.logger = logger
	return c
}

// WithHTTPClient replaces the shared HTTP client, e.g. to add a custom transport.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	c.httpClient = httpClient
	return c
}

// Config returns a copy of the client configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Close releases idle connections. Calling it more than once is safe.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.httpClient.CloseIdleConnections()
	if c.logger != nil {
		c.logger.Info("vectorize client closed", nil, map[string]interface{}{"index": c.cfg.IndexName})
	}
	return nil
}

// indexURL joins path segments below the configured index.
func (c *Client) indexURL(segments ...string) string {
	parts := append([]string{c.indexesURL, url.PathEscape(c.cfg.IndexName)}, segments...)
	return strings.Join(parts, "/")
}

// call is one HTTP exchange with the Vectorize API.
type call struct {
	method      string
	url         string
	contentType string
	body        []byte
}

// do sends the request and decodes the envelope's result into out when out is
// non-nil. A non-2xx status or success=false yields a *vectordb.RemoteError.
func (c *Client) do(ctx context.Context, rc call, out any) error {
	ctx, span := spanTracer.Start(ctx, "vectorize.http "+rc.method, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", rc.method),
			attribute.String("url.full", rc.url),
		))
	defer span.End()

	err := c.exchange(ctx, span, rc, out)
	tracer.RecordError(span, err)
	return err
}

func (c *Client) exchange(ctx context.Context, span trace.Span, rc call, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	var body io.Reader
	if rc.body != nil {
		body = bytes.NewReader(rc.body)
	}
	req, err := http.NewRequestWithContext(ctx, rc.method, rc.url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	req.Header.Set("Accept", contentTypeJSON)
	if rc.contentType != "" {
		req.Header.Set("Content-Type", rc.contentType)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.debug(ctx, "vectorize request failed", err, rc, 0, time.Since(start))
		return &vectordb.RemoteError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &vectordb.RemoteError{StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	c.debug(ctx, "vectorize request", nil, rc, resp.StatusCode, time.Since(start))

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &vectordb.RemoteError{
			StatusCode: resp.StatusCode,
			Messages:   env.Errors,
			Body:       truncate(raw),
		}
	}
	if decodeErr != nil {
		return vectordb.Malformed("decoding response envelope: %v", decodeErr)
	}
	if !env.Success {
		return &vectordb.RemoteError{
			StatusCode: resp.StatusCode,
			Messages:   env.Errors,
			Body:       truncate(raw),
		}
	}

	if out == nil {
		return nil
	}
	if len(env.Result) == 0 || bytes.Equal(env.Result, []byte("null")) {
		return vectordb.Malformed("response has no result")
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return vectordb.Malformed("decoding result: %v", err)
	}
	return nil
}

// postJSON marshals body and POSTs it to target.
func (c *Client) postJSON(ctx context.Context, target string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: encode request: %v", vectordb.ErrInvalidArgument, err)
	}
	return c.do(ctx, call{method: http.MethodPost, url: target, contentType: contentTypeJSON, body: data}, out)
}

func (c *Client) debug(ctx context.Context, msg string, err error, rc call, status int, latency time.Duration) {
	if c.logger == nil {
		return
	}
	c.logger.DebugWithContext(ctx, msg, err, map[string]interface{}{
		"method":     rc.method,
		"url":        rc.url,
		"status":     status,
		"latency_ms": latency.Milliseconds(),
		"bytes_sent": len(rc.body),
	})
}

// statusCode returns the HTTP status carried by err, or 0.
func statusCode(err error) int {
	var remote *vectordb.RemoteError
	if errors.As(err, &remote) {
		return remote.StatusCode
	}
	return 0
}

// alreadyExists reports whether err is the API's answer to creating something
// that exists.
func alreadyExists(err error) bool {
	var remote *vectordb.RemoteError
	if !errors.As(err, &remote) {
		return false
	}
	if remote.StatusCode == http.StatusConflict {
		return true
	}
	for _, m := range remote.Messages {
		if strings.Contains(strings.ToLower(m.Message), "already exists") {
			return true
		}
	}
	return strings.Contains(strings.ToLower(remote.Body), "already exists")
}

func truncate(raw []byte) string {
	if len(raw) > maxErrorBodyBytes {
		return string(raw[:maxErrorBodyBytes]) + "..."
	}
	return string(raw)
}
