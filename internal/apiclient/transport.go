package apiclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/motioncourse/web/internal/logging"
)

const maxResponseBytes = 8 << 20

// Credentials is the view of a session the gateway needs: read the bearer
// credentials and update them after a refresh or a failed re-authentication.
type Credentials interface {
	Access() string
	Refresh() string
	SetAccess(ctx context.Context, access string)
	ClearAccess(ctx context.Context)
	ClearAll(ctx context.Context)
}

// Request describes one call to the course API.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	ContentType string
	// Body returns a fresh reader for every attempt; nil means no body.
	Body func() (io.Reader, error)
}

// Response is the raw outcome of a call. Non-2xx statuses are not errors at
// this layer.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports a 2xx status.
func (r Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Doer issues API requests on behalf of a session. creds may be nil for
// anonymous calls.
type Doer interface {
	Do(ctx context.Context, creds Credentials, req Request) (Response, error)
}

// DoerFunc adapts a function to Doer.
type DoerFunc func(ctx context.Context, creds Credentials, req Request) (Response, error)

// Do calls f.
func (f DoerFunc) Do(ctx context.Context, creds Credentials, req Request) (Response, error) {
	return f(ctx, creds, req)
}

// Transport is the base Doer: it attaches the access credential as a bearer
// token and performs the HTTP exchange.
type Transport struct {
	baseURL string
	client  *http.Client
}

// NewTransport returns a Transport rooted at baseURL.
func NewTransport(baseURL string, timeout time.Duration) (*Transport, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("api base url %q must be absolute", baseURL)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Transport{
		baseURL: strings.TrimSuffix(parsed.String(), "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Do performs req.
func (t *Transport) Do(ctx context.Context, creds Credentials, req Request) (resp Response, err error) {
	ctx, span := logging.StartSpan(ctx, "api.call", "method", req.Method, "path", req.Path)
	defer func() { span.End(err) }()

	var body io.Reader
	if req.Body != nil {
		body, err = req.Body()
		if err != nil {
			return Response{}, fmt.Errorf("prepare request body: %w", err)
		}
	}

	target := t.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		if closer, ok := body.(io.Closer); ok {
			_ = closer.Close()
		}
		return Response{}, fmt.Errorf("build request %s %s: %w", req.Method, req.Path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if creds != nil {
		if access := creds.Access(); access != "" {
			httpReq.Header.Set("Authorization", "Bearer "+access)
		}
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil && !errors.Is(err, io.EOF) {
		return Response{}, fmt.Errorf("read response %s %s: %w", req.Method, req.Path, err)
	}

	logging.FromContext(ctx).Debug("api response", "status", httpResp.StatusCode, "bytes", len(payload))

	return Response{
		Status: httpResp.StatusCode,
		Header: httpResp.Header.Clone(),
		Body:   payload,
	}, nil
}
