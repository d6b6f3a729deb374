package host

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hszk-dev/edge-runtime/permissions"
	"github.com/hszk-dev/edge-runtime/store"
)

// HTTPMethod mirrors the guest-facing method enum.
type HTTPMethod string

const (
	MethodGet     HTTPMethod = "get"
	MethodHead    HTTPMethod = "head"
	MethodPost    HTTPMethod = "post"
	MethodPut     HTTPMethod = "put"
	MethodDelete  HTTPMethod = "delete"
	MethodPatch   HTTPMethod = "patch"
	MethodOptions HTTPMethod = "options"
)

// Header is a single (name, value) pair, matching the WIT record shape.
type Header struct {
	Name  string
	Value string
}

// HTTPRequest is the guest-facing request record (SPEC_FULL.md §4.5).
type HTTPRequest struct {
	Method    HTTPMethod
	URI       string
	Headers   []Header
	Body      []byte
	TimeoutMS *uint64
}

// HTTPResponse is the guest-facing response record.
type HTTPResponse struct {
	Headers []Header
	Body    []byte
	Status  uint16
}

// HTTPErrorKind enumerates the guest-facing failure taxonomy.
type HTTPErrorKind string

const (
	ErrPermissionDenied HTTPErrorKind = "permission-denied"
	ErrTimeout          HTTPErrorKind = "timeout"
	ErrDNS              HTTPErrorKind = "dns-error"
	ErrConnectionFailed HTTPErrorKind = "connection-failed"
	ErrTLS              HTTPErrorKind = "tls-error"
	ErrBodyTooLarge     HTTPErrorKind = "body-too-large"
	ErrRateLimited      HTTPErrorKind = "rate-limited"
	ErrOther            HTTPErrorKind = "other"
)

// HTTPError is the guest-facing failure record.
type HTTPError struct {
	Kind    HTTPErrorKind
	Message string
}

func (e *HTTPError) Error() string { return string(e.Kind) + ": " + e.Message }

const (
	connectTimeout = 10 * time.Second
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 10 << 20 // 10MB
	maxIdlePerHost = 10
	userAgent      = "edge-runtime/1.0"
)

// HTTPHost implements the guest:host/http-outbound world. One HTTPHost
// instance is shared across every instantiation of a module (registered
// once, per SPEC_FULL.md §9); the request counter that the rate limit in
// §4.5 closes over is per-invocation, so it lives on the WorkerContext
// recovered from ctx rather than on the host itself. When no
// WorkerContext is bound (e.g. a bare cmd/run smoke test), the host falls
// back to its own atomic so the limiter still functions for the process
// lifetime of that call.
type HTTPHost struct {
	client          *http.Client
	perms           permissions.Permissions
	fallbackCounter atomic.Uint32
	observe         func(outcome string)
}

// WithObserver registers a callback invoked with the outcome of every
// Fetch ("ok" or an HTTPErrorKind), for a metrics recorder to count.
// Returns h for chaining.
func (h *HTTPHost) WithObserver(observe func(outcome string)) *HTTPHost {
	h.observe = observe
	return h
}

func (h *HTTPHost) recordOutcome(outcome string) {
	if h.observe != nil {
		h.observe(outcome)
	}
}

// NewHTTPHost creates an HTTPHost with a shared client matching the fixed
// timeouts and connection-pool cap from SPEC_FULL.md §4.5.
func NewHTTPHost(perms permissions.Permissions) *HTTPHost {
	return &HTTPHost{
		perms: perms,
		client: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: connectTimeout,
				}).DialContext,
				MaxIdleConnsPerHost: maxIdlePerHost,
			},
		},
	}
}

// Namespace implements runtime.Host.
func (h *HTTPHost) Namespace() string {
	return "guest:host/http-outbound@0.1.0"
}

// Fetch executes the pipeline from SPEC_FULL.md §4.5: rate limit, host
// allow-list, SSRF screen, then dispatch.
func (h *HTTPHost) Fetch(ctx context.Context, req HTTPRequest) (HTTPResponse, *HTTPError) {
	resp, herr := h.fetch(ctx, req)
	if herr != nil {
		h.recordOutcome(string(herr.Kind))
	} else {
		h.recordOutcome("ok")
	}
	return resp, herr
}

func (h *HTTPHost) fetch(ctx context.Context, req HTTPRequest) (HTTPResponse, *HTTPError) {
	if !h.perms.HTTPEnabled() {
		return HTTPResponse{}, &HTTPError{Kind: ErrPermissionDenied, Message: "outbound http disabled"}
	}

	if h.requestCount(ctx) > h.perms.MaxHTTPRequests() {
		return HTTPResponse{}, &HTTPError{Kind: ErrRateLimited, Message: "max_http_requests exceeded"}
	}

	if !h.perms.IsHostAllowed(req.URI) {
		return HTTPResponse{}, &HTTPError{Kind: ErrPermissionDenied, Message: "host not in allow-list"}
	}
	if permissions.IsPrivateAddress(req.URI) {
		return HTTPResponse{}, &HTTPError{Kind: ErrPermissionDenied, Message: "target resolves to a private address"}
	}

	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(string(req.Method)), req.URI, bodyReader(req.Body))
	if err != nil {
		return HTTPResponse{}, &HTTPError{Kind: ErrOther, Message: err.Error()}
	}
	httpReq.Header.Set("User-Agent", userAgent)
	for _, h := range req.Headers {
		httpReq.Header.Add(h.Name, h.Value)
	}

	client := h.client
	if req.TimeoutMS != nil {
		perReq := *client
		perReq.Timeout = time.Duration(*req.TimeoutMS) * time.Millisecond
		client = &perReq
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return HTTPResponse{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return HTTPResponse{}, classifyTransportError(err)
	}
	if len(body) > maxBodyBytes {
		return HTTPResponse{}, &HTTPError{Kind: ErrBodyTooLarge, Message: "response exceeds 10MB cap"}
	}

	headers := make([]Header, 0, len(resp.Header))
	for name, values := range resp.Header {
		for _, v := range values {
			headers = append(headers, Header{Name: name, Value: v})
		}
	}

	return HTTPResponse{
		Status:  uint16(resp.StatusCode),
		Headers: headers,
		Body:    body,
	}, nil
}

// Get is sugar for a GET request returning only the body.
func (h *HTTPHost) Get(ctx context.Context, uri string) ([]byte, *HTTPError) {
	resp, herr := h.Fetch(ctx, HTTPRequest{Method: MethodGet, URI: uri})
	if herr != nil {
		return nil, herr
	}
	return resp.Body, nil
}

// requestCount atomically increments and returns the count for the
// invocation's WorkerContext, or the host's fallback counter if none is
// bound to ctx.
func (h *HTTPHost) requestCount(ctx context.Context) uint32 {
	if wc := store.FromContext(ctx); wc != nil {
		return wc.HTTPRequestCount.Add(1)
	}
	return h.fallbackCounter.Add(1)
}

func bodyReader(body []byte) io.Reader {
	if body == nil {
		return nil
	}
	return strings.NewReader(string(body))
}

func classifyTransportError(err error) *HTTPError {
	msg := err.Error()

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &HTTPError{Kind: ErrTimeout, Message: msg}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &HTTPError{Kind: ErrTimeout, Message: msg}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &HTTPError{Kind: ErrDNS, Message: msg}
	}

	if strings.Contains(msg, "tls") || strings.Contains(msg, "x509") || strings.Contains(msg, "certificate") {
		return &HTTPError{Kind: ErrTLS, Message: msg}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &HTTPError{Kind: ErrConnectionFailed, Message: msg}
	}

	return &HTTPError{Kind: ErrOther, Message: msg}
}
