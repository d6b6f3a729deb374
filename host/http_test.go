package host

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hszk-dev/edge-runtime/permissions"
)

// testHost builds an HTTPHost whose transport dials targetAddr regardless
// of the request's URI host, so tests can exercise the allow-list and
// SSRF-screen paths against a hostname that would pass both (Fetch denies
// httptest's own 127.0.0.1:port outright) while actually talking to the
// local httptest.Server.
func testHost(perms permissions.Permissions, targetAddr string) *HTTPHost {
	h := NewHTTPHost(perms)
	h.client.Transport = &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, targetAddr)
		},
	}
	return h
}

func TestFetchDeniedWhenHTTPDisabled(t *testing.T) {
	h := NewHTTPHost(permissions.None())
	_, herr := h.Fetch(context.Background(), HTTPRequest{Method: MethodGet, URI: "https://example.com"})
	if herr == nil || herr.Kind != ErrPermissionDenied {
		t.Fatalf("expected permission-denied, got %+v", herr)
	}
}

func TestFetchDeniedForDisallowedHost(t *testing.T) {
	perms := permissions.NewBuilder().WithHTTPEnabled(true).WithMaxHTTPRequests(10).AllowHTTPHost("allowed.example.com").Build()
	h := NewHTTPHost(perms)
	_, herr := h.Fetch(context.Background(), HTTPRequest{Method: MethodGet, URI: "https://not-allowed.example.com"})
	if herr == nil || herr.Kind != ErrPermissionDenied {
		t.Fatalf("expected permission-denied, got %+v", herr)
	}
}

func TestFetchDeniedForPrivateAddress(t *testing.T) {
	perms := permissions.NewBuilder().WithHTTPEnabled(true).WithMaxHTTPRequests(10).AllowHTTPHost("*").Build()
	h := NewHTTPHost(perms)
	_, herr := h.Fetch(context.Background(), HTTPRequest{Method: MethodGet, URI: "http://169.254.169.254/latest/meta-data"})
	if herr == nil || herr.Kind != ErrPermissionDenied {
		t.Fatalf("expected permission-denied for metadata address, got %+v", herr)
	}
}

func TestFetchRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	perms := permissions.NewBuilder().WithHTTPEnabled(true).WithMaxHTTPRequests(1).AllowHTTPHost("example.com").Build()
	h := testHost(perms, srv.Listener.Addr().String())

	if _, herr := h.Fetch(context.Background(), HTTPRequest{Method: MethodGet, URI: "http://example.com"}); herr != nil {
		t.Fatalf("first request should succeed, got %+v", herr)
	}
	_, herr := h.Fetch(context.Background(), HTTPRequest{Method: MethodGet, URI: "http://example.com"})
	if herr == nil || herr.Kind != ErrRateLimited {
		t.Fatalf("second request should be rate-limited, got %+v", herr)
	}
}

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != userAgent {
			t.Errorf("User-Agent = %q, want %q", got, userAgent)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	perms := permissions.NewBuilder().WithHTTPEnabled(true).WithMaxHTTPRequests(10).AllowHTTPHost("example.com").Build()
	h := testHost(perms, srv.Listener.Addr().String())

	resp, herr := h.Fetch(context.Background(), HTTPRequest{Method: MethodGet, URI: "http://example.com"})
	if herr != nil {
		t.Fatalf("Fetch: %+v", herr)
	}
	if resp.Status != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.Status)
	}
	if string(resp.Body) != "hello" {
		t.Errorf("body = %q, want hello", resp.Body)
	}
}

func TestGetSugar(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("body"))
	}))
	defer srv.Close()

	perms := permissions.NewBuilder().WithHTTPEnabled(true).WithMaxHTTPRequests(10).AllowHTTPHost("example.com").Build()
	h := testHost(perms, srv.Listener.Addr().String())

	body, herr := h.Get(context.Background(), "http://example.com")
	if herr != nil {
		t.Fatalf("Get: %+v", herr)
	}
	if string(body) != "body" {
		t.Errorf("body = %q", body)
	}
}
