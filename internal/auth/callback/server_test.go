package callback

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"
)

func startTestServer(t *testing.T, state string) *Server {
	t.Helper()
	srv, err := Listen(0)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(srv.Close)
	srv.Start(state)
	return srv
}

func get(t *testing.T, rawURL string) *http.Response {
	t.Helper()
	resp, err := http.Get(rawURL)
	if err != nil {
		t.Fatalf("GET %s: %v", rawURL, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func waitResult(t *testing.T, srv *Server) Result {
	t.Helper()
	select {
	case res := <-srv.Result():
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback result")
		return Result{}
	}
}

func TestServer_DeliversCode(t *testing.T) {
	srv := startTestServer(t, "state.1")

	resp := get(t, srv.RedirectURI()+"?state=state.1&code=abc123")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) == 0 {
		t.Fatal("expected an acknowledgment page")
	}

	res := waitResult(t, srv)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Code != "abc123" {
		t.Fatalf("expected code abc123, got %q", res.Code)
	}
}

func TestServer_ResolvesExactlyOnce(t *testing.T) {
	srv := startTestServer(t, "state.1")

	get(t, srv.RedirectURI()+"?state=state.1&code=first")
	resp := get(t, srv.RedirectURI()+"?state=state.1&code=second")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected second callback to be rejected with 400, got %d", resp.StatusCode)
	}

	res := waitResult(t, srv)
	if res.Code != "first" {
		t.Fatalf("expected first code to win, got %q", res.Code)
	}

	select {
	case extra := <-srv.Result():
		t.Fatalf("unexpected second result: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestServer_DrainsMismatchedState(t *testing.T) {
	srv := startTestServer(t, "state.1")

	resp := get(t, srv.RedirectURI()+"?state=wrong&code=abc")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for mismatched state, got %d", resp.StatusCode)
	}

	select {
	case res := <-srv.Result():
		t.Fatalf("mismatched state must not resolve, got %+v", res)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestServer_DrainsUnrelatedRequests(t *testing.T) {
	srv := startTestServer(t, "state.1")

	get(t, srv.RedirectURI()+"favicon.ico")
	get(t, srv.RedirectURI()+"?state=state.1")

	select {
	case res := <-srv.Result():
		t.Fatalf("unrelated requests must not resolve, got %+v", res)
	case <-time.After(100 * time.Millisecond):
	}

	// The meaningful request still goes through afterwards.
	get(t, srv.RedirectURI()+"?state=state.1&code=late")
	res := waitResult(t, srv)
	if res.Code != "late" {
		t.Fatalf("expected code late, got %q", res.Code)
	}
}

func TestServer_ProviderError(t *testing.T) {
	srv := startTestServer(t, "state.1")

	get(t, srv.RedirectURI()+"?state=state.1&error="+url.QueryEscape("access_denied"))
	res := waitResult(t, srv)
	if res.Err == nil {
		t.Fatal("expected an error result")
	}
	if res.Code != "" {
		t.Fatalf("error result must carry no code, got %q", res.Code)
	}
}

func TestServer_PortReleasedOnClose(t *testing.T) {
	srv, err := Listen(0)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := srv.Port()
	srv.Start("s")
	srv.Close()
	srv.Close() // idempotent

	reclaimed, err := Listen(port)
	if err != nil {
		t.Fatalf("relisten: %v", err)
	}
	defer reclaimed.Close()
	if reclaimed.Port() != port {
		t.Fatalf("expected port %d to be reusable, got %d", port, reclaimed.Port())
	}
}

func TestServer_PreferredPortFallback(t *testing.T) {
	first, err := Listen(0)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer first.Close()

	second, err := Listen(first.Port())
	if err != nil {
		t.Fatalf("expected fallback to an ephemeral port, got error: %v", err)
	}
	defer second.Close()
	if second.Port() == first.Port() {
		t.Fatalf("fallback reused the busy port %d", first.Port())
	}

	wantPrefix := fmt.Sprintf("http://127.0.0.1:%d/", second.Port())
	if second.RedirectURI() != wantPrefix {
		t.Fatalf("redirect URI %q does not match port %d", second.RedirectURI(), second.Port())
	}
}
