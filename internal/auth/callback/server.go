// Package callback runs the short-lived loopback HTTP server that receives
// the identity provider's OAuth redirect and hands the authorization code
// back to the login flow.
package callback

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 2 * time.Second

// Result is the outcome of one redirect: an authorization code on success,
// or the provider-reported error.
type Result struct {
	Code string
	Err  error
}

// Server is a one-shot listener on 127.0.0.1. It resolves its result
// channel at most once; anything after the first meaningful request is
// drained without effect.
type Server struct {
	listener net.Listener
	srv      *http.Server

	results   chan Result
	resolveMu sync.Mutex
	resolved  bool
	closeOnce sync.Once
}

// Listen binds 127.0.0.1 on preferredPort, falling back to an ephemeral
// port when it is taken. Pass 0 to go straight to an ephemeral port. The
// server does not accept requests until Start is called with the expected
// state token.
func Listen(preferredPort int) (*Server, error) {
	var listener net.Listener
	var err error
	if preferredPort > 0 {
		listener, err = net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", preferredPort))
		if err != nil {
			log.Printf("[Callback] Port %d in use, using ephemeral port", preferredPort)
		}
	}
	if listener == nil {
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, fmt.Errorf("failed to start callback listener: %w", err)
		}
	}

	return &Server{
		listener: listener,
		results:  make(chan Result, 1),
	}, nil
}

// Port returns the bound local port.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// RedirectURI returns the redirect URI the provider must be pointed at.
func (s *Server) RedirectURI() string {
	return fmt.Sprintf("http://127.0.0.1:%d/", s.Port())
}

// Result returns the channel the redirect outcome is delivered on. The
// channel is buffered and receives exactly one value.
func (s *Server) Result() <-chan Result {
	return s.results
}

// Start begins serving. Only a GET on / whose state matches resolves the
// result; everything else (favicon probes, stale redirects, mismatched
// state) is answered and dropped.
func (s *Server) Start(state string) {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		params := req.URL.Query()

		if params.Get("state") != state {
			log.Printf("[Callback] Dropping request with missing or mismatched state")
			http.Error(w, "Invalid state token", http.StatusForbidden)
			return
		}

		if errParam := params.Get("error"); errParam != "" {
			if s.resolve(Result{Err: fmt.Errorf("provider returned error %q", errParam)}) {
				writeAckPage(w, "Sign-in failed. You can close this tab and retry from the launcher.")
			} else {
				http.Error(w, "Callback already processed", http.StatusBadRequest)
			}
			return
		}

		code := params.Get("code")
		if code == "" {
			http.Error(w, "Missing authorization code", http.StatusBadRequest)
			return
		}

		if s.resolve(Result{Code: code}) {
			writeAckPage(w, "Sign-in complete. You can close this tab and return to the launcher.")
		} else {
			http.Error(w, "Callback already processed", http.StatusBadRequest)
		}
	})

	s.srv = &http.Server{Handler: r}
	go func() {
		if err := s.srv.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			log.Printf("[Callback] Listener error: %v", err)
		}
	}()
	log.Printf("[Callback] Listening on 127.0.0.1:%d", s.Port())
}

// Close shuts the listener down and releases the port. Safe to call more
// than once and from any goroutine.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if s.srv != nil {
			if err := s.srv.Shutdown(ctx); err != nil {
				log.Printf("[Callback] Error shutting down listener: %v", err)
			}
		} else {
			s.listener.Close()
		}
		log.Printf("[Callback] Listener stopped")
	})
}

func (s *Server) resolve(res Result) bool {
	s.resolveMu.Lock()
	defer s.resolveMu.Unlock()
	if s.resolved {
		return false
	}
	s.resolved = true
	s.results <- res
	return true
}

func writeAckPage(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<title>Embercraft Launcher</title>
	<style>
		body { font-family: -apple-system, BlinkMacSystemFont, sans-serif; max-width: 600px; margin: 80px auto; padding: 20px; background: #1a1a2e; color: #eee; text-align: center; }
	</style>
</head>
<body>
	<p>%s</p>
</body>
</html>`, message)
}
