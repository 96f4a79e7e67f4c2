package keepalive

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// pingInterval keeps self-pings inside the 15-minute idle window used
// by free hosting tiers.
const pingInterval = 14 * time.Minute

const statusPage = `<!DOCTYPE html>
<html>
<head><title>Email Monitor - Keep Alive</title></head>
<body>
<h1>📧 Email Monitor Service</h1>
<p>✅ Service is running and monitoring emails</p>
<p>📊 <a href="/health">Health Check</a></p>
</body>
</html>
`

// Server is the liveness HTTP endpoint plus the self-ping loop that
// keeps the hosting platform from idling the process. It shares no
// state with the polling loop. Start once, Stop once.
type Server struct {
	port        int
	externalURL string
	logger      *slog.Logger

	mu     sync.Mutex
	srv    *http.Server
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an unstarted keep-alive server.
func New(port int, externalURL string, logger *slog.Logger) *Server {
	if externalURL == "" {
		externalURL = fmt.Sprintf("http://localhost:%d", port)
	}
	return &Server{port: port, externalURL: externalURL, logger: logger}
}

// Handler serves the liveness endpoints.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, statusPage)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"healthy","service":"email_monitor","keep_alive":"active"}`)
	})
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "pong")
	})
	return mux
}

// Start binds the listener and launches the serve and self-ping
// loops. Starting an already started server is a no-op.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("keep-alive listen: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.srv = &http.Server{
		Handler:      Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.logger.Info("keep-alive server started", "port", s.port, "url", s.externalURL)
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("keep-alive server failed", "error", err)
		}
	}()
	go func() {
		defer s.wg.Done()
		s.selfPing(ctx)
	}()
	return nil
}

// Stop shuts the server down and stops the self-ping loop. Stopping a
// never-started or already stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	cancel := s.cancel
	s.srv = nil
	s.cancel = nil
	s.mu.Unlock()

	if srv == nil {
		return
	}
	cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Warn("keep-alive shutdown", "error", err)
	}
	s.wg.Wait()
	s.logger.Info("keep-alive server stopped")
}

func (s *Server) selfPing(ctx context.Context) {
	client := &http.Client{Timeout: 10 * time.Second}
	url := s.externalURL + "/ping"

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			s.logger.Warn("self-ping request", "error", err)
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			s.logger.Warn("self-ping failed", "error", err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			s.logger.Debug("self-ping ok")
		} else {
			s.logger.Warn("self-ping returned status", "status", resp.StatusCode)
		}
	}
}
