package status

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	// Provider builds the page model per request.
	Provider func() Data

	// Gatherer backs /metrics; nil leaves the route unregistered.
	Gatherer prometheus.Gatherer

	// WS, when set, is mounted at /ws as an alternative game transport.
	WS http.Handler
}

type Server struct {
	srv *http.Server
	ln  net.Listener
}

// NewRouter builds the status routes.
func NewRouter(opts Options) (http.Handler, error) {
	tmpl, err := loadTemplate()
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	page := func(w http.ResponseWriter, req *http.Request) {
		var data Data
		if opts.Provider != nil {
			data = opts.Provider()
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			http.Error(w, "Status Template Error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	}
	r.Get("/", page)
	r.Head("/", page)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	if opts.WS != nil {
		r.Handle("/ws", opts.WS)
	}
	return r, nil
}

// Start binds addr and serves until ctx is done. A bind failure is returned
// immediately.
func Start(ctx context.Context, addr string, opts Options) (*Server, error) {
	if addr == "" {
		return nil, fmt.Errorf("status addr is empty")
	}
	h, err := NewRouter(opts)
	if err != nil {
		return nil, err
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen status %s: %w", addr, err)
	}

	s := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	}()
	go func() {
		if err := s.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("status server stopped", "addr", addr, "err", err)
		}
	}()
	return &Server{srv: s, ln: ln}, nil
}

func (s *Server) Addr() net.Addr { return s.ln.Addr() }
