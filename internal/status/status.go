// Package status serves a small read-only HTTP view of the broker on loopback.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nguyentantai21042004/inotify-broker/internal/logger"
)

// Report is the body of GET /status
type Report struct {
	State            string   `json:"state"`
	Subscribers      int      `json:"subscribers"`
	QueueDepth       int      `json:"queue_depth"`
	EventsPublished  uint64   `json:"events_published"`
	Deliveries       uint64   `json:"deliveries"`
	DeliveryFailures uint64   `json:"delivery_failures"`
	EventsDropped    uint64   `json:"events_dropped"`
	Targets          []string `json:"targets"`
}

// Source supplies the current report
type Source interface {
	Report() Report
}

// Routes builds the status router
func Routes(src Source) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok\n"))
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(src.Report()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return r
}

type Server struct {
	listener net.Listener
	srv      *http.Server
	logger   logger.Logger
}

// Listen binds addr so that bind errors surface during setup
func Listen(addr string, src Source, log logger.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("status listen on %s: %w", addr, err)
	}
	return &Server{
		listener: ln,
		srv: &http.Server{
			Handler:           Routes(src),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: log,
	}, nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Close releases the listener of a server that was never served
func (s *Server) Close() error {
	return s.listener.Close()
}

// Serve handles requests until ctx is done
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxTo, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.srv.Shutdown(ctxTo)
	}()

	s.logger.Info(ctx, "Status endpoint listening on http://%s", s.Addr())
	err := s.srv.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return ctx.Err()
	}
	return err
}
