// Package http exposes the orchestrator over HTTP: a single message
// endpoint backed by the chi router and Prometheus's standard handler for
// metrics scraping.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cortex/internal/brain"
	"cortex/internal/logging"
)

// Server wraps the chi router and the orchestrator it dispatches to.
type Server struct {
	router  chi.Router
	brain   *brain.Orchestrator
	httpSrv *http.Server
}

// NewServer builds the router: CORS, request logging and recovery
// middleware, then the message and metrics endpoints.
func NewServer(addr string, corsOrigins []string, orchestrator *brain.Orchestrator) *Server {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(120 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s := &Server{router: r, brain: orchestrator}
	s.routes()
	s.httpSrv = &http.Server{Addr: addr, Handler: r}
	return s
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/messages", s.handleMessage)
	})
}

// ListenAndServe blocks serving HTTP until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.API("ListenAndServe: listening on %s", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logging.API("ListenAndServe: shutting down")
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type messageRequest struct {
	Message string `json:"message"`
}

type messageResponse struct {
	Reply  string `json:"reply"`
	Intent string `json:"intent"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	resp := s.brain.Handle(r.Context(), req.Message)
	writeJSON(w, http.StatusOK, messageResponse{Reply: resp.Reply, Intent: string(resp.Intent)})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.API("%s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
