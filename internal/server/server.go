// Package server exposes migrations over HTTP so schedulers and operators can
// trigger a run without shell access.
//
// Routes:
//
//	GET  /               → form
//	POST /run            → runs the form's scope; renders the summary inline
//	GET  /healthz        → 200 "ok"
//	GET  /api/documents  → JSON list of document types
//	GET  /api/plan       → text/plain cleanup plan (?document=&date=&warehouse=)
//	POST /api/migrate    → JSON {document, date, warehouse, dry_run} → summary JSON
package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"migrator/internal/cleanup"
	"migrator/internal/migrate"
	"migrator/internal/schema"
	"migrator/internal/scope"
)

// Runner executes migrations on behalf of the server.
type Runner interface {
	Documents() []string
	Plan(document string, sc scope.Scope) (cleanup.Plan, error)
	Migrate(ctx context.Context, document string, sc scope.Scope, dryRun bool) (*migrate.Summary, error)
}

// Config controls server startup.
type Config struct {
	Addr string
	// RunTimeout bounds a single migration; zero means no limit.
	RunTimeout time.Duration
}

// Request is the body of POST /api/migrate.
type Request struct {
	Document  string `json:"document"`
	Date      string `json:"date"`
	Warehouse string `json:"warehouse"`
	DryRun    bool   `json:"dry_run"`
}

// Response is the body returned by POST /api/migrate.
type Response struct {
	Summary *migrate.Summary `json:"summary,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// Server wraps http.Server.
type Server struct {
	cfg    Config
	mux    *http.ServeMux
	tmpl   *template.Template
	runner Runner
	log    *slog.Logger
}

//go:embed index.tmpl.html
var indexHTML string

// New constructs a Server with its routes.
func New(cfg Config, r Runner, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		mux:    http.NewServeMux(),
		tmpl:   template.Must(template.New("index").Parse(indexHTML)),
		runner: r,
		log:    log.With(slog.String("component", "server")),
	}
	s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.mux, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("listening", slog.String("addr", s.cfg.Addr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /run", s.handleRun)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	s.mux.HandleFunc("GET /api/documents", s.handleDocuments)
	s.mux.HandleFunc("GET /api/plan", s.handlePlan)
	s.mux.HandleFunc("POST /api/migrate", s.handleMigrate)
}

type page struct {
	Documents []string
	Document  string
	Date      string
	Warehouse string
	DryRun    bool
	Result    string
	Error     string
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	s.render(w, page{Documents: s.runner.Documents()})
}

// handleRun processes the form and renders the summary below it.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form: "+err.Error(), http.StatusBadRequest)
		return
	}
	p := page{
		Documents: s.runner.Documents(),
		Document:  strings.TrimSpace(r.FormValue("document")),
		Date:      strings.TrimSpace(r.FormValue("date")),
		Warehouse: strings.TrimSpace(r.FormValue("warehouse")),
		DryRun:    r.FormValue("dry_run") != "",
	}
	sum, err := s.run(r.Context(), Request{Document: p.Document, Date: p.Date, Warehouse: p.Warehouse, DryRun: p.DryRun})
	if err != nil {
		p.Error = err.Error()
	}
	if sum != nil {
		b, _ := json.MarshalIndent(sum, "", "  ")
		p.Result = string(b)
	}
	s.render(w, p)
}

func (s *Server) handleDocuments(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.Documents())
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sc, err := scope.Parse(q.Get("date"), q.Get("warehouse"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	plan, err := s.runner.Plan(q.Get("document"), sc)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(plan.String()))
}

func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	var req Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Error: "bad request: " + err.Error()})
		return
	}
	sum, err := s.run(r.Context(), req)
	if err != nil {
		writeJSON(w, statusFor(err), Response{Summary: sum, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, Response{Summary: sum})
}

func (s *Server) run(ctx context.Context, req Request) (*migrate.Summary, error) {
	if strings.TrimSpace(req.Document) == "" {
		return nil, errBadRequest("document is required")
	}
	sc, err := scope.Parse(req.Date, req.Warehouse)
	if err != nil {
		return nil, errBadRequest(err.Error())
	}
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}
	s.log.Info("migrate requested", slog.String("document", req.Document), slog.String("scope", sc.String()), slog.Bool("dry_run", req.DryRun))
	return s.runner.Migrate(ctx, req.Document, sc, req.DryRun)
}

func (s *Server) render(w http.ResponseWriter, p page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(w, p); err != nil {
		s.log.Error("template error", slog.Any("err", err))
	}
}

type errBadRequest string

func (e errBadRequest) Error() string { return string(e) }

func statusFor(err error) int {
	var bad errBadRequest
	var cfg *schema.ConfigurationError
	switch {
	case errors.As(err, &bad), errors.As(err, &cfg):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
