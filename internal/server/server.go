// Package server exposes brief generation and retrieval over HTTP.
package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/tavleenbajwa8/research-brief-generator/internal/brief"
	"github.com/tavleenbajwa8/research-brief-generator/internal/compose"
	"github.com/tavleenbajwa8/research-brief-generator/internal/database"
	"github.com/tavleenbajwa8/research-brief-generator/internal/failure"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

const maxRequestBody = 64 << 10

// Runner generates a brief.
type Runner interface {
	RunBrief(ctx context.Context, req brief.Request, deadline time.Duration) (*brief.FinalBrief, error)
}

// BriefStore reads persisted briefs.
type BriefStore interface {
	GetBrief(ctx context.Context, briefID string) (*brief.FinalBrief, error)
	ListBriefs(ctx context.Context, userID string, limit int) ([]database.BriefRecord, error)
}

// ContextReader reads user history.
type ContextReader interface {
	GetContext(ctx context.Context, userID string) (*brief.UserContext, error)
}

// Server is the HTTP front end for the brief engine.
type Server struct {
	runner   Runner
	briefs   BriefStore
	contexts ContextReader
	deadline time.Duration
	logger   *zap.Logger
	pages    map[string]*template.Template
	mux      *http.ServeMux
}

// New creates a new Server. deadline bounds each generation request unless
// the caller asks for a shorter one.
func New(runner Runner, briefs BriefStore, contexts ContextReader, deadline time.Duration, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"formatTime": func(t time.Time) string {
			return t.Local().Format("Jan 2, 2006 15:04")
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of the base so their "content" blocks
	// do not collide.
	pageNames := []string{"index.html", "brief.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{
		runner:   runner,
		briefs:   briefs,
		contexts: contexts,
		deadline: deadline,
		logger:   logger,
		pages:    pages,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /brief", s.handleCreateBrief)
	s.mux.HandleFunc("GET /brief/{id}", s.handleGetBrief)
	s.mux.HandleFunc("GET /brief/{id}/markdown", s.handleBriefMarkdown)
	s.mux.HandleFunc("GET /user/{id}/briefs", s.handleUserBriefs)
	s.mux.HandleFunc("GET /user/{id}/context", s.handleUserContext)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// createRequest is the POST /brief body.
type createRequest struct {
	brief.Request
	// DeadlineSeconds optionally shortens the server deadline.
	DeadlineSeconds float64 `json:"deadline_seconds,omitempty"`
}

type errorResponse struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	Stage    string `json:"stage,omitempty"`
	Audience string `json:"audience,omitempty"`
}

type briefListItem struct {
	BriefID          string    `json:"brief_id"`
	UserID           string    `json:"user_id,omitempty"`
	Topic            string    `json:"topic"`
	Depth            int       `json:"depth"`
	ExecutiveSummary string    `json:"executive_summary"`
	SourceCount      int       `json:"source_count"`
	Partial          bool      `json:"partial"`
	ExecutionTime    float64   `json:"execution_time"`
	TotalTokens      int       `json:"total_tokens"`
	GeneratedAt      time.Time `json:"generated_at"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	records, err := s.briefs.ListBriefs(r.Context(), "", 50)
	if err != nil {
		s.logger.Error("listing briefs failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "index.html", map[string]any{
		"Briefs": records,
	})
}

func (s *Server) handleCreateBrief(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:    string(failure.BadRequest),
			Message:  "invalid request body: " + err.Error(),
			Audience: string(failure.FixInput),
		})
		return
	}

	deadline := s.deadline
	if req.DeadlineSeconds > 0 {
		if d := time.Duration(req.DeadlineSeconds * float64(time.Second)); deadline <= 0 || d < deadline {
			deadline = d
		}
	}

	b, err := s.runner.RunBrief(r.Context(), req.Request, deadline)
	if err != nil {
		s.writeRunError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleGetBrief(w http.ResponseWriter, r *http.Request) {
	b, ok := s.lookupBrief(w, r)
	if !ok {
		return
	}

	if wantsHTML(r) {
		s.render(w, "brief.html", map[string]any{
			"Brief":    b,
			"Markdown": compose.Markdown(b),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleBriefMarkdown(w http.ResponseWriter, r *http.Request) {
	b, ok := s.lookupBrief(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(compose.Markdown(b)))
}

func (s *Server) lookupBrief(w http.ResponseWriter, r *http.Request) (*brief.FinalBrief, bool) {
	id := r.PathValue("id")
	b, err := s.briefs.GetBrief(r.Context(), id)
	if err != nil {
		s.logger.Error("loading brief failed", zap.String("brief_id", id), zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "could not load brief"})
		return nil, false
	}
	if b == nil {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "no brief with id " + id})
		return nil, false
	}
	return b, true
}

func (s *Server) handleUserBriefs(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{
				Error:    string(failure.BadRequest),
				Message:  "limit must be between 1 and 100",
				Audience: string(failure.FixInput),
			})
			return
		}
		limit = n
	}

	records, err := s.briefs.ListBriefs(r.Context(), userID, limit)
	if err != nil {
		s.logger.Error("listing user briefs failed", zap.String("user_id", userID), zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "could not list briefs"})
		return
	}

	items := make([]briefListItem, 0, len(records))
	for _, rec := range records {
		items = append(items, briefListItem(rec))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "briefs": items})
}

func (s *Server) handleUserContext(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	uc, err := s.contexts.GetContext(r.Context(), userID)
	if err != nil {
		s.logger.Error("loading user context failed", zap.String("user_id", userID), zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "could not load context"})
		return
	}
	if uc == nil {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "no context for user " + userID})
		return
	}
	s.writeJSON(w, http.StatusOK, uc)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeRunError(w http.ResponseWriter, err error) {
	var re *failure.RunError
	if !errors.As(err, &re) {
		s.logger.Error("brief run returned an unclassified error", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:    "internal",
			Message:  err.Error(),
			Audience: string(failure.InternalFault),
		})
		return
	}
	s.writeJSON(w, re.HTTPStatus(), errorResponse{
		Error:    string(re.Code),
		Message:  re.Error(),
		Stage:    re.Stage,
		Audience: string(re.Audience()),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("writing response failed", zap.Error(err))
	}
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.logger.Error("template not found", zap.String("template", name))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		s.logger.Error("rendering template failed", zap.String("template", name), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func wantsHTML(r *http.Request) bool {
	if r.URL.Query().Get("format") == "html" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, srv *Server, addr string, logger *zap.Logger) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", "http://"+addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down server")
		return httpServer.Shutdown(shutdownCtx)
	}
}
