package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"dofollow-checker/internal/config"
	"dofollow-checker/internal/tabular"
	"dofollow-checker/pkg/types"
)

const resultsFileName = "results_dofollow"

// Runner executes a batch of checks.
type Runner interface {
	Run(ctx context.Context, reqs []types.CheckRequest, progress func(types.Progress)) []types.CheckResult
}

// Server exposes the HTTP API for uploading check tables and downloading results.
// Batches run one at a time; concurrent uploads wait for the running batch.
type Server struct {
	runMu  sync.Mutex
	runner Runner
	reader *tabular.Reader
	limits config.ServerConfig
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewServer wires handlers onto an HTTP mux.
func NewServer(runner Runner, reader *tabular.Reader, limits config.ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if limits.MaxUploadBytes <= 0 {
		limits.MaxUploadBytes = 10 * 1024 * 1024
	}
	s := &Server{
		runner: runner,
		reader: reader,
		limits: limits,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP satisfies the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/checks", s.handleChecks)
	s.mux.HandleFunc("/api/checks/template", s.handleTemplate)
	s.mux.HandleFunc("/openapi.yaml", s.handleOpenAPI)
	s.mux.HandleFunc("/docs", s.handleDocs)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="urls_template.csv"`)
	_, _ = io.WriteString(w, tabular.SampleCSV)
}

func (s *Server) handleChecks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	format := strings.ToLower(r.URL.Query().Get("format"))
	switch format {
	case "", tabular.FormatCSV, tabular.FormatXLSX, "json":
	default:
		http.Error(w, fmt.Sprintf("unsupported format %q", format), http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.limits.MaxUploadBytes)
	reqs, err := s.readUpload(r)
	if err != nil {
		s.writeInputError(w, err)
		return
	}
	if s.limits.MaxRows > 0 && len(reqs) > s.limits.MaxRows {
		http.Error(w, fmt.Sprintf("too many rows: %d (limit %d)", len(reqs), s.limits.MaxRows), http.StatusRequestEntityTooLarge)
		return
	}

	logger := s.logger.With("rows", len(reqs), "remote", r.RemoteAddr)
	logger.Info("check batch received")
	results := s.runBatch(r.Context(), reqs, func(p types.Progress) {
		logger.Debug("check progress", "done", p.Done, "total", p.Total, "url", p.PageURL)
	})

	switch format {
	case "json":
		writeJSON(w, http.StatusOK, map[string]any{
			"total":   len(results),
			"results": results,
		})
	case tabular.FormatXLSX:
		s.writeFile(w, tabular.FormatXLSX, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", results)
	default:
		s.writeFile(w, tabular.FormatCSV, "text/csv; charset=utf-8", results)
	}
}

func (s *Server) runBatch(ctx context.Context, reqs []types.CheckRequest, progress func(types.Progress)) []types.CheckResult {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.runner.Run(ctx, reqs, progress)
}

func (s *Server) readUpload(r *http.Request) ([]types.CheckRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return s.reader.Read("upload.csv", r.Body)
	}

	if err := r.ParseMultipartForm(s.limits.MaxUploadBytes); err != nil {
		return nil, fmt.Errorf("parse upload: %w", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("missing form field \"file\": %w", err)
	}
	defer file.Close()
	return s.reader.Read(header.Filename, file)
}

func (s *Server) writeInputError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, tabular.ErrMissingColumns):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, tabular.ErrUnsupportedFormat):
		http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func (s *Server) writeFile(w http.ResponseWriter, format, contentType string, results []types.CheckResult) {
	var buf bytes.Buffer
	if err := tabular.Write(&buf, format, results); err != nil {
		s.logger.Error("render results failed", "format", format, "error", err)
		http.Error(w, "failed to render results", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, resultsFileName, format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
