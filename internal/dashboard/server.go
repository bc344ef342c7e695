// Package dashboard serves exported run artifacts as a read-only JSON API.
// It reads the files the engine writes to its export directory; it does no
// rendering and holds no state of its own.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hebbzhu/baton/internal/observability"
)

// Server is the dashboard HTTP server.
type Server struct {
	httpServer *http.Server
	exportDir  string
}

// NewServer creates a dashboard server over the given export directory.
func NewServer(exportDir, host string, port int) *Server {
	s := &Server{exportDir: exportDir}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/tasks", s.handleTasks)
	r.Get("/api/tasks/{id}/metrics", s.handleMetrics)
	r.Get("/api/tasks/{id}/recording", s.handleRecording)
	r.Get("/api/tasks/{id}/timeline", s.handleTimeline)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: r,
	}
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("dashboard listening", "addr", ln.Addr().String(), "export_dir", s.exportDir)
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// taskEntry is one row in the task listing, summarized from a result file.
type taskEntry struct {
	TaskID      string `json:"task_id"`
	Status      string `json:"status"`
	Objective   string `json:"objective"`
	Steps       int    `json:"steps"`
	TotalTokens int    `json:"total_tokens"`
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.exportDir)
	if err != nil {
		if os.IsNotExist(err) {
			// Nothing exported yet.
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode([]taskEntry{})
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	tasks := []taskEntry{}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, "_result.json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.exportDir, name))
		if err != nil {
			slog.Warn("skipping unreadable result file", "file", name, "error", err)
			continue
		}
		var result struct {
			TaskID     string `json:"task_id"`
			Status     string `json:"status"`
			Objective  string `json:"objective"`
			Steps      int    `json:"steps"`
			TokenUsage struct {
				Total int `json:"total"`
			} `json:"token_usage"`
		}
		if err := json.Unmarshal(data, &result); err != nil {
			slog.Warn("skipping malformed result file", "file", name, "error", err)
			continue
		}

		tasks = append(tasks, taskEntry{
			TaskID:      result.TaskID,
			Status:      result.Status,
			Objective:   result.Objective,
			Steps:       result.Steps,
			TotalTokens: result.TokenUsage.Total,
		})
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].TaskID < tasks[j].TaskID })

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tasks)
}

var taskIDPattern = regexp.MustCompile(`^[0-9a-f]{1,32}$`)

// taskID extracts and validates the id path parameter. Task ids are short
// hex strings; anything else is rejected before it can touch the
// filesystem.
func taskID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !taskIDPattern.MatchString(id) {
		http.Error(w, "invalid task id", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	s.serveArtifact(w, id+"_metrics.json")
}

func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	s.serveArtifact(w, id+"_recording.json")
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	recorder, err := observability.LoadRecording(filepath.Join(s.exportDir, id+"_recording.json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "task not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(recorder.Timeline())
}

// serveArtifact writes one exported JSON document verbatim.
func (s *Server) serveArtifact(w http.ResponseWriter, name string) {
	data, err := os.ReadFile(filepath.Join(s.exportDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "task not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
