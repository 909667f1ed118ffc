package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"depsentry/pkg/audit"
	"depsentry/pkg/graph"
	"depsentry/pkg/logging"
	"depsentry/pkg/pubsub"
)

const auditTopic = "audit"

// Server exposes the latest audit result over HTTP: a JSON report, on-demand
// provenance trees, and an SSE stream that pushes each re-audit.
type Server struct {
	mu        sync.RWMutex
	result    *audit.Result
	publisher *pubsub.SSEPublisher
	router    *mux.Router
}

// NewServer creates the server with no result yet; handlers answer 503
// until the first SetResult.
func NewServer() *Server {
	s := &Server{
		publisher: pubsub.NewSSEPublisher(),
	}

	// Late subscribers immediately get the latest report.
	s.publisher.ConfigureTopic(auditTopic, pubsub.TopicConfig{BufferSize: 1})

	r := mux.NewRouter()
	r.Use(logging.RequestIDMiddleware)
	r.HandleFunc("/api/report", s.handleReport).Methods(http.MethodGet)
	r.HandleFunc("/api/why/{crate}", s.handleWhy).Methods(http.MethodGet)
	r.HandleFunc("/api/events", s.handleEvents).Methods(http.MethodGet)
	s.router = r

	return s
}

// SetResult stores a fresh audit result and pushes its report to SSE
// subscribers.
func (s *Server) SetResult(res *audit.Result) {
	s.mu.Lock()
	s.result = res
	s.mu.Unlock()

	if err := s.publisher.Publish(auditTopic, "report", res.Report()); err != nil {
		logging.Error("failed to publish report", "error", err)
	}
}

// PublishStatus pushes an in-flight status update to SSE subscribers.
func (s *Server) PublishStatus(state, message string) {
	err := s.publisher.Publish(auditTopic, "status", pubsub.AuditStatus{
		State:   state,
		Message: message,
	})
	if err != nil {
		logging.Error("failed to publish status", "error", err)
	}
}

// Start blocks serving HTTP on the given port.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	logging.Info("web server listening", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) current() *audit.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	res := s.current()
	if res == nil {
		http.Error(w, "no audit result yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res.Report()); err != nil {
		logging.ErrorContext(r.Context(), "failed to encode report", "error", err)
	}
}

func (s *Server) handleWhy(w http.ResponseWriter, r *http.Request) {
	res := s.current()
	if res == nil {
		http.Error(w, "no audit result yet", http.StatusServiceUnavailable)
		return
	}

	target := mux.Vars(r)["crate"]
	tree, err := audit.Why(res.Graph, target)
	if err != nil {
		if errors.Is(err, graph.ErrCrateNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, tree)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub, err := s.publisher.Subscribe(r.Context(), auditTopic)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := pubsub.WriteSSE(w, event); err != nil {
				logging.DebugContext(r.Context(), "sse write failed", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}
