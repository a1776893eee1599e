package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"PosPrint/app/models"
	"PosPrint/app/security"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// WriteJSON writes v with the given status code
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// QueueAPIServer exposes the print queue to stations and agents
type QueueAPIServer struct {
	server       *http.Server
	addr         string
	queue        *PrintQueueService
	agentKeyHash string
	ws           http.Handler
	logger       *LoggerService

	verifiedKeys sync.Map // keys already checked against agentKeyHash
}

// NewQueueAPIServer creates the server. ws serves agent nudges on /ws and
// may be nil; an empty agentKeyHash disables agent authentication.
func NewQueueAPIServer(addr string, queue *PrintQueueService, agentKeyHash string, ws http.Handler, logger *LoggerService) *QueueAPIServer {
	s := &QueueAPIServer{
		addr:         addr,
		queue:        queue,
		agentKeyHash: agentKeyHash,
		ws:           ws,
		logger:       logger,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the router
func (s *QueueAPIServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.agentKeyMiddleware)
		r.Post("/submit", s.handleSubmit)
		r.Get("/pending", s.handlePending)
		r.Post("/complete", s.handleComplete)
		r.Get("/status", s.handleStatus)
		r.Get("/jobs", s.handleList)
		r.Get("/jobs/{id}", s.handleJob)
		if s.ws != nil {
			r.Handle("/ws", s.ws)
		}
	})
	return r
}

// Start serves until Stop is called
func (s *QueueAPIServer) Start() error {
	s.logger.LogInfo("Print queue API starting", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("queue API server error: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully
func (s *QueueAPIServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.LogInfo("Print queue API stopping")
	return s.server.Shutdown(ctx)
}

func (s *QueueAPIServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.LogDebug("queue request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *QueueAPIServer) agentKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.agentKeyHash != "" {
			key := r.Header.Get(AgentKeyHeader)
			if key == "" {
				key = r.URL.Query().Get("key")
			}
			if _, ok := s.verifiedKeys.Load(key); !ok {
				if err := security.VerifyAgentKey(s.agentKeyHash, key); err != nil {
					s.fail(w, http.StatusUnauthorized, "invalid agent key")
					return
				}
				s.verifiedKeys.Store(key, struct{}{})
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *QueueAPIServer) fail(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, QueueResponse{Success: false, Error: msg})
}

func (s *QueueAPIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.queue.Ping(r.Context()); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, APIResponse{Success: false, Error: err.Error()})
		return
	}
	WriteJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: "PosPrint queue is running",
		Data:    map[string]interface{}{"time": time.Now().UTC()},
	})
}

func (s *QueueAPIServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	job, err := s.queue.Submit(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidJob) {
			s.fail(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.LogError("Submit failed", err)
		s.fail(w, http.StatusInternalServerError, "failed to store job")
		return
	}
	WriteJSON(w, http.StatusOK, QueueResponse{Success: true, JobID: job.ID})
}

func (s *QueueAPIServer) handlePending(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		s.fail(w, http.StatusBadRequest, "agent_id is required")
		return
	}
	limit := DefaultPickupLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.fail(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	jobs, err := s.queue.Pickup(r.Context(), agentID, limit)
	if err != nil {
		s.logger.LogError("Pickup failed", err, agentID)
		s.fail(w, http.StatusInternalServerError, "failed to pick up jobs")
		return
	}
	if jobs == nil {
		jobs = []models.PrintJob{}
	}
	WriteJSON(w, http.StatusOK, struct {
		Success bool              `json:"success"`
		Jobs    []models.PrintJob `json:"jobs"`
	}{true, jobs})
}

func (s *QueueAPIServer) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JobID == "" {
		s.fail(w, http.StatusBadRequest, "job_id is required")
		return
	}
	if _, err := s.queue.Complete(r.Context(), req.JobID, req.AgentID, req.Success, req.ErrorMessage); err != nil {
		switch {
		case errors.Is(err, ErrJobNotFound):
			s.fail(w, http.StatusNotFound, err.Error())
		case errors.Is(err, ErrJobNotProcessing):
			s.fail(w, http.StatusConflict, err.Error())
		default:
			s.logger.LogError("Complete failed", err, req.JobID)
			s.fail(w, http.StatusInternalServerError, "failed to complete job")
		}
		return
	}
	WriteJSON(w, http.StatusOK, QueueResponse{Success: true})
}

func (s *QueueAPIServer) writeStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	if jobID == "" {
		s.fail(w, http.StatusBadRequest, "job_id is required")
		return
	}
	view, err := s.queue.Status(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			s.fail(w, http.StatusNotFound, err.Error())
			return
		}
		s.fail(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	WriteJSON(w, http.StatusOK, QueueResponse{Success: true, Job: view})
}

func (s *QueueAPIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w, r, r.URL.Query().Get("job_id"))
}

func (s *QueueAPIServer) handleJob(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w, r, chi.URLParam(r, "id"))
}

func (s *QueueAPIServer) handleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	status := models.JobStatus(r.URL.Query().Get("status"))
	jobs, err := s.queue.List(r.Context(), status, limit)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	WriteJSON(w, http.StatusOK, QueueResponse{Success: true, Jobs: jobs})
}
