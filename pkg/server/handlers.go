package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ohadalab/sycora/pkg/config"
	"github.com/ohadalab/sycora/pkg/engine"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// handleQuery answers a query synchronously.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.deadline)
	defer cancel()

	answer, err := s.engine.Search(ctx, &req)
	if err != nil {
		status := http.StatusBadRequest
		if ctx.Err() != nil {
			status = http.StatusGatewayTimeout
		}
		s.log.Error("query failed", "error", err)
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

// handleStream answers a query as a server-sent event stream. Parameters
// come from the query string so plain EventSource clients can connect.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	req, err := streamRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	sink, err := newSSESink(w)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.deadline)
	defer cancel()

	if err := s.engine.SearchStream(ctx, req, sink); err != nil {
		s.log.Error("stream ended with error", "error", err)
	}
}

func streamRequest(r *http.Request) (*engine.Request, error) {
	q := r.URL.Query()
	req := &engine.Request{
		Query:          q.Get("query"),
		IncludeSources: q.Get("include_sources") == "true",
	}

	if v := q.Get("n_results"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid value for parameter n_results")
		}
		req.NResults = n
	}
	if v := q.Get("partie"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid value for parameter partie")
		}
		req.Partie = &n
	}
	if v := q.Get("chapitre"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid value for parameter chapitre")
		}
		req.Chapitre = &n
	}
	if q.Get("cache_ok") == "false" {
		req.CacheOK = config.BoolPtr(false)
	}
	return req, nil
}

// handleStatus reports the progress of an in-flight or recent query.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, ok := s.engine.Tracker().Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown query id"})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Cache     any       `json:"cache"`
}

// handleHealth reports liveness plus cache effectiveness counters.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Cache:     s.engine.CacheStats(),
	})
}
