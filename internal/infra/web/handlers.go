package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"uvian-worker/internal/domain"
	"uvian-worker/internal/usecase"

	"github.com/go-chi/chi/v5"
)

type jobCreateRequest struct {
	Type  string         `json:"type"`
	Input map[string]any `json:"input"`
}

// jobCreateHandler records a job and queues it.
func jobCreateHandler(jobs usecase.JobUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req jobCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		job, err := jobs.Submit(r.Context(), req.Type, req.Input)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidArgument) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, "Failed to submit job", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, job)
	}
}

func jobGetHandler(jobs usecase.JobUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := jobs.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrNotFound):
				http.Error(w, "Job not found", http.StatusNotFound)
			case errors.Is(err, domain.ErrInvalidArgument):
				http.Error(w, err.Error(), http.StatusBadRequest)
			default:
				http.Error(w, "Failed to load job", http.StatusInternalServerError)
			}
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
