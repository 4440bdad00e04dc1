package model

import (
	"strings"
	"time"

	"uvian-worker/internal/domain"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job is one unit of queued work. Input and Output are opaque JSON objects.
type Job struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Status       JobStatus      `json:"status"`
	Input        map[string]any `json:"input"`
	Output       map[string]any `json:"output"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	StartedAt    *time.Time     `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at"`
}

func NewJob(id, jobType string, input map[string]any) (*Job, error) {
	if strings.TrimSpace(jobType) == "" {
		return nil, domain.ErrInvalidArgument
	}
	if id == "" {
		id = uuid.NewString()
	}
	if input == nil {
		input = map[string]any{}
	}
	now := time.Now()
	return &Job{
		ID:        id,
		Type:      jobType,
		Status:    JobStatusQueued,
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// InputString returns a non-empty string input field, trying keys in order.
func (j *Job) InputString(keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := j.Input[k].(string); ok && strings.TrimSpace(v) != "" {
			return v, true
		}
	}
	return "", false
}

// ErrorOutput is the output recorded for a failed job.
func ErrorOutput(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}
