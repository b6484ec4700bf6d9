package api

import (
	"fmt"
	"time"

	"pagesmith/internal/core"
)

// TaskPayload is the request body posted by the evaluation server.
type TaskPayload struct {
	Email         string            `json:"email"`
	Secret        string            `json:"secret"`
	Task          string            `json:"task"`
	Round         int               `json:"round"`
	Nonce         string            `json:"nonce"`
	Brief         string            `json:"brief"`
	Checks        []string          `json:"checks"`
	EvaluationURL string            `json:"evaluation_url"`
	Attachments   []core.Attachment `json:"attachments"`
}

func (p *TaskPayload) Validate() error {
	switch {
	case p.Email == "":
		return fmt.Errorf("email is required")
	case p.Task == "":
		return fmt.Errorf("task is required")
	case p.Round < 1:
		return fmt.Errorf("round must be >= 1")
	case p.Nonce == "":
		return fmt.Errorf("nonce is required")
	case p.Brief == "":
		return fmt.Errorf("brief is required")
	}
	return nil
}

type AcceptedResponse struct {
	Status string `json:"status"`
	TaskID int64  `json:"task_id"`
	Round  int    `json:"round"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// TaskDTO is the read model returned by the task listing endpoint.
// Secrets and raw attachment payloads are never echoed back.
type TaskDTO struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	Task        string `json:"task"`
	Round       int    `json:"round"`
	Status      string `json:"status"`
	RepoName    string `json:"repo_name,omitempty"`
	CommitSHA   string `json:"commit_sha,omitempty"`
	PagesURL    string `json:"pages_url,omitempty"`
	Error       string `json:"error,omitempty"`
	ReceivedAt  string `json:"received_at"`
	CompletedAt string `json:"completed_at,omitempty"`
	Attempts    int    `json:"attempts"`
}

func toTaskDTO(record core.TaskRecord) TaskDTO {
	completed := ""
	if !record.CompletedAt.IsZero() {
		completed = record.CompletedAt.UTC().Format(time.RFC3339)
	}
	return TaskDTO{
		ID:          record.ID,
		Email:       record.Email,
		Task:        record.Task,
		Round:       record.Round,
		Status:      record.Status,
		RepoName:    record.RepoName,
		CommitSHA:   record.CommitSHA,
		PagesURL:    record.PagesURL,
		Error:       record.Error,
		ReceivedAt:  record.ReceivedAt.UTC().Format(time.RFC3339),
		CompletedAt: completed,
		Attempts:    record.Attempts,
	}
}
