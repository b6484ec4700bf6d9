package api

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"pagesmith/internal/core"
)

const (
	maxBodyBytes = 1 << 20
	maxListLimit = 200
)

const indexPage = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>pagesmith</title></head>
<body>
<h1>pagesmith</h1>
<p>Automated app builder and deployer. POST tasks to <code>/api/task</code>.</p>
</body>
</html>
`

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexPage)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	database := "ok"
	if _, err := s.store.CountByStatus(r.Context(), core.TaskStatusQueued); err != nil {
		database = "error"
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Version:  Version,
		Database: database,
	})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var payload TaskPayload
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	if !s.secretMatches(payload.Secret) {
		s.log.Warn("rejected task with invalid secret",
			zap.String("email", payload.Email),
			zap.String("task", payload.Task))
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "invalid secret"})
		return
	}
	if err := payload.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	checksJSON, err := json.Marshal(payload.Checks)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid checks"})
		return
	}
	attachmentsJSON, err := json.Marshal(payload.Attachments)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid attachments"})
		return
	}

	record := core.TaskRecord{
		Email:           payload.Email,
		Task:            payload.Task,
		Round:           payload.Round,
		Nonce:           payload.Nonce,
		Brief:           payload.Brief,
		ChecksJSON:      string(checksJSON),
		EvaluationURL:   payload.EvaluationURL,
		AttachmentsJSON: string(attachmentsJSON),
	}
	id, err := s.store.CreateTask(r.Context(), record)
	if err != nil {
		s.log.Error("enqueue task", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to enqueue task"})
		return
	}
	s.log.Info("task accepted",
		zap.Int64("task_id", id),
		zap.String("task", payload.Task),
		zap.Int("round", payload.Round))
	s.pool.Wake()

	writeJSON(w, http.StatusOK, AcceptedResponse{
		Status: "accepted",
		TaskID: id,
		Round:  payload.Round,
	})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	records, err := s.store.ListTasks(r.Context(), limit)
	if err != nil {
		s.log.Error("list tasks", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to list tasks"})
		return
	}
	dtos := make([]TaskDTO, 0, len(records))
	for _, record := range records {
		dtos = append(dtos, toTaskDTO(record))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// secretMatches rejects every request when no secret is configured.
func (s *Server) secretMatches(candidate string) bool {
	if s.secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s.secret), []byte(candidate)) == 1
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
