package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TaskLog appends pipeline events to a shared tasks.log plus a per-task
// file, as JSON lines. Failures to write are reported but callers treat
// them as best-effort.
type TaskLog struct {
	mu  sync.Mutex
	dir string
}

type Event struct {
	TaskID  int64       `json:"task_id"`
	Stage   string      `json:"stage,omitempty"`
	Status  string      `json:"status,omitempty"`
	Message string      `json:"message,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

func New(dir string) (*TaskLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &TaskLog{dir: dir}, nil
}

func (l *TaskLog) Emit(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	payload := struct {
		TS string `json:"ts"`
		Event
	}{
		TS:    time.Now().UTC().Format(time.RFC3339),
		Event: event,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	line := append(data, '\n')

	if err := appendLine(filepath.Join(l.dir, "tasks.log"), line); err != nil {
		return err
	}
	if event.TaskID != 0 {
		name := fmt.Sprintf("task_%d.log", event.TaskID)
		if err := appendLine(filepath.Join(l.dir, name), line); err != nil {
			return err
		}
	}
	return nil
}

func appendLine(path string, line []byte) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open task log: %w", err)
	}
	defer file.Close()

	_, err = file.Write(line)
	return err
}
