package eventlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitWritesSharedAndPerTaskLog(t *testing.T) {
	dir := t.TempDir()
	log, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, log.Emit(Event{TaskID: 7, Stage: "push", Status: "ok"}))
	require.NoError(t, log.Emit(Event{TaskID: 7, Stage: "notify", Status: "failed", Message: "timeout"}))

	shared, err := os.ReadFile(filepath.Join(dir, "tasks.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(shared)), "\n")
	require.Len(t, lines, 2)

	var entry struct {
		TS      string `json:"ts"`
		TaskID  int64  `json:"task_id"`
		Stage   string `json:"stage"`
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.NotEmpty(t, entry.TS)
	assert.Equal(t, int64(7), entry.TaskID)
	assert.Equal(t, "notify", entry.Stage)
	assert.Equal(t, "failed", entry.Status)
	assert.Equal(t, "timeout", entry.Message)

	perTask, err := os.ReadFile(filepath.Join(dir, "task_7.log"))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(perTask)), "\n"), 2)
}

func TestEmitWithoutTaskIDSkipsPerTaskFile(t *testing.T) {
	dir := t.TempDir()
	log, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, log.Emit(Event{Stage: "startup", Status: "ok"}))

	_, err = os.Stat(filepath.Join(dir, "tasks.log"))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
