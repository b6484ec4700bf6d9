package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pagesmith/internal/core"
	"pagesmith/internal/store"
)

type fakeWaker struct {
	calls int
}

func (w *fakeWaker) Wake() { w.calls++ }

type serverFixture struct {
	server *Server
	store  *store.SQLiteStore
	waker  *fakeWaker
}

func newServerFixture(t *testing.T, secret string) *serverFixture {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Init(context.Background()))

	waker := &fakeWaker{}
	return &serverFixture{
		server: NewServer("127.0.0.1:0", st, waker, secret, zap.NewNop()),
		store:  st,
		waker:  waker,
	}
}

func (f *serverFixture) do(t *testing.T, method string, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func validPayload() TaskPayload {
	return TaskPayload{
		Email:         "student@example.com",
		Secret:        "s3cret",
		Task:          "sales-dash-1",
		Round:         1,
		Nonce:         "abc123",
		Brief:         "Build a sales dashboard",
		Checks:        []string{`!!document.querySelector('#sales-table')`},
		EvaluationURL: "https://example.com/notify",
	}
}

func TestIndex(t *testing.T) {
	f := newServerFixture(t, "s3cret")
	rec := f.do(t, http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "pagesmith")
}

func TestHealth(t *testing.T) {
	f := newServerFixture(t, "s3cret")
	rec := f.do(t, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, Version, resp.Version)
	assert.Equal(t, "ok", resp.Database)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCreateTask(t *testing.T) {
	f := newServerFixture(t, "s3cret")
	rec := f.do(t, http.MethodPost, "/api/task", validPayload())

	require.Equal(t, http.StatusOK, rec.Code)
	var resp AcceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp.Status)
	assert.Greater(t, resp.TaskID, int64(0))
	assert.Equal(t, 1, resp.Round)
	assert.Equal(t, 1, f.waker.calls)

	task, err := f.store.GetTask(context.Background(), resp.TaskID)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, core.TaskStatusQueued, task.Status)
	assert.Equal(t, []string{`!!document.querySelector('#sales-table')`}, task.Checks())
}

func TestCreateTaskRejectsBadSecret(t *testing.T) {
	f := newServerFixture(t, "s3cret")
	payload := validPayload()
	payload.Secret = "wrong"

	rec := f.do(t, http.MethodPost, "/api/task", payload)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 0, f.waker.calls)
}

func TestCreateTaskRejectsAllWhenSecretUnset(t *testing.T) {
	f := newServerFixture(t, "")
	payload := validPayload()
	payload.Secret = ""

	rec := f.do(t, http.MethodPost, "/api/task", payload)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateTaskValidation(t *testing.T) {
	f := newServerFixture(t, "s3cret")

	tests := []struct {
		name   string
		mutate func(*TaskPayload)
	}{
		{name: "missing email", mutate: func(p *TaskPayload) { p.Email = "" }},
		{name: "missing task", mutate: func(p *TaskPayload) { p.Task = "" }},
		{name: "bad round", mutate: func(p *TaskPayload) { p.Round = 0 }},
		{name: "missing nonce", mutate: func(p *TaskPayload) { p.Nonce = "" }},
		{name: "missing brief", mutate: func(p *TaskPayload) { p.Brief = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := validPayload()
			tt.mutate(&payload)
			rec := f.do(t, http.MethodPost, "/api/task", payload)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCreateTaskInvalidJSON(t *testing.T) {
	f := newServerFixture(t, "s3cret")

	req := httptest.NewRequest(http.MethodPost, "/api/task", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTasks(t *testing.T) {
	f := newServerFixture(t, "s3cret")

	for _, name := range []string{"task-a", "task-b"} {
		payload := validPayload()
		payload.Task = name
		rec := f.do(t, http.MethodPost, "/api/task", payload)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/api/tasks?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var tasks []TaskDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "task-b", tasks[0].Task)
	assert.Equal(t, core.TaskStatusQueued, tasks[0].Status)
	assert.NotEmpty(t, tasks[0].ReceivedAt)
	assert.Empty(t, tasks[0].CompletedAt)
}

func TestListTasksBadLimit(t *testing.T) {
	f := newServerFixture(t, "s3cret")
	rec := f.do(t, http.MethodGet, "/api/tasks?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
