package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"pagesmith/internal/core"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	ddl := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA foreign_keys=ON;`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL,
			task TEXT NOT NULL,
			round INTEGER NOT NULL,
			nonce TEXT NOT NULL,
			brief TEXT NOT NULL,
			checks_json TEXT NOT NULL DEFAULT '[]',
			evaluation_url TEXT NOT NULL DEFAULT '',
			attachments_json TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL,
			repo_name TEXT,
			commit_sha TEXT,
			pages_url TEXT,
			error TEXT,
			received_at TEXT NOT NULL,
			completed_at TEXT,
			attempts INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);`,
		`CREATE TABLE IF NOT EXISTS repos (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task TEXT NOT NULL,
			email TEXT NOT NULL,
			repo_name TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_repos_task ON repos(task);`,
	}

	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) CreateTask(ctx context.Context, task core.TaskRecord) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (email, task, round, nonce, brief, checks_json, evaluation_url, attachments_json, status, received_at, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		task.Email,
		task.Task,
		task.Round,
		task.Nonce,
		task.Brief,
		orDefault(task.ChecksJSON, "[]"),
		task.EvaluationURL,
		orDefault(task.AttachmentsJSON, "[]"),
		core.TaskStatusQueued,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

const taskColumns = `id, email, task, round, nonce, brief, checks_json, evaluation_url,
	attachments_json, status, repo_name, commit_sha, pages_url, error,
	received_at, completed_at, attempts`

func (s *SQLiteStore) GetTask(ctx context.Context, taskID int64) (*core.TaskRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = ?`,
		taskID,
	)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

// ClaimNextQueued atomically moves the oldest queued task to processing so
// no two workers pick up the same task.
func (s *SQLiteStore) ClaimNextQueued(ctx context.Context) (*core.TaskRecord, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE status = ?
		ORDER BY received_at ASC, id ASC
		LIMIT 1`,
		core.TaskStatusQueued,
	)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, attempts = attempts + 1
		WHERE id = ? AND status = ?`,
		core.TaskStatusProcessing,
		task.ID,
		core.TaskStatusQueued,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	task.Status = core.TaskStatusProcessing
	task.Attempts++
	return task, nil
}

// UpdateTaskStatus sets the task status and applies any extra fields.
// Terminal statuses stamp completed_at.
func (s *SQLiteStore) UpdateTaskStatus(ctx context.Context, taskID int64, status string, extra core.StatusExtra) error {
	query := `UPDATE tasks SET status = ?`
	args := []interface{}{status}

	if extra.RepoName != "" {
		query += `, repo_name = ?`
		args = append(args, extra.RepoName)
	}
	if extra.CommitSHA != "" {
		query += `, commit_sha = ?`
		args = append(args, extra.CommitSHA)
	}
	if extra.PagesURL != "" {
		query += `, pages_url = ?`
		args = append(args, extra.PagesURL)
	}
	if extra.Error != "" {
		query += `, error = ?`
		args = append(args, extra.Error)
	}
	if status == core.TaskStatusDone || status == core.TaskStatusFailed {
		query += `, completed_at = ?`
		args = append(args, time.Now().UTC().Format(time.RFC3339))
	}

	query += ` WHERE id = ?`
	args = append(args, taskID)

	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *SQLiteStore) ListTasks(ctx context.Context, limit int) ([]core.TaskRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		ORDER BY id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []core.TaskRecord
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func (s *SQLiteStore) RecordRepo(ctx context.Context, repo core.RepoRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repos (task, email, repo_name, created_at)
		VALUES (?, ?, ?, ?)`,
		repo.Task,
		repo.Email,
		repo.RepoName,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *SQLiteStore) ListRepos(ctx context.Context, limit int) ([]core.RepoRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task, email, repo_name, created_at
		FROM repos
		ORDER BY id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repos []core.RepoRecord
	for rows.Next() {
		var repo core.RepoRecord
		var createdAt string
		if err := rows.Scan(&repo.ID, &repo.Task, &repo.Email, &repo.RepoName, &createdAt); err != nil {
			return nil, err
		}
		repo.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		repos = append(repos, repo)
	}
	return repos, rows.Err()
}

func (s *SQLiteStore) CountByStatus(ctx context.Context, status string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE status = ?`, status).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*core.TaskRecord, error) {
	var (
		task        core.TaskRecord
		repoName    sql.NullString
		commitSHA   sql.NullString
		pagesURL    sql.NullString
		errText     sql.NullString
		receivedAt  string
		completedAt sql.NullString
	)

	if err := row.Scan(
		&task.ID,
		&task.Email,
		&task.Task,
		&task.Round,
		&task.Nonce,
		&task.Brief,
		&task.ChecksJSON,
		&task.EvaluationURL,
		&task.AttachmentsJSON,
		&task.Status,
		&repoName,
		&commitSHA,
		&pagesURL,
		&errText,
		&receivedAt,
		&completedAt,
		&task.Attempts,
	); err != nil {
		return nil, err
	}

	task.RepoName = repoName.String
	task.CommitSHA = commitSHA.String
	task.PagesURL = pagesURL.String
	task.Error = errText.String
	task.ReceivedAt, _ = time.Parse(time.RFC3339, receivedAt)
	if completedAt.Valid {
		task.CompletedAt, _ = time.Parse(time.RFC3339, completedAt.String)
	}
	return &task, nil
}

func orDefault(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
