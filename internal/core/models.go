package core

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

const (
	TaskStatusQueued       = "queued"
	TaskStatusProcessing   = "processing"
	TaskStatusGenerated    = "generated"
	TaskStatusPushed       = "pushed"
	TaskStatusNotified     = "notified"
	TaskStatusNotifyFailed = "notify_failed"
	TaskStatusDone         = "done"
	TaskStatusFailed       = "failed"
)

// TaskRecord is a persisted evaluation task. Checks and attachments are
// stored as JSON text so the row stays flat.
type TaskRecord struct {
	ID              int64
	Email           string
	Task            string
	Round           int
	Nonce           string
	Brief           string
	ChecksJSON      string
	EvaluationURL   string
	AttachmentsJSON string
	Status          string
	RepoName        string
	CommitSHA       string
	PagesURL        string
	Error           string
	ReceivedAt      time.Time
	CompletedAt     time.Time
	Attempts        int
}

func (t TaskRecord) Checks() []string {
	var checks []string
	if t.ChecksJSON != "" {
		_ = json.Unmarshal([]byte(t.ChecksJSON), &checks)
	}
	return checks
}

func (t TaskRecord) Attachments() []Attachment {
	var attachments []Attachment
	if t.AttachmentsJSON != "" {
		_ = json.Unmarshal([]byte(t.AttachmentsJSON), &attachments)
	}
	return attachments
}

// RepoHint returns the seed for the deployed repository name.
func (t TaskRecord) RepoHint() string {
	if t.Task != "" {
		return t.Task
	}
	return "tds-task"
}

type RepoRecord struct {
	ID        int64
	Task      string
	Email     string
	RepoName  string
	CreatedAt time.Time
}

type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// FileEntry is one file of a generated app manifest. Binary holds raw
// attachment bytes; Content is used when the file is text.
type FileEntry struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Encoding string `json:"encoding,omitempty"`
	Binary   []byte `json:"-"`
}

func (f FileEntry) IsBinary() bool {
	return f.Binary != nil
}

// Manifest is the deployable file set produced by the generator.
type Manifest struct {
	Files []FileEntry `json:"files"`
}

func (m Manifest) Lookup(path string) (FileEntry, bool) {
	for _, f := range m.Files {
		if f.Path == path {
			return f, true
		}
	}
	return FileEntry{}, false
}

func (m *Manifest) Upsert(entry FileEntry) {
	for i, f := range m.Files {
		if f.Path == entry.Path {
			m.Files[i] = entry
			return
		}
	}
	m.Files = append(m.Files, entry)
}

// GenerationRequest carries everything the generator needs from a task.
type GenerationRequest struct {
	Brief       string
	Checks      []string
	Attachments []Attachment
	Nonce       string
	Round       int
}

// Deployment is the outcome of pushing a manifest to the hosting platform.
type Deployment struct {
	RepoURL   string
	RepoName  string
	CommitSHA string
	PagesURL  string
}

// StatusExtra carries optional fields applied alongside a status update.
type StatusExtra struct {
	RepoName  string
	CommitSHA string
	PagesURL  string
	Error     string
}

var repoNameInvalid = regexp.MustCompile(`[^a-z0-9._-]+`)

// SlugifyRepoName normalizes a task slug into a valid repository name.
func SlugifyRepoName(hint string) string {
	name := strings.ToLower(strings.TrimSpace(hint))
	name = strings.ReplaceAll(name, " ", "-")
	name = repoNameInvalid.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-.")
	if name == "" {
		name = "tds-task"
	}
	return name
}
