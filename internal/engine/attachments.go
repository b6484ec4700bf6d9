package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"pagesmith/internal/core"
	"pagesmith/internal/eventlog"
	"pagesmith/internal/llm"
)

const (
	fetchAttempts      = 3
	fetchTimeout       = 20 * time.Second
	maxAttachmentBytes = 8 << 20
)

var attachmentHTTP = &http.Client{Timeout: fetchTimeout}

var textExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".html": true,
	".htm":  true,
	".css":  true,
	".js":   true,
	".csv":  true,
	".tsv":  true,
	".json": true,
	".xml":  true,
	".svg":  true,
	".yaml": true,
	".yml":  true,
}

// mergeAttachments downloads every task attachment and adds it to the
// manifest so the pushed repo carries the source data alongside the app.
// A failed download becomes a placeholder file rather than a task failure.
func (p *Pool) mergeAttachments(ctx context.Context, task *core.TaskRecord, manifest *core.Manifest) {
	for _, attachment := range task.Attachments() {
		if attachment.Name == "" || attachment.URL == "" {
			continue
		}
		if _, exists := manifest.Lookup(attachment.Name); exists {
			continue
		}
		data, contentType, err := fetchAttachment(ctx, attachment.URL)
		if err != nil {
			p.log.Warn("attachment download failed",
				zap.Int64("task_id", task.ID),
				zap.String("name", attachment.Name),
				zap.Error(err))
			p.emit(eventlog.Event{TaskID: task.ID, Stage: "attachments", Status: "failed", Message: attachment.Name})
			manifest.Upsert(core.FileEntry{
				Path:    attachment.Name,
				Content: fmt.Sprintf("attachment %q could not be fetched: %v\n", attachment.Name, err),
			})
			continue
		}
		entry := core.FileEntry{Path: attachment.Name}
		if isTextContent(contentType, attachment.Name) {
			entry.Content = string(data)
		} else {
			entry.Binary = data
		}
		manifest.Upsert(entry)
		p.emit(eventlog.Event{TaskID: task.ID, Stage: "attachments", Status: "ok", Message: attachment.Name})
	}
}

func fetchAttachment(ctx context.Context, url string) ([]byte, string, error) {
	if strings.HasPrefix(url, "data:") {
		data, mediaType, err := llm.DecodeDataURI(url)
		return data, mediaType, err
	}

	var body []byte
	var contentType string
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := attachmentHTTP.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("unexpected status %d", resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}
			return err
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes))
		if err != nil {
			return err
		}
		body = data
		contentType = resp.Header.Get("Content-Type")
		return nil
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = 8 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, fetchAttempts-1), ctx)); err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", url, err)
	}
	return body, contentType, nil
}

func isTextContent(contentType, name string) bool {
	mediaType := contentType
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	mediaType = strings.TrimSpace(strings.ToLower(mediaType))
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case mediaType == "application/json", mediaType == "application/xml",
		mediaType == "application/javascript", mediaType == "image/svg+xml":
		return true
	case mediaType != "" && mediaType != "application/octet-stream":
		return false
	}
	return textExtensions[strings.ToLower(path.Ext(name))]
}
