package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const defaultRetries = 5

// Payload is the result report POSTed back to the evaluation webhook.
type Payload struct {
	Email     string `json:"email"`
	Task      string `json:"task"`
	Round     int    `json:"round"`
	Nonce     string `json:"nonce"`
	RepoURL   string `json:"repo_url"`
	CommitSHA string `json:"commit_sha"`
	PagesURL  string `json:"pages_url"`
}

// Notifier posts webhook callbacks with exponential backoff. Exhausted
// retries report false instead of an error: a dead webhook must not fail
// the task.
type Notifier struct {
	http     *http.Client
	retries  uint64
	interval time.Duration
	log      *zap.Logger
}

func New(log *zap.Logger) *Notifier {
	return &Notifier{
		http:     &http.Client{Timeout: 15 * time.Second},
		retries:  defaultRetries,
		interval: time.Second,
		log:      log,
	}
}

func (n *Notifier) Post(ctx context.Context, url string, payload Payload) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		n.log.Error("marshal webhook payload", zap.Error(err))
		return false
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.http.Do(req)
		if err != nil {
			n.log.Debug("webhook post failed", zap.String("url", url), zap.Error(err))
			return err
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			n.log.Debug("webhook post rejected", zap.String("url", url), zap.Int("status", resp.StatusCode))
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = n.interval
	policy.MaxInterval = 16 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, n.retries-1), ctx)); err != nil {
		n.log.Error("webhook notification failed after retries", zap.String("url", url), zap.Error(err))
		return false
	}
	return true
}
