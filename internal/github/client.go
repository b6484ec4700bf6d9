package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"pagesmith/internal/core"
)

const (
	defaultAPIBase      = "https://api.github.com"
	defaultBranch       = "main"
	defaultIndexTimeout = 30 * time.Second
	defaultPagesTimeout = 180 * time.Second
	defaultPollInterval = 2 * time.Second
)

// Client is a minimal GitHub REST client covering repository creation,
// the contents API, and Pages enablement.
type Client struct {
	apiBase string
	token   string
	owner   string
	http    *http.Client
	log     *zap.Logger

	// Overridable for tests.
	PagesBase    string
	IndexTimeout time.Duration
	PagesTimeout time.Duration
	PollInterval time.Duration
}

func NewClient(token string, owner string, log *zap.Logger) *Client {
	return &Client{
		apiBase:      defaultAPIBase,
		token:        token,
		owner:        owner,
		http:         &http.Client{Timeout: 30 * time.Second},
		log:          log,
		IndexTimeout: defaultIndexTimeout,
		PagesTimeout: defaultPagesTimeout,
		PollInterval: defaultPollInterval,
	}
}

// NewClientWithBase points the client at an alternate API base URL.
func NewClientWithBase(apiBase string, token string, owner string, log *zap.Logger) *Client {
	client := NewClient(token, owner, log)
	client.apiBase = apiBase
	return client
}

func (c *Client) Owner() string {
	return c.owner
}

type RepoInfo struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	HTMLURL       string `json:"html_url"`
	DefaultBranch string `json:"default_branch"`
	PushedAt      string `json:"pushed_at"`
}

type contentResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

func (c *Client) RepoExists(ctx context.Context, repo string) (bool, error) {
	status, _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s", c.owner, repo), nil)
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

// CreateRepo creates a repository for the authenticated user with
// auto_init so a default branch exists immediately. Idempotent: an
// existing repo is fetched and returned.
func (c *Client) CreateRepo(ctx context.Context, repo string, description string) (RepoInfo, error) {
	exists, err := c.RepoExists(ctx, repo)
	if err != nil {
		return RepoInfo{}, err
	}
	if exists {
		c.log.Info("repo already exists", zap.String("repo", c.owner+"/"+repo))
		return c.getRepo(ctx, repo)
	}

	if description == "" {
		description = "auto-generated repo"
	}
	payload := map[string]interface{}{
		"name":             repo,
		"description":      description,
		"private":          false,
		"auto_init":        true,
		"license_template": "mit",
	}

	status, body, err := c.do(ctx, http.MethodPost, "/user/repos", payload)
	if err != nil {
		return RepoInfo{}, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return RepoInfo{}, fmt.Errorf("create repo %s: status %d: %s", repo, status, truncate(body))
	}

	var info RepoInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return RepoInfo{}, fmt.Errorf("decode repo response: %w", err)
	}
	c.log.Info("created repo", zap.String("repo", c.owner+"/"+repo))
	return info, nil
}

func (c *Client) getRepo(ctx context.Context, repo string) (RepoInfo, error) {
	status, body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s", c.owner, repo), nil)
	if err != nil {
		return RepoInfo{}, err
	}
	if status != http.StatusOK {
		return RepoInfo{}, fmt.Errorf("get repo %s: status %d", repo, status)
	}
	var info RepoInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return RepoInfo{}, fmt.Errorf("decode repo response: %w", err)
	}
	return info, nil
}

// SetDefaultBranch patches the repo default branch; failures are logged
// but not fatal.
func (c *Client) SetDefaultBranch(ctx context.Context, repo string, branch string) {
	payload := map[string]string{"default_branch": branch}
	status, body, err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/repos/%s/%s", c.owner, repo), payload)
	if err != nil || (status != http.StatusOK && status != http.StatusCreated) {
		c.log.Warn("failed to set default branch",
			zap.String("repo", repo), zap.Int("status", status), zap.String("body", truncate(body)), zap.Error(err))
		return
	}
	c.log.Info("default branch set", zap.String("repo", repo), zap.String("branch", branch))
}

// GetFileSHA returns the blob SHA of a file, or "" when the file does not
// exist on the branch.
func (c *Client) GetFileSHA(ctx context.Context, repo string, path string, branch string) (string, error) {
	url := fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s", c.owner, repo, path, branch)
	status, body, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	switch status {
	case http.StatusOK:
		var resp struct {
			SHA string `json:"sha"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("decode contents response: %w", err)
		}
		return resp.SHA, nil
	case http.StatusNotFound:
		return "", nil
	default:
		return "", fmt.Errorf("get file sha %s: status %d", path, status)
	}
}

// CreateOrUpdateFile pushes one file through the contents API and returns
// the resulting commit SHA.
func (c *Client) CreateOrUpdateFile(ctx context.Context, repo string, path string, content []byte, message string, branch string) (string, error) {
	sha, err := c.GetFileSHA(ctx, repo, path, branch)
	if err != nil {
		return "", err
	}

	payload := map[string]string{
		"message": message,
		"content": base64.StdEncoding.EncodeToString(content),
		"branch":  branch,
	}
	if sha != "" {
		payload["sha"] = sha
	}

	url := fmt.Sprintf("/repos/%s/%s/contents/%s", c.owner, repo, path)
	status, body, err := c.do(ctx, http.MethodPut, url, payload)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return "", fmt.Errorf("push %s: status %d: %s", path, status, truncate(body))
	}

	var resp contentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode push response: %w", err)
	}
	return resp.Commit.SHA, nil
}

// WaitForIndex polls until index.html is visible in the repo contents so
// Pages enablement does not race the pushes.
func (c *Client) WaitForIndex(ctx context.Context, repo string) bool {
	deadline := time.Now().Add(c.IndexTimeout)
	for {
		status, _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/contents/index.html", c.owner, repo), nil)
		if err == nil && status == http.StatusOK {
			return true
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			c.log.Warn("index.html not visible before deadline", zap.String("repo", repo))
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.PollInterval):
		}
	}
}

// EnablePages turns on legacy Pages builds for the branch and polls the
// public URL until it serves 200 or the timeout passes. The URL is
// returned either way.
func (c *Client) EnablePages(ctx context.Context, repo string, branch string) (string, error) {
	c.WaitForIndex(ctx, repo)

	payload := map[string]interface{}{
		"build_type": "legacy",
		"source":     map[string]string{"branch": branch, "path": "/"},
	}
	url := fmt.Sprintf("/repos/%s/%s/pages", c.owner, repo)

	status, body, err := c.do(ctx, http.MethodPost, url, payload)
	if err != nil {
		return "", err
	}
	if !pagesAccepted(status) {
		// Already-enabled repos want PUT instead.
		status, body, err = c.do(ctx, http.MethodPut, url, payload)
		if err != nil {
			return "", err
		}
		if !pagesAccepted(status) {
			return "", fmt.Errorf("enable pages %s: status %d: %s", repo, status, truncate(body))
		}
	}

	pagesURL := ""
	if len(body) > 0 {
		var resp struct {
			HTMLURL string `json:"html_url"`
		}
		if err := json.Unmarshal(body, &resp); err == nil {
			pagesURL = resp.HTMLURL
		}
	}
	if pagesURL == "" {
		pagesURL = c.fallbackPagesURL(repo)
	}

	c.log.Info("pages requested, polling until live", zap.String("url", pagesURL))
	c.pollPagesLive(ctx, pagesURL)
	return pagesURL, nil
}

func (c *Client) fallbackPagesURL(repo string) string {
	if c.PagesBase != "" {
		return fmt.Sprintf("%s/%s/", c.PagesBase, repo)
	}
	return fmt.Sprintf("https://%s.github.io/%s/", c.owner, repo)
}

func (c *Client) pollPagesLive(ctx context.Context, pagesURL string) {
	deadline := time.Now().Add(c.PagesTimeout)
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pagesURL, nil)
		if err == nil {
			resp, err := c.http.Do(req)
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					c.log.Info("pages site live", zap.String("url", pagesURL))
					return
				}
			}
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			c.log.Warn("pages site not live before deadline", zap.String("url", pagesURL))
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.PollInterval):
		}
	}
}

const pagesWorkflow = `name: Deploy to GitHub Pages
on:
  push:
    branches:
      - main
permissions:
  contents: read
  pages: write
jobs:
  deploy:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout@v4
      - name: Upload artifact
        uses: actions/upload-pages-artifact@v3
        with:
          path: '.'
      - name: Deploy to Pages
        id: deploy
        uses: actions/deploy-pages@v4
`

// AddPagesWorkflow commits an Actions workflow as a fallback deployment
// path for repos where legacy Pages builds are unavailable.
func (c *Client) AddPagesWorkflow(ctx context.Context, repo string) error {
	_, err := c.CreateOrUpdateFile(ctx, repo, ".github/workflows/pages.yml", []byte(pagesWorkflow), "add pages.yml", defaultBranch)
	return err
}

// CreateRepoAndPush is the high-level path used by the worker: create the
// repo, push every manifest file plus README and LICENSE, enable Pages,
// and report what was deployed.
func (c *Client) CreateRepoAndPush(ctx context.Context, manifest core.Manifest, repoHint string) (core.Deployment, error) {
	repo := core.SlugifyRepoName(repoHint)
	c.log.Info("creating and pushing repo", zap.String("repo", c.owner+"/"+repo))

	info, err := c.CreateRepo(ctx, repo, "auto-deployed static app")
	if err != nil {
		return core.Deployment{}, err
	}

	branch := info.DefaultBranch
	if branch == "" {
		branch = defaultBranch
	}

	commitSHA := ""
	for _, file := range manifest.Files {
		content := []byte(file.Content)
		if file.IsBinary() {
			content = file.Binary
		}
		sha, err := c.CreateOrUpdateFile(ctx, repo, file.Path, content, "add "+file.Path, branch)
		if err != nil {
			return core.Deployment{}, err
		}
		if sha != "" {
			commitSHA = sha
		}
	}

	if _, ok := manifest.Lookup("README.md"); !ok {
		readme := fmt.Sprintf("# %s\n\nAuto-generated static app.\n", repo)
		if sha, err := c.CreateOrUpdateFile(ctx, repo, "README.md", []byte(readme), "add readme", branch); err == nil && sha != "" {
			commitSHA = sha
		}
	}
	if _, ok := manifest.Lookup("LICENSE"); !ok {
		license := MITLicense(c.owner, time.Now().Year())
		if sha, err := c.CreateOrUpdateFile(ctx, repo, "LICENSE", []byte(license), "add license", branch); err == nil && sha != "" {
			commitSHA = sha
		}
	}

	pagesURL, err := c.EnablePages(ctx, repo, branch)
	if err != nil {
		return core.Deployment{}, err
	}

	if commitSHA == "" {
		// Contents API responses should always carry a commit; fall back
		// to the repo push timestamp rather than fail the deployment.
		commitSHA = info.PushedAt
	}

	return core.Deployment{
		RepoURL:   fmt.Sprintf("https://github.com/%s/%s", c.owner, repo),
		RepoName:  repo,
		CommitSHA: commitSHA,
		PagesURL:  pagesURL,
	}, nil
}

// do performs one authenticated API request, retrying transient transport
// errors and rate-limit/server statuses with exponential backoff.
func (c *Client) do(ctx context.Context, method string, path string, payload interface{}) (int, []byte, error) {
	var reqBody []byte
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal payload: %w", err)
		}
		reqBody = data
	}

	var (
		status int
		body   []byte
	)
	operation := func() error {
		var reader io.Reader
		if reqBody != nil {
			reader = bytes.NewReader(reqBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "token "+c.token)
		req.Header.Set("Accept", "application/vnd.github.v3+json")
		req.Header.Set("User-Agent", "pagesmith")
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("github api %s %s: status %d", method, path, resp.StatusCode)
		}

		status = resp.StatusCode
		body = data
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = 8 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, 3), ctx)); err != nil {
		return 0, nil, err
	}
	return status, body, nil
}

func pagesAccepted(status int) bool {
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
		return true
	}
	return false
}

func truncate(body []byte) string {
	const max = 400
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}
