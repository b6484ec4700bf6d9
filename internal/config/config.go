package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Settings is the full runtime configuration. Every field has the literal
// default the service ships with and can be overridden by the environment.
type Settings struct {
	Port          int    `envconfig:"PORT" default:"7860"`
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:"https://aipipe.org/openai/v1"`
	ModelName     string `envconfig:"AIMODEL_NAME" default:"gpt-4o"`
	GitHubToken   string `envconfig:"GITHUB_TOKEN" default:""`
	GitHubOwner   string `envconfig:"GITHUB_OWNER" default:""`
	StudentSecret string `envconfig:"STUDENT_SECRET" default:""`
	DBPath        string `envconfig:"DB_PATH" default:"sqlite:///./data/tds_deployer.sqlite"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"INFO"`
	LogDir        string `envconfig:"LOG_DIR" default:"logs"`
	Workers       int    `envconfig:"WORKERS" default:"2"`
}

// Load reads an optional .env file, then the process environment.
// A missing .env file is not an error.
func Load(envFile string) (Settings, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}

	var settings Settings
	if err := envconfig.Process("", &settings); err != nil {
		return Settings{}, fmt.Errorf("read environment: %w", err)
	}
	return settings, nil
}

// Addr is the listen address for the HTTP server.
func (s Settings) Addr() string {
	return fmt.Sprintf("0.0.0.0:%d", s.Port)
}

// DatabaseFile normalizes DB_PATH to an absolute filesystem path. Both
// sqlite URLs (sqlite:///./rel or sqlite:////abs) and bare paths are
// accepted.
func (s Settings) DatabaseFile() (string, error) {
	path := strings.TrimSpace(s.DBPath)
	if path == "" {
		return "", fmt.Errorf("DB_PATH is empty")
	}

	if strings.HasPrefix(path, "sqlite://") {
		path = strings.TrimPrefix(path, "sqlite://")
		// sqlite:///x yields "/x" for a relative x, sqlite:////x keeps
		// the absolute path after this trim.
		path = strings.TrimPrefix(path, "/")
	} else if strings.Contains(path, "://") {
		return "", fmt.Errorf("unsupported DB_PATH scheme: %s", s.DBPath)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve DB_PATH: %w", err)
	}
	return abs, nil
}

// MissingCritical lists unset values the service cannot fully operate
// without. Startup warns about them instead of failing so the health
// endpoint stays reachable in partially configured environments.
func (s Settings) MissingCritical() []string {
	var missing []string
	if s.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if s.GitHubToken == "" {
		missing = append(missing, "GITHUB_TOKEN")
	}
	if s.GitHubOwner == "" {
		missing = append(missing, "GITHUB_OWNER")
	}
	if s.StudentSecret == "" {
		missing = append(missing, "STUDENT_SECRET")
	}
	return missing
}
