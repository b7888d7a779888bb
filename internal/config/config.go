package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Session  SessionConfig  `json:"session"`
	Remote   RemoteConfig   `json:"remote"`
	Server   ServerConfig   `json:"server"`
	Render   RenderConfig   `json:"render"`
	Proposer ProposerConfig `json:"proposer"`
	Log      LogConfig      `json:"log"`
}

// SessionConfig names the inputs of an annotation session
type SessionConfig struct {
	ProposalsPath string `json:"proposals_path"`
	ImagesDir     string `json:"images_dir"`
	AnnotatorID   string `json:"annotator_id"`
	// OutputDir holds annotations_<id>.json in local mode
	OutputDir string `json:"output_dir"`
	// ImageCacheMinutes is how long image dimensions stay cached
	ImageCacheMinutes int `json:"image_cache_minutes" validate:"gte=0"`
}

// RemoteConfig locates the remote annotation store. The token is read from
// the environment only and never written back to a config file.
type RemoteConfig struct {
	Token          string `json:"-"`
	Repo           string `json:"repo" validate:"required_with=Token,omitempty,contains=/"`
	Branch         string `json:"branch" validate:"required_with=Token"`
	Prefix         string `json:"prefix" validate:"required_with=Token"`
	APIURL         string `json:"api_url" validate:"omitempty,url"`
	TimeoutSeconds int    `json:"timeout_seconds" validate:"gte=1,lte=120"`
	MaxAttempts    int    `json:"max_attempts" validate:"gte=1,lte=10"`
}

// Enabled reports whether decisions go to the remote store
func (r RemoteConfig) Enabled() bool { return r.Token != "" }

// Timeout returns the per-attempt remote timeout
func (r RemoteConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// ServerConfig holds configuration for the HTTP surface
type ServerConfig struct {
	Host        string   `json:"host"`
	Port        int      `json:"port" validate:"gte=1,lte=65535"`
	CORSOrigins []string `json:"cors_origins"`
	// Metrics exposes /metrics
	Metrics bool `json:"metrics"`
}

// Addr is the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RenderConfig holds configuration for overlay images
type RenderConfig struct {
	Format    string `json:"format" validate:"oneof=png jpg jpeg webp"`
	Quality   int    `json:"quality" validate:"gte=1,lte=100"`
	MaxWidth  int    `json:"max_width" validate:"gte=0"`
	MaxHeight int    `json:"max_height" validate:"gte=0"`
}

// ProposerConfig holds configuration for proposal generation
type ProposerConfig struct {
	Backend string `json:"backend" validate:"oneof=ollama llamacpp"`
	URL     string `json:"url" validate:"omitempty,url"`
	Model   string `json:"model"`
	MaxDim  int    `json:"max_dim" validate:"gte=0"`
	Quality int    `json:"quality" validate:"gte=1,lte=100"`
}

// LogConfig holds configuration for logging
type LogConfig struct {
	Level      string `json:"level" validate:"omitempty,oneof=debug info warn error"`
	File       string `json:"file"`
	Production bool   `json:"production"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			OutputDir:         ".",
			ImageCacheMinutes: 30,
		},
		Remote: RemoteConfig{
			Branch:         "main",
			Prefix:         "annotations",
			APIURL:         "https://api.github.com",
			TimeoutSeconds: 10,
			MaxAttempts:    3,
		},
		Server: ServerConfig{
			Host:    "127.0.0.1",
			Port:    8501,
			Metrics: true,
		},
		Render: RenderConfig{
			Format:    "png",
			Quality:   90,
			MaxWidth:  1280,
			MaxHeight: 1280,
		},
		Proposer: ProposerConfig{
			Backend: "ollama",
			URL:     "http://localhost:11434",
			Model:   "qwen2.5vl:7b",
			MaxDim:  1024,
			Quality: 90,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the effective configuration: defaults, then the JSON file at
// path when it exists, then .env and the process environment
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cfg.mergeFile(path); err != nil {
				return nil, err
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	// a missing .env is normal
	_ = godotenv.Load()
	cfg.ApplyEnv()

	return cfg, nil
}

// LoadFromFile loads configuration from a JSON file on top of the defaults
func LoadFromFile(filename string) (*Config, error) {
	cfg := Default()
	if err := cfg.mergeFile(filename); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from environment variables
func (c *Config) ApplyEnv() {
	c.Session.ProposalsPath = getEnv("ANNOTATOR_PROPOSALS", c.Session.ProposalsPath)
	c.Session.ImagesDir = getEnv("ANNOTATOR_IMAGES_DIR", c.Session.ImagesDir)
	c.Session.AnnotatorID = getEnv("ANNOTATOR_ID", c.Session.AnnotatorID)
	c.Session.OutputDir = getEnv("ANNOTATOR_OUTPUT_DIR", c.Session.OutputDir)

	c.Remote.Token = getEnv("GITHUB_TOKEN", c.Remote.Token)
	c.Remote.Repo = getEnv("GITHUB_REPO", c.Remote.Repo)
	c.Remote.Branch = getEnv("GITHUB_BRANCH", c.Remote.Branch)
	c.Remote.Prefix = getEnv("ANNOTATOR_REMOTE_PREFIX", c.Remote.Prefix)
	c.Remote.APIURL = getEnv("GITHUB_API_URL", c.Remote.APIURL)
	c.Remote.TimeoutSeconds = getEnvAsInt("ANNOTATOR_REMOTE_TIMEOUT", c.Remote.TimeoutSeconds)

	c.Server.Host = getEnv("ANNOTATOR_HOST", c.Server.Host)
	c.Server.Port = getEnvAsInt("ANNOTATOR_PORT", c.Server.Port)
	if origins := getEnv("ANNOTATOR_CORS_ORIGINS", ""); origins != "" {
		c.Server.CORSOrigins = splitList(origins)
	}

	c.Proposer.Backend = getEnv("PROPOSER_BACKEND", c.Proposer.Backend)
	c.Proposer.URL = getEnv("PROPOSER_URL", c.Proposer.URL)
	c.Proposer.Model = getEnv("PROPOSER_MODEL", c.Proposer.Model)

	c.Log.Level = getEnv("ANNOTATOR_LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("ANNOTATOR_LOG_FILE", c.Log.File)
	c.Log.Production = getEnv("GO_ENV", "") == "production" || c.Log.Production
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "bbox-annotator", "config.json")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
