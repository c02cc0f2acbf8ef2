// Package config loads and validates the mosquesync YAML configuration.
package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPollInterval = 10 * time.Second
	minPollInterval     = 2 * time.Second
	maxPollInterval     = 10 * time.Minute

	defaultMaxImages = 5
	defaultFolder    = "mosque-images"
	defaultListen    = "127.0.0.1:8087"
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// Backend is the PostgREST RPC endpoint holding the settings and image records.
	Backend BackendConfig `yaml:"backend"`

	// Storage is the S3-compatible bucket holding the image files.
	Storage StorageConfig `yaml:"storage"`

	// Database is the path of the local SQLite mirror. Defaults to
	// ~/.local/share/mosquesync/mirror.db when empty.
	Database string `yaml:"database,omitempty"`

	// PollInterval controls how often the backend is polled for changes.
	// Minimum 2s, maximum 10m. Defaults to 10s if unset.
	PollInterval time.Duration `yaml:"poll_interval"`

	// MaxImages caps the carousel size, 1 to 5. Defaults to 5.
	MaxImages int `yaml:"max_images,omitempty"`

	// HTTP configures the local control API. Omit the block to disable it.
	HTTP *HTTPConfig `yaml:"http,omitempty"`

	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level,omitempty"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// BackendConfig holds the RPC endpoint credentials.
type BackendConfig struct {
	// URL is the project base URL (e.g. "https://abc.supabase.co").
	URL string `yaml:"url"`

	// AnonKey is the public API key sent with every request.
	AnonKey string `yaml:"anon_key"`

	// AccessToken is the signed-in user's JWT. The account ID is read from
	// its subject claim. Falls back to AnonKey when empty.
	AccessToken string `yaml:"access_token,omitempty"`

	// DisplayToken identifies this display to the RPC functions.
	DisplayToken string `yaml:"token"`

	// RequestsPerSecond paces RPC calls. Defaults to 5.
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
}

// StorageConfig holds the object storage settings.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`

	// PublicBaseURL is the prefix of the URLs the display loads images from.
	// Defaults to {scheme}://{endpoint}/{bucket}.
	PublicBaseURL string `yaml:"public_base_url,omitempty"`

	// Folder is the object prefix for image files. Defaults to "mosque-images".
	Folder string `yaml:"folder,omitempty"`
}

// HTTPConfig holds the control API settings.
type HTTPConfig struct {
	// Listen is the host:port to bind. Defaults to 127.0.0.1:8087.
	Listen string `yaml:"listen"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "mosquesync".
	ServiceName string `yaml:"service_name"`

	// Headers contains key-value pairs sent as gRPC metadata on every OTLP
	// request. Equivalent to the OTEL_EXPORTER_OTLP_HEADERS environment
	// variable. Use this for authentication tokens, e.g.:
	//   Authorization: "Bearer <token>"
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DefaultPath returns the default config file path: ~/.config/mosquesync/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "mosquesync", "config.yaml"), nil
}

// Load reads and validates the configuration file at the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config file %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Write validates the config and writes it to path with 0600 permissions,
// creating the parent directory. The file holds credentials.
func (c *Config) Write(path string) error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file %q: %w", path, err)
	}
	return nil
}

// SlogLevel maps LogLevel to a [slog.Level].
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// validate checks that all required fields are present and well-formed,
// filling defaults for optional ones.
func (c *Config) validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	u, err := url.ParseRequestURI(c.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("backend.url %q must be a valid http or https URL", c.Backend.URL)
	}
	if c.Backend.AnonKey == "" {
		return fmt.Errorf("backend.anon_key is required")
	}
	if c.Backend.DisplayToken == "" {
		return fmt.Errorf("backend.token is required")
	}
	if c.Backend.RequestsPerSecond < 0 {
		return fmt.Errorf("backend.requests_per_second must not be negative")
	}

	if c.Storage.Endpoint == "" {
		return fmt.Errorf("storage.endpoint is required")
	}
	if strings.Contains(c.Storage.Endpoint, "://") {
		return fmt.Errorf("storage.endpoint %q must be host[:port] without a scheme", c.Storage.Endpoint)
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required")
	}
	if c.Storage.PublicBaseURL != "" {
		if _, err := url.ParseRequestURI(c.Storage.PublicBaseURL); err != nil {
			return fmt.Errorf("storage.public_base_url %q is not a valid URL", c.Storage.PublicBaseURL)
		}
	}
	if c.Storage.Folder == "" {
		c.Storage.Folder = defaultFolder
	}

	if c.PollInterval == 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.PollInterval < minPollInterval {
		return fmt.Errorf("poll_interval %v is too short (minimum %v)", c.PollInterval, minPollInterval)
	}
	if c.PollInterval > maxPollInterval {
		return fmt.Errorf("poll_interval %v is too long (maximum %v)", c.PollInterval, maxPollInterval)
	}

	if c.MaxImages == 0 {
		c.MaxImages = defaultMaxImages
	}
	if c.MaxImages < 1 || c.MaxImages > defaultMaxImages {
		return fmt.Errorf("max_images %d must be between 1 and %d", c.MaxImages, defaultMaxImages)
	}

	if c.HTTP != nil && c.HTTP.Listen == "" {
		c.HTTP.Listen = defaultListen
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log_level %q must be one of debug, info, warn, error", c.LogLevel)
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
	}

	return nil
}
