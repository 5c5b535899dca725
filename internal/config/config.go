package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/five82/reel/internal/prefs"
)

// Duration is a time.Duration read from TOML strings such as "2s".
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText renders the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// Config is reel's runtime configuration.
type Config struct {
	APIBaseURL        string   `toml:"api_base_url" validate:"required,url"`
	WSURL             string   `toml:"ws_url" validate:"omitempty,url"`
	RequestTimeout    Duration `toml:"request_timeout" validate:"gt=0"`
	RequestsPerSecond float64  `toml:"requests_per_second" validate:"gte=0"`

	ConnectTimeout       Duration `toml:"connect_timeout" validate:"gt=0"`
	MaxReconnectAttempts int      `toml:"max_reconnect_attempts" validate:"gte=0,lte=100"`
	ReconnectBaseDelay   Duration `toml:"reconnect_base_delay" validate:"gt=0"`
	ReconnectMaxDelay    Duration `toml:"reconnect_max_delay" validate:"gtefield=ReconnectBaseDelay"`
	PollInterval         Duration `toml:"poll_interval" validate:"gt=0"`
	PingInterval         Duration `toml:"ping_interval" validate:"gt=0"`

	MonitorInterval    Duration `toml:"monitor_interval" validate:"gt=0"`
	MonitorMaxDuration Duration `toml:"monitor_max_duration" validate:"gtefield=MonitorInterval"`

	UploadMaxSize   int64 `toml:"upload_max_size" validate:"gt=0"`
	UploadChunkSize int64 `toml:"upload_chunk_size" validate:"gt=0,ltefield=UploadMaxSize"`

	LogLevel string          `toml:"log_level" validate:"oneof=debug info warn error"`
	LogFile  string          `toml:"log_file"`
	PrefsDir string          `toml:"prefs_dir" validate:"required"`
	Language string          `toml:"language"`
	Features map[string]bool `toml:"features"`
}

const (
	defaultConfigPath = "~/.config/reel/config.toml"
	defaultAPIBaseURL = "http://127.0.0.1:8000"
	defaultLogLevel   = "info"
)

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		APIBaseURL:           defaultAPIBaseURL,
		RequestTimeout:       Duration(10 * time.Second),
		RequestsPerSecond:    10,
		ConnectTimeout:       Duration(5 * time.Second),
		MaxReconnectAttempts: 5,
		ReconnectBaseDelay:   Duration(time.Second),
		ReconnectMaxDelay:    Duration(30 * time.Second),
		PollInterval:         Duration(2 * time.Second),
		PingInterval:         Duration(30 * time.Second),
		MonitorInterval:      Duration(2 * time.Second),
		MonitorMaxDuration:   Duration(30 * time.Minute),
		UploadMaxSize:        2 << 30,
		UploadChunkSize:      5 << 20,
		LogLevel:             defaultLogLevel,
		PrefsDir:             prefs.DefaultDir(),
		Features:             map[string]bool{"live_updates": true},
	}
}

// DefaultPath returns the expanded default config location.
func DefaultPath() string {
	return mustExpand(defaultConfigPath)
}

// Load reads the config at path (or the default location) over Default.
// A missing file is not an error.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return finish(cfg)
	case err != nil:
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(bytes, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return finish(cfg)
}

func finish(cfg Config) (Config, error) {
	cfg.normalize()
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	def := Default()

	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = def.APIBaseURL
	}
	c.WSURL = strings.TrimSpace(c.WSURL)
	if c.WSURL == "" {
		c.WSURL = deriveWSURL(c.APIBaseURL)
	}

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}

	c.PrefsDir = strings.TrimSpace(c.PrefsDir)
	if c.PrefsDir == "" {
		c.PrefsDir = def.PrefsDir
	}
	c.PrefsDir = mustExpand(c.PrefsDir)
	if c.LogFile = strings.TrimSpace(c.LogFile); c.LogFile != "" {
		c.LogFile = mustExpand(c.LogFile)
	}
	c.Language = strings.TrimSpace(c.Language)
	if c.Features == nil {
		c.Features = map[string]bool{}
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and URL schemes.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s fails %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := checkScheme(cfg.APIBaseURL, "http", "https"); err != nil {
		return fmt.Errorf("invalid config: api_base_url: %w", err)
	}
	if err := checkScheme(cfg.WSURL, "ws", "wss"); err != nil {
		return fmt.Errorf("invalid config: ws_url: %w", err)
	}
	return nil
}

func checkScheme(raw string, allowed ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range allowed {
		if strings.EqualFold(u.Scheme, s) {
			return nil
		}
	}
	return fmt.Errorf("scheme %q not one of %s", u.Scheme, strings.Join(allowed, ", "))
}

// deriveWSURL maps http(s)://host/base to ws(s)://host/base/ws.
func deriveWSURL(apiBase string) string {
	u, err := url.Parse(apiBase)
	if err != nil {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
