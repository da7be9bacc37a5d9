package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted when credentials are not set in the file.
const (
	EnvReplicateToken = "REPLICATE_API_TOKEN"
	EnvElevenLabsKey  = "ELEVENLABS_API_KEY"
	EnvOpenAIKey      = "OPENAI_API_KEY"
)

// Cache backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all SA configuration.
type Config struct {
	Listen    string          `yaml:"listen" toml:"listen"`
	OutputDir string          `yaml:"output_dir" toml:"output_dir"`
	DBPath    string          `yaml:"db_path" toml:"db_path"`
	Log       LogConfig       `yaml:"log" toml:"log"`
	Cache     CacheConfig     `yaml:"cache" toml:"cache"`
	Providers ProvidersConfig `yaml:"providers" toml:"providers"`
	Media     MediaConfig     `yaml:"media" toml:"media"`
	History   HistoryConfig   `yaml:"history" toml:"history"`
}

// LogConfig controls the process logger.
// Format is "text" (default) or "json".
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// CacheConfig selects and configures the fingerprint cache store.
type CacheConfig struct {
	Backend  string `yaml:"backend" toml:"backend"`
	Dir      string `yaml:"dir" toml:"dir"`
	RedisURL string `yaml:"redis_url" toml:"redis_url"`
}

// ProvidersConfig configures the external AI services.
type ProvidersConfig struct {
	Replicate       ReplicateConfig  `yaml:"replicate" toml:"replicate"`
	ElevenLabs      ElevenLabsConfig `yaml:"elevenlabs" toml:"elevenlabs"`
	GTTS            GTTSConfig       `yaml:"gtts" toml:"gtts"`
	OpenAI          OpenAIConfig     `yaml:"openai" toml:"openai"`
	Timeout         Duration         `yaml:"timeout" toml:"timeout"`
	DownloadTimeout Duration         `yaml:"download_timeout" toml:"download_timeout"`
	RPS             float64          `yaml:"rps" toml:"rps"`
}

// ReplicateConfig configures the hosted image and video models.
type ReplicateConfig struct {
	APIKey     string `yaml:"api_key" toml:"api_key"`
	BaseURL    string `yaml:"base_url" toml:"base_url"`
	ImageModel string `yaml:"image_model" toml:"image_model"`
	VideoModel string `yaml:"video_model" toml:"video_model"`
}

// ElevenLabsConfig configures the primary text-to-speech provider.
type ElevenLabsConfig struct {
	APIKey  string `yaml:"api_key" toml:"api_key"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

// GTTSConfig configures the credential-free fallback speech engine.
type GTTSConfig struct {
	BaseURL  string `yaml:"base_url" toml:"base_url"`
	Language string `yaml:"language" toml:"language"`
}

// OpenAIConfig configures the chat model behind prompt and script
// suggestions. Any OpenAI-compatible endpoint works.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key" toml:"api_key"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
	Model   string `yaml:"model" toml:"model"`
}

// MediaConfig locates the media tool binaries and bounds each run.
type MediaConfig struct {
	FFmpeg  string   `yaml:"ffmpeg" toml:"ffmpeg"`
	FFprobe string   `yaml:"ffprobe" toml:"ffprobe"`
	Timeout Duration `yaml:"timeout" toml:"timeout"`
}

// HistoryConfig controls the generation history log.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
}

// Duration is a time.Duration that decodes from Go duration strings in both
// YAML and TOML.
type Duration time.Duration

// UnmarshalText parses strings like "30s" or "2m".
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText renders the duration as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen:    ":8000",
		OutputDir: "outputs",
		DBPath:    "data/sa.db",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Cache: CacheConfig{
			Backend: BackendJSON,
			Dir:     "outputs/cache",
		},
		Providers: ProvidersConfig{
			Replicate: ReplicateConfig{
				BaseURL:    "https://api.replicate.com",
				ImageModel: "black-forest-labs/flux-schnell",
				VideoModel: "anotherjesse/zeroscope-v2-xl",
			},
			ElevenLabs: ElevenLabsConfig{
				BaseURL: "https://api.elevenlabs.io",
			},
			GTTS: GTTSConfig{
				BaseURL:  "https://translate.google.com",
				Language: "ar",
			},
			OpenAI: OpenAIConfig{
				BaseURL: "https://api.openai.com",
				Model:   "gpt-3.5-turbo",
			},
			Timeout:         Duration(60 * time.Second),
			DownloadTimeout: Duration(30 * time.Second),
			RPS:             2,
		},
		Media: MediaConfig{
			FFmpeg:  "ffmpeg",
			FFprobe: "ffprobe",
			Timeout: Duration(5 * time.Minute),
		},
		History: HistoryConfig{
			Enabled: true,
		},
	}
}

// Load reads a YAML or TOML config file (by extension) and expands
// environment variables. Credentials left empty fall back to the
// conventional environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadOrDefault loads path when it exists and returns defaults otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		cfg.applyEnv()
		return cfg, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		cfg.applyEnv()
		return cfg, nil
	}
	return Load(path)
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if c.Providers.Replicate.APIKey == "" {
		c.Providers.Replicate.APIKey = os.Getenv(EnvReplicateToken)
	}
	if c.Providers.ElevenLabs.APIKey == "" {
		c.Providers.ElevenLabs.APIKey = os.Getenv(EnvElevenLabsKey)
	}
	if c.Providers.OpenAI.APIKey == "" {
		c.Providers.OpenAI.APIKey = os.Getenv(EnvOpenAIKey)
	}
}

// Validate checks settings that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case BackendJSON, BackendSQLite:
	case BackendRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("%w: cache.redis_url is required for the redis backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown cache backend %q", ErrInvalidConfig, c.Cache.Backend)
	}
	if c.Providers.Timeout <= 0 {
		return fmt.Errorf("%w: providers.timeout must be positive", ErrInvalidConfig)
	}
	if c.Providers.DownloadTimeout <= 0 {
		return fmt.Errorf("%w: providers.download_timeout must be positive", ErrInvalidConfig)
	}
	if c.Media.Timeout <= 0 {
		return fmt.Errorf("%w: media.timeout must be positive", ErrInvalidConfig)
	}
	if c.Providers.RPS < 0 {
		return fmt.Errorf("%w: providers.rps must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Status reports which provider credentials are configured and whether the
// output directory exists.
func (c *Config) Status() map[string]bool {
	_, err := os.Stat(c.OutputDir)
	return map[string]bool{
		"replicate":  c.Providers.Replicate.APIKey != "",
		"elevenlabs": c.Providers.ElevenLabs.APIKey != "",
		"gtts":       true,
		"openai":     c.Providers.OpenAI.APIKey != "",
		"paths":      err == nil,
	}
}

// CacheDir returns the cache directory for one generator kind.
func (c *Config) CacheDir(kind string) string {
	return filepath.Join(c.Cache.Dir, kind)
}
