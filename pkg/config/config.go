package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configFileName = "config.yaml"
	dirMode        = 0700
	fileMode       = 0600

	EnvPort        = "ROADRISK_PORT"
	EnvArtifactDir = "ROADRISK_ARTIFACT_DIR"
	EnvCORSOrigin  = "ROADRISK_CORS_ORIGIN"
	EnvReload      = "ROADRISK_RELOAD_SCHEDULE"
	EnvWeatherKey  = "WEATHER_API_KEY"
	EnvNATSURL     = "NATS_URL"
	EnvS3Bucket    = "ROADRISK_S3_BUCKET"
)

// Artifacts locates the model files. Relative paths are resolved against Dir.
type Artifacts struct {
	Dir        string `yaml:"dir"`
	RiskModel  string `yaml:"risk_model"`
	Classifier string `yaml:"classifier"`
	Encoders   string `yaml:"encoders"`
	RiskTable  string `yaml:"risk_table"`
	Highways   string `yaml:"highways"`
}

// Path resolves an artifact file name against Dir. Empty stays empty.
func (a Artifacts) Path(name string) string {
	if name == "" || filepath.IsAbs(name) || a.Dir == "" {
		return name
	}
	return filepath.Join(a.Dir, name)
}

type Server struct {
	Port           int     `yaml:"port"`
	CORSOrigin     string  `yaml:"cors_origin"`
	RateLimit      float64 `yaml:"rate_limit"`
	RateBurst      int     `yaml:"rate_burst"`
	ReloadSchedule string  `yaml:"reload_schedule"`
	MaxBatch       int     `yaml:"max_batch"`
	Concurrency    int     `yaml:"concurrency"`
}

type Weather struct {
	Enabled           bool          `yaml:"enabled"`
	APIKey            string        `yaml:"api_key,omitempty"`
	BaseURL           string        `yaml:"base_url"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
	CacheSize         int           `yaml:"cache_size"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

type NATS struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type S3 struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

// Config represents app config object.
type Config struct {
	Artifacts Artifacts `yaml:"artifacts"`
	Server    Server    `yaml:"server"`
	Weather   Weather   `yaml:"weather"`
	NATS      NATS      `yaml:"nats"`
	S3        S3        `yaml:"s3"`
}

// Default returns the config written on first run.
func Default() *Config {
	return &Config{
		Artifacts: Artifacts{
			Dir:        "models",
			RiskModel:  "risk_model.json",
			Classifier: "classifier.json",
			Encoders:   "encoders.json",
			RiskTable:  "risk_scores.json",
			Highways:   "highways_by_uf.json",
		},
		Server: Server{
			Port:           8080,
			CORSOrigin:     "*",
			RateLimit:      10,
			RateBurst:      20,
			ReloadSchedule: "@every 5m",
			MaxBatch:       500,
		},
		Weather: Weather{
			BaseURL:           "https://api.openweathermap.org/data/2.5",
			CacheTTL:          30 * time.Minute,
			CacheSize:         100,
			RequestsPerMinute: 60,
		},
		NATS: NATS{
			Subject: "roadrisk.alerts",
		},
		S3: S3{
			Prefix: "roadrisk/",
		},
	}
}

func Save(dirPath string, c *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(dirPath, configFileName)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", configFileName, err)
	}
	return nil
}

// Load reads a config file. Missing keys keep their default values.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("error unmarshalling config file %s: %w", path, err)
	}
	return c, nil
}

// ReadOrCreate reads app config from directory or creates a new one.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dirPath, dirMode); err != nil {
			return nil, fmt.Errorf("failed to create dir %s: %w", dirPath, err)
		}
	}

	path := filepath.Join(dirPath, configFileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := Save(dirPath, Default()); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	return Load(path)
}

// ApplyEnv overrides config values from the environment through lookup,
// usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPort); ok && v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 {
			return fmt.Errorf("invalid %s: %q", EnvPort, v)
		}
		c.Server.Port = p
	}
	if v, ok := lookup(EnvArtifactDir); ok && v != "" {
		c.Artifacts.Dir = v
	}
	if v, ok := lookup(EnvCORSOrigin); ok && v != "" {
		c.Server.CORSOrigin = v
	}
	if v, ok := lookup(EnvReload); ok {
		c.Server.ReloadSchedule = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvWeatherKey); ok && v != "" {
		c.Weather.APIKey = v
		c.Weather.Enabled = true
	}
	if v, ok := lookup(EnvNATSURL); ok {
		c.NATS.URL = v
	}
	if v, ok := lookup(EnvS3Bucket); ok {
		c.S3.Bucket = v
	}
	return nil
}

// GetOrCreateHomeDir returns the home directory for the current user.
// The create flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("failed to get user home dir: %w", err)
	}

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, fmt.Errorf("failed to create dir %s: %w", dir, err)
		}
		created = true
	}
	return dir, created, nil
}
