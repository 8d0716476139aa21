package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// KnowledgeConfig points at the corpus. An empty path uses the embedded corpus.
type KnowledgeConfig struct {
	Path string `yaml:"path"`
}

// DenseConfig holds configuration for the OpenAI-compatible dense encoder.
type DenseConfig struct {
	BaseURL           string  `yaml:"base_url" validate:"required,url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model" validate:"required"`
	TimeoutSecs       int     `yaml:"timeout_secs" validate:"gte=0"`
	BatchSize         int     `yaml:"batch_size" validate:"gte=0"`
	Concurrency       int     `yaml:"concurrency" validate:"gte=0"`
	MaxRetries        int     `yaml:"max_retries" validate:"gte=0"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
}

// SparseConfig configures the TF-IDF fallback.
type SparseConfig struct {
	MaxFeatures int `yaml:"max_features" validate:"gte=0"`
	NgramMax    int `yaml:"ngram_max" validate:"gte=0,lte=3"`
}

// EmbedderConfig selects the preferred representation and configures both.
type EmbedderConfig struct {
	Prefer string       `yaml:"prefer" validate:"oneof=dense sparse"`
	Dense  DenseConfig  `yaml:"dense"`
	Sparse SparseConfig `yaml:"sparse"`
}

// RetrievalConfig tunes query retrieval.
type RetrievalConfig struct {
	TopK int `yaml:"top_k" validate:"gte=1,lte=20"`
}

// SessionConfig bounds the per-session topic memory.
type SessionConfig struct {
	Capacity          int `yaml:"capacity" validate:"gte=1"`
	IdleTimeoutSecs   int `yaml:"idle_timeout_secs" validate:"gte=1"`
	SweepIntervalSecs int `yaml:"sweep_interval_secs" validate:"gte=1"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr               string   `yaml:"addr" validate:"required"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" validate:"gte=1"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Session   SessionConfig   `yaml:"session"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// APIKey resolves the dense encoder key from the configured environment
// variable. Local endpoints usually need none.
func (c DenseConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// Timeout returns the dense request timeout.
func (c DenseConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// IdleTimeout returns how long an unused session is kept.
func (c SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSecs) * time.Second
}

// SweepInterval returns the idle session sweep period.
func (c SessionConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSecs) * time.Second
}

// RequestTimeout bounds a single HTTP request, retrieval included.
func (c ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

var validate = validator.New()

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, errors.Wrap(err, "read config")
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	applyConfigDefaults(cfg)
	if err := validate.Struct(cfg); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/rubberbot/config.yaml.
// If neither exists, it writes defaults to ~/.config/rubberbot/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create config dir")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "rubberbot", "config.yaml"), nil
}

// Default returns the built-in configuration: a local Ollama dense encoder
// preferred, TF-IDF as fallback.
func Default() *AppConfig {
	return &AppConfig{
		Embedder: EmbedderConfig{
			Prefer: "dense",
			Dense: DenseConfig{
				BaseURL:     "http://localhost:11434/v1",
				APIKeyEnv:   "RUBBERBOT_EMBEDDINGS_API_KEY",
				Model:       "all-minilm",
				TimeoutSecs: 30,
				BatchSize:   32,
				Concurrency: 4,
				MaxRetries:  2,
			},
			Sparse: SparseConfig{MaxFeatures: 5000, NgramMax: 2},
		},
		Retrieval: RetrievalConfig{TopK: 3},
		Session:   SessionConfig{Capacity: 5, IdleTimeoutSecs: 1800, SweepIntervalSecs: 60},
		Server:    ServerConfig{Addr: ":5008", RequestTimeoutSecs: 15, AllowedOrigins: []string{"*"}},
		Log:       LogConfig{Level: "info", Format: "console"},
	}
}

// applyConfigDefaults fills fields an explicit empty value in the file zeroed.
func applyConfigDefaults(cfg *AppConfig) {
	def := Default()
	if cfg.Embedder.Prefer == "" {
		cfg.Embedder.Prefer = def.Embedder.Prefer
	}
	if cfg.Embedder.Dense.BaseURL == "" {
		cfg.Embedder.Dense.BaseURL = def.Embedder.Dense.BaseURL
	}
	if cfg.Embedder.Dense.Model == "" {
		cfg.Embedder.Dense.Model = def.Embedder.Dense.Model
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = def.Retrieval.TopK
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}
}
