package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Speech      SpeechConfig              `json:"speech"`
	Chat        ChatConfig                `json:"chat"`
	Log         LogConfig                 `json:"log"`
}

type BasicConfig struct {
	ServerAddress     string   `json:"server_address"`
	GinMode           string   `json:"gin_mode"`
	StaticDir         string   `json:"static_dir"`
	PublicBaseURL     string   `json:"public_base_url"`
	ChatTimeout       int      `json:"chat_timeout"` // seconds
	MinWorkers        int      `json:"min_workers"`
	MaxWorkers        int      `json:"max_workers"`
	QueueSize         int      `json:"queue_size"`
	WorkerIdleTimeout int      `json:"worker_idle_timeout"` // seconds
	AllowedOrigins    []string `json:"allowed_origins"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

// RedisConfig is optional; an empty Host disables the history cache.
type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	TTL      int    `json:"ttl"` // seconds
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type SpeechConfig struct {
	Model        string   `json:"model"`
	DefaultVoice string   `json:"default_voice"`
	// Temperature is nil when unset so that an explicit 0 is kept.
	Temperature  *float32 `json:"temperature"`
}

type ChatConfig struct {
	// Backend selects the text generator: "gemini" (native chat session) or "eino".
	Backend            string `json:"backend"`
	Provider           string `json:"provider"`
	Model              string `json:"model"`
	WebTools           bool   `json:"web_tools"`
	GenerationFallback string `json:"generation_fallback"`
	SynthesisFallback  string `json:"synthesis_fallback"`
}

type LogConfig struct {
	Level     string `json:"level"`
	Format    string `json:"format"`
	Output    string `json:"output"`
	FilePath  string `json:"file_path"`
	AddSource bool   `json:"add_source"`
}

const (
	DefaultSpeechModel  = "gemini-2.5-pro-preview-tts"
	DefaultVoice        = "Zephyr"
	DefaultChatModel    = "gemini-2.5-flash-lite"
	DefaultStaticDir    = "static"
	DefaultChatTimeout  = 120
	DefaultServerAddr   = ":8000"
	DefaultTemperature  = 1
	googleAPIKeyEnv     = "GOOGLE_AI_API_KEY"
	defaultProviderName = "gemini"
)

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseDir := filepath.Dir(absPath)
	if !filepath.IsAbs(cfg.BasicConfig.StaticDir) {
		cfg.BasicConfig.StaticDir = filepath.Join(baseDir, cfg.BasicConfig.StaticDir)
	}
	if db, ok := cfg.Databases["sqlite3"]; ok && db.DSN != "" && db.DSN != ":memory:" && !strings.HasPrefix(db.DSN, "file:") && !filepath.IsAbs(db.DSN) {
		db.DSN = filepath.Join(baseDir, db.DSN)
		cfg.Databases["sqlite3"] = db
	}
	if cfg.Log.Output == "file" && cfg.Log.FilePath != "" && !filepath.IsAbs(cfg.Log.FilePath) {
		cfg.Log.FilePath = filepath.Join(baseDir, cfg.Log.FilePath)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = DefaultServerAddr
	}
	if c.BasicConfig.StaticDir == "" {
		c.BasicConfig.StaticDir = DefaultStaticDir
	}
	if c.BasicConfig.ChatTimeout <= 0 {
		c.BasicConfig.ChatTimeout = DefaultChatTimeout
	}
	if c.BasicConfig.AllowedOrigins == nil {
		c.BasicConfig.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:3001"}
	}
	if c.Speech.Model == "" {
		c.Speech.Model = DefaultSpeechModel
	}
	if c.Speech.DefaultVoice == "" {
		c.Speech.DefaultVoice = DefaultVoice
	}
	if c.Speech.Temperature == nil {
		t := float32(DefaultTemperature)
		c.Speech.Temperature = &t
	}
	if c.Chat.Backend == "" {
		c.Chat.Backend = "gemini"
	}
	if c.Chat.Provider == "" {
		c.Chat.Provider = defaultProviderName
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	if c.Databases == nil {
		c.Databases = make(map[string]DatabaseConfig)
	}
}

// applyEnv lets secrets live outside the config file.
func (c *Config) applyEnv() {
	key := strings.TrimSpace(os.Getenv(googleAPIKeyEnv))
	if key == "" {
		return
	}
	gemini := c.Providers[defaultProviderName]
	if gemini.APIKey == "" {
		gemini.APIKey = key
		c.Providers[defaultProviderName] = gemini
	}
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if len(c.Databases) == 0 {
		return fmt.Errorf("at least one database must be configured")
	}
	switch c.Chat.Backend {
	case "gemini", "eino":
	default:
		return fmt.Errorf("invalid chat backend: %s", c.Chat.Backend)
	}
	if _, ok := c.Providers[c.Chat.Provider]; !ok && c.Chat.Backend == "eino" {
		return fmt.Errorf("provider %s not configured", c.Chat.Provider)
	}
	if c.BasicConfig.MaxWorkers > 0 && c.BasicConfig.MaxWorkers < c.BasicConfig.MinWorkers {
		return fmt.Errorf("max_workers (%d) must not be less than min_workers (%d)", c.BasicConfig.MaxWorkers, c.BasicConfig.MinWorkers)
	}
	return nil
}

// AudioDir is where synthesized artifacts are written and served from.
// SpeechTemperature returns the configured sampling temperature for TTS.
func (c *Config) SpeechTemperature() float32 {
	if c.Speech.Temperature == nil {
		return DefaultTemperature
	}
	return *c.Speech.Temperature
}

func (c *Config) AudioDir() string {
	return filepath.Join(c.BasicConfig.StaticDir, "audio")
}

// GeminiAPIKey returns the key used for the genai client.
func (c *Config) GeminiAPIKey() string {
	return c.Providers[defaultProviderName].APIKey
}
