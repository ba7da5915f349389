package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yourusername/voicenote-transcription/internal/logger"
	"github.com/yourusername/voicenote-transcription/internal/models"
)

const (
	BackendWhisperCpp = "whispercpp"
	BackendOpenAI     = "openai"
)

// Config holds the service configuration
type Config struct {
	// Environment "local" additionally writes logs to files
	Environment string `yaml:"environment"`

	Server struct {
		BindAddress    string `yaml:"bind_address"`
		Debug          bool   `yaml:"debug"`
		DebugWAVDir    string `yaml:"debug_wav_dir"`
		MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Dir    string `yaml:"dir"`
	} `yaml:"log"`

	Engine struct {
		Backend      string `yaml:"backend"`
		ModelSize    string `yaml:"model_size"`
		ModelsDir    string `yaml:"models_dir"`
		AutoDownload bool   `yaml:"auto_download"`
		Language     string `yaml:"language"`
		Threads      int    `yaml:"threads"`

		OpenAI struct {
			APIKey  string `yaml:"api_key"`
			BaseURL string `yaml:"base_url"`
			Model   string `yaml:"model"`
		} `yaml:"openai"`
	} `yaml:"engine"`

	Audio struct {
		FFmpegPath string `yaml:"ffmpeg_path"`
	} `yaml:"audio"`

	Workers struct {
		Count int `yaml:"count"`
	} `yaml:"workers"`
}

// Default returns a default configuration
func Default() *Config {
	cfg := &Config{}
	cfg.Server.BindAddress = "localhost:8080"
	cfg.Server.DebugWAVDir = "/tmp"
	cfg.Server.MaxUploadBytes = 20 << 20
	cfg.Log.Level = "INFO"
	cfg.Log.Format = "text"
	cfg.Log.Dir = "logs"
	cfg.Engine.Backend = BackendWhisperCpp
	cfg.Engine.ModelSize = string(models.DefaultSize)
	cfg.Engine.ModelsDir = "models"
	cfg.Engine.AutoDownload = true
	cfg.Engine.Language = "uk"
	cfg.Engine.OpenAI.Model = "whisper-1"
	cfg.Audio.FFmpegPath = "ffmpeg"
	cfg.Workers.Count = 2
	return cfg
}

// Load reads and parses the configuration file on top of the defaults.
// ${VAR} references inside the file are expanded from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files that exist.
// Variables already present in the environment win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides settings from environment variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	str(&c.Environment, "ENVIRONMENT")
	str(&c.Engine.ModelSize, "WHISPER_MODEL", "MODEL_SIZE")
	str(&c.Log.Level, "LOG_LEVEL")
	str(&c.Log.Format, "LOG_FORMAT")
	str(&c.Engine.Backend, "ENGINE_BACKEND")
	str(&c.Engine.ModelsDir, "MODELS_DIR")
	str(&c.Engine.OpenAI.APIKey, "OPENAI_API_KEY")
	str(&c.Engine.OpenAI.BaseURL, "OPENAI_BASE_URL")
	str(&c.Server.BindAddress, "BIND_ADDRESS")

	if v, ok := lookup("WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WORKERS must be an integer: %w", err)
		}
		c.Workers.Count = n
	}
	return nil
}

// Validate checks every setting the service cannot start without
func (c *Config) Validate() error {
	if _, err := models.ParseSize(c.Engine.ModelSize); err != nil {
		return fmt.Errorf("engine.model_size: %w", err)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	switch c.Engine.Backend {
	case BackendWhisperCpp:
	case BackendOpenAI:
		if c.Engine.OpenAI.APIKey == "" {
			return fmt.Errorf("engine.openai.api_key is required for the openai backend")
		}
	default:
		return fmt.Errorf("engine.backend must be %s or %s, got %q", BackendWhisperCpp, BackendOpenAI, c.Engine.Backend)
	}

	if strings.TrimSpace(c.Engine.Language) == "" {
		return fmt.Errorf("engine.language cannot be empty")
	}
	if c.Workers.Count <= 0 {
		return fmt.Errorf("workers.count must be positive, got %d", c.Workers.Count)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}
	return nil
}

// LogFileDir returns where file logs go, or "" when file logging is off
func (c *Config) LogFileDir() string {
	if strings.EqualFold(c.Environment, "local") {
		return c.Log.Dir
	}
	return ""
}
