// Package config loads the service configuration from YAML, an optional
// .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/amanullahtanweer/audiosocket-diarizer/internal/logging"
)

type Config struct {
	Server  ServerConfig   `yaml:"server"`
	HTTP    HTTPConfig     `yaml:"http"`
	Engine  EngineConfig   `yaml:"engine"`
	Session SessionConfig  `yaml:"session"`
	Export  ExportConfig   `yaml:"export"`
	Logging logging.Config `yaml:"logging"`
}

// ServerConfig is the AudioSocket listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"min=1,max=65535"`
}

// HTTPConfig is the control API and live feed.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port" validate:"min=1,max=65535"`
}

type EngineConfig struct {
	Provider       string        `yaml:"provider" validate:"oneof=assemblyai vosk"`
	VoskServerURL  string        `yaml:"vosk_server_url" validate:"required_if=Provider vosk"`
	AssemblyURL    string        `yaml:"assemblyai_url" validate:"omitempty,url"`
	AssemblyAPIKey string        `yaml:"assemblyai_api_key" validate:"required_if=Provider assemblyai"`
	SampleRate     int           `yaml:"sample_rate" validate:"oneof=8000 16000"`
	Diarization    bool          `yaml:"diarization"`
	StopTimeout    time.Duration `yaml:"stop_timeout" validate:"gt=0"`
}

type SessionConfig struct {
	// Roles overrides the built-in role vocabulary offered to clients.
	Roles        []string      `yaml:"roles" validate:"dive,required"`
	TickInterval time.Duration `yaml:"tick_interval" validate:"gte=0"`
}

type ExportConfig struct {
	OutputDir       string        `yaml:"output_dir"`
	SaveTranscripts bool          `yaml:"save_transcripts"`
	SaveJSON        bool          `yaml:"save_json"`
	Journal         bool          `yaml:"journal"`
	RedisAddr       string        `yaml:"redis_addr" validate:"omitempty,hostname_port"`
	RedisPrefix     string        `yaml:"redis_prefix"`
	RedisTTL        time.Duration `yaml:"redis_ttl" validate:"gte=0"`
}

// Default returns the configuration used for absent keys.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 9092},
		HTTP:   HTTPConfig{Enabled: true, Host: "0.0.0.0", Port: 8080},
		Engine: EngineConfig{
			Provider:    "assemblyai",
			AssemblyURL: "wss://streaming.assemblyai.com/v3/ws",
			SampleRate:  8000,
			Diarization: true,
			StopTimeout: 5 * time.Second,
		},
		Session: SessionConfig{TickInterval: time.Second},
		Export: ExportConfig{
			OutputDir:       "./transcripts",
			SaveTranscripts: true,
			RedisPrefix:     "diarizer:session:",
			RedisTTL:        24 * time.Hour,
		},
	}
	cfg.Logging.ApplyDefaults()
	return cfg
}

// Load reads path over the defaults. envFile, when it exists, is loaded
// into the environment first without overriding variables already set;
// ASSEMBLYAI_API_KEY, VOSK_SERVER_URL, REDIS_ADDR and LOG_LEVEL then
// override file values.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.Logging.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ASSEMBLYAI_API_KEY"); v != "" {
		c.Engine.AssemblyAPIKey = v
	}
	if v := os.Getenv("VOSK_SERVER_URL"); v != "" {
		c.Engine.VoskServerURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Export.RedisAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tags and reports every failing field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
