// Package config loads settings from, in increasing priority, flag
// defaults, a YAML file, GROWFLUENT_* environment variables and explicitly
// set flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of environment overrides. A double underscore
// separates nesting levels: GROWFLUENT_ORACLE__API_KEY sets oracle.api_key.
const EnvPrefix = "GROWFLUENT_"

// DefaultFile is read when present and no --config flag is given.
const DefaultFile = "growfluent.yaml"

type Config struct {
	DB      DB      `koanf:"db"`
	Remote  Remote  `koanf:"remote"`
	Oracle  Oracle  `koanf:"oracle"`
	HTTP    HTTP    `koanf:"http"`
	Log     Log     `koanf:"log"`
	Import  Import  `koanf:"import"`
	Session Session `koanf:"session"`
}

type DB struct {
	Path string `koanf:"path" validate:"required"`
}

// Remote is the optional Postgres document store.
type Remote struct {
	Enabled bool   `koanf:"enabled"`
	DSN     string `koanf:"dsn" validate:"required_if=Enabled true"`
}

type Oracle struct {
	APIKey             string        `koanf:"api_key"`
	BaseURL            string        `koanf:"base_url" validate:"omitempty,url"`
	Model              string        `koanf:"model"`
	TTSModel           string        `koanf:"tts_model"`
	TranscriptionModel string        `koanf:"transcription_model"`
	NativeLanguage     string        `koanf:"native_language"`
	RequestsPerSecond  float64       `koanf:"requests_per_second" validate:"gte=0"`
	MaxRetries         int           `koanf:"max_retries" validate:"gte=0,lte=10"`
	RetryDelay         time.Duration `koanf:"retry_delay" validate:"gte=0"`
}

type HTTP struct {
	Addr           string   `koanf:"addr" validate:"required"`
	AllowedOrigins []string `koanf:"allowed_origins"`
}

type Log struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type Import struct {
	ReposDir string `koanf:"repos_dir" validate:"required"`
}

type Session struct {
	// Seed fixes the random source for free practice and exams. Zero seeds
	// from the clock.
	Seed uint64 `koanf:"seed"`
}

// RegisterFlags adds every setting to flags, using the dotted key as flag name,
// plus --config for the YAML file.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "path to a YAML config file (default "+DefaultFile+" when present)")

	flags.String("db.path", "growfluent.db", "path to the SQLite database file")

	flags.Bool("remote.enabled", false, "mirror cards to the remote Postgres store")
	flags.String("remote.dsn", "", "Postgres connection string for the remote store")

	flags.String("oracle.api_key", "", "API key of the OpenAI compatible endpoint")
	flags.String("oracle.base_url", "", "base URL of the OpenAI compatible endpoint")
	flags.String("oracle.model", "gpt-4o-mini", "chat model used for grading and generation")
	flags.String("oracle.tts_model", "tts-1", "speech synthesis model")
	flags.String("oracle.transcription_model", "whisper-1", "speech recognition model")
	flags.String("oracle.native_language", "Spanish (Latin American)", "learner's native language used in explanations")
	flags.Float64("oracle.requests_per_second", 2, "client side request rate limit, 0 disables")
	flags.Int("oracle.max_retries", 2, "retries on rate limiting")
	flags.Duration("oracle.retry_delay", 1500*time.Millisecond, "first retry delay, doubled on each retry")

	flags.String("http.addr", ":8080", "HTTP listen address")
	flags.StringSlice("http.allowed_origins", []string{"http://localhost:5173"}, "CORS allowed origins")

	flags.String("log.level", "info", "log level: debug, info, warn or error")
	flags.String("log.format", "text", "log format: text or json")

	flags.String("import.repos_dir", "repos", "directory for git deck checkouts")

	flags.Uint64("session.seed", 0, "random seed for session selection, 0 uses the clock")
}

// Load builds the configuration from a parsed flag set created with
// RegisterFlags.
func Load(flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	path, _ := flags.GetString("config")
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
