package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Session       SessionConfig       `mapstructure:"session"`
	Jobs          JobsConfig          `mapstructure:"jobs"`
	Turn          TurnConfig          `mapstructure:"turn"`
	Learner       LearnerConfig       `mapstructure:"learner"`
	Curriculum    CurriculumConfig    `mapstructure:"curriculum"`
	OpenAI        OpenAIConfig        `mapstructure:"openai"`
	ElevenLabs    ElevenLabsConfig    `mapstructure:"elevenlabs"`
	AudioStore    AudioStoreConfig    `mapstructure:"audio_store"`
	EventStream   EventStreamConfig   `mapstructure:"event_stream"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port" validate:"min=1,max=65535"`
	CORS CORSConfig `mapstructure:"cors"`
	// TurnsPerMinute limits turn submissions per learner at the RPC surface.
	TurnsPerMinute int `mapstructure:"turns_per_minute" validate:"min=1"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Backend         string            `mapstructure:"backend" validate:"oneof=sqlite mysql postgres"`
	SQLitePath      string            `mapstructure:"sqlite_path" validate:"required_if=Backend sqlite"`
	PostgresURL     string            `mapstructure:"postgres_url" validate:"required_if=Backend postgres"`
	Host            string            `mapstructure:"host"`
	Port            int               `mapstructure:"port"`
	Database        string            `mapstructure:"database"`
	Username        string            `mapstructure:"username"`
	Password        string            `mapstructure:"password"`
	TLS             bool              `mapstructure:"tls"`
	Params          map[string]string `mapstructure:"params"`
	MaxOpenConns    int               `mapstructure:"max_open_conns"`
	MaxIdleConns    int               `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int               `mapstructure:"conn_max_lifetime_seconds"`
	MigrateOnStart  bool              `mapstructure:"migrate_on_start"`
}

// SchedulerConfig tunes the spaced-repetition update. Intervals are in days.
type SchedulerConfig struct {
	InitialIntervalDays  float64       `mapstructure:"initial_interval_days" validate:"gt=0"`
	MinIntervalDays      float64       `mapstructure:"min_interval_days" validate:"gt=0"`
	MaxIntervalDays      float64       `mapstructure:"max_interval_days" validate:"gtfield=MinIntervalDays"`
	MasteredIntervalDays float64       `mapstructure:"mastered_interval_days" validate:"gt=0"`
	DefaultEase          float64       `mapstructure:"default_ease" validate:"gtefield=MinEase"`
	MinEase              float64       `mapstructure:"min_ease" validate:"gt=1"`
	MaxEaseDelta         float64       `mapstructure:"max_ease_delta" validate:"gt=0"`
	FastLatency          time.Duration `mapstructure:"fast_latency" validate:"gt=0"`
	SlowLatency          time.Duration `mapstructure:"slow_latency" validate:"gtfield=FastLatency"`
}

type SessionConfig struct {
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval" validate:"gt=0"`
}

type JobsConfig struct {
	Workers        int           `mapstructure:"workers" validate:"min=1"`
	QueueSize      int           `mapstructure:"queue_size" validate:"min=1"`
	LockWait       time.Duration `mapstructure:"lock_wait" validate:"gt=0"`
	DeferBackoff   time.Duration `mapstructure:"defer_backoff" validate:"gt=0"`
	MaxAttempts    int           `mapstructure:"max_attempts" validate:"min=1"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
	DueFloor       int           `mapstructure:"due_floor" validate:"min=0"`
	SummarizeEvery int           `mapstructure:"summarize_every" validate:"min=1"`
	NudgeAfter     time.Duration `mapstructure:"nudge_after"`
}

type TurnConfig struct {
	ContextTurns     int           `mapstructure:"context_turns" validate:"min=0"`
	DueItems         int           `mapstructure:"due_items" validate:"min=0"`
	DailyLimit       int           `mapstructure:"daily_limit" validate:"min=0"`
	MaxAudioDuration time.Duration `mapstructure:"max_audio_duration" validate:"min=0"`
}

// LearnerConfig holds defaults applied when a learner is first seen.
type LearnerConfig struct {
	DefaultDeliveryTime string `mapstructure:"default_delivery_time" validate:"hhmm"`
	DefaultTimezone     string `mapstructure:"default_timezone" validate:"timezone"`
	DefaultStrictness   string `mapstructure:"default_strictness" validate:"oneof=light normal strict"`
}

type CurriculumConfig struct {
	SeedFile string `mapstructure:"seed_file" validate:"omitempty,file"`
}

type OpenAIConfig struct {
	APIKey        string `mapstructure:"api_key"`
	Model         string `mapstructure:"model"`
	BaseURL       string `mapstructure:"base_url" validate:"omitempty,url"`
	RetryAttempts uint   `mapstructure:"retry_attempts"`
}

type ElevenLabsConfig struct {
	APIKey        string  `mapstructure:"api_key"`
	BaseURL       string  `mapstructure:"base_url" validate:"omitempty,url"`
	VoiceID       string  `mapstructure:"voice_id"`
	ModelID       string  `mapstructure:"model_id"`
	STTModelID    string  `mapstructure:"stt_model_id"`
	LanguageCode  string  `mapstructure:"language_code"`
	Speed         float64 `mapstructure:"speed" validate:"gte=0.7,lte=1.2"`
	RetryAttempts uint    `mapstructure:"retry_attempts"`
}

type AudioStoreConfig struct {
	Backend        string `mapstructure:"backend" validate:"oneof=local minio"`
	LocalDirectory string `mapstructure:"local_directory" validate:"required_if=Backend local"`
	MinioEndpoint  string `mapstructure:"minio_endpoint" validate:"required_if=Backend minio"`
	MinioAccessKey string `mapstructure:"minio_access_key"`
	MinioSecretKey string `mapstructure:"minio_secret_key"`
	MinioBucket    string `mapstructure:"minio_bucket" validate:"required_if=Backend minio"`
	MinioUseSSL    bool   `mapstructure:"minio_use_ssl"`
}

type EventStreamConfig struct {
	Backend      string   `mapstructure:"backend" validate:"oneof=none kafka"`
	KafkaBrokers []string `mapstructure:"kafka_brokers" validate:"required_if=Backend kafka"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
}

type ObservabilityConfig struct {
	MetricsNamespace string `mapstructure:"metrics_namespace"`
	ServiceName      string `mapstructure:"service_name"`
	// JaegerEndpoint enables tracing when set.
	JaegerEndpoint string `mapstructure:"jaeger_endpoint" validate:"omitempty,url"`
}

type LoggingConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type ConfigLoader struct {
	viper      *viper.Viper
	validator  *validator.Validate
	translator ut.Translator
}

func NewConfigLoader(configFile string) (*ConfigLoader, error) {
	validate, trans, err := newValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create new validator: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/jiro")
	}

	return &ConfigLoader{
		viper:      v,
		validator:  validate,
		translator: trans,
	}, nil
}

func (loader *ConfigLoader) Load() (*Config, error) {
	v := loader.viper

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.turns_per_minute", 6)

	v.SetDefault("database.backend", "sqlite")
	v.SetDefault("database.sqlite_path", "jiro.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.database", "jiro")
	v.SetDefault("database.username", "jiro")
	v.SetDefault("database.migrate_on_start", true)

	v.SetDefault("scheduler.initial_interval_days", 1.0)
	v.SetDefault("scheduler.min_interval_days", 1.0)
	v.SetDefault("scheduler.max_interval_days", 365.0)
	v.SetDefault("scheduler.mastered_interval_days", 30.0)
	v.SetDefault("scheduler.default_ease", 2.5)
	v.SetDefault("scheduler.min_ease", 1.3)
	v.SetDefault("scheduler.max_ease_delta", 0.3)
	v.SetDefault("scheduler.fast_latency", "5s")
	v.SetDefault("scheduler.slow_latency", "15s")

	v.SetDefault("session.idle_timeout", "10m")
	v.SetDefault("session.janitor_interval", "30s")

	v.SetDefault("jobs.workers", 2)
	v.SetDefault("jobs.queue_size", 256)
	v.SetDefault("jobs.lock_wait", "200ms")
	v.SetDefault("jobs.defer_backoff", "2s")
	v.SetDefault("jobs.max_attempts", 5)
	v.SetDefault("jobs.sweep_interval", "15m")
	v.SetDefault("jobs.due_floor", 5)
	v.SetDefault("jobs.summarize_every", 10)
	v.SetDefault("jobs.nudge_after", "6h")

	v.SetDefault("turn.context_turns", 6)
	v.SetDefault("turn.due_items", 3)
	v.SetDefault("turn.daily_limit", 50)
	v.SetDefault("turn.max_audio_duration", "60s")

	v.SetDefault("learner.default_delivery_time", "08:00")
	v.SetDefault("learner.default_timezone", "UTC")
	v.SetDefault("learner.default_strictness", "normal")

	v.SetDefault("curriculum.seed_file", "")

	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.retry_attempts", 2)

	v.SetDefault("elevenlabs.base_url", "https://api.elevenlabs.io")
	v.SetDefault("elevenlabs.model_id", "eleven_multilingual_v2")
	v.SetDefault("elevenlabs.stt_model_id", "scribe_v1")
	v.SetDefault("elevenlabs.language_code", "ja")
	v.SetDefault("elevenlabs.speed", 0.9)
	v.SetDefault("elevenlabs.retry_attempts", 1)

	v.SetDefault("audio_store.backend", "local")
	v.SetDefault("audio_store.local_directory", filepath.Join("data", "audio"))
	v.SetDefault("audio_store.minio_bucket", "jiro-audio")

	v.SetDefault("event_stream.backend", "none")
	v.SetDefault("event_stream.kafka_topic", "jiro.turns")

	v.SetDefault("observability.metrics_namespace", "jiro")
	v.SetDefault("observability.service_name", "jiro")

	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)

	// Secrets are bound to environment variables only
	secretEnvs := map[string]string{
		"openai.api_key":               "OPENAI_API_KEY",
		"elevenlabs.api_key":           "ELEVENLABS_API_KEY",
		"elevenlabs.voice_id":          "ELEVENLABS_VOICE_ID",
		"database.password":            "DB_PASSWORD",
		"database.postgres_url":        "DATABASE_URL",
		"audio_store.minio_secret_key": "MINIO_SECRET_KEY",
	}
	for key, env := range secretEnvs {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s environment variable: %w", env, err)
		}
	}
	if err := v.BindEnv("openai.model", "OPENAI_MODEL"); err != nil {
		return nil, fmt.Errorf("failed to bind OPENAI_MODEL environment variable: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("configuration file found but could not be read: %w. Please check the file format and permissions", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration format: %w", err)
	}

	if err := loader.validator.Struct(cfg); err != nil {
		validationErrors := err.(validator.ValidationErrors)
		var errorMsgs []string
		for _, e := range validationErrors {
			errorMsgs = append(errorMsgs, e.Translate(loader.translator))
		}
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errorMsgs, ", "))
	}

	return &cfg, nil
}

// Load reads the configuration from configFile, or from the default search
// paths when it is empty.
func Load(configFile string) (*Config, error) {
	loader, err := NewConfigLoader(configFile)
	if err != nil {
		return nil, err
	}
	return loader.Load()
}
