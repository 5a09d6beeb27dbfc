package config

import (
	"errors"
	"os"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken    string         `yaml:"discord_token" env:"DISCORD_TOKEN"`
	Prefix          string         `yaml:"prefix" env:"PREFIX"`
	OwnerIDs        []string       `yaml:"owner_ids" env:"OWNER_IDS" envSeparator:","`
	LogLevel        string         `yaml:"log_level" env:"LOG_LEVEL"`
	DefaultLanguage string         `yaml:"default_language" env:"DEFAULT_LANGUAGE"`
	RetentionDays   int            `yaml:"retention_days" env:"RETENTION_DAYS"`
	Database        DatabaseConfig `yaml:"database"`
	Health          HealthConfig   `yaml:"health"`
	Redis           RedisConfig    `yaml:"redis"`
	NATS            NATSConfig     `yaml:"nats"`
	Status          StatusConfig   `yaml:"status"`
	Giveaway        GiveawayConfig `yaml:"giveaway"`
	EmbedColors     EmbedColors    `yaml:"embed_colors"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver" env:"DATABASE_DRIVER"`
	Path   string `yaml:"path" env:"DATABASE_PATH"`
	URL    string `yaml:"url" env:"DATABASE_URL"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled" env:"HEALTH_ENABLED"`
	Addr    string `yaml:"addr" env:"HEALTH_ADDR"`
}

type RedisConfig struct {
	Addr            string `yaml:"addr" env:"REDIS_ADDR"`
	Password        string `yaml:"password" env:"REDIS_PASSWORD"`
	DB              int    `yaml:"db" env:"REDIS_DB"`
	ClaimTTLSeconds int    `yaml:"claim_ttl_seconds" env:"REDIS_CLAIM_TTL_SECONDS"`
}

type NATSConfig struct {
	URL           string `yaml:"url" env:"NATS_URL"`
	SubjectPrefix string `yaml:"subject_prefix" env:"NATS_SUBJECT_PREFIX"`
}

type StatusConfig struct {
	Enabled         bool `yaml:"enabled" env:"STATUS_ENABLED"`
	IntervalSeconds int  `yaml:"interval_seconds" env:"STATUS_INTERVAL_SECONDS"`
}

type GiveawayConfig struct {
	Emoji              string `yaml:"emoji" env:"GIVEAWAY_EMOJI"`
	MaxWinners         int    `yaml:"max_winners" env:"GIVEAWAY_MAX_WINNERS"`
	MaxDurationDays    int    `yaml:"max_duration_days" env:"GIVEAWAY_MAX_DURATION_DAYS"`
	AnnouncePerSecond  int    `yaml:"announce_per_second" env:"GIVEAWAY_ANNOUNCE_PER_SECOND"`
	EntryBurstLimit    int    `yaml:"entry_burst_limit" env:"GIVEAWAY_ENTRY_BURST_LIMIT"`
	EntryBurstSeconds  int    `yaml:"entry_burst_seconds" env:"GIVEAWAY_ENTRY_BURST_SECONDS"`
	ResolveTimeoutSecs int    `yaml:"resolve_timeout_seconds" env:"GIVEAWAY_RESOLVE_TIMEOUT_SECONDS"`
}

type EmbedColors struct {
	Giveaway int `yaml:"giveaway" env:"EMBED_COLOR_GIVEAWAY"`
	Ended    int `yaml:"ended" env:"EMBED_COLOR_ENDED"`
	Error    int `yaml:"error" env:"EMBED_COLOR_ERROR"`
}

func DefaultConfig() Config {
	return Config{
		Prefix:          "?!",
		LogLevel:        "info",
		DefaultLanguage: "en",
		RetentionDays:   90,
		Database:        DatabaseConfig{Driver: "sqlite", Path: "/data/giveaways.db"},
		Health:          HealthConfig{Enabled: false, Addr: ":8080"},
		Redis:           RedisConfig{ClaimTTLSeconds: 120},
		NATS:            NATSConfig{SubjectPrefix: "giveaway"},
		Status:          StatusConfig{Enabled: true, IntervalSeconds: 30},
		Giveaway: GiveawayConfig{
			Emoji:              "🎉",
			MaxWinners:         50,
			MaxDurationDays:    365,
			AnnouncePerSecond:  4,
			EntryBurstLimit:    5,
			EntryBurstSeconds:  10,
			ResolveTimeoutSecs: 30,
		},
		EmbedColors: EmbedColors{
			Giveaway: 0xF59E0B,
			Ended:    0x6B7280,
			Error:    0xEF4444,
		},
	}
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	_ = godotenv.Load()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}

	cfg.Database.Driver = normalizeDriver(cfg.Database.Driver)
	cfg.DefaultLanguage = strings.ToLower(cfg.DefaultLanguage)
	if cfg.Database.Driver == "postgres" && cfg.Database.URL == "" {
		return Config{}, errors.New("DATABASE_URL is required for the postgres driver")
	}

	return cfg, nil
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(strings.ToLower(level)))

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func normalizeDriver(value string) string {
	switch strings.ToLower(value) {
	case "postgres", "postgresql", "pgx":
		return "postgres"
	default:
		return "sqlite"
	}
}
