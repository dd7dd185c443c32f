package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go-mod.ewintr.nl/ytdigest/deliver"
	"go-mod.ewintr.nl/ytdigest/fetch"
	"go-mod.ewintr.nl/ytdigest/process"
	"go-mod.ewintr.nl/ytdigest/run"
	"go-mod.ewintr.nl/ytdigest/storage"
	"golang.org/x/exp/slog"
)

const (
	SourceYoutube  = "youtube"
	SourceMiniflux = "miniflux"

	ModeSchedule = "schedule"
	ModeOnce     = "once"

	minLookback = time.Hour
	maxLookback = 168 * time.Hour
)

type Config struct {
	LogLevel slog.Level

	DatabaseDriver storage.Dialect
	Postgres       storage.PostgresInfo
	SQLitePath     string

	ChannelSource   string
	TrackedChannels []string
	Miniflux        fetch.MinifluxInfo
	YoutubeAPIKey   string

	OpenAI         process.OpenAIInfo
	TranscriptRate float64

	SMTP deliver.SMTPInfo

	WeaviateHost   string
	WeaviateApiKey string

	Run         run.Options
	RunInterval time.Duration
	RunMode     string
	APIPort     int
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	p := &parser{lookup: lookup}
	cfg := Config{
		LogLevel:       p.level("LOG_LEVEL", "info"),
		DatabaseDriver: storage.Dialect(strings.ToLower(p.param("DATABASE_DRIVER", string(storage.DialectPostgres)))),
		Postgres: storage.PostgresInfo{
			Host:     p.param("POSTGRES_HOST", "localhost"),
			Port:     p.param("POSTGRES_PORT", "5432"),
			User:     p.param("POSTGRES_USER", "ytdigest"),
			Password: p.param("POSTGRES_PASSWORD", "ytdigest"),
			Database: p.param("POSTGRES_DB", "ytdigest"),
		},
		SQLitePath:      p.param("SQLITE_PATH", "ytdigest.db"),
		ChannelSource:   strings.ToLower(p.param("CHANNEL_SOURCE", SourceYoutube)),
		TrackedChannels: fetch.ParseChannelList(p.param("TRACKED_CHANNELS", "")),
		Miniflux: fetch.MinifluxInfo{
			Endpoint: p.param("MINIFLUX_ENDPOINT", "http://localhost/v1"),
			ApiKey:   p.param("MINIFLUX_APIKEY", ""),
		},
		YoutubeAPIKey: p.param("YOUTUBE_API_KEY", ""),
		OpenAI: process.OpenAIInfo{
			ApiKey:  p.param("OPENAI_API_KEY", ""),
			BaseURL: p.param("OPENAI_BASE_URL", ""),
			Model:   p.param("OPENAI_MODEL", process.DefaultModel),
		},
		TranscriptRate: p.number("TRANSCRIPT_RATE", 1),
		SMTP: deliver.SMTPInfo{
			Host:     p.param("SMTP_HOST", ""),
			Port:     p.integer("SMTP_PORT", 587),
			Username: p.param("SMTP_USERNAME", ""),
			Password: p.param("SMTP_PASSWORD", ""),
			From:     p.param("DIGEST_FROM", ""),
			To:       p.list("DIGEST_TO", ""),
		},
		WeaviateHost:   p.param("WEAVIATE_HOST", ""),
		WeaviateApiKey: p.param("WEAVIATE_APIKEY", ""),
		Run: run.Options{
			MaxAttempts:     p.integer("MAX_ATTEMPTS", 3),
			Workers:         p.integer("WORKERS", 4),
			Lookback:        time.Duration(p.integer("LOOKBACK_HOURS", 24)) * time.Hour,
			StaleAfter:      p.duration("STALE_AFTER", "2h"),
			ListTimeout:     p.duration("LIST_TIMEOUT", "30s"),
			ProcessTimeout:  p.duration("PROCESS_TIMEOUT", "5m"),
			DeliveryTimeout: p.duration("DELIVERY_TIMEOUT", "1m"),
			IndexTimeout:    p.duration("INDEX_TIMEOUT", "30s"),
		},
		RunInterval: p.duration("RUN_INTERVAL", "24h"),
		RunMode:     strings.ToLower(p.param("RUN_MODE", ModeSchedule)),
		APIPort:     p.integer("API_PORT", 8080),
	}
	if len(p.errs) > 0 {
		return Config{}, errors.Join(p.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	errs := []error{}
	switch c.DatabaseDriver {
	case storage.DialectPostgres, storage.DialectSQLite:
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver))
	}
	switch c.ChannelSource {
	case SourceYoutube:
		if len(c.TrackedChannels) == 0 {
			errs = append(errs, errors.New("TRACKED_CHANNELS is required for the youtube channel source"))
		}
	case SourceMiniflux:
	default:
		errs = append(errs, fmt.Errorf("CHANNEL_SOURCE must be youtube or miniflux, got %q", c.ChannelSource))
	}
	if c.Run.Lookback < minLookback || c.Run.Lookback > maxLookback {
		errs = append(errs, fmt.Errorf("LOOKBACK_HOURS must be between 1 and 168, got %d", int(c.Run.Lookback.Hours())))
	}
	if c.Run.MaxAttempts < 1 {
		errs = append(errs, errors.New("MAX_ATTEMPTS must be at least 1"))
	}
	if c.Run.Workers < 1 {
		errs = append(errs, errors.New("WORKERS must be at least 1"))
	}
	for name, d := range map[string]time.Duration{
		"STALE_AFTER":      c.Run.StaleAfter,
		"LIST_TIMEOUT":     c.Run.ListTimeout,
		"PROCESS_TIMEOUT":  c.Run.ProcessTimeout,
		"DELIVERY_TIMEOUT": c.Run.DeliveryTimeout,
		"RUN_INTERVAL":     c.RunInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Run.StaleAfter > 0 && c.Run.StaleAfter <= c.Run.ProcessTimeout {
		errs = append(errs, errors.New("STALE_AFTER must be longer than PROCESS_TIMEOUT"))
	}
	if c.TranscriptRate <= 0 {
		errs = append(errs, errors.New("TRANSCRIPT_RATE must be positive"))
	}
	switch c.RunMode {
	case ModeSchedule, ModeOnce:
	default:
		errs = append(errs, fmt.Errorf("RUN_MODE must be schedule or once, got %q", c.RunMode))
	}

	return errors.Join(errs...)
}

// MailEnabled reports whether digests go out by email instead of to the log.
func (c Config) MailEnabled() bool {
	return c.SMTP.Host != ""
}

type parser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *parser) param(param, def string) string {
	if val, ok := p.lookup(param); ok {
		return val
	}
	return def
}

// list splits a comma separated value, dropping blank entries.
func (p *parser) list(param, def string) []string {
	vals := []string{}
	for _, val := range strings.Split(p.param(param, def), ",") {
		if val = strings.TrimSpace(val); val != "" {
			vals = append(vals, val)
		}
	}
	return vals
}

func (p *parser) integer(param string, def int) int {
	raw, ok := p.lookup(param)
	if !ok {
		return def
	}
	val, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", param, err))
		return def
	}
	return val
}

func (p *parser) number(param string, def float64) float64 {
	raw, ok := p.lookup(param)
	if !ok {
		return def
	}
	val, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", param, err))
		return def
	}
	return val
}

func (p *parser) duration(param, def string) time.Duration {
	val, err := time.ParseDuration(strings.TrimSpace(p.param(param, def)))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", param, err))
		return 0
	}
	return val
}

func (p *parser) level(param, def string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(p.param(param, def))); err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", param, err))
		return slog.LevelInfo
	}
	return level
}
