// Package daemon holds the runtime configuration for the glimmer server
// process. Configuration lives in a TOML file; every field has a working
// default so a missing file starts a usable instance.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/glimmer-live/glimmer/internal/app/pipeline"
	"github.com/glimmer-live/glimmer/internal/app/queue"
	"github.com/glimmer-live/glimmer/internal/domain"
)

// Config is the top-level daemon configuration.
type Config struct {
	API     APIConfig     `toml:"api"`
	Storage StorageConfig `toml:"storage"`
	Curve   CurveConfig   `toml:"curve"`
	Rewards RewardsConfig `toml:"rewards"`
	Queue   QueueConfig   `toml:"queue"`
	Draw    DrawConfig    `toml:"draw"`
}

// APIConfig configures the HTTP listener.
type APIConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Metrics bool   `toml:"metrics"`
}

// StorageConfig configures the SQLite database.
type StorageConfig struct {
	Path string `toml:"path"`
}

// CurveConfig configures the leveling curve.
type CurveConfig struct {
	Base     int     `toml:"base"`
	Exponent float64 `toml:"exponent"`
	MaxLevel int     `toml:"max_level"`
}

// RateConfig is the reward attached to one event type. Cooldown is a
// duration string ("60s", "5m"); empty means no cooldown.
type RateConfig struct {
	Currency int64  `toml:"currency"`
	XP       int64  `toml:"xp"`
	Cooldown string `toml:"cooldown"`
}

// RewardsConfig configures per-event rates and the level reward rules
// file.
type RewardsConfig struct {
	RulesFile    string     `toml:"rules_file"`
	MinChatLen   int        `toml:"min_chat_len"`
	Chat         RateConfig `toml:"chat"`
	Presence     RateConfig `toml:"presence"`
	Follow       RateConfig `toml:"follow"`
	Subscription RateConfig `toml:"subscription"`
	Tip          RateConfig `toml:"tip"`
}

// QueueConfig configures the effect queue processor. Durations are
// strings so the TOML stays readable.
type QueueConfig struct {
	MaxPending      int    `toml:"max_pending"`
	PollInterval    string `toml:"poll_interval"`
	SpeechPreDelay  string `toml:"speech_pre_delay"`
	WatchdogTimeout string `toml:"watchdog_timeout"`
	WatchdogEvery   string `toml:"watchdog_every"`
}

// DrawOptionConfig is one prize table entry. Currency and XP, when
// positive, become grant effects on the winning subject.
type DrawOptionConfig struct {
	Name     string `toml:"name"`
	Weight   int    `toml:"weight"`
	Currency int64  `toml:"currency"`
	XP       int64  `toml:"xp"`
}

// DrawConfig is the prize table used by draw redeems.
type DrawConfig struct {
	Options []DrawOptionConfig `toml:"options"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	rates := pipeline.DefaultRates()
	return Config{
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    8791,
			Metrics: true,
		},
		Storage: StorageConfig{
			Path: "glimmer.db",
		},
		Curve: CurveConfig{
			Base:     100,
			Exponent: 1.8,
			MaxLevel: 9999,
		},
		Rewards: RewardsConfig{
			MinChatLen:   rates.MinChatLen,
			Chat:         rateConfig(rates.Chat),
			Presence:     rateConfig(rates.Presence),
			Follow:       rateConfig(rates.Follow),
			Subscription: rateConfig(rates.Subscription),
			Tip:          rateConfig(rates.Tip),
		},
		Queue: QueueConfig{
			MaxPending:      200,
			PollInterval:    "250ms",
			SpeechPreDelay:  "1.5s",
			WatchdogTimeout: "2m",
			WatchdogEvery:   "30s",
		},
		Draw: DrawConfig{
			Options: []DrawOptionConfig{
				{Name: "small win", Weight: 60, Currency: 50},
				{Name: "big win", Weight: 10, Currency: 250},
				{Name: "xp surge", Weight: 25, XP: 100},
				{Name: "jackpot", Weight: 5, Currency: 1000},
			},
		},
	}
}

// Load reads the config file at path, layering it over the defaults. A
// missing file returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if c.Curve.Base < 1 {
		return fmt.Errorf("curve.base must be positive")
	}
	if c.Curve.Exponent <= 0 {
		return fmt.Errorf("curve.exponent must be positive")
	}
	for _, field := range []string{
		c.Rewards.Chat.Cooldown, c.Rewards.Presence.Cooldown,
		c.Rewards.Follow.Cooldown, c.Rewards.Subscription.Cooldown,
		c.Rewards.Tip.Cooldown,
		c.Queue.PollInterval, c.Queue.SpeechPreDelay,
		c.Queue.WatchdogTimeout, c.Queue.WatchdogEvery,
	} {
		if field == "" {
			continue
		}
		if _, err := time.ParseDuration(field); err != nil {
			return fmt.Errorf("invalid duration %q: %w", field, err)
		}
	}
	return nil
}

// ListenAddr returns the host:port to bind.
func (c Config) ListenAddr() string {
	return c.API.Host + ":" + strconv.Itoa(c.API.Port)
}

// StoragePath returns the database path with its parent directory
// created.
func (c Config) StoragePath() (string, error) {
	dir := filepath.Dir(c.Storage.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	return c.Storage.Path, nil
}

// LevelCurve converts the curve section to the domain type.
func (c Config) LevelCurve() domain.Curve {
	return domain.Curve{
		Base:     c.Curve.Base,
		Exponent: c.Curve.Exponent,
		MaxLevel: c.Curve.MaxLevel,
	}
}

// Rates converts the rewards section to pipeline rates.
func (c Config) Rates() pipeline.Rates {
	return pipeline.Rates{
		Chat:         rate(c.Rewards.Chat),
		Presence:     rate(c.Rewards.Presence),
		Follow:       rate(c.Rewards.Follow),
		Subscription: rate(c.Rewards.Subscription),
		Tip:          rate(c.Rewards.Tip),
		MinChatLen:   c.Rewards.MinChatLen,
	}
}

// ProcessorConfig converts the queue section to the processor config.
func (c Config) ProcessorConfig() queue.Config {
	cfg := queue.DefaultConfig()
	cfg.PollInterval = duration(c.Queue.PollInterval, cfg.PollInterval)
	cfg.SpeechPreDelay = duration(c.Queue.SpeechPreDelay, cfg.SpeechPreDelay)
	cfg.WatchdogTimeout = duration(c.Queue.WatchdogTimeout, cfg.WatchdogTimeout)
	cfg.WatchdogEvery = duration(c.Queue.WatchdogEvery, cfg.WatchdogEvery)
	return cfg
}

// DrawOptions converts the prize table to domain draw options.
func (c Config) DrawOptions() []domain.DrawOption {
	out := make([]domain.DrawOption, 0, len(c.Draw.Options))
	for _, o := range c.Draw.Options {
		opt := domain.DrawOption{Name: o.Name, Weight: o.Weight}
		if o.Currency > 0 {
			opt.Effects = append(opt.Effects, domain.DrawEffect{
				Name:   "grant_currency",
				Params: map[string]string{"amount": strconv.FormatInt(o.Currency, 10)},
			})
		}
		if o.XP > 0 {
			opt.Effects = append(opt.Effects, domain.DrawEffect{
				Name:   "grant_xp",
				Params: map[string]string{"amount": strconv.FormatInt(o.XP, 10)},
			})
		}
		out = append(out, opt)
	}
	return out
}

func rateConfig(r pipeline.Rate) RateConfig {
	cfg := RateConfig{Currency: r.Currency, XP: r.XP}
	if r.Cooldown > 0 {
		cfg.Cooldown = r.Cooldown.String()
	}
	return cfg
}

func rate(r RateConfig) pipeline.Rate {
	return pipeline.Rate{
		Currency: r.Currency,
		XP:       r.XP,
		Cooldown: duration(r.Cooldown, 0),
	}
}

func duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
