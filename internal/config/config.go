package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// DatabaseURL selects the Postgres prompt catalog when set.
	DatabaseURL string `env:"DATABASE_URL"`
	PromptsFile string `env:"PROMPTS_FILE"`

	TickInterval         time.Duration `env:"TICK_INTERVAL" envDefault:"1s"`
	GracePeriod          time.Duration `env:"GRACE_PERIOD" envDefault:"2s"`
	DrawingSettleDelay   time.Duration `env:"DRAWING_SETTLE_DELAY" envDefault:"750ms"`
	RoomTTL              time.Duration `env:"ROOM_TTL" envDefault:"6h"`
	LeaderLease          time.Duration `env:"LEADER_LEASE" envDefault:"3s"`
	PromptRevealSeconds  int           `env:"PROMPT_REVEAL_SECONDS" envDefault:"3"`
	RoundReplaySeconds   int           `env:"ROUND_REPLAY_SECONDS" envDefault:"8"`
	RoundStandingSeconds int           `env:"ROUND_STANDING_SECONDS" envDefault:"5"`
	GameEndSeconds       int           `env:"GAME_END_SECONDS" envDefault:"10"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// Load reads an optional .env file and then parses the environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// A missing .env is normal outside local development.
		_ = godotenv.Load(f)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	durations := map[string]time.Duration{
		"TICK_INTERVAL": c.TickInterval,
		"GRACE_PERIOD":  c.GracePeriod,
		"ROOM_TTL":      c.RoomTTL,
		"LEADER_LEASE":  c.LeaderLease,
	}
	for name, d := range durations {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.DrawingSettleDelay < 0 {
		errs = append(errs, fmt.Errorf("DRAWING_SETTLE_DELAY must not be negative, got %s", c.DrawingSettleDelay))
	}
	if c.LeaderLease <= c.TickInterval {
		errs = append(errs, fmt.Errorf("LEADER_LEASE (%s) must exceed TICK_INTERVAL (%s)", c.LeaderLease, c.TickInterval))
	}
	seconds := map[string]int{
		"PROMPT_REVEAL_SECONDS":  c.PromptRevealSeconds,
		"ROUND_REPLAY_SECONDS":   c.RoundReplaySeconds,
		"ROUND_STANDING_SECONDS": c.RoundStandingSeconds,
		"GAME_END_SECONDS":       c.GameEndSeconds,
	}
	for name, s := range seconds {
		if s <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, s))
		}
	}
	if strings.TrimSpace(c.Port) == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	return errors.Join(errs...)
}
