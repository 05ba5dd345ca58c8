package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"medication-adherence/internal/domain/schedule"
)

// Config se arma desde env vars (y un .env opcional).
type Config struct {
	Port    string `mapstructure:"PORT"`
	AppName string `mapstructure:"APP_NAME"`
	Env     string `mapstructure:"ENV"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// Vacío => repos in-memory.
	DBDSN string `mapstructure:"DB_DSN"`

	Timezone              string `mapstructure:"TIMEZONE"`
	MatchToleranceMinutes int    `mapstructure:"MATCH_TOLERANCE_MINUTES"`
	OnTimeMinutes         int    `mapstructure:"ON_TIME_MINUTES"`
	LateWindowMinutes     int    `mapstructure:"LATE_WINDOW_MINUTES"`
	DueSoonMinutes        int    `mapstructure:"DUE_SOON_MINUTES"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	SweepEnabled  bool   `mapstructure:"SWEEP_ENABLED"`
	SweepSchedule string `mapstructure:"SWEEP_SCHEDULE"`

	OdinBaseURL string `mapstructure:"ODIN_BASE_URL"`
	OdinAPIKey  string `mapstructure:"ODIN_API_KEY"`

	PointsBaseURL string `mapstructure:"POINTS_BASE_URL"`
	PointsAPIKey  string `mapstructure:"POINTS_API_KEY"`
}

var keys = []string{
	"PORT", "APP_NAME", "ENV",
	"LOG_LEVEL", "LOG_FORMAT",
	"DB_DSN",
	"TIMEZONE", "MATCH_TOLERANCE_MINUTES", "ON_TIME_MINUTES", "LATE_WINDOW_MINUTES", "DUE_SOON_MINUTES",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"SWEEP_ENABLED", "SWEEP_SCHEDULE",
	"ODIN_BASE_URL", "ODIN_API_KEY",
	"POINTS_BASE_URL", "POINTS_API_KEY",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_NAME", "medication-adherence")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	// Valores observados en producción; configurables, no requisitos.
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("MATCH_TOLERANCE_MINUTES", 30)
	v.SetDefault("ON_TIME_MINUTES", schedule.DefaultOnTimeMinutes)
	v.SetDefault("LATE_WINDOW_MINUTES", schedule.DefaultLateWindowMinutes)
	v.SetDefault("DUE_SOON_MINUTES", 15)

	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)

	v.SetDefault("SWEEP_ENABLED", false)
	v.SetDefault("SWEEP_SCHEDULE", "@every 15m")
}

// Load lee defaults, luego .env (si existe) y por último env vars.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env es opcional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults devuelve la config sin leer el entorno (tests, router sin config).
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Port) == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err))
	}
	if c.MatchToleranceMinutes <= 0 {
		errs = append(errs, errors.New("MATCH_TOLERANCE_MINUTES must be > 0"))
	}
	if c.OnTimeMinutes <= 0 {
		errs = append(errs, errors.New("ON_TIME_MINUTES must be > 0"))
	}
	if c.LateWindowMinutes < c.OnTimeMinutes {
		errs = append(errs, fmt.Errorf("LATE_WINDOW_MINUTES (%d) must be >= ON_TIME_MINUTES (%d)", c.LateWindowMinutes, c.OnTimeMinutes))
	}
	if c.DueSoonMinutes < 0 {
		errs = append(errs, errors.New("DUE_SOON_MINUTES must be >= 0"))
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be >= 0"))
	}
	if c.SweepEnabled && strings.TrimSpace(c.SweepSchedule) == "" {
		errs = append(errs, errors.New("SWEEP_SCHEDULE is required when SWEEP_ENABLED is true"))
	}

	return errors.Join(errs...)
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ScheduleOptions traduce la config a las opciones del reconciliador.
func (c *Config) ScheduleOptions() schedule.Options {
	return schedule.Options{
		MatchTolerance: time.Duration(c.MatchToleranceMinutes) * time.Minute,
		DueSoon:        time.Duration(c.DueSoonMinutes) * time.Minute,
		OnTimeMinutes:  c.OnTimeMinutes,
		Location:       c.Location(),
	}
}

func (c *Config) LatePolicy() schedule.LatePolicy {
	return schedule.LatePolicy{
		OnTimeMinutes: c.OnTimeMinutes,
		WindowMinutes: c.LateWindowMinutes,
	}
}
