package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

const DefaultAPIURL = "http://localhost:8000"

type Config struct {
	APIURL                 string   `mapstructure:"API_URL"`
	Port                   string   `mapstructure:"PORT"`
	Env                    string   `mapstructure:"ENV"`
	LogLevel               string   `mapstructure:"LOG_LEVEL"`
	CORSOrigins            []string `mapstructure:"CORS_ORIGINS"`
	DefaultDurationMinutes int      `mapstructure:"DEFAULT_DURATION_MINUTES"`
	DashboardDays          int      `mapstructure:"DASHBOARD_DAYS"`
	UpcomingLimit          int      `mapstructure:"UPCOMING_LIMIT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("API_URL", DefaultAPIURL)
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("DEFAULT_DURATION_MINUTES", 60)
	v.SetDefault("DASHBOARD_DAYS", 7)
	v.SetDefault("UPCOMING_LIMIT", 20)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("API_URL")
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("DEFAULT_DURATION_MINUTES")
	v.BindEnv("DASHBOARD_DAYS")
	v.BindEnv("UPCOMING_LIMIT")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	cfg.APIURL = NormalizeBaseURL(cfg.APIURL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate rejects values the views cannot work with.
func (c *Config) Validate() error {
	if c.DefaultDurationMinutes <= 0 {
		return fmt.Errorf("DEFAULT_DURATION_MINUTES must be > 0, got %d", c.DefaultDurationMinutes)
	}
	if c.DashboardDays <= 0 {
		return fmt.Errorf("DASHBOARD_DAYS must be > 0, got %d", c.DashboardDays)
	}
	if c.UpcomingLimit <= 0 {
		return fmt.Errorf("UPCOMING_LIMIT must be > 0, got %d", c.UpcomingLimit)
	}
	return nil
}

var schemeRe = regexp.MustCompile(`(?i)^https?://`)

// NormalizeBaseURL is the only place the clinic API base URL is cleaned up.
// A blank value falls back to DefaultAPIURL. A value without scheme gets
// http:// when it points at localhost and https:// otherwise. Trailing
// slashes are removed.
func NormalizeBaseURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		u = DefaultAPIURL
	}
	if !schemeRe.MatchString(u) {
		if strings.Contains(u, "localhost") {
			u = "http://" + u
		} else {
			u = "https://" + u
		}
	}
	return strings.TrimRight(u, "/")
}
