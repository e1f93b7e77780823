package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Config captures environment driven configuration values for the app.
type Config struct {
	SQLiteDSN   string
	PostgresDSN string
	UserID      string
	PetID       string
	Location    *time.Location
	LogLevel    slog.Level
}

// Load parses configuration values from the current process environment.
//
// The loader applies sensible defaults for optional fields while validating
// required values and reporting every missing or malformed entry at once.
func Load() (Config, error) {
	cfg := Config{
		SQLiteDSN: "file:hydracat.db?_pragma=foreign_keys(1)",
		Location:  time.Local,
		LogLevel:  slog.LevelInfo,
	}

	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 2)

	if dsn := strings.TrimSpace(os.Getenv("HYDRACAT_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	// The remote store is optional; without it the app runs fully local.
	cfg.PostgresDSN = strings.TrimSpace(os.Getenv("HYDRACAT_POSTGRES_DSN"))

	if userID := strings.TrimSpace(os.Getenv("HYDRACAT_USER_ID")); userID == "" {
		missing = append(missing, "HYDRACAT_USER_ID")
	} else {
		cfg.UserID = userID
	}

	if petID := strings.TrimSpace(os.Getenv("HYDRACAT_PET_ID")); petID == "" {
		missing = append(missing, "HYDRACAT_PET_ID")
	} else {
		cfg.PetID = petID
	}

	if tz := strings.TrimSpace(os.Getenv("HYDRACAT_TIMEZONE")); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			invalid = append(invalid, "HYDRACAT_TIMEZONE")
		} else {
			cfg.Location = loc
		}
	}

	if level := strings.TrimSpace(os.Getenv("HYDRACAT_LOG_LEVEL")); level != "" {
		var parsed slog.Level
		if err := parsed.UnmarshalText([]byte(level)); err != nil {
			invalid = append(invalid, "HYDRACAT_LOG_LEVEL")
		} else {
			cfg.LogLevel = parsed
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
