// internal/config/config.go
//
// Process configuration, read from the environment once at startup.
// main loads a .env file (godotenv) before calling Load, so local
// development needs no exported variables.
//
// Environment variables:
//
//	PORT                 listen port (5175)
//	LOG_LEVEL            zerolog level (info)
//	DB_PATH              sqlite file (./data/gridrecon.db)
//	JWT_SECRET           participant token key (dev_secret_change_me)
//	JWT_EXPIRES_DAYS     participant token lifetime (14)
//	COOKIE_NAME          participant token cookie (gridrecon_token)
//	CLIENT_ORIGIN        CORS origin (http://localhost:5173)
//	APP_ENV              "production" enables Secure/SameSite=None cookies
//	ADMIN_USER           researcher export user (admin)
//	ADMIN_PASSWORD_HASH  bcrypt hash; export is disabled when empty
//	CONDITIONS_FILE      catalog YAML override (embedded default)
//	BASE_ROOM_FILE       base room text override (embedded default)
//	TRIAL_TTL            abandoned trial eviction (30m)
//	MAX_OBSTACLES        default obstacle budget (5)
//	CELL_SIZE            default cell size in px (25)
//	MAX_SCALE_FACTOR     largest roomScaleFactor a trial may request (8)
//	IMAGE_PATH           obstacle overlay images (catalog value)
//	STIM_PATH            stimulus and base images (catalog value)

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration.
type Config struct {
	Port         string
	LogLevel     string
	DBPath       string
	JWTSecret    string
	JWTExpires   time.Duration
	CookieName   string
	ClientOrigin string
	Production   bool

	AdminUser         string
	AdminPasswordHash string

	ConditionsFile string
	BaseRoomFile   string
	ImagePath      string
	StimPath       string

	TrialTTL       time.Duration
	MaxObstacles   int
	CellSize       float64
	MaxScaleFactor int
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	c := &Config{
		Port:              getEnv("PORT", "5175"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DBPath:            getEnv("DB_PATH", "./data/gridrecon.db"),
		JWTSecret:         getEnv("JWT_SECRET", "dev_secret_change_me"),
		CookieName:        getEnv("COOKIE_NAME", "gridrecon_token"),
		ClientOrigin:      getEnv("CLIENT_ORIGIN", "http://localhost:5173"),
		Production:        os.Getenv("APP_ENV") == "production",
		AdminUser:         getEnv("ADMIN_USER", "admin"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		ConditionsFile:    os.Getenv("CONDITIONS_FILE"),
		BaseRoomFile:      os.Getenv("BASE_ROOM_FILE"),
		ImagePath:         os.Getenv("IMAGE_PATH"),
		StimPath:          os.Getenv("STIM_PATH"),
	}

	days, err := getInt("JWT_EXPIRES_DAYS", 14)
	if err != nil {
		return nil, err
	}
	c.JWTExpires = time.Duration(days) * 24 * time.Hour

	if c.TrialTTL, err = getDuration("TRIAL_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if c.MaxObstacles, err = getInt("MAX_OBSTACLES", 5); err != nil {
		return nil, err
	}
	cell, err := getInt("CELL_SIZE", 25)
	if err != nil {
		return nil, err
	}
	c.CellSize = float64(cell)
	if c.MaxScaleFactor, err = getInt("MAX_SCALE_FACTOR", 8); err != nil {
		return nil, err
	}

	if c.MaxObstacles <= 0 {
		return nil, fmt.Errorf("MAX_OBSTACLES must be positive, got %d", c.MaxObstacles)
	}
	if c.MaxScaleFactor < 1 {
		return nil, fmt.Errorf("MAX_SCALE_FACTOR must be at least 1, got %d", c.MaxScaleFactor)
	}
	if c.Production && c.JWTSecret == "dev_secret_change_me" {
		return nil, fmt.Errorf("JWT_SECRET must be set when APP_ENV=production")
	}
	return c, nil
}

// Addr is the listen address for Port.
func (c *Config) Addr() string { return ":" + c.Port }

// getEnv returns the value of k or def if unset/empty.
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

func getDuration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}
