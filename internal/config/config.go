package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultAppName        = "MultiWallet"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultJWTTTL         = time.Hour
	defaultOTPTTL         = 5 * time.Minute
	defaultRateCacheTTL   = 10 * time.Minute
	defaultRateAPIURL     = "https://api.exchangerate-api.com/v4/latest"
	defaultSweepSchedule  = "@every 1m"
	defaultConfirmLimit   = 5
	defaultLoginLimit     = 10
	devJWTSecret          = "development-only-secret"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName                  string
	AppEnv                   string
	Port                     string
	LogLevel                 string
	DatabaseURL              string
	RedisURL                 string
	RabbitMQURL              string
	JWTSecret                string
	JWTTTL                   time.Duration
	ShutdownPeriod           time.Duration
	IdempotencyTTL           time.Duration
	OTPTTL                   time.Duration
	RateAPIURL               string
	RateCacheTTL             time.Duration
	SweepSchedule            string
	ConfirmAttemptsPerMinute int
	LoginAttemptsPerMinute   int
}

// Load reads configuration values from the environment and populates a Config instance.
// Postgres and Redis are optional in development, where in-memory backends stand in.
func Load() (Config, error) {
	v := viper.New()
	v.SetDefault("APP_NAME", defaultAppName)
	v.SetDefault("APP_ENV", defaultAppEnv)
	v.SetDefault("PORT", defaultPort)
	v.SetDefault("LOG_LEVEL", defaultLogLevel)
	v.SetDefault("SHUTDOWN_TIMEOUT", defaultShutdownDelay.String())
	v.SetDefault("IDEMPOTENCY_TTL", defaultIdempotencyTTL.String())
	v.SetDefault("JWT_TTL", defaultJWTTTL.String())
	v.SetDefault("OTP_TTL", defaultOTPTTL.String())
	v.SetDefault("RATE_API_URL", defaultRateAPIURL)
	v.SetDefault("RATE_CACHE_TTL", defaultRateCacheTTL.String())
	v.SetDefault("SWEEP_SCHEDULE", defaultSweepSchedule)
	v.SetDefault("CONFIRM_ATTEMPTS_PER_MINUTE", defaultConfirmLimit)
	v.SetDefault("LOGIN_ATTEMPTS_PER_MINUTE", defaultLoginLimit)
	v.AutomaticEnv()

	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "RABBITMQ_URL", "JWT_SECRET", "SHUTDOWN_TIMEOUT_SECONDS", "IDEMPOTENCY_TTL_SECONDS"} {
		_ = v.BindEnv(key)
	}

	cfg := Config{
		AppName:                  v.GetString("APP_NAME"),
		AppEnv:                   strings.ToLower(v.GetString("APP_ENV")),
		Port:                     v.GetString("PORT"),
		LogLevel:                 strings.ToLower(v.GetString("LOG_LEVEL")),
		DatabaseURL:              v.GetString("DATABASE_URL"),
		RedisURL:                 v.GetString("REDIS_URL"),
		RabbitMQURL:              v.GetString("RABBITMQ_URL"),
		JWTSecret:                v.GetString("JWT_SECRET"),
		RateAPIURL:               v.GetString("RATE_API_URL"),
		SweepSchedule:            v.GetString("SWEEP_SCHEDULE"),
		ConfirmAttemptsPerMinute: v.GetInt("CONFIRM_ATTEMPTS_PER_MINUTE"),
		LoginAttemptsPerMinute:   v.GetInt("LOGIN_ATTEMPTS_PER_MINUTE"),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationOrSeconds(v, "SHUTDOWN_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationOrSeconds(v, "IDEMPOTENCY_TTL"); err != nil {
		return Config{}, err
	}
	if cfg.JWTTTL, err = duration(v, "JWT_TTL"); err != nil {
		return Config{}, err
	}
	if cfg.OTPTTL, err = duration(v, "OTP_TTL"); err != nil {
		return Config{}, err
	}
	if cfg.RateCacheTTL, err = duration(v, "RATE_CACHE_TTL"); err != nil {
		return Config{}, err
	}
	if cfg.ConfirmAttemptsPerMinute <= 0 {
		return Config{}, fmt.Errorf("CONFIRM_ATTEMPTS_PER_MINUTE must be positive")
	}
	if cfg.LoginAttemptsPerMinute <= 0 {
		return Config{}, fmt.Errorf("LOGIN_ATTEMPTS_PER_MINUTE must be positive")
	}

	if cfg.IsDevelopment() {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = devJWTSecret
		}
		return cfg, nil
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must be set")
	}
	return cfg, nil
}

// IsDevelopment reports whether the app runs in a local or test environment.
func (c Config) IsDevelopment() bool {
	switch c.AppEnv {
	case "development", "dev", "local", "test":
		return true
	}
	return false
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

// durationOrSeconds prefers KEY_SECONDS as an integer over KEY as a Go duration.
func durationOrSeconds(v *viper.Viper, key string) (time.Duration, error) {
	secondsKey := key + "_SECONDS"
	if raw := v.GetString(secondsKey); raw != "" {
		seconds := v.GetInt(secondsKey)
		if seconds <= 0 {
			return 0, fmt.Errorf("invalid %s: %q", secondsKey, raw)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	return duration(v, key)
}
