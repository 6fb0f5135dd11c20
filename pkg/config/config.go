package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Email providers understood by the notification layer.
const (
	EmailProviderLog      = "log"
	EmailProviderSendgrid = "sendgrid"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Attendance    AttendanceConfig
	Points        PointsConfig
	Leaderboard   LeaderboardConfig
	Notifications NotificationConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string

	// File enables a rotating log file next to stdout when set.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// AttendanceConfig holds defaults for meeting export processing.
type AttendanceConfig struct {
	WindowStart    string
	WindowEnd      string
	Timezone       string
	MaxUploadBytes int64

	// UploadDir is where applied meeting exports are archived.
	UploadDir string

	// ExcludedTerms drops participants whose normalized name contains any term; empty keeps the built-in list.
	ExcludedTerms []string
}

// Location resolves the configured timezone, falling back to UTC.
func (c AttendanceConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PointsConfig tunes the points ledger.
type PointsConfig struct {
	Baseline int
}

// LeaderboardConfig governs leaderboard caching.
type LeaderboardConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// NotificationConfig selects and tunes the email backend.
type NotificationConfig struct {
	Enabled        bool
	Provider       string
	SendgridAPIKey string
	FromAddress    string
	FromName       string
	SubjectPrefix  string
	Workers        int
	MaxRetries     int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:      v.GetString("LOG_LEVEL"),
		Format:     v.GetString("LOG_FORMAT"),
		File:       v.GetString("LOG_FILE"),
		MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
		MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
		MaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
	}

	maxUpload := v.GetInt64("ATTENDANCE_MAX_UPLOAD_BYTES")
	if maxUpload <= 0 {
		maxUpload = 5 * 1024 * 1024
	}
	cfg.Attendance = AttendanceConfig{
		WindowStart:    v.GetString("ATTENDANCE_WINDOW_START"),
		WindowEnd:      v.GetString("ATTENDANCE_WINDOW_END"),
		Timezone:       v.GetString("ATTENDANCE_TIMEZONE"),
		MaxUploadBytes: maxUpload,
		UploadDir:      v.GetString("ATTENDANCE_UPLOAD_DIR"),
		ExcludedTerms:  splitAndTrim(strings.ToLower(v.GetString("ATTENDANCE_EXCLUDED_TERMS"))),
	}

	baseline := v.GetInt("POINTS_BASELINE")
	if baseline <= 0 {
		baseline = 100
	}
	cfg.Points = PointsConfig{Baseline: baseline}

	cfg.Leaderboard = LeaderboardConfig{
		CacheEnabled: v.GetBool("ENABLE_LEADERBOARD_CACHE"),
		CacheTTL:     parseDuration(v.GetString("LEADERBOARD_CACHE_TTL"), 2*time.Minute),
	}

	provider := strings.ToLower(v.GetString("EMAIL_PROVIDER"))
	if provider != EmailProviderSendgrid {
		provider = EmailProviderLog
	}
	cfg.Notifications = NotificationConfig{
		Enabled:        v.GetBool("ENABLE_NOTIFICATIONS"),
		Provider:       provider,
		SendgridAPIKey: v.GetString("SENDGRID_API_KEY"),
		FromAddress:    v.GetString("EMAIL_FROM"),
		FromName:       v.GetString("EMAIL_FROM_NAME"),
		SubjectPrefix:  v.GetString("EMAIL_SUBJECT_PREFIX"),
		Workers:        v.GetInt("NOTIFY_WORKERS"),
		MaxRetries:     v.GetInt("NOTIFY_RETRIES"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "batch_admin")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "batch-admin-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("LOG_MAX_SIZE_MB", 50)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE_DAYS", 14)

	v.SetDefault("ATTENDANCE_WINDOW_START", "10:00")
	v.SetDefault("ATTENDANCE_WINDOW_END", "10:10")
	v.SetDefault("ATTENDANCE_TIMEZONE", "Local")
	v.SetDefault("ATTENDANCE_MAX_UPLOAD_BYTES", 5*1024*1024)
	v.SetDefault("ATTENDANCE_EXCLUDED_TERMS", "")
	v.SetDefault("ATTENDANCE_UPLOAD_DIR", "./uploads")

	v.SetDefault("POINTS_BASELINE", 100)

	v.SetDefault("ENABLE_LEADERBOARD_CACHE", true)
	v.SetDefault("LEADERBOARD_CACHE_TTL", "2m")

	v.SetDefault("ENABLE_NOTIFICATIONS", false)
	v.SetDefault("EMAIL_PROVIDER", EmailProviderLog)
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("EMAIL_FROM", "no-reply@example.com")
	v.SetDefault("EMAIL_FROM_NAME", "Batch Admin")
	v.SetDefault("EMAIL_SUBJECT_PREFIX", "[Batch Admin] ")
	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_RETRIES", 3)
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
