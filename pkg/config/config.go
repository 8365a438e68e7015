package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	Cache       CacheConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Sync        SyncConfig
	ChangeFeed  ChangeFeedConfig
	AdminImport AdminImportConfig
	Admissions  AdmissionsConfig
}

type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	ConnectTimeout time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig governs caching of aggregate endpoints.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// JWTConfig holds the signing settings for admin tokens.
type JWTConfig struct {
	Secret string
	Expiry time.Duration
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SyncConfig tunes the admissions CSV pipeline.
type SyncConfig struct {
	FilePath        string
	Dataset         string
	ChunkSize       int
	Debounce        time.Duration
	PollInterval    time.Duration
	LockRetryDelay  time.Duration
	LockMaxAttempts int
	InsertTimeout   time.Duration
	Transactional   bool
}

// ChangeFeedConfig toggles the LISTEN/NOTIFY listener for direct store mutations.
type ChangeFeedConfig struct {
	Enabled bool
	Channel string
}

// AdminImportConfig configures the admin users CSV import. An empty FilePath disables it.
type AdminImportConfig struct {
	FilePath    string
	Dataset     string
	DefaultRole string
}

// AdmissionsConfig governs the read-side aggregates.
type AdmissionsConfig struct {
	FastFillingWindow time.Duration
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
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
		Host:           v.GetString("DB_HOST"),
		Port:           v.GetInt("DB_PORT"),
		User:           v.GetString("DB_USER"),
		Password:       v.GetString("DB_PASSWORD"),
		Name:           v.GetString("DB_NAME"),
		SSLMode:        v.GetString("DB_SSL_MODE"),
		MaxOpenConns:   v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:   v.GetInt("DB_MAX_IDLE_CONNS"),
		ConnectTimeout: parseDuration(v.GetString("DB_CONNECT_TIMEOUT"), 2*time.Minute),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_CACHE"),
		TTL:     parseDuration(v.GetString("CACHE_TTL"), 5*time.Minute),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Expiry: parseDuration(v.GetString("JWT_EXPIRY"), time.Hour),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	chunkSize := v.GetInt("SYNC_CHUNK_SIZE")
	if chunkSize <= 0 {
		chunkSize = 50
	}
	lockAttempts := v.GetInt("SYNC_LOCK_MAX_ATTEMPTS")
	if lockAttempts <= 0 {
		lockAttempts = 6
	}
	cfg.Sync = SyncConfig{
		FilePath:        v.GetString("CSV_FILE_PATH"),
		Dataset:         v.GetString("CSV_DATASET"),
		ChunkSize:       chunkSize,
		Debounce:        parseDuration(v.GetString("SYNC_DEBOUNCE"), time.Second),
		PollInterval:    parseDuration(v.GetString("SYNC_POLL_INTERVAL"), time.Second),
		LockRetryDelay:  parseDuration(v.GetString("SYNC_LOCK_RETRY_DELAY"), time.Second),
		LockMaxAttempts: lockAttempts,
		InsertTimeout:   parseDuration(v.GetString("SYNC_INSERT_TIMEOUT"), 30*time.Second),
		Transactional:   v.GetBool("SYNC_TRANSACTIONAL"),
	}

	cfg.ChangeFeed = ChangeFeedConfig{
		Enabled: v.GetBool("ENABLE_CHANGE_FEED"),
		Channel: v.GetString("CHANGE_FEED_CHANNEL"),
	}

	cfg.AdminImport = AdminImportConfig{
		FilePath:    v.GetString("ADMIN_CSV_FILE_PATH"),
		Dataset:     v.GetString("ADMIN_DATASET"),
		DefaultRole: v.GetString("ADMIN_DEFAULT_ROLE"),
	}

	cfg.Admissions = AdmissionsConfig{
		FastFillingWindow: parseDuration(v.GetString("FAST_FILLING_WINDOW"), 7*24*time.Hour),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "admissions")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONNECT_TIMEOUT", "2m")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("CACHE_TTL", "5m")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRY", "1h")
	v.SetDefault("JWT_ISSUER", "admission-sync")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CSV_FILE_PATH", "./data/admissions.csv")
	v.SetDefault("CSV_DATASET", "students")
	v.SetDefault("SYNC_CHUNK_SIZE", 50)
	v.SetDefault("SYNC_DEBOUNCE", "1s")
	v.SetDefault("SYNC_POLL_INTERVAL", "1s")
	v.SetDefault("SYNC_LOCK_RETRY_DELAY", "1s")
	v.SetDefault("SYNC_LOCK_MAX_ATTEMPTS", 6)
	v.SetDefault("SYNC_INSERT_TIMEOUT", "30s")
	v.SetDefault("SYNC_TRANSACTIONAL", false)

	v.SetDefault("ENABLE_CHANGE_FEED", true)
	v.SetDefault("CHANGE_FEED_CHANNEL", "admission_changes")

	v.SetDefault("ADMIN_CSV_FILE_PATH", "")
	v.SetDefault("ADMIN_DATASET", "Admin Users")
	v.SetDefault("ADMIN_DEFAULT_ROLE", "admin")

	v.SetDefault("FAST_FILLING_WINDOW", "168h")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
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
