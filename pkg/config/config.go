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

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Sheets   SheetsConfig
	Google   GoogleConfig
	Teams    TeamsConfig
	Seed     SeedConfig
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
}

// SheetsConfig carries the Google Sheets mirror credentials. Any empty
// required field disables the sync engine (it reports a skipped summary).
type SheetsConfig struct {
	SpreadsheetID          string
	ServiceAccountEmail    string
	ServiceAccountKey      string
	ServiceAccountJSONPath string
	Timeout                time.Duration
}

// GoogleConfig holds the OAuth client used to verify student ID tokens.
type GoogleConfig struct {
	ClientID string
}

// TeamsConfig tunes team-list caching on the admin surface.
type TeamsConfig struct {
	CacheTTL time.Duration
}

// SeedConfig feeds the seed command's idempotent bootstrap accounts.
type SeedConfig struct {
	AdminEmail      string
	AdminPassword   string
	TeacherEmail    string
	TeacherName     string
	TeacherPassword string
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
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

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
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Sheets = SheetsConfig{
		SpreadsheetID:          v.GetString("GOOGLE_SHEETS_ID"),
		ServiceAccountEmail:    v.GetString("GOOGLE_SERVICE_ACCOUNT_EMAIL"),
		ServiceAccountKey:      v.GetString("GOOGLE_PRIVATE_KEY"),
		ServiceAccountJSONPath: v.GetString("GOOGLE_SERVICE_ACCOUNT_JSON_PATH"),
		Timeout:                parseDuration(v.GetString("SHEETS_TIMEOUT"), 30*time.Second),
	}

	cfg.Google = GoogleConfig{
		ClientID: v.GetString("GOOGLE_CLIENT_ID"),
	}

	cfg.Teams = TeamsConfig{
		CacheTTL: parseDuration(v.GetString("TEAMS_CACHE_TTL"), 2*time.Minute),
	}

	cfg.Seed = SeedConfig{
		AdminEmail:      v.GetString("SEED_ADMIN_EMAIL"),
		AdminPassword:   v.GetString("SEED_ADMIN_PASSWORD"),
		TeacherEmail:    v.GetString("SEED_TEACHER_EMAIL"),
		TeacherName:     v.GetString("SEED_TEACHER_NAME"),
		TeacherPassword: v.GetString("SEED_TEACHER_PASSWORD"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "pbl_teams")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "pbl-teams-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("GOOGLE_SHEETS_ID", "")
	v.SetDefault("GOOGLE_SERVICE_ACCOUNT_EMAIL", "")
	v.SetDefault("GOOGLE_PRIVATE_KEY", "")
	v.SetDefault("GOOGLE_SERVICE_ACCOUNT_JSON_PATH", "")
	v.SetDefault("SHEETS_TIMEOUT", "30s")

	v.SetDefault("GOOGLE_CLIENT_ID", "")

	v.SetDefault("TEAMS_CACHE_TTL", "2m")

	v.SetDefault("SEED_ADMIN_EMAIL", "admin@pbl.local")
	v.SetDefault("SEED_ADMIN_PASSWORD", "")
	v.SetDefault("SEED_TEACHER_EMAIL", "teacher@pbl.local")
	v.SetDefault("SEED_TEACHER_NAME", "Teacher")
	v.SetDefault("SEED_TEACHER_PASSWORD", "")
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
