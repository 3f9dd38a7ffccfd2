package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML scalars like "15s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// D returns the wrapped time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Auth          AuthConfig          `yaml:"auth"`
	Cookie        CookieConfig        `yaml:"cookie"`
	Rights        RightsConfig        `yaml:"rights"`
	Wikis         WikisConfig         `yaml:"wikis"`
	Observability ObservabilityConfig `yaml:"observability"`
	RateLimit     RateLimitConfig     `yaml:"ratelimit"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         string        `yaml:"port"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	IdleTimeout  Duration `yaml:"idle_timeout"`
}

// DatabaseConfig holds database configuration. An empty Host selects the
// in-memory document store.
type DatabaseConfig struct {
	Host            string   `yaml:"host"`
	Port            string   `yaml:"port"`
	User            string   `yaml:"user"`
	Password        string   `yaml:"password"`
	Database        string   `yaml:"database"`
	SSLMode         string   `yaml:"sslmode"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig holds the shared group cache configuration. An empty Addr
// disables the cache.
type RedisConfig struct {
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	CacheTTL Duration `yaml:"cache_ttl"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	// Mechanism is the default request authenticator: form, basic or
	// trusted_header. Per-wiki overrides come from the wiki descriptor.
	Mechanism string `yaml:"mechanism"`

	// SuperAdminPassword enables the reserved superadmin login when set.
	SuperAdminPassword string `yaml:"superadmin_password"`

	TrustedUserHeader  string `yaml:"trusted_user_header"`
	TrustedGroupHeader string `yaml:"trusted_group_header"`
	TrustedGroupSep    string `yaml:"trusted_group_separator"`
	TrustedCreateUsers bool   `yaml:"trusted_create_users"`
	Argon2Memory       uint32 `yaml:"argon2_memory"`
	Argon2Iterations   uint32 `yaml:"argon2_iterations"`
	Argon2Parallelism  uint8  `yaml:"argon2_parallelism"`
	Argon2SaltLength   uint32 `yaml:"argon2_salt_length"`
	Argon2KeyLength    uint32 `yaml:"argon2_key_length"`
}

// CookieConfig holds the persistent login cookie configuration
type CookieConfig struct {
	Prefix        string   `yaml:"prefix"`
	Path          string   `yaml:"path"`
	Domains       []string `yaml:"domains"`
	Lifetime      Duration `yaml:"lifetime"`
	Protection    string   `yaml:"protection"`
	UseIP         bool     `yaml:"use_ip"`
	EncryptionKey string   `yaml:"encryption_key"`
	ValidationKey string   `yaml:"validation_key"`
}

// RightsConfig holds access evaluation configuration
type RightsConfig struct {
	MaxRecursiveSpaceChecks int  `yaml:"max_recursive_space_checks"`
	AllGroupImplicit        bool `yaml:"all_group_implicit"`
}

// WikisConfig identifies the main wiki and statically configured tenants.
type WikisConfig struct {
	Main        string           `yaml:"main"`
	Descriptors []WikiDescriptor `yaml:"descriptors"`
}

// WikiDescriptor is a statically configured wiki.
type WikiDescriptor struct {
	ID       string `yaml:"id"`
	Owner    string `yaml:"owner"`
	ReadOnly bool   `yaml:"readonly"`
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	OTELEnabled    bool   `yaml:"otel_enabled"`
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
}

// Load loads configuration from environment variables, optionally layered
// over a YAML file named by WIKIFORGE_CONFIG. Environment variables win.
func Load() (*Config, error) {
	cfg := &Config{}

	if path := os.Getenv("WIKIFORGE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.Server = ServerConfig{
		Host:         getEnv("SERVER_HOST", or(cfg.Server.Host, "0.0.0.0")),
		Port:         getEnv("SERVER_PORT", or(cfg.Server.Port, "8080")),
		ReadTimeout:  parseDuration("SERVER_READ_TIMEOUT", orDur(cfg.Server.ReadTimeout, 15*time.Second)),
		WriteTimeout: parseDuration("SERVER_WRITE_TIMEOUT", orDur(cfg.Server.WriteTimeout, 15*time.Second)),
		IdleTimeout:  parseDuration("SERVER_IDLE_TIMEOUT", orDur(cfg.Server.IdleTimeout, 60*time.Second)),
	}
	cfg.Database = DatabaseConfig{
		Host:            getEnv("DB_HOST", cfg.Database.Host),
		Port:            getEnv("DB_PORT", or(cfg.Database.Port, "5432")),
		User:            getEnv("DB_USER", or(cfg.Database.User, "wikiforge")),
		Password:        getEnv("DB_PASSWORD", cfg.Database.Password),
		Database:        getEnv("DB_NAME", or(cfg.Database.Database, "wikiforge")),
		SSLMode:         getEnv("DB_SSLMODE", or(cfg.Database.SSLMode, "disable")),
		MaxOpenConns:    parseInt("DB_MAX_OPEN_CONNS", orInt(cfg.Database.MaxOpenConns, 25)),
		MaxIdleConns:    parseInt("DB_MAX_IDLE_CONNS", orInt(cfg.Database.MaxIdleConns, 5)),
		ConnMaxLifetime: parseDuration("DB_CONN_MAX_LIFETIME", orDur(cfg.Database.ConnMaxLifetime, 5*time.Minute)),
	}
	cfg.Redis = RedisConfig{
		Addr:     getEnv("REDIS_ADDR", cfg.Redis.Addr),
		Password: getEnv("REDIS_PASSWORD", cfg.Redis.Password),
		DB:       parseInt("REDIS_DB", cfg.Redis.DB),
		CacheTTL: parseDuration("REDIS_CACHE_TTL", orDur(cfg.Redis.CacheTTL, 5*time.Minute)),
	}
	cfg.Auth = AuthConfig{
		Mechanism:          getEnv("AUTH_MECHANISM", or(cfg.Auth.Mechanism, "form")),
		SuperAdminPassword: getEnv("AUTH_SUPERADMIN_PASSWORD", cfg.Auth.SuperAdminPassword),
		TrustedUserHeader:  getEnv("AUTH_TRUSTED_USER_HEADER", or(cfg.Auth.TrustedUserHeader, "X-Remote-User")),
		TrustedGroupHeader: getEnv("AUTH_TRUSTED_GROUP_HEADER", cfg.Auth.TrustedGroupHeader),
		TrustedGroupSep:    getEnv("AUTH_TRUSTED_GROUP_SEPARATOR", or(cfg.Auth.TrustedGroupSep, "|")),
		TrustedCreateUsers: parseBool("AUTH_TRUSTED_CREATE_USERS", cfg.Auth.TrustedCreateUsers),
		Argon2Memory:       uint32(parseInt("ARGON2_MEMORY", orInt(int(cfg.Auth.Argon2Memory), 65536))),
		Argon2Iterations:   uint32(parseInt("ARGON2_ITERATIONS", orInt(int(cfg.Auth.Argon2Iterations), 3))),
		Argon2Parallelism:  uint8(parseInt("ARGON2_PARALLELISM", orInt(int(cfg.Auth.Argon2Parallelism), 4))),
		Argon2SaltLength:   uint32(parseInt("ARGON2_SALT_LENGTH", orInt(int(cfg.Auth.Argon2SaltLength), 16))),
		Argon2KeyLength:    uint32(parseInt("ARGON2_KEY_LENGTH", orInt(int(cfg.Auth.Argon2KeyLength), 32))),
	}
	cfg.Cookie = CookieConfig{
		Prefix:        getEnv("COOKIE_PREFIX", cfg.Cookie.Prefix),
		Path:          getEnv("COOKIE_PATH", or(cfg.Cookie.Path, "/")),
		Domains:       parseList("COOKIE_DOMAINS", cfg.Cookie.Domains),
		Lifetime:      parseDuration("COOKIE_LIFETIME", orDur(cfg.Cookie.Lifetime, 14*24*time.Hour)),
		Protection:    getEnv("COOKIE_PROTECTION", or(cfg.Cookie.Protection, "all")),
		UseIP:         parseBool("COOKIE_USE_IP", cfg.Cookie.UseIP),
		EncryptionKey: getEnv("COOKIE_ENCRYPTION_KEY", cfg.Cookie.EncryptionKey),
		ValidationKey: getEnv("COOKIE_VALIDATION_KEY", cfg.Cookie.ValidationKey),
	}
	cfg.Rights = RightsConfig{
		MaxRecursiveSpaceChecks: parseInt("RIGHTS_MAX_RECURSIVE_SPACE_CHECKS", orInt(cfg.Rights.MaxRecursiveSpaceChecks, 30)),
		AllGroupImplicit:        parseBool("RIGHTS_ALL_GROUP_IMPLICIT", cfg.Rights.AllGroupImplicit),
	}
	cfg.Wikis.Main = getEnv("WIKI_MAIN", or(cfg.Wikis.Main, "xwiki"))
	cfg.Observability = ObservabilityConfig{
		LogLevel:       getEnv("LOG_LEVEL", or(cfg.Observability.LogLevel, "info")),
		LogFormat:      getEnv("LOG_FORMAT", or(cfg.Observability.LogFormat, "json")),
		OTELEnabled:    parseBool("OTEL_ENABLED", cfg.Observability.OTELEnabled),
		ServiceName:    getEnv("OTEL_SERVICE_NAME", or(cfg.Observability.ServiceName, "wikiforge")),
		ServiceVersion: getEnv("OTEL_SERVICE_VERSION", or(cfg.Observability.ServiceVersion, "0.1.0")),
	}
	cfg.RateLimit = RateLimitConfig{
		RequestsPerSecond: float64(parseInt("RATELIMIT_RPS", orInt(int(cfg.RateLimit.RequestsPerSecond), 10))),
		Burst:             parseInt("RATELIMIT_BURST", orInt(cfg.RateLimit.Burst, 20)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Host != "" && c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required when a database is configured")
	}
	switch c.Cookie.Protection {
	case "", "none", "validation", "encryption", "all":
	default:
		return fmt.Errorf("unknown cookie protection %q", c.Cookie.Protection)
	}
	if (c.Cookie.Protection == "validation" || c.Cookie.Protection == "all") && c.Cookie.ValidationKey == "" {
		return fmt.Errorf("COOKIE_VALIDATION_KEY is required")
	}
	if (c.Cookie.Protection == "encryption" || c.Cookie.Protection == "all") && c.Cookie.EncryptionKey == "" {
		return fmt.Errorf("COOKIE_ENCRYPTION_KEY is required")
	}
	switch c.Auth.Mechanism {
	case "form", "basic", "trusted_header":
	default:
		return fmt.Errorf("unknown auth mechanism %q", c.Auth.Mechanism)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue Duration) Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return Duration(d)
		}
	}
	return defaultValue
}

func parseList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func or(value, defaultValue string) string {
	if value != "" {
		return value
	}
	return defaultValue
}

func orInt(value, defaultValue int) int {
	if value != 0 {
		return value
	}
	return defaultValue
}

func orDur(value Duration, defaultValue time.Duration) Duration {
	if value != 0 {
		return value
	}
	return Duration(defaultValue)
}
