package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	OIDC          OIDCConfig
	Auth          AuthConfig
	Embed         EmbedConfig
	Completion    CompletionConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds PostgreSQL document store configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// OIDCConfig holds the identity provider settings used for both the
// authorization-code flow and bearer token verification.
type OIDCConfig struct {
	Issuer         string
	Audience       string
	ClientID       string
	ClientSecret   string
	AuthorizeURL   string
	TokenURL       string
	LogoutURL      string // optional end-session endpoint
	JWKSURL        string
	RedirectURI    string // OAuth2 callback URL
	FrontEndURL    string // Post-login redirect target (loaded from FRONT_END_URL)
	Scopes         []string
	Algorithms     []string
	KeyCacheSize   int
	KeyCacheMaxAge time.Duration
	StateTTL       time.Duration
	HTTPTimeout    time.Duration
}

// AuthConfig holds gateway authentication switches
type AuthConfig struct {
	// DevBypassEnabled allows "<prefix><identifier>" bearer tokens. Refused in production.
	DevBypassEnabled bool
	DevBypassPrefix  string
}

// EmbedConfig holds the BI provider (Power BI REST) settings
type EmbedConfig struct {
	TenantID        string
	ClientID        string
	ClientSecret    string
	TokenURL        string
	Scope           string
	APIBaseURL      string
	WorkspaceID     string
	DefaultReportID string
	RefreshSkew     time.Duration
	RefreshTimeout  time.Duration
	RequireAuth     bool
}

// CompletionConfig holds the upstream chat-completion service settings
type CompletionConfig struct {
	Endpoint     string
	APIKey       string
	APIKeyHeader string
	Model        string
	Timeout      time.Duration
	ConfigTTL    time.Duration
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	issuer := getEnv("OIDC_ISSUER", "")
	tenantID := getEnv("EMBED_TENANT_ID", "")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 0),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://*"}),
		},
		Database: loadDatabaseConfig(),
		OIDC: OIDCConfig{
			Issuer:         issuer,
			Audience:       getEnv("OIDC_AUDIENCE", getEnv("OIDC_CLIENT_ID", "")),
			ClientID:       getEnv("OIDC_CLIENT_ID", ""),
			ClientSecret:   getEnv("OIDC_CLIENT_SECRET", ""),
			AuthorizeURL:   getEnv("OIDC_AUTHORIZE_URL", joinURL(issuer, "authorize")),
			TokenURL:       getEnv("OIDC_TOKEN_URL", joinURL(issuer, "token")),
			LogoutURL:      getEnv("OIDC_LOGOUT_URL", ""),
			JWKSURL:        getEnv("OIDC_JWKS_URL", joinURL(issuer, ".well-known/jwks.json")),
			RedirectURI:    getEnv("OIDC_REDIRECT_URI", "http://localhost:8080/auth/callback"),
			FrontEndURL:    getEnv("FRONT_END_URL", "http://localhost:5173"),
			Scopes:         getEnvAsSlice("OIDC_SCOPES", []string{"openid", "profile", "email"}),
			Algorithms:     getEnvAsSlice("OIDC_ALGORITHMS", []string{"RS256"}),
			KeyCacheSize:   getEnvAsInt("OIDC_KEY_CACHE_SIZE", 16),
			KeyCacheMaxAge: getEnvAsDuration("OIDC_KEY_CACHE_MAX_AGE", 10*time.Hour),
			StateTTL:       getEnvAsDuration("OIDC_STATE_TTL", 10*time.Minute),
			HTTPTimeout:    getEnvAsDuration("OIDC_HTTP_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			DevBypassEnabled: getEnvAsBool("AUTH_DEV_BYPASS_ENABLED", false),
			DevBypassPrefix:  getEnv("AUTH_DEV_BYPASS_PREFIX", "dev-bypass-"),
		},
		Embed: EmbedConfig{
			TenantID:        tenantID,
			ClientID:        getEnv("EMBED_CLIENT_ID", ""),
			ClientSecret:    getEnv("EMBED_CLIENT_SECRET", ""),
			TokenURL:        getEnv("EMBED_TOKEN_URL", fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID)),
			Scope:           getEnv("EMBED_SCOPE", "https://analysis.windows.net/powerbi/api/.default"),
			APIBaseURL:      getEnv("EMBED_API_BASE_URL", "https://api.powerbi.com/v1.0/myorg"),
			WorkspaceID:     getEnv("EMBED_WORKSPACE_ID", ""),
			DefaultReportID: getEnv("EMBED_DEFAULT_REPORT_ID", ""),
			RefreshSkew:     getEnvAsDuration("EMBED_REFRESH_SKEW", 5*time.Minute),
			RefreshTimeout:  getEnvAsDuration("EMBED_REFRESH_TIMEOUT", 30*time.Second),
			RequireAuth:     getEnvAsBool("EMBED_REQUIRE_AUTH", false),
		},
		Completion: CompletionConfig{
			Endpoint:     getEnv("COMPLETION_ENDPOINT", ""),
			APIKey:       getEnv("COMPLETION_API_KEY", ""),
			APIKeyHeader: getEnv("COMPLETION_API_KEY_HEADER", "api-key"),
			Model:        getEnv("COMPLETION_MODEL", ""),
			Timeout:      getEnvAsDuration("COMPLETION_TIMEOUT", 120*time.Second),
			ConfigTTL:    getEnvAsDuration("COMPLETION_CONFIG_TTL", 5*time.Minute),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}

	// The bypass must never be reachable in a production deployment.
	if c.IsProduction() && c.Auth.DevBypassEnabled {
		return fmt.Errorf("development auth bypass cannot be enabled in production")
	}
	if c.Auth.DevBypassEnabled && c.Auth.DevBypassPrefix == "" {
		return fmt.Errorf("development auth bypass requires a prefix")
	}

	if c.IsProduction() {
		if c.OIDC.Issuer == "" {
			return fmt.Errorf("oidc issuer is required in production")
		}
		if c.OIDC.ClientID == "" {
			return fmt.Errorf("oidc client ID is required in production")
		}
		if c.Completion.Endpoint == "" {
			return fmt.Errorf("completion endpoint is required in production")
		}
	}

	if c.Embed.RefreshSkew < 0 {
		return fmt.Errorf("embed refresh skew must not be negative")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// DevBypassActive reports whether bypass tokens are honored. Resolved once at startup.
func (c *Config) DevBypassActive() bool {
	return c.Auth.DevBypassEnabled && !c.IsProduction()
}

// Configured reports whether enough identity provider settings exist to verify tokens.
func (c *OIDCConfig) Configured() bool {
	return c.Issuer != "" && c.JWKSURL != "" && c.Audience != ""
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, strings.TrimPrefix(u.Path, "/"))
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func loadDatabaseConfig() DatabaseConfig {
	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "dev"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "gateway"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Helper functions

func joinURL(base, path string) string {
	if base == "" {
		return ""
	}
	return strings.TrimSuffix(base, "/") + "/" + path
}

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice splits a comma separated value, dropping blanks
func getEnvAsSlice(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
