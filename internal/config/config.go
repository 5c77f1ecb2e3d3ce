package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "STORAGE_MANAGER"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabasePath    = "storage-manager.db"
	defaultLogLevel        = "info"
	defaultBackendMode     = BackendEmbedded
	defaultIssuer          = "storage-manager"
	defaultTokenTTLMinutes = 60
	defaultAllowedOrigins  = "*"

	// BackendEmbedded serves data from the local SQLite backend.
	BackendEmbedded = "embedded"
	// BackendSupabase forwards data access to a hosted PostgREST project.
	BackendSupabase = "supabase"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress     string
	LogLevel        string
	BackendMode     string
	SupabaseURL     string
	SupabaseAnonKey string
	SigningSecret   string
	Issuer          string
	TokenTTL        time.Duration
	SessionCookie   string
	DatabasePath    string
	CachePath       string
	AllowedOrigins  []string
	IsOwnerRule     string
	CanEditRule     string
	CanViewRule     string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("backend.mode", defaultBackendMode)
	configViper.SetDefault("supabase.url", "")
	configViper.SetDefault("supabase.anon_key", "")
	configViper.SetDefault("auth.signing_secret", "")
	configViper.SetDefault("auth.issuer", "")
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("auth.cookie_name", "")
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("cache.path", "")
	configViper.SetDefault("cors.allowed_origins", defaultAllowedOrigins)
	configViper.SetDefault("permissions.is_owner_rule", "")
	configViper.SetDefault("permissions.can_edit_rule", "")
	configViper.SetDefault("permissions.can_view_rule", "")
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		LogLevel:        configViper.GetString("log.level"),
		BackendMode:     strings.ToLower(strings.TrimSpace(configViper.GetString("backend.mode"))),
		SupabaseURL:     strings.TrimRight(strings.TrimSpace(configViper.GetString("supabase.url")), "/"),
		SupabaseAnonKey: configViper.GetString("supabase.anon_key"),
		SigningSecret:   configViper.GetString("auth.signing_secret"),
		Issuer:          strings.TrimSpace(configViper.GetString("auth.issuer")),
		TokenTTL:        time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		SessionCookie:   strings.TrimSpace(configViper.GetString("auth.cookie_name")),
		DatabasePath:    configViper.GetString("database.path"),
		CachePath:       strings.TrimSpace(configViper.GetString("cache.path")),
		AllowedOrigins:  splitList(configViper.GetString("cors.allowed_origins")),
		IsOwnerRule:     configViper.GetString("permissions.is_owner_rule"),
		CanEditRule:     configViper.GetString("permissions.can_edit_rule"),
		CanViewRule:     configViper.GetString("permissions.can_view_rule"),
	}
	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuerFor(cfg)
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// Embedded reports whether data is served by the local SQLite backend.
func (c AppConfig) Embedded() bool {
	return c.BackendMode == BackendEmbedded
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	switch c.BackendMode {
	case BackendEmbedded:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case BackendSupabase:
		if c.SupabaseURL == "" {
			return fmt.Errorf("supabase.url is required")
		}
		if strings.TrimSpace(c.SupabaseAnonKey) == "" {
			return fmt.Errorf("supabase.anon_key is required")
		}
	default:
		return fmt.Errorf("backend.mode must be %q or %q", BackendEmbedded, BackendSupabase)
	}
	return nil
}

func defaultIssuerFor(cfg AppConfig) string {
	if cfg.BackendMode == BackendSupabase && cfg.SupabaseURL != "" {
		return cfg.SupabaseURL + "/auth/v1"
	}
	return defaultIssuer
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
