package config

import (
	"testing"
	"time"
)

func TestLoadEmbeddedDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !cfg.Embedded() || cfg.Issuer != "storage-manager" || cfg.TokenTTL != time.Hour {
		t.Fatalf("unexpected defaults: %#v", cfg)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Fatalf("unexpected origins: %#v", cfg.AllowedOrigins)
	}
}

func TestLoadSupabaseMode(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")
	configViper.Set("backend.mode", "Supabase")
	configViper.Set("supabase.url", "https://project.supabase.co/")
	configViper.Set("supabase.anon_key", "anon")
	configViper.Set("cors.allowed_origins", "https://app.example.com, https://admin.example.com")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Embedded() || cfg.Issuer != "https://project.supabase.co/auth/v1" {
		t.Fatalf("unexpected config: %#v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://admin.example.com" {
		t.Fatalf("unexpected origins: %#v", cfg.AllowedOrigins)
	}
}

func TestLoadValidation(t *testing.T) {
	testCases := []struct {
		name     string
		settings map[string]any
	}{
		{name: "missing secret", settings: map[string]any{}},
		{name: "unknown mode", settings: map[string]any{"auth.signing_secret": "s", "backend.mode": "firebase"}},
		{name: "supabase without url", settings: map[string]any{"auth.signing_secret": "s", "backend.mode": "supabase", "supabase.anon_key": "k"}},
		{name: "supabase without key", settings: map[string]any{"auth.signing_secret": "s", "backend.mode": "supabase", "supabase.url": "https://p.supabase.co"}},
		{name: "non-positive ttl", settings: map[string]any{"auth.signing_secret": "s", "auth.token_ttl_minutes": 0}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			for key, value := range testCase.settings {
				configViper.Set(key, value)
			}
			if _, err := Load(configViper); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
