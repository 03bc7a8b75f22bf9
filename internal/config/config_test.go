package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "ALLOWED_ORIGIN", "DATABASE_URL", "REDIS_ADDR", "REDIS_PASSWORD",
		"REDIS_DB", "AMQP_URL", "AUTH_SECRET", "ACCESS_TOKEN_TTL_MINUTES",
		"REPORT_CACHE_TTL_SECONDS", "TIMEZONE",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.AccessTokenTTL != time.Hour {
		t.Errorf("AccessTokenTTL = %v, want 1h", cfg.AccessTokenTTL)
	}
	if cfg.ReportCacheTTL != 30*time.Second {
		t.Errorf("ReportCacheTTL = %v, want 30s", cfg.ReportCacheTTL)
	}
	if cfg.Timezone != "UTC" || cfg.Location() != time.UTC {
		t.Errorf("Timezone = %q, want UTC", cfg.Timezone)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "15")
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "120")
	t.Setenv("TIMEZONE", "America/Sao_Paulo")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9999" {
		t.Errorf("Port = %q, want 9999", cfg.Port)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Errorf("AccessTokenTTL = %v, want 15m", cfg.AccessTokenTTL)
	}
	if cfg.ReportCacheTTL != 2*time.Minute {
		t.Errorf("ReportCacheTTL = %v, want 2m", cfg.ReportCacheTTL)
	}
	if cfg.Location().String() != "America/Sao_Paulo" {
		t.Errorf("Location = %v, want America/Sao_Paulo", cfg.Location())
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "soon")
	if _, err := Load(); err == nil {
		t.Error("non-numeric TTL accepted")
	}
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "")

	t.Setenv("TIMEZONE", "Mars/Olympus_Mons")
	if _, err := Load(); err == nil {
		t.Error("unknown timezone accepted")
	}
}
