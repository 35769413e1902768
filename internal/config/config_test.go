package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	widgetAuth "github.com/MrEthical07/widgetAuth"
)

func envOf(kv map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := kv[key]
		return v, ok
	}
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{"WIDGETAUTH_JWT_SECRET": "s3cret"}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.Issuer != "widgetauth" || cfg.Audience != "widget" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("expected 10s shutdown timeout, got %v", cfg.ShutdownTimeout)
	}
	if cfg.KafkaEnabled() {
		t.Fatal("kafka should be disabled without brokers")
	}
}

func TestFromEnvLists(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{
		"WIDGETAUTH_JWT_SECRET":      "s3cret",
		"WIDGETAUTH_CORS_ORIGINS":    "https://a.test, ,https://b.test",
		"WIDGETAUTH_KAFKA_BROKERS":   "k1:9092,k2:9092",
		"WIDGETAUTH_KAFKA_TOPIC":     "widget-audit",
		"WIDGETAUTH_TRUSTED_PROXIES": "10.0.0.0/8",
	}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if strings.Join(cfg.CORSOrigins, "|") != "https://a.test|https://b.test" {
		t.Fatalf("unexpected origins: %v", cfg.CORSOrigins)
	}
	if !cfg.KafkaEnabled() || len(cfg.KafkaBrokers) != 2 {
		t.Fatalf("unexpected brokers: %v", cfg.KafkaBrokers)
	}
	if len(cfg.TrustedProxies) != 1 {
		t.Fatalf("unexpected proxies: %v", cfg.TrustedProxies)
	}
}

func TestFromEnvRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{}},
		{"bad shutdown", map[string]string{"WIDGETAUTH_JWT_SECRET": "x", "WIDGETAUTH_SHUTDOWN_TIMEOUT": "soon"}},
		{"negative shutdown", map[string]string{"WIDGETAUTH_JWT_SECRET": "x", "WIDGETAUTH_SHUTDOWN_TIMEOUT": "-1s"}},
		{"brokers without topic", map[string]string{"WIDGETAUTH_JWT_SECRET": "x", "WIDGETAUTH_KAFKA_BROKERS": "k:9092"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromEnv(envOf(tt.env)); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	if _, err := FromEnv(envOf(nil)); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return path
}

func TestPolicyOverridesLayers(t *testing.T) {
	path := writePolicy(t, `
[auth.fingerprint]
window = "30m"
max = 10

[account_creation.email]
max = 0
max_entries = 50000

[account_creation.partner_burst]
window = "2m"
`)
	p, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}

	rl := widgetAuth.DefaultConfig().RateLimits
	defaultBurst := rl.AccountCreation.PartnerBurst.Max
	if err := p.Apply(&rl); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if rl.Auth.Fingerprint.Window != 30*time.Minute || rl.Auth.Fingerprint.Max != 10 {
		t.Fatalf("fingerprint not applied: %+v", rl.Auth.Fingerprint)
	}
	if rl.AccountCreation.Email.Max != 0 || rl.AccountCreation.Email.Window != 24*time.Hour {
		t.Fatalf("email override should only change max: %+v", rl.AccountCreation.Email)
	}
	if rl.AccountCreation.Email.MaxEntries != 50000 || rl.AccountCreation.Session.MaxEntries != 0 {
		t.Fatalf("max_entries should only apply to email: %+v", rl.AccountCreation)
	}
	if rl.AccountCreation.PartnerBurst.Window != 2*time.Minute || rl.AccountCreation.PartnerBurst.Max != defaultBurst {
		t.Fatalf("burst override should only change window: %+v", rl.AccountCreation.PartnerBurst)
	}
}

func TestPolicyRejectsUnknownLayer(t *testing.T) {
	p, err := LoadPolicy(writePolicy(t, "[auth.session]\nmax = 1\n"))
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	rl := widgetAuth.DefaultConfig().RateLimits
	if err := p.Apply(&rl); err == nil {
		t.Fatal("session is not an auth layer")
	}
}

func TestPolicyRejectsUnknownKeys(t *testing.T) {
	if _, err := LoadPolicy(writePolicy(t, "[auth.ip]\nmaximum = 3\n")); err == nil {
		t.Fatal("expected unknown key error")
	}
	if _, err := LoadPolicy(writePolicy(t, "[auth.ip]\nwindow = \"soon\"\n")); err == nil {
		t.Fatal("expected bad duration error")
	}
}

func TestPolicyPartnerRecords(t *testing.T) {
	p, err := LoadPolicy(writePolicy(t, `
[[partner]]
key_id = "acme0001"
partner_id = "acme"
key_hash = "$argon2id$stub"
allowed_origins = ["https://shop.acme.test"]
permissions = ["widget:read"]

[[partner]]
key_id = "beta0001"
partner_id = "beta"
key_hash = "$argon2id$stub"
status = "suspended"
`))
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	recs, err := p.PartnerRecords()
	if err != nil {
		t.Fatalf("PartnerRecords: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 partners, got %d", len(recs))
	}
	acme := recs["acme0001"]
	if acme.PartnerID != "acme" || acme.Status != widgetAuth.PartnerActive || len(acme.AllowedOrigins) != 1 {
		t.Fatalf("unexpected acme record: %+v", acme)
	}
	if recs["beta0001"].Status != widgetAuth.PartnerSuspended {
		t.Fatalf("expected suspended beta, got %v", recs["beta0001"].Status)
	}
}

func TestPolicyPartnerValidation(t *testing.T) {
	tests := map[string]string{
		"missing hash": "[[partner]]\nkey_id = \"a\"\npartner_id = \"p\"\n",
		"bad status":   "[[partner]]\nkey_id = \"a\"\npartner_id = \"p\"\nkey_hash = \"h\"\nstatus = \"paused\"\n",
		"duplicate": "[[partner]]\nkey_id = \"a\"\npartner_id = \"p\"\nkey_hash = \"h\"\n" +
			"[[partner]]\nkey_id = \"a\"\npartner_id = \"q\"\nkey_hash = \"h\"\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			p, err := LoadPolicy(writePolicy(t, body))
			if err != nil {
				t.Fatalf("LoadPolicy: %v", err)
			}
			if _, err := p.PartnerRecords(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNilPolicyIsNoop(t *testing.T) {
	var p *Policy
	rl := widgetAuth.DefaultConfig().RateLimits
	if err := p.Apply(&rl); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	recs, err := p.PartnerRecords()
	if err != nil || len(recs) != 0 {
		t.Fatalf("expected empty partners, got %v %v", recs, err)
	}
}

func TestStaticPartners(t *testing.T) {
	p := NewStaticPartners(map[string]widgetAuth.PartnerRecord{
		"acme0001": {PartnerID: "acme", KeyHash: "h"},
	})
	p.Put("beta0001", widgetAuth.PartnerRecord{PartnerID: "beta", KeyHash: "h"})
	if p.Len() != 2 {
		t.Fatalf("expected 2 partners, got %d", p.Len())
	}

	rec, err := p.GetPartnerByKeyID(context.Background(), "acme0001")
	if err != nil || rec.PartnerID != "acme" {
		t.Fatalf("unexpected lookup: %+v %v", rec, err)
	}
	if _, err := p.GetPartnerByKeyID(context.Background(), "nobody00"); !errors.Is(err, widgetAuth.ErrPartnerNotFound) {
		t.Fatalf("expected ErrPartnerNotFound, got %v", err)
	}
}
