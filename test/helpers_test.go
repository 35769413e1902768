//go:build integration
// +build integration

package test

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"

	widgetAuth "github.com/MrEthical07/widgetAuth"
	"github.com/MrEthical07/widgetAuth/clientid"
	"github.com/MrEthical07/widgetAuth/keyhash"
)

const (
	integrationKeyID  = "intg0001"
	integrationSecret = "integration-secret-0123456789abcdef"
)

type partnerMap map[string]widgetAuth.PartnerRecord

func (p partnerMap) GetPartnerByKeyID(_ context.Context, keyID string) (widgetAuth.PartnerRecord, error) {
	rec, ok := p[keyID]
	if !ok {
		return widgetAuth.PartnerRecord{}, widgetAuth.ErrPartnerNotFound
	}
	return rec, nil
}

func integrationConfig(prefix string) widgetAuth.Config {
	cfg := widgetAuth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("integration-signing-key-0123456789")
	cfg.JWT.Issuer = "widgetauth-integration"
	cfg.JWT.Audience = "widget"
	cfg.KeyHash = keyhash.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	cfg.Session.RedisPrefix = prefix
	cfg.Audit.Enabled = false
	return cfg
}

// newIntegrationEngine builds an engine on rdb with a single partner whose
// API key is returned.
func newIntegrationEngine(t *testing.T, rdb redis.UniversalClient, prefix string) (*widgetAuth.Engine, string) {
	t.Helper()

	cfg := integrationConfig(prefix)
	hasher, err := keyhash.NewArgon2(cfg.KeyHash)
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	hash, err := hasher.Hash(integrationSecret)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	engine, err := widgetAuth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithPartnerProvider(partnerMap{
			integrationKeyID: {PartnerID: "intg", KeyHash: hash, Permissions: []string{"widget:read"}},
		}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	key := keyhash.APIKey{KeyID: integrationKeyID, Secret: integrationSecret}
	return engine, key.String()
}

func widgetRequest(addr string) clientid.Request {
	return clientid.Request{
		Method:     "POST",
		Path:       "/v1/widget/session",
		Header:     map[string][]string{"User-Agent": {"integration"}},
		RemoteAddr: addr + ":41000",
	}
}
