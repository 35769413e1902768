package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	widgetAuth "github.com/MrEthical07/widgetAuth"
)

// Duration decodes TOML strings such as "1h" or "90s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Limit overrides one layer. Zero fields keep the default.
type Limit struct {
	Window     Duration `toml:"window"`
	Max        *int     `toml:"max"`
	MaxEntries int      `toml:"max_entries"`
}

// Partner is a statically configured partner credential.
type Partner struct {
	KeyID          string   `toml:"key_id"`
	PartnerID      string   `toml:"partner_id"`
	KeyHash        string   `toml:"key_hash"`
	Status         string   `toml:"status"`
	AllowedOrigins []string `toml:"allowed_origins"`
	Permissions    []string `toml:"permissions"`
}

// Policy is the decoded policy file.
//
//	[auth.ip]
//	window = "1h"
//	max = 100
//
//	[account_creation.email]
//	window = "24h"
//	max = 3
//	max_entries = 50000
//
//	[[partner]]
//	key_id = "acme0001"
//	partner_id = "acme"
//	key_hash = "$argon2id$v=19$..."
//	allowed_origins = ["https://shop.acme.test"]
type Policy struct {
	Auth            map[string]Limit `toml:"auth"`
	AccountCreation map[string]Limit `toml:"account_creation"`
	Partners        []Partner        `toml:"partner"`
}

// LoadPolicy decodes the TOML file at path. Unknown keys are an error so a
// misspelled layer never silently keeps its default.
func LoadPolicy(path string) (*Policy, error) {
	var p Policy
	md, err := toml.DecodeFile(path, &p)
	if err != nil {
		return nil, fmt.Errorf("config: decode policy %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("config: unknown policy keys: %s", strings.Join(keys, ", "))
	}
	return &p, nil
}

// Apply overlays the policy's layer limits onto rl.
func (p *Policy) Apply(rl *widgetAuth.RateLimitConfig) error {
	if p == nil {
		return nil
	}
	auth := map[string]*widgetAuth.LayerLimit{
		widgetAuth.LayerIP:          &rl.Auth.IP,
		widgetAuth.LayerFingerprint: &rl.Auth.Fingerprint,
		widgetAuth.LayerPartner:     &rl.Auth.Partner,
	}
	creation := map[string]*widgetAuth.LayerLimit{
		widgetAuth.LayerIP:              &rl.AccountCreation.IP,
		widgetAuth.LayerPartner:         &rl.AccountCreation.Partner,
		widgetAuth.LayerPartnerCreation: &rl.AccountCreation.PartnerCreation,
		widgetAuth.LayerEmail:           &rl.AccountCreation.Email,
		widgetAuth.LayerSession:         &rl.AccountCreation.Session,
		widgetAuth.LayerPartnerBurst:    &rl.AccountCreation.PartnerBurst,
	}
	if err := overlay("auth", p.Auth, auth); err != nil {
		return err
	}
	return overlay("account_creation", p.AccountCreation, creation)
}

func overlay(section string, in map[string]Limit, targets map[string]*widgetAuth.LayerLimit) error {
	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		dst, ok := targets[name]
		if !ok {
			return fmt.Errorf("config: unknown %s layer %q", section, name)
		}
		lim := in[name]
		if lim.Window.Duration != 0 {
			dst.Window = lim.Window.Duration
		}
		if lim.Max != nil {
			dst.Max = *lim.Max
		}
		if lim.MaxEntries != 0 {
			dst.MaxEntries = lim.MaxEntries
		}
	}
	return nil
}

// PartnerRecords converts the static partners into engine records keyed by
// API key ID.
func (p *Policy) PartnerRecords() (map[string]widgetAuth.PartnerRecord, error) {
	out := make(map[string]widgetAuth.PartnerRecord)
	if p == nil {
		return out, nil
	}
	for i, sp := range p.Partners {
		if sp.KeyID == "" || sp.PartnerID == "" || sp.KeyHash == "" {
			return nil, fmt.Errorf("config: partner %d needs key_id, partner_id and key_hash", i)
		}
		if _, dup := out[sp.KeyID]; dup {
			return nil, fmt.Errorf("config: duplicate partner key_id %q", sp.KeyID)
		}
		status, err := parseStatus(sp.Status)
		if err != nil {
			return nil, fmt.Errorf("config: partner %q: %w", sp.PartnerID, err)
		}
		out[sp.KeyID] = widgetAuth.PartnerRecord{
			PartnerID:      sp.PartnerID,
			KeyHash:        sp.KeyHash,
			Status:         status,
			AllowedOrigins: append([]string(nil), sp.AllowedOrigins...),
			Permissions:    append([]string(nil), sp.Permissions...),
		}
	}
	return out, nil
}

func parseStatus(raw string) (widgetAuth.PartnerStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "active":
		return widgetAuth.PartnerActive, nil
	case "suspended":
		return widgetAuth.PartnerSuspended, nil
	case "disabled":
		return widgetAuth.PartnerDisabled, nil
	default:
		return 0, fmt.Errorf("unknown status %q", raw)
	}
}
