// Package policy loads the per-tier activation policy: which tiers may
// activate without a destination number and which may use the development
// fallback number.
package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tier is the policy for one membership tier.
type Tier struct {
	AllowNoCall      bool `yaml:"allowNoCall"`
	AllowDevFallback bool `yaml:"allowDevFallback"`
}

// Policy maps tier names (case-insensitive) to their policy.
type Policy struct {
	Default Tier            `yaml:"default"`
	Tiers   map[string]Tier `yaml:"tiers"`
}

// Default returns the built-in policy: Platinum and Gold members may
// activate without a number, everyone may use the dev fallback outside
// production.
func Default() Policy {
	return Policy{
		Default: Tier{AllowDevFallback: true},
		Tiers: map[string]Tier{
			"platinum": {AllowNoCall: true, AllowDevFallback: true},
			"gold":     {AllowNoCall: true, AllowDevFallback: true},
		},
	}
}

// Load reads a YAML policy file. An empty path yields Default().
func Load(path string) (Policy, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read tier policy: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a YAML policy document.
func Parse(raw []byte) (Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Policy{}, fmt.Errorf("parse tier policy: %w", err)
	}
	normalized := make(map[string]Tier, len(p.Tiers))
	for name, tier := range p.Tiers {
		normalized[strings.ToLower(strings.TrimSpace(name))] = tier
	}
	p.Tiers = normalized
	return p, nil
}

// For returns the policy for tier, or the default.
func (p Policy) For(tier string) Tier {
	if t, ok := p.Tiers[strings.ToLower(strings.TrimSpace(tier))]; ok {
		return t
	}
	return p.Default
}
