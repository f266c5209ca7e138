package genesis

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Organization is a member of the channel.
type Organization struct {
	MSPID string `yaml:"mspId" json:"mspId"`
	Name  string `yaml:"name" json:"name"`
}

// Admin is the identity that submits the init transactions.
type Admin struct {
	ID    string `yaml:"id" json:"id"`
	MSPID string `yaml:"mspId" json:"mspId"`
}

// ContractConfig seeds one contract. Settings is merged over the contract's
// built-in defaults by its init function.
type ContractConfig struct {
	Settings map[string]any `yaml:"settings,omitempty" json:"settings,omitempty"`
}

// Config is the channel genesis file.
type Config struct {
	Channel       string                    `yaml:"channel" json:"channel"`
	Organizations []Organization            `yaml:"organizations" json:"organizations"`
	Admin         Admin                     `yaml:"admin" json:"admin"`
	Contracts     map[string]ContractConfig `yaml:"contracts" json:"contracts"`
}

// Load reads and validates a YAML genesis file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read genesis config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a YAML genesis document.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse genesis config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields every channel needs.
func (c *Config) Validate() error {
	if c.Channel == "" {
		return fmt.Errorf("genesis: channel is required")
	}
	if len(c.Organizations) == 0 {
		return fmt.Errorf("genesis: at least one organization is required")
	}
	seen := make(map[string]bool, len(c.Organizations))
	for _, org := range c.Organizations {
		if org.MSPID == "" {
			return fmt.Errorf("genesis: organization %q has no mspId", org.Name)
		}
		if seen[org.MSPID] {
			return fmt.Errorf("genesis: duplicate organization %s", org.MSPID)
		}
		seen[org.MSPID] = true
	}
	if c.Admin.ID == "" {
		c.Admin.ID = "genesis-admin"
	}
	if c.Admin.MSPID == "" {
		c.Admin.MSPID = c.Organizations[0].MSPID
	}
	if !seen[c.Admin.MSPID] {
		return fmt.Errorf("genesis: admin organization %s is not a channel member", c.Admin.MSPID)
	}
	return nil
}

// ContractNames returns the seeded contracts in a stable order.
func (c *Config) ContractNames() []string {
	names := make([]string, 0, len(c.Contracts))
	for name := range c.Contracts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default is used when no genesis file exists: a single organization and
// the contracts' built-in settings.
func Default(channel string) *Config {
	return &Config{
		Channel:       channel,
		Organizations: []Organization{{MSPID: "Org1MSP", Name: "Org1"}},
		Admin:         Admin{ID: "genesis-admin", MSPID: "Org1MSP"},
	}
}
