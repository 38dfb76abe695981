package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"escra/internal/domain"
	"escra/internal/engine/auth"
)

// Config models escra.yml.
type Config struct {
	User struct {
		Name string `yaml:"name" json:"name"`
		// Role overrides the stored role of the local user.
		Role string `yaml:"role" json:"role,omitempty"`
	} `yaml:"user" json:"user"`
	Access struct {
		// DefaultRole applies to callers with no stored or claimed role.
		DefaultRole string `yaml:"default_role" json:"default_role"`
	} `yaml:"access" json:"access"`
	Views struct {
		Signatures ViewConfig `yaml:"signatures" json:"signatures"`
		Contracts  ViewConfig `yaml:"contracts" json:"contracts"`
		Documents  ViewConfig `yaml:"documents" json:"documents"`
	} `yaml:"views" json:"views"`
	Server struct {
		Addr     string `yaml:"addr" json:"addr"`
		BasePath string `yaml:"base_path" json:"base_path"`
	} `yaml:"server" json:"server"`
	Expiry struct {
		Interval string `yaml:"interval" json:"interval"`
	} `yaml:"expiry" json:"expiry"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks,omitempty"`
}

// ViewConfig holds the tab scopes of one record list.
type ViewConfig struct {
	Tabs map[string][]string `yaml:"tabs" json:"tabs,omitempty"`
}

type WebhookConfig struct {
	URL     string   `yaml:"url" json:"url"`
	Secret  string   `yaml:"secret" json:"-"`
	Events  []string `yaml:"events" json:"events,omitempty"`
	Enabled *bool    `yaml:"enabled" json:"enabled,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with escra config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOrDefault returns the default config when the workspace has no escra.yml.
func LoadOrDefault(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	for view, vc := range map[string]ViewConfig{
		"signatures": c.Views.Signatures,
		"contracts":  c.Views.Contracts,
		"documents":  c.Views.Documents,
	} {
		allowed := statusesFor(view)
		for tab, statuses := range vc.Tabs {
			if tab == "" {
				return fmt.Errorf("views.%s.tabs contains empty tab name", view)
			}
			if len(statuses) == 0 {
				return fmt.Errorf("views.%s.tabs.%s has no statuses", view, tab)
			}
			for _, s := range statuses {
				if !domain.OneOf(s, allowed) {
					return fmt.Errorf("views.%s.tabs.%s references unknown status %q", view, tab, s)
				}
			}
		}
	}
	if c.User.Role != "" && !auth.ValidRole(c.User.Role) {
		return fmt.Errorf("user.role %q must be one of %s", c.User.Role, strings.Join(auth.Roles, ", "))
	}
	if c.Access.DefaultRole != "" && !auth.ValidRole(c.Access.DefaultRole) {
		return fmt.Errorf("access.default_role %q must be one of %s", c.Access.DefaultRole, strings.Join(auth.Roles, ", "))
	}
	if c.Expiry.Interval != "" {
		d, err := time.ParseDuration(c.Expiry.Interval)
		if err != nil {
			return fmt.Errorf("expiry.interval: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("expiry.interval must be positive")
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhooks[%d].url is required", i)
		}
	}
	return nil
}

// ExpiryInterval returns the sweep interval, defaulting to one minute.
func (c *Config) ExpiryInterval() time.Duration {
	d, err := time.ParseDuration(c.Expiry.Interval)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

func statusesFor(view string) []string {
	switch view {
	case "contracts":
		return domain.ContractStages
	case "documents":
		return domain.DocumentStatuses
	default:
		return domain.SignatureStatuses
	}
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "escra.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(userName string) string {
	return fmt.Sprintf(defaultTemplate, userName)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(GenerateDefault("")), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `user:
  name: "%s"

access:
  default_role: creator

views:
  signatures:
    tabs:
      inbox: [Pending]
      completed: [Completed]
      canceled: [Rejected, Expired, Voided]
  contracts:
    tabs:
      open: [Initiation, Preparation, Wire Details, In Review, Signatures, Funds Disbursed]
      closed: [Completed]
  documents:
    tabs:
      active: [Draft, Active]
      archived: [Archived, Voided]

server:
  addr: 127.0.0.1:8080
  base_path: /api

expiry:
  interval: 1m
`
