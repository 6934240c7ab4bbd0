package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"overseer/internal/agent"
	"overseer/internal/gateway"
	"overseer/internal/ratelimit"
)

type Config struct {
	Gateway   GatewayConfig    `yaml:"gateway"`
	RateLimit ratelimit.Config `yaml:"rate_limit"`
	Store     StoreConfig      `yaml:"store"`
	Log       LogConfig        `yaml:"log"`
	Research  ResearchConfig   `yaml:"research"`
}

type GatewayConfig struct {
	Backend string               `yaml:"backend"`
	Model   string               `yaml:"model"`
	APIKeys []gateway.Credential `yaml:"api_keys"`
	// RoleKeys maps a role name to the credential tried first for it.
	RoleKeys   map[string]string `yaml:"role_keys"`
	OllamaHost string            `yaml:"ollama_host"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

type ResearchConfig struct {
	ResolveSourceTitles bool `yaml:"resolve_source_titles"`
}

func defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Backend: "gemini",
		},
		RateLimit: ratelimit.Config{
			MaxTokens:         100000,
			PeriodValue:       1,
			PeriodUnit:        ratelimit.UnitMinutes,
			AutoResumeMinutes: 5,
		},
		Store: StoreConfig{
			Path: "data/overseer.db",
		},
		Log: LogConfig{
			Path:  "overseer.log",
			Level: "info",
		},
	}
}

// Load reads the YAML config file, falling back to defaults when the file
// does not exist, then applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// defaults only
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv merges credentials from GEMINI_API_KEYS (comma-separated) after
// the ones declared in the file, preserving file order for failover.
func applyEnv(cfg *Config) {
	if keys := os.Getenv("GEMINI_API_KEYS"); keys != "" {
		for i, k := range strings.Split(keys, ",") {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			cfg.Gateway.APIKeys = append(cfg.Gateway.APIKeys, gateway.Credential{
				Name:   fmt.Sprintf("env-%d", i+1),
				APIKey: k,
			})
		}
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" && cfg.Gateway.OllamaHost == "" {
		cfg.Gateway.OllamaHost = host
	}
}

func (c *Config) Validate() error {
	backend := strings.ToLower(strings.TrimSpace(c.Gateway.Backend))
	switch backend {
	case "gemini":
		if len(c.Gateway.APIKeys) == 0 {
			return fmt.Errorf("gemini backend requires at least one API key (config api_keys or GEMINI_API_KEYS)")
		}
	case "ollama":
		// no credentials needed
	default:
		return fmt.Errorf("unsupported gateway backend: %q", c.Gateway.Backend)
	}

	seen := make(map[string]struct{}, len(c.Gateway.APIKeys))
	for _, cred := range c.Gateway.APIKeys {
		if strings.TrimSpace(cred.Name) == "" {
			return fmt.Errorf("credential with empty name")
		}
		if _, dup := seen[cred.Name]; dup {
			return fmt.Errorf("duplicate credential name %q", cred.Name)
		}
		seen[cred.Name] = struct{}{}
	}

	if _, err := c.RolePrefs(); err != nil {
		return err
	}
	return c.RateLimit.Validate()
}

// RolePrefs converts the role_keys section to the gateway's typed map.
func (c *Config) RolePrefs() (map[agent.Role]string, error) {
	if len(c.Gateway.RoleKeys) == 0 {
		return nil, nil
	}
	out := make(map[agent.Role]string, len(c.Gateway.RoleKeys))
	for name, cred := range c.Gateway.RoleKeys {
		role, err := agent.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("role_keys: %w", err)
		}
		out[role] = cred
	}
	return out, nil
}
