package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"relaydesk/internal/domain"
)

// Config models relaydesk.yml.
type Config struct {
	Service struct {
		Name string `yaml:"name"`
	} `yaml:"service"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret     string `yaml:"jwt_secret"`
		TokenTTLHours int    `yaml:"token_ttl_hours"`
	} `yaml:"auth"`
	Mail MailConfig `yaml:"mail"`
	Oversight struct {
		Role string `yaml:"role"`
	} `yaml:"oversight"`
}

// MailConfig describes the SMTP sink. When Enabled is false, outgoing mail is
// logged instead of sent.
type MailConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	From          string `yaml:"from"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("config.service.name is required")
	}
	if c.Oversight.Role != "" && !domain.ValidRole(c.Oversight.Role) {
		return fmt.Errorf("config.oversight.role %s is not a known role", c.Oversight.Role)
	}
	if c.Mail.Enabled {
		if c.Mail.Host == "" {
			return fmt.Errorf("config.mail.host is required when mail is enabled")
		}
		if c.Mail.From == "" {
			return fmt.Errorf("config.mail.from is required when mail is enabled")
		}
	}
	if c.Auth.TokenTTLHours < 0 {
		return fmt.Errorf("config.auth.token_ttl_hours must not be negative")
	}
	return nil
}

// OversightRole returns the configured oversight group role, defaulting to admin.
func (c *Config) OversightRole() string {
	if c.Oversight.Role != "" {
		return c.Oversight.Role
	}
	return domain.RoleAdmin
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "relaydesk.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
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

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	cfg.Service.Name = "relaydesk"
	cfg.Server.Addr = ":8080"
	cfg.Server.BasePath = "/v1"
	cfg.Auth.TokenTTLHours = 12
	cfg.Mail.Port = 587
	cfg.Mail.SubjectPrefix = "[Relaydesk] "
	cfg.Oversight.Role = domain.RoleAdmin
	return &cfg
}
