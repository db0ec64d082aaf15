package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultAuthConfigPath mirrors where the web client keeps its identity settings.
const DefaultAuthConfigPath = "src/auth_config.json"

// AudiencePlaceholder is the value shipped in the sample auth config.
const AudiencePlaceholder = "{yourApiIdentifier}"

// ConfigurationError is a fatal startup problem: the process must not serve
// traffic until it is fixed.
type ConfigurationError struct {
	Setting string
	Reason  string
	Err     error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("configuration error: %s %s", e.Setting, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// AuthConfig 描述身份提供方配置。文件为 JSON（YAML 超集），环境变量优先。
type AuthConfig struct {
	Domain    string `yaml:"domain" envconfig:"AUTH_DOMAIN"`
	Audience  string `yaml:"audience" envconfig:"AUTH_AUDIENCE"`
	ClientID  string `yaml:"clientId" envconfig:"AUTH_CLIENT_ID"`
	AppOrigin string `yaml:"appOrigin" envconfig:"AUTH_APP_ORIGIN"`
}

// Issuer returns the token issuer URL for the configured domain.
func (c AuthConfig) Issuer() string {
	return "https://" + strings.TrimSuffix(c.Domain, "/") + "/"
}

// JWKSURL returns the provider's signing key set location.
func (c AuthConfig) JWKSURL() string {
	return c.Issuer() + ".well-known/jwks.json"
}

// Validate rejects absent or placeholder identity settings.
func (c AuthConfig) Validate() error {
	switch {
	case strings.TrimSpace(c.Domain) == "":
		return &ConfigurationError{Setting: "domain", Reason: "is missing"}
	case strings.TrimSpace(c.Audience) == "":
		return &ConfigurationError{Setting: "audience", Reason: "is missing"}
	case c.Audience == AudiencePlaceholder:
		return &ConfigurationError{Setting: "audience", Reason: "is still the placeholder " + AudiencePlaceholder}
	}
	return nil
}

// LoadAuthConfig reads the auth config file, applies AUTH_* overrides and
// validates the result. A missing file is tolerated only when the environment
// supplies every required value.
func LoadAuthConfig(path string) (AuthConfig, error) {
	var cfg AuthConfig

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// fall through to env overrides
	case err != nil:
		return AuthConfig{}, &ConfigurationError{Setting: path, Reason: "could not be read", Err: err}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return AuthConfig{}, &ConfigurationError{Setting: path, Reason: "is not valid JSON/YAML", Err: err}
		}
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return AuthConfig{}, &ConfigurationError{Setting: "AUTH_*", Reason: "could not be parsed", Err: err}
	}

	cfg.Domain = strings.TrimSpace(cfg.Domain)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	cfg.AppOrigin = strings.TrimSuffix(strings.TrimSpace(cfg.AppOrigin), "/")

	if err := cfg.Validate(); err != nil {
		return AuthConfig{}, err
	}
	return cfg, nil
}
