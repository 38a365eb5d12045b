package config

import "gopkg.in/yaml.v3"

const redacted = "<redacted>"

// YAML renders the effective configuration. Secrets are masked.
func (c Config) YAML() ([]byte, error) {
	out := c
	if out.Auth.HMACSecret != "" {
		out.Auth.HMACSecret = redacted
	}
	if out.RateLimit.Redis.Password != "" {
		out.RateLimit.Redis.Password = redacted
	}
	return yaml.Marshal(out)
}
