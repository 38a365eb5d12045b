package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment variables that override config keys.
// VT_HTTPBIN__URL maps to httpbin.url.
const EnvPrefix = "VT_"

type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Log       LogConfig        `yaml:"log"`
	HTTPBin   HTTPBinConfig    `yaml:"httpbin"`
	Upstream  UpstreamConfig   `yaml:"upstream"`
	Auth      AuthConfig       `yaml:"auth"`
	RateLimit RateLimitBackend `yaml:"rate_limit"`
	Endpoints EndpointsConfig  `yaml:"endpoints"`
	Smoke     SmokeConfig      `yaml:"smoke"`
}

type ServerConfig struct {
	Addr                     string   `yaml:"addr"`
	GRPCAddr                 string   `yaml:"grpc_addr"`
	TrustedProxies           []string `yaml:"trusted_proxies"`
	Gzip                     bool     `yaml:"gzip"`
	MaxHeaderBytes           int      `yaml:"max_header_bytes"`
	ReadTimeoutSeconds       int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds      int      `yaml:"write_timeout_seconds"`
	IdleTimeoutSeconds       int      `yaml:"idle_timeout_seconds"`
	ReadHeaderTimeoutSeconds int      `yaml:"read_header_timeout_seconds"`
	ShutdownTimeoutSeconds   int      `yaml:"shutdown_timeout_seconds"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// HTTPBinConfig points at the upstream delay service.
type HTTPBinConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type UpstreamConfig struct {
	DialTimeoutSeconds         int `yaml:"dial_timeout_seconds"`
	TLSHandshakeTimeoutSeconds int `yaml:"tls_handshake_timeout_seconds"`
	IdleConnTimeoutSeconds     int `yaml:"idle_conn_timeout_seconds"`
	MaxIdleConns               int `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost        int `yaml:"max_idle_conns_per_host"`
}

type AuthConfig struct {
	Mode       string `yaml:"mode"`        // "" | "hmac"
	HMACSecret string `yaml:"hmac_secret"` // HS256 shared secret
}

type RateLimitBackend struct {
	Backend string         `yaml:"backend"` // "redis" | "memory"
	Redis   RedisConfig    `yaml:"redis"`
	Memory  MemoryRLConfig `yaml:"memory"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MemoryRLConfig struct {
	CleanupSeconds int `yaml:"cleanup_seconds"`
	TTLSeconds     int `yaml:"ttl_seconds"`
}

type EndpointsConfig struct {
	Delay EndpointConfig `yaml:"delay"`
	Test  EndpointConfig `yaml:"test"`
}

type EndpointConfig struct {
	AuthRequired   bool                 `yaml:"auth_required"`
	RateLimit      EndpointRLConfig     `yaml:"rate_limit"`
	Concurrency    ConcurrencyConfig    `yaml:"concurrency"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type EndpointRLConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   float64 `yaml:"burst"`
	Scope   string  `yaml:"scope"` // "user" | "ip"
}

type ConcurrencyConfig struct {
	MaxInFlight int `yaml:"max_in_flight"`
}

type CircuitBreakerConfig struct {
	Enabled             bool `yaml:"enabled"`
	FailureThreshold    int  `yaml:"failure_threshold"`
	OpenSeconds         int  `yaml:"open_seconds"`
	HalfOpenMaxInFlight int  `yaml:"half_open_max_in_flight"`
}

// SmokeConfig controls the one-shot upstream call made at boot.
type SmokeConfig struct {
	Enabled bool  `yaml:"enabled"`
	Seconds int64 `yaml:"seconds"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.addr":                        ":8080",
		"server.grpc_addr":                   ":9090",
		"server.max_header_bytes":            1 << 20, // 1 MiB
		"server.read_header_timeout_seconds": 5,
		"server.read_timeout_seconds":        15,
		"server.write_timeout_seconds":       60,
		"server.idle_timeout_seconds":        60,
		"server.shutdown_timeout_seconds":    10,

		"log.level": "info",

		"httpbin.timeout_seconds": 30,

		"upstream.dial_timeout_seconds":          5,
		"upstream.tls_handshake_timeout_seconds": 5,
		"upstream.idle_conn_timeout_seconds":     90,
		"upstream.max_idle_conns":                100,
		"upstream.max_idle_conns_per_host":       20,

		"rate_limit.backend":                "memory",
		"rate_limit.memory.ttl_seconds":     300,
		"rate_limit.memory.cleanup_seconds": 60,
	}
}

// Load builds the config from defaults, then the YAML file at path (if any),
// then VT_ environment variables, and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", TransformEnv), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	normalize(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// TransformEnv maps VT_RATE_LIMIT__REDIS__ADDR to rate_limit.redis.addr.
func TransformEnv(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func normalize(cfg *Config) {
	cfg.HTTPBin.URL = strings.TrimRight(strings.TrimSpace(cfg.HTTPBin.URL), "/")
	cfg.Auth.Mode = strings.ToLower(strings.TrimSpace(cfg.Auth.Mode))
	cfg.RateLimit.Backend = strings.ToLower(strings.TrimSpace(cfg.RateLimit.Backend))

	// Env values arrive as one comma separated string.
	var proxies []string
	for _, p := range cfg.Server.TrustedProxies {
		for _, part := range strings.Split(p, ",") {
			if part = strings.TrimSpace(part); part != "" {
				proxies = append(proxies, part)
			}
		}
	}
	cfg.Server.TrustedProxies = proxies

	for _, ep := range []*EndpointConfig{&cfg.Endpoints.Delay, &cfg.Endpoints.Test} {
		ep.RateLimit.Scope = strings.ToLower(strings.TrimSpace(ep.RateLimit.Scope))
		if ep.RateLimit.Scope == "" {
			ep.RateLimit.Scope = "ip"
		}
	}
}

func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return errors.New("server.addr is required")
	}
	if strings.TrimSpace(cfg.Server.GRPCAddr) == "" {
		return errors.New("server.grpc_addr is required")
	}

	if cfg.HTTPBin.URL == "" {
		return errors.New("httpbin.url is required")
	}
	u, err := url.Parse(cfg.HTTPBin.URL)
	if err != nil {
		return fmt.Errorf("httpbin.url invalid: %v", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("httpbin.url must be an absolute http(s) url, got %q", cfg.HTTPBin.URL)
	}
	if cfg.HTTPBin.TimeoutSeconds <= 0 {
		return errors.New("httpbin.timeout_seconds must be > 0")
	}
	if cfg.Server.WriteTimeoutSeconds > 0 && cfg.Server.WriteTimeoutSeconds <= cfg.HTTPBin.TimeoutSeconds {
		return errors.New("server.write_timeout_seconds must exceed httpbin.timeout_seconds")
	}

	switch cfg.RateLimit.Backend {
	case "memory":
	case "redis":
		if strings.TrimSpace(cfg.RateLimit.Redis.Addr) == "" {
			return errors.New("rate_limit.redis.addr is required when backend is redis")
		}
	default:
		return errors.New("rate_limit.backend must be 'redis' or 'memory'")
	}

	switch cfg.Auth.Mode {
	case "":
	case "hmac":
		if strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
			return errors.New("auth.hmac_secret is required when auth.mode is hmac")
		}
	default:
		return errors.New("auth.mode must be empty or 'hmac'")
	}

	endpoints := []struct {
		name string
		cfg  EndpointConfig
	}{
		{"delay", cfg.Endpoints.Delay},
		{"test", cfg.Endpoints.Test},
	}
	for _, ep := range endpoints {
		if err := validateEndpoint(ep.name, ep.cfg, cfg.Auth.Mode); err != nil {
			return err
		}
	}
	return nil
}

func validateEndpoint(name string, ep EndpointConfig, authMode string) error {
	idx := "endpoints." + name
	if ep.AuthRequired && authMode == "" {
		return fmt.Errorf("%s.auth_required needs auth.mode to be set", idx)
	}
	if ep.RateLimit.Enabled {
		if ep.RateLimit.RPS <= 0 {
			return fmt.Errorf("%s.rate_limit.rps must be > 0 when enabled", idx)
		}
		if ep.RateLimit.Burst < 1 {
			return fmt.Errorf("%s.rate_limit.burst must be >= 1 when enabled", idx)
		}
		if s := ep.RateLimit.Scope; s != "ip" && s != "user" {
			return fmt.Errorf("%s.rate_limit.scope must be 'ip' or 'user'", idx)
		}
	}
	if ep.Concurrency.MaxInFlight < 0 {
		return fmt.Errorf("%s.concurrency.max_in_flight cannot be negative", idx)
	}
	if cb := ep.CircuitBreaker; cb.Enabled {
		if cb.FailureThreshold <= 0 {
			return fmt.Errorf("%s.circuit_breaker.failure_threshold must be > 0", idx)
		}
		if cb.OpenSeconds <= 0 {
			return fmt.Errorf("%s.circuit_breaker.open_seconds must be > 0", idx)
		}
		if cb.HalfOpenMaxInFlight <= 0 {
			return fmt.Errorf("%s.circuit_breaker.half_open_max_in_flight must be > 0", idx)
		}
	}
	return nil
}
