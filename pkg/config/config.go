// Package config loads the relay configuration: an optional TOML file for
// the server and the provider preference chain, and an optional .env file for
// credentials.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/sigmachat/sigma/pkg/gate"
	"github.com/sigmachat/sigma/pkg/provider"
)

// Config is the process-wide, read-only configuration.
type Config struct {
	// Address to listen on (e.g., ":8080")
	ListenAddr string `toml:"listen"`

	// HeaderTimeout bounds the wait for an upstream's response headers.
	HeaderTimeout time.Duration `toml:"header_timeout"`

	// ForwardRateLimitStatus forwards 429/402 to the caller when every
	// provider failed with a quota or rate-limit condition. On by default;
	// set it to false to always answer with the 200 "overloaded" message.
	ForwardRateLimitStatus bool `toml:"forward_rate_limit_status"`

	Personas  Personas   `toml:"personas"`
	Providers []Provider `toml:"providers"`
}

// Personas overrides the built-in system instructions.
type Personas struct {
	Bounded   string `toml:"bounded"`
	Unbounded string `toml:"unbounded"`
}

// Provider is one family of the preference chain, in file order.
type Provider struct {
	Name        string        `toml:"name"`
	Kind        string        `toml:"kind"`
	Endpoint    string        `toml:"endpoint"`
	Auth        string        `toml:"auth"`
	AuthHeader  string        `toml:"auth_header"`
	APIKeyEnv   string        `toml:"api_key_env"`
	Models      []string      `toml:"models"`
	MaxAttempts int           `toml:"max_attempts"`
	BaseDelay   time.Duration `toml:"base_delay"`
}

// Default returns the built-in configuration: a multi-model OpenAI-compatible
// gateway first, then Gemini as the standalone fallback.
func Default() *Config {
	return &Config{
		ListenAddr:             ":8080",
		HeaderTimeout:          60 * time.Second,
		ForwardRateLimitStatus: true,
		Providers: []Provider{
			{
				Name:      "gateway",
				Kind:      string(provider.KindOpenAI),
				Endpoint:  "https://openrouter.ai/api/v1/chat/completions",
				Auth:      string(provider.AuthBearer),
				APIKeyEnv: "GATEWAY_API_KEY",
				Models: []string{
					"google/gemini-2.5-flash",
					"google/gemini-2.5-flash-lite",
					"openai/gpt-4o-mini",
				},
				MaxAttempts: 1,
			},
			{
				Name:        "gemini",
				Kind:        string(provider.KindGemini),
				Endpoint:    "https://generativelanguage.googleapis.com/v1beta/models",
				Auth:        string(provider.AuthHeader),
				AuthHeader:  "x-goog-api-key",
				APIKeyEnv:   "GEMINI_API_KEY",
				Models:      []string{"gemini-1.5-flash"},
				MaxAttempts: 3,
				BaseDelay:   time.Second,
			},
		},
	}
}

// Load returns the defaults overlaid with the TOML file at path. An empty
// path returns the defaults. A providers list in the file replaces the
// built-in chain entirely.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	var file Config
	md, err := toml.DecodeFile(path, &file)
	if err != nil {
		return nil, fmt.Errorf("could not decode config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config %s: unknown keys %v", path, undecoded)
	}

	if md.IsDefined("listen") {
		cfg.ListenAddr = file.ListenAddr
	}
	if md.IsDefined("header_timeout") {
		cfg.HeaderTimeout = file.HeaderTimeout
	}
	if md.IsDefined("forward_rate_limit_status") {
		cfg.ForwardRateLimitStatus = file.ForwardRateLimitStatus
	}
	if file.Personas.Bounded != "" {
		cfg.Personas.Bounded = file.Personas.Bounded
	}
	if file.Personas.Unbounded != "" {
		cfg.Personas.Unbounded = file.Personas.Unbounded
	}
	if md.IsDefined("providers") {
		cfg.Providers = file.Providers
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEnv loads credentials from a .env file into the process environment.
// A missing file is not an error; variables already set win.
func LoadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("could not load env file %s: %w", path, err)
	}
	return nil
}

// Validate checks the preference chain.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("at least one provider is required")
	}

	seen := make(map[string]bool)
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider #%d: name is required", i+1)
		}
		if seen[p.Name] {
			return fmt.Errorf("provider %q: duplicate name", p.Name)
		}
		seen[p.Name] = true

		switch provider.Kind(p.Kind) {
		case provider.KindOpenAI, provider.KindGemini:
		default:
			return fmt.Errorf("provider %q: unknown kind %q", p.Name, p.Kind)
		}

		switch provider.AuthKind(p.Auth) {
		case "", provider.AuthBearer:
		case provider.AuthHeader:
			if p.AuthHeader == "" {
				return fmt.Errorf("provider %q: auth_header is required for header auth", p.Name)
			}
		default:
			return fmt.Errorf("provider %q: unknown auth %q", p.Name, p.Auth)
		}

		if p.Endpoint == "" {
			return fmt.Errorf("provider %q: endpoint is required", p.Name)
		}
		if len(p.Models) == 0 {
			return fmt.Errorf("provider %q: at least one model is required", p.Name)
		}
		if p.MaxAttempts < 0 || p.BaseDelay < 0 {
			return fmt.Errorf("provider %q: retry settings must not be negative", p.Name)
		}
	}
	return nil
}

// GatePersonas returns the system instructions, built-ins where not
// overridden.
func (c *Config) GatePersonas() gate.Personas {
	p := gate.DefaultPersonas()
	if c.Personas.Bounded != "" {
		p.Bounded = c.Personas.Bounded
	}
	if c.Personas.Unbounded != "" {
		p.Unbounded = c.Personas.Unbounded
	}
	return p
}

// Specs resolves the preference chain, reading each credential from the
// environment. missing lists the families whose key variable is unset; they
// are kept in the chain and will fail over on their first auth failure.
func (c *Config) Specs() (specs []provider.Spec, missing []string) {
	for _, p := range c.Providers {
		key := ""
		if p.APIKeyEnv != "" {
			key = os.Getenv(p.APIKeyEnv)
		}
		if key == "" {
			missing = append(missing, p.Name)
		}

		auth := provider.AuthKind(p.Auth)
		if auth == "" {
			auth = provider.AuthBearer
		}

		retry := provider.RetryPolicy{MaxAttempts: p.MaxAttempts}
		if p.BaseDelay > 0 {
			retry.Backoff = provider.LinearBackoff(p.BaseDelay)
		}

		specs = append(specs, provider.Spec{
			Name:       p.Name,
			Kind:       provider.Kind(p.Kind),
			Endpoint:   p.Endpoint,
			AuthKind:   auth,
			AuthHeader: p.AuthHeader,
			APIKey:     key,
			Models:     append([]string(nil), p.Models...),
			Retry:      retry,
		})
	}
	return specs, missing
}
