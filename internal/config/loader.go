package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known LLM provider names.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands environment
// references, applies defaults and validates the result. An empty document
// yields the default configuration, which fails validation because no LLM
// provider is selected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := ExpandEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envRef matches a ${VAR} reference. Bare $VAR is left alone so secrets
// containing '$' survive.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv replaces ${VAR} references in the secret-bearing fields of cfg
// (provider api keys and base URLs, the PostgreSQL DSN, the Discord token and
// channel) using lookup. Every reference to an unset variable is reported.
func ExpandEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	expand := func(field string, s *string) {
		*s = envRef.ReplaceAllStringFunc(*s, func(ref string) string {
			name := envRef.FindStringSubmatch(ref)[1]
			v, ok := lookup(name)
			if !ok {
				errs = append(errs, fmt.Errorf("%s references unset environment variable %s", field, name))
			}
			return v
		})
	}

	expand("providers.llm.api_key", &cfg.Providers.LLM.APIKey)
	expand("providers.llm.base_url", &cfg.Providers.LLM.BaseURL)
	for i := range cfg.Providers.Fallbacks {
		prefix := fmt.Sprintf("providers.fallbacks[%d]", i)
		expand(prefix+".api_key", &cfg.Providers.Fallbacks[i].APIKey)
		expand(prefix+".base_url", &cfg.Providers.Fallbacks[i].BaseURL)
	}
	expand("sinks.postgres_dsn", &cfg.Sinks.PostgresDSN)
	expand("sinks.discord.token", &cfg.Sinks.Discord.Token)
	expand("sinks.discord.channel_id", &cfg.Sinks.Discord.ChannelID)

	return errors.Join(errs...)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	validateProviderName("providers.llm", cfg.Providers.LLM.Name)
	for i, fb := range cfg.Providers.Fallbacks {
		prefix := fmt.Sprintf("providers.fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		validateProviderName(prefix, fb.Name)
	}
	if cfg.Providers.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("providers.breaker.max_failures %d must not be negative", cfg.Providers.Breaker.MaxFailures))
	}
	if cfg.Providers.Breaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("providers.breaker.reset_timeout %s must not be negative", cfg.Providers.Breaker.ResetTimeout))
	}

	// Pipeline
	p := cfg.Pipeline
	if p.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_attempts %d must be at least 1", p.MaxAttempts))
	}
	if p.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("pipeline.request_timeout %s must not be negative", p.RequestTimeout))
	}
	if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
		errs = append(errs, fmt.Errorf("pipeline.temperature %.2f is out of range [0, 2]", *p.Temperature))
	}
	if p.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_tokens %d must not be negative", p.MaxTokens))
	}
	if p.RetryBackoff != nil && *p.RetryBackoff < 0 {
		errs = append(errs, fmt.Errorf("pipeline.retry_backoff %s must not be negative", *p.RetryBackoff))
	}
	if p.MaxRetryBackoff < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_retry_backoff %s must not be negative", p.MaxRetryBackoff))
	}
	if p.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("pipeline.concurrency %d must be at least 1", p.Concurrency))
	}

	// Sinks
	if cfg.Sinks.Terminal.Width < 0 {
		errs = append(errs, fmt.Errorf("sinks.terminal.width %d must not be negative", cfg.Sinks.Terminal.Width))
	}
	d := cfg.Sinks.Discord
	if (d.Token == "") != (d.ChannelID == "") {
		errs = append(errs, errors.New("sinks.discord requires both token and channel_id"))
	}
	if cfg.Sinks.Files.Disabled && cfg.Sinks.Terminal.Disabled && cfg.Sinks.PostgresDSN == "" && !d.Enabled() {
		slog.Warn("all sinks are disabled; generated monsters will only be returned to the caller")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// [ValidProviderNames].
func validateProviderName(field, name string) {
	if name == "" || slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"field", field,
		"name", name,
		"known", ValidProviderNames,
	)
}
