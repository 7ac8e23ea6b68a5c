package config_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/bestiary/internal/config"
	"github.com/MrWong99/bestiary/pkg/provider/llm/anyllm"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "invalid log level",
			yaml: "server:\n  log_level: verbose\n",
			want: `server.log_level "verbose" is invalid`,
		},
		{
			name: "tls without key",
			yaml: "server:\n  tls:\n    cert_file: cert.pem\n",
			want: "server.tls requires both cert_file and key_file",
		},
		{
			name: "fallback without name",
			yaml: "providers:\n  fallbacks:\n    - model: gpt-4o\n",
			want: "providers.fallbacks[0].name is required",
		},
		{
			name: "negative attempts",
			yaml: "pipeline:\n  max_attempts: -1\n",
			want: "pipeline.max_attempts -1 must be at least 1",
		},
		{
			name: "temperature out of range",
			yaml: "pipeline:\n  temperature: 2.5\n",
			want: "pipeline.temperature 2.50 is out of range",
		},
		{
			name: "negative backoff",
			yaml: "pipeline:\n  retry_backoff: -1s\n",
			want: "pipeline.retry_backoff -1s must not be negative",
		},
		{
			name: "negative concurrency",
			yaml: "pipeline:\n  concurrency: -2\n",
			want: "pipeline.concurrency -2 must be at least 1",
		},
		{
			name: "discord token without channel",
			yaml: "sinks:\n  discord:\n    token: abc\n",
			want: "sinks.discord requires both token and channel_id",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			doc := "providers:\n  llm:\n    name: groq\n" + tt.yaml
			if strings.HasPrefix(tt.yaml, "providers:") {
				doc = tt.yaml + "  llm:\n    name: groq\n"
			}
			_, err := config.LoadFromReader(strings.NewReader(doc))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
pipeline:
  max_tokens: -5
  max_attempts: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected validation errors, got nil")
	}
	for _, want := range []string{"server.log_level", "providers.llm.name", "pipeline.max_tokens", "pipeline.max_attempts"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_UnknownProviderOnlyWarns(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "my-inhouse-llm"}}}
	if err := config.Validate(cfg); err != nil {
		t.Errorf("unknown provider names should only warn, got %v", err)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		"GROQ_API_KEY":  "gsk-secret",
		"PGPASS":        "hunter2",
		"DISCORD_TOKEN": "bot-secret",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := &config.Config{
		Providers: config.ProvidersConfig{
			LLM:       config.ProviderEntry{Name: "groq", APIKey: "${GROQ_API_KEY}"},
			Fallbacks: []config.ProviderEntry{{Name: "openai", APIKey: "pa$$word"}},
		},
		Sinks: config.SinksConfig{
			PostgresDSN: "postgres://bestiary:${PGPASS}@db:5432/bestiary",
			Discord:     config.DiscordSinkConfig{Token: "${DISCORD_TOKEN}", ChannelID: "42"},
		},
	}
	if err := config.ExpandEnv(cfg, lookup); err != nil {
		t.Fatalf("ExpandEnv: %v", err)
	}
	if cfg.Providers.LLM.APIKey != "gsk-secret" {
		t.Errorf("api_key = %q", cfg.Providers.LLM.APIKey)
	}
	if cfg.Providers.Fallbacks[0].APIKey != "pa$$word" {
		t.Errorf("bare $ should be kept, got %q", cfg.Providers.Fallbacks[0].APIKey)
	}
	if cfg.Sinks.PostgresDSN != "postgres://bestiary:hunter2@db:5432/bestiary" {
		t.Errorf("postgres_dsn = %q", cfg.Sinks.PostgresDSN)
	}
	if cfg.Sinks.Discord.Token != "bot-secret" {
		t.Errorf("discord.token = %q", cfg.Sinks.Discord.Token)
	}
}

func TestExpandEnv_UnsetVariable(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Providers: config.ProvidersConfig{LLM: config.ProviderEntry{APIKey: "${MISSING_KEY}"}},
		Sinks:     config.SinksConfig{PostgresDSN: "${MISSING_DSN}"},
	}
	err := config.ExpandEnv(cfg, func(string) (string, bool) { return "", false })
	if err == nil {
		t.Fatal("expected error for unset variables")
	}
	for _, want := range []string{"providers.llm.api_key", "MISSING_KEY", "sinks.postgres_dsn", "MISSING_DSN"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestLoadFromReader_ExpandsProcessEnv(t *testing.T) {
	t.Setenv("BESTIARY_TEST_KEY", "from-env")
	cfg := load(t, "providers:\n  llm:\n    name: groq\n    api_key: ${BESTIARY_TEST_KEY}\n")
	if cfg.Providers.LLM.APIKey != "from-env" {
		t.Errorf("api_key = %q", cfg.Providers.LLM.APIKey)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	for _, name := range anyllm.Supported {
		if !slices.Contains(config.ValidProviderNames, name) {
			t.Errorf("anyllm backend %q missing from ValidProviderNames", name)
		}
	}
}
