package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv isolates a test from variables set in the developer's shell.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "TEXTAI_") || strings.HasPrefix(key, "LLM_") ||
			strings.HasPrefix(key, "OPENAI_") || strings.HasPrefix(key, "ANTHROPIC_") ||
			strings.HasPrefix(key, "DEEPSEEK_") || strings.HasPrefix(key, "GEMINI_") {
			t.Setenv(key, "")
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	settings, err := Load("", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", settings.LLM.Provider)
	}
	if settings.LLM.Model != "gpt-4o-mini" {
		t.Errorf("expected default model, got %q", settings.LLM.Model)
	}
	if settings.LLM.MaxTokens != 1000 || settings.LLM.Temperature != 0.1 {
		t.Errorf("unexpected LLM defaults: %+v", settings.LLM)
	}
	c := settings.Coordinator
	if c.HistoryLimit != 50 || c.ContextMessages != 5 || c.QueueCapacity != 100 ||
		c.MaxAttempts != 3 || c.ErrorThreshold != 3 || c.CallTimeout != 30*time.Second ||
		c.RequestInterval != 0 {
		t.Errorf("unexpected coordinator defaults: %+v", c)
	}
	if settings.Instance != "default" {
		t.Errorf("expected instance 'default', got %q", settings.Instance)
	}
}

func TestLoadWithAlias(t *testing.T) {
	clearEnv(t)

	settings, err := Load("", "claude")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "anthropic" {
		t.Errorf("expected provider 'anthropic' (normalized from 'claude'), got %q", settings.LLM.Provider)
	}
}

func TestLoadUnknownProvider(t *testing.T) {
	clearEnv(t)

	_, err := Load("", "unknown_provider")
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestLoadReadsProviderEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEXTAI_PROVIDER", "deepseek")
	t.Setenv("DEEPSEEK_API_KEY", "ds-key")
	t.Setenv("DEEPSEEK_MODEL", "deepseek-reasoner")
	t.Setenv("DEEPSEEK_ENDPOINT", "http://localhost:9999/v1")
	t.Setenv("TEXTAI_REQUEST_INTERVAL", "2")
	t.Setenv("TEXTAI_CALL_TIMEOUT", "45s")
	t.Setenv("TEXTAI_INSTANCE", "Living Room")

	settings, err := Load("", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "deepseek" || settings.LLM.APIKey != "ds-key" ||
		settings.LLM.Model != "deepseek-reasoner" || settings.LLM.Endpoint != "http://localhost:9999/v1" {
		t.Errorf("provider environment not applied: %+v", settings.LLM)
	}
	if settings.Coordinator.RequestInterval != 2*time.Second {
		t.Errorf("expected 2s interval, got %s", settings.Coordinator.RequestInterval)
	}
	if settings.Coordinator.CallTimeout != 45*time.Second {
		t.Errorf("expected 45s timeout, got %s", settings.Coordinator.CallTimeout)
	}
	if settings.Instance != "living_room" {
		t.Errorf("expected normalized instance, got %q", settings.Instance)
	}
}

func TestLoadTOMLThenEnvironment(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "textai.toml")
	content := `
instance = "kitchen"

[llm]
provider = "gemini"
max_tokens = 2000
temperature = 0.5

[coordinator]
history_limit = 10
request_interval = "1500ms"
maintenance_cooldown = "1m"

[storage]
database_path = "/tmp/textai.db"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LLM_TEMPERATURE", "0.2")

	settings, err := Load(path, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Instance != "kitchen" || settings.LLM.Provider != "gemini" || settings.LLM.MaxTokens != 2000 {
		t.Errorf("file values not applied: %+v", settings)
	}
	if settings.LLM.Temperature != 0.2 {
		t.Errorf("environment should override file, got temperature %g", settings.LLM.Temperature)
	}
	if settings.LLM.Model != "gemini-2.5-flash" {
		t.Errorf("expected gemini default model, got %q", settings.LLM.Model)
	}
	if settings.Coordinator.HistoryLimit != 10 || settings.Coordinator.RequestInterval != 1500*time.Millisecond ||
		settings.Coordinator.MaintenanceCooldown != time.Minute {
		t.Errorf("coordinator file values not applied: %+v", settings.Coordinator)
	}
	if settings.Coordinator.QueueCapacity != 100 {
		t.Errorf("unset file values should keep defaults, got capacity %d", settings.Coordinator.QueueCapacity)
	}
	if settings.Storage.DatabasePath != "/tmp/textai.db" {
		t.Errorf("storage path not applied: %q", settings.Storage.DatabasePath)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"), "")
	if err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidateReportsEveryField(t *testing.T) {
	s := Defaults()
	s.LLM.Temperature = 2.5
	s.LLM.MaxTokens = 0
	s.Coordinator.ContextMessages = -1
	s.Coordinator.QueueCapacity = 0

	err := s.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, field := range []string{"llm.temperature", "llm.max_tokens", "coordinator.context_messages", "coordinator.queue_capacity"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("expected %s in error, got %v", field, err)
		}
	}

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError in chain, got %T", err)
	}
}

func TestValidateBounds(t *testing.T) {
	s := Defaults()
	s.LLM.Temperature = 2.0
	s.LLM.MaxTokens = 100000
	if err := s.Validate(); err != nil {
		t.Errorf("upper bounds are inclusive, got %v", err)
	}
	s.LLM.Temperature = 0
	s.LLM.MaxTokens = 1
	if err := s.Validate(); err != nil {
		t.Errorf("lower bounds are inclusive, got %v", err)
	}
}

func TestAPIKeyForValidProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	key, err := APIKeyFor("openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "test-key" {
		t.Errorf("expected 'test-key', got %q", key)
	}
}

func TestAPIKeyForMissing(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := APIKeyFor("openai")
	if err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestAPIKeyForUnknownProvider(t *testing.T) {
	_, err := APIKeyFor("unknown")
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestModelFor(t *testing.T) {
	t.Setenv("ANTHROPIC_MODEL", "")

	model, err := ModelFor("anthropic")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model == "" {
		t.Error("expected non-empty model")
	}
}

func TestEndpointFor(t *testing.T) {
	t.Setenv("DEEPSEEK_ENDPOINT", "")

	endpoint, err := EndpointFor("deepseek")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if endpoint != "https://api.deepseek.com/v1" {
		t.Errorf("expected default DeepSeek endpoint, got %q", endpoint)
	}

	t.Setenv("GEMINI_ENDPOINT", "http://localhost:8080")
	endpoint, err = EndpointFor("google")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if endpoint != "http://localhost:8080" {
		t.Errorf("expected endpoint from environment, got %q", endpoint)
	}

	if _, err := EndpointFor("unknown"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestLoadWithInvalidEnvVar(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_MAX_TOKENS", "not-a-number")

	_, err := Load("", "openai")
	if err == nil {
		t.Error("expected error for invalid LLM_MAX_TOKENS")
	}
}

func TestSupportedProviders(t *testing.T) {
	providers := SupportedProviders()
	want := []string{"anthropic", "deepseek", "gemini", "openai"}
	if strings.Join(providers, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, providers)
	}
}

func TestNormalizeInstance(t *testing.T) {
	if got := NormalizeInstance("  My Assistant-2 "); got != "my_assistant_2" {
		t.Errorf("unexpected normalization: %q", got)
	}
}
