// Package config provides coordinator settings loaded from a TOML file and
// environment variables.
//
// Settings are created via Load() which handles:
// - Default value application
// - Optional TOML file overlay
// - Environment variable parsing with validation (environment wins)
// - Provider-specific configuration lookup

package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/BurntSushi/toml"

	"github.com/richinex/textai/llm"
)

// Settings holds all configuration of one coordinator instance.
type Settings struct {
	// Instance names the coordinator; it keys stored history and prefixes
	// audit log files.
	Instance    string            `toml:"instance"`
	LLM         LLMConfig         `toml:"llm"`
	Coordinator CoordinatorConfig `toml:"coordinator"`
	Storage     StorageConfig     `toml:"storage"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string  `toml:"provider"`
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Endpoint    string  `toml:"endpoint"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float64 `toml:"temperature"`
}

// CoordinatorConfig holds queueing, retry and context settings.
type CoordinatorConfig struct {
	HistoryLimit        int           `toml:"history_limit"`
	ContextMessages     int           `toml:"context_messages"`
	RequestInterval     time.Duration `toml:"request_interval"`
	QueueCapacity       int           `toml:"queue_capacity"`
	MaxAttempts         int           `toml:"max_attempts"`
	ErrorThreshold      int           `toml:"error_threshold"`
	CallTimeout         time.Duration `toml:"call_timeout"`
	MaintenanceCooldown time.Duration `toml:"maintenance_cooldown"`
}

// StorageConfig locates optional durable history. Empty paths disable it.
type StorageConfig struct {
	DatabasePath string `toml:"database_path"`
	AuditDir     string `toml:"audit_dir"`
}

// Validation bounds.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
	MinMaxTokens   = 1
	MaxMaxTokens   = 100000
)

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	return Settings{
		Instance: "default",
		LLM: LLMConfig{
			Provider:    llm.ProviderOpenAI.String(),
			MaxTokens:   1000,
			Temperature: 0.1,
		},
		Coordinator: CoordinatorConfig{
			HistoryLimit:    50,
			ContextMessages: 5,
			QueueCapacity:   100,
			MaxAttempts:     3,
			ErrorThreshold:  3,
			CallTimeout:     30 * time.Second,
		},
	}
}

// Load builds settings from defaults, then the TOML file at path (skipped
// when path is empty), then environment variables, then the provider
// argument when non-empty. The result is validated.
func Load(path, provider string) (Settings, error) {
	s := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &s); err != nil {
			return Settings{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := s.applyEnv(); err != nil {
		return Settings{}, err
	}

	if provider != "" {
		s.LLM.Provider = provider
	}
	pt, err := llm.ParseProviderType(s.LLM.Provider)
	if err != nil {
		return Settings{}, err
	}
	s.LLM.Provider = pt.String()
	s.applyProviderEnv(pt)

	s.Instance = NormalizeInstance(s.Instance)

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s *Settings) applyEnv() error {
	var err error

	setString(&s.Instance, "TEXTAI_INSTANCE")
	setString(&s.LLM.Provider, "TEXTAI_PROVIDER")
	setString(&s.Storage.DatabasePath, "TEXTAI_DB_PATH")
	setString(&s.Storage.AuditDir, "TEXTAI_AUDIT_DIR")

	c := &s.Coordinator
	if s.LLM.MaxTokens, err = getEnvInt("LLM_MAX_TOKENS", s.LLM.MaxTokens); err != nil {
		return err
	}
	if s.LLM.Temperature, err = getEnvFloat64("LLM_TEMPERATURE", s.LLM.Temperature); err != nil {
		return err
	}
	if c.HistoryLimit, err = getEnvInt("TEXTAI_HISTORY_LIMIT", c.HistoryLimit); err != nil {
		return err
	}
	if c.ContextMessages, err = getEnvInt("TEXTAI_CONTEXT_MESSAGES", c.ContextMessages); err != nil {
		return err
	}
	if c.RequestInterval, err = getEnvDuration("TEXTAI_REQUEST_INTERVAL", c.RequestInterval); err != nil {
		return err
	}
	if c.QueueCapacity, err = getEnvInt("TEXTAI_QUEUE_CAPACITY", c.QueueCapacity); err != nil {
		return err
	}
	if c.MaxAttempts, err = getEnvInt("TEXTAI_MAX_ATTEMPTS", c.MaxAttempts); err != nil {
		return err
	}
	if c.ErrorThreshold, err = getEnvInt("TEXTAI_ERROR_THRESHOLD", c.ErrorThreshold); err != nil {
		return err
	}
	if c.CallTimeout, err = getEnvDuration("TEXTAI_CALL_TIMEOUT", c.CallTimeout); err != nil {
		return err
	}
	if c.MaintenanceCooldown, err = getEnvDuration("TEXTAI_MAINTENANCE_COOLDOWN", c.MaintenanceCooldown); err != nil {
		return err
	}
	return nil
}

// applyProviderEnv fills the provider-specific key, model and endpoint.
func (s *Settings) applyProviderEnv(pt llm.ProviderType) {
	setString(&s.LLM.APIKey, pt.EnvVar())
	setString(&s.LLM.Model, modelEnv(pt))
	setString(&s.LLM.Endpoint, endpointEnv(pt))
	if s.LLM.Model == "" {
		s.LLM.Model = pt.DefaultModel()
	}
}

// ProviderType returns the parsed provider.
func (s Settings) ProviderType() (llm.ProviderType, error) {
	return llm.ParseProviderType(s.LLM.Provider)
}

// ValidationError describes one invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks every setting and reports all problems at once.
func (s Settings) Validate() error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if _, err := llm.ParseProviderType(s.LLM.Provider); err != nil {
		add("llm.provider", "%v", err)
	}
	if s.LLM.Temperature < MinTemperature || s.LLM.Temperature > MaxTemperature {
		add("llm.temperature", "%g outside [%g, %g]", s.LLM.Temperature, MinTemperature, MaxTemperature)
	}
	if s.LLM.MaxTokens < MinMaxTokens || s.LLM.MaxTokens > MaxMaxTokens {
		add("llm.max_tokens", "%d outside [%d, %d]", s.LLM.MaxTokens, MinMaxTokens, MaxMaxTokens)
	}

	c := s.Coordinator
	if c.HistoryLimit < 1 {
		add("coordinator.history_limit", "must be at least 1, got %d", c.HistoryLimit)
	}
	if c.ContextMessages < 0 {
		add("coordinator.context_messages", "must not be negative, got %d", c.ContextMessages)
	}
	if c.RequestInterval < 0 {
		add("coordinator.request_interval", "must not be negative, got %s", c.RequestInterval)
	}
	if c.QueueCapacity < 1 {
		add("coordinator.queue_capacity", "must be at least 1, got %d", c.QueueCapacity)
	}
	if c.MaxAttempts < 1 {
		add("coordinator.max_attempts", "must be at least 1, got %d", c.MaxAttempts)
	}
	if c.ErrorThreshold < 1 {
		add("coordinator.error_threshold", "must be at least 1, got %d", c.ErrorThreshold)
	}
	if c.CallTimeout <= 0 {
		add("coordinator.call_timeout", "must be positive, got %s", c.CallTimeout)
	}
	if c.MaintenanceCooldown < 0 {
		add("coordinator.maintenance_cooldown", "must not be negative, got %s", c.MaintenanceCooldown)
	}
	if s.Instance == "" {
		add("instance", "must not be empty")
	}

	return errors.Join(errs...)
}

// NormalizeInstance lowercases name and replaces every character other than
// letters and digits with an underscore.
func NormalizeInstance(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, name)
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	pt, err := llm.ParseProviderType(provider)
	if err != nil {
		return "", err
	}

	key := os.Getenv(pt.EnvVar())
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", pt.EnvVar())
	}
	return key, nil
}

// ModelFor returns the model for a provider, checking environment first.
func ModelFor(provider string) (string, error) {
	pt, err := llm.ParseProviderType(provider)
	if err != nil {
		return "", err
	}

	if val := os.Getenv(modelEnv(pt)); val != "" {
		return val, nil
	}
	return pt.DefaultModel(), nil
}

// EndpointFor returns the API base URL for a provider, checking environment
// first.
func EndpointFor(provider string) (string, error) {
	pt, err := llm.ParseProviderType(provider)
	if err != nil {
		return "", err
	}

	if val := os.Getenv(endpointEnv(pt)); val != "" {
		return val, nil
	}
	return pt.DefaultEndpoint(), nil
}

// SupportedProviders returns the sorted list of supported provider names.
func SupportedProviders() []string {
	all := []llm.ProviderType{llm.ProviderOpenAI, llm.ProviderAnthropic, llm.ProviderDeepSeek, llm.ProviderGemini}
	result := make([]string, 0, len(all))
	for _, pt := range all {
		result = append(result, pt.String())
	}
	sort.Strings(result)
	return result
}

func modelEnv(pt llm.ProviderType) string {
	return strings.ToUpper(pt.String()) + "_MODEL"
}

func endpointEnv(pt llm.ProviderType) string {
	return strings.ToUpper(pt.String()) + "_ENDPOINT"
}

// Environment variable helpers with proper error handling

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

// getEnvSeconds reads a number of seconds, fractions allowed.
func getEnvSeconds(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return time.Duration(f * float64(time.Second)), nil
}

// getEnvDuration accepts Go duration syntax ("30s") or plain seconds.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d, nil
	}
	return getEnvSeconds(key, defaultVal)
}
