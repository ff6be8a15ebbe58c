package coordinator

import (
	"strings"
	"time"

	"github.com/richinex/textai/config"
	"github.com/richinex/textai/conversation"
	"github.com/richinex/textai/llm"
)

// Config tunes a coordinator. Start from DefaultConfig; New replaces
// zero values that would be invalid with their defaults.
type Config struct {
	// Instance keys stored history and names audit log files.
	Instance string
	// Model overrides the provider's default model when non-empty.
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
	// HistoryLimit bounds the number of remembered turns.
	HistoryLimit int
	// ContextWindow is the number of recent turns sent with each question.
	ContextWindow int
	// RequestInterval is the minimum spacing between provider attempts.
	// Zero disables pacing.
	RequestInterval time.Duration
	QueueCapacity   int
	Retry           RetryPolicy
	// ErrorThreshold is the number of consecutive failed requests tolerated
	// before dispatch pauses in maintenance.
	ErrorThreshold int
	// CallTimeout bounds each provider attempt.
	CallTimeout time.Duration
	// MaintenanceCooldown resumes dispatch after a maintenance pause.
	// Zero means only Reset resumes.
	MaintenanceCooldown time.Duration
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		Instance:       "default",
		Temperature:    0.1,
		MaxTokens:      1000,
		HistoryLimit:   conversation.DefaultMaxTurns,
		ContextWindow:  5,
		QueueCapacity:  100,
		Retry:          DefaultRetryPolicy(),
		ErrorThreshold: 3,
		CallTimeout:    30 * time.Second,
	}
}

// ConfigFromSettings maps loaded settings onto a coordinator Config.
func ConfigFromSettings(s config.Settings) Config {
	cfg := DefaultConfig()
	cfg.Instance = s.Instance
	cfg.Model = s.LLM.Model
	cfg.Temperature = s.LLM.Temperature
	cfg.MaxTokens = s.LLM.MaxTokens
	cfg.HistoryLimit = s.Coordinator.HistoryLimit
	cfg.ContextWindow = s.Coordinator.ContextMessages
	cfg.RequestInterval = s.Coordinator.RequestInterval
	cfg.QueueCapacity = s.Coordinator.QueueCapacity
	cfg.Retry.MaxAttempts = s.Coordinator.MaxAttempts
	cfg.ErrorThreshold = s.Coordinator.ErrorThreshold
	cfg.CallTimeout = s.Coordinator.CallTimeout
	cfg.MaintenanceCooldown = s.Coordinator.MaintenanceCooldown
	return cfg
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Instance == "" {
		c.Instance = d.Instance
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = d.QueueCapacity
	}
	if c.ErrorThreshold <= 0 {
		c.ErrorThreshold = d.ErrorThreshold
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	c.Retry = c.Retry.withDefaults()
	return c
}

func (c Config) validate() error {
	if err := validateTemperature(c.Temperature); err != nil {
		return err
	}
	if err := validateMaxTokens(c.MaxTokens); err != nil {
		return err
	}
	if c.ContextWindow < 0 {
		return invalid("context_window", "must not be negative, got %d", c.ContextWindow)
	}
	if c.RequestInterval < 0 {
		return invalid("request_interval", "must not be negative, got %s", c.RequestInterval)
	}
	if c.MaintenanceCooldown < 0 {
		return invalid("maintenance_cooldown", "must not be negative, got %s", c.MaintenanceCooldown)
	}
	return nil
}

// Params are per-request overrides. Zero values and nil pointers use the
// coordinator's configuration.
type Params struct {
	Model         string
	Temperature   *float64
	MaxTokens     int
	SystemPrompt  *string
	ContextWindow *int
}

// resolved is Params merged with the coordinator's configuration.
type resolved struct {
	model         string
	temperature   float64
	maxTokens     int
	systemPrompt  string
	contextWindow int
}

func (p Params) validate() error {
	if p.Temperature != nil {
		if err := validateTemperature(*p.Temperature); err != nil {
			return err
		}
	}
	if p.MaxTokens != 0 {
		if err := validateMaxTokens(p.MaxTokens); err != nil {
			return err
		}
	}
	if p.ContextWindow != nil && *p.ContextWindow < 0 {
		return invalid("context_window", "must not be negative, got %d", *p.ContextWindow)
	}
	return nil
}

func validateQuestion(question string) error {
	if strings.TrimSpace(question) == "" {
		return invalid("question", "must not be empty")
	}
	return nil
}

func validateTemperature(t float64) error {
	if t < config.MinTemperature || t > config.MaxTemperature {
		return invalid("temperature", "%g outside [%g, %g]", t, config.MinTemperature, config.MaxTemperature)
	}
	return nil
}

func validateMaxTokens(n int) error {
	if n < config.MinMaxTokens || n > config.MaxMaxTokens {
		return invalid("max_tokens", "%d outside [%d, %d]", n, config.MinMaxTokens, config.MaxMaxTokens)
	}
	return nil
}

// checkPromptSize rejects a question that cannot fit the budget even with
// no history.
func checkPromptSize(question, systemPrompt string, maxTokens int) error {
	estimate := llm.EstimateTokens(question)
	if systemPrompt != "" {
		estimate += llm.EstimateTokens(systemPrompt)
	}
	if estimate > maxTokens {
		return &ValidationError{
			Field:  "question",
			Reason: conversation.ErrPromptTooLarge.Error(),
			Err:    conversation.ErrPromptTooLarge,
		}
	}
	return nil
}
