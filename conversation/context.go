package conversation

import (
	"fmt"

	"github.com/richinex/textai/llm"
)

// Budget describes how a built context spends the token budget.
type Budget struct {
	// PromptTokens is the estimate of the assembled messages.
	PromptTokens int
	// CompletionLimit is what remains of the budget for the answer, at least 1.
	CompletionLimit int
	// TurnsIncluded counts history turns that made it into the context.
	TurnsIncluded int
	// TurnsDropped counts turns of the window trimmed to fit the budget.
	TurnsDropped int
}

// Build assembles the messages for question: the system prompt (if any),
// then up to windowSize recent turns as user/assistant pairs, then the
// question. Oldest turns are dropped while the estimate exceeds half of
// maxTokens. With no turns left, an estimate above maxTokens fails with
// ErrPromptTooLarge.
//
// Build does not modify the history.
func (h *History) Build(question, systemPrompt string, windowSize, maxTokens int) ([]llm.ChatMessage, Budget, error) {
	turns := h.recent(windowSize)

	fixed := llm.EstimateTokens(question)
	if systemPrompt != "" {
		fixed += llm.EstimateTokens(systemPrompt)
	}

	turnCost := make([]int, len(turns))
	total := fixed
	for i, t := range turns {
		turnCost[i] = llm.EstimateTokens(t.Question) + llm.EstimateTokens(t.Response)
		total += turnCost[i]
	}

	dropped := 0
	for dropped < len(turns) && total > maxTokens/2 {
		total -= turnCost[dropped]
		dropped++
	}
	turns = turns[dropped:]

	if len(turns) == 0 && total > maxTokens {
		return nil, Budget{}, fmt.Errorf("%w: estimated %d tokens, budget %d", ErrPromptTooLarge, total, maxTokens)
	}

	messages := make([]llm.ChatMessage, 0, 2*len(turns)+2)
	if systemPrompt != "" {
		messages = append(messages, llm.SystemMessage(systemPrompt))
	}
	for _, t := range turns {
		messages = append(messages,
			llm.UserMessage(t.Question),
			llm.AssistantMessage(t.Response),
		)
	}
	messages = append(messages, llm.UserMessage(question))

	return messages, Budget{
		PromptTokens:    total,
		CompletionLimit: max(maxTokens-total, 1),
		TurnsIncluded:   len(turns),
		TurnsDropped:    dropped,
	}, nil
}
