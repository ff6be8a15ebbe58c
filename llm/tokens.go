// Token estimation heuristics.

package llm

import (
	"strings"
	"unicode"
)

// EstimateTokens approximates the token count of text without calling a
// provider. Words weigh more than raw characters, and len(text)/4 bounds the
// estimate for text without whitespace. The result never drops below the
// word count and never decreases as text grows.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))

	special := 0
	for _, r := range text {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			special++
		}
	}

	charTokens := len(text) / 4

	total := int(float64(words)*1.5+float64(special)*0.5) + charTokens
	if total < words {
		return words
	}
	return total
}

// EstimateMessages sums EstimateTokens over message contents.
func EstimateMessages(messages []ChatMessage) int {
	total := 0
	for _, msg := range messages {
		total += EstimateTokens(msg.Content)
	}
	return total
}
