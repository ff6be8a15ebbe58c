package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokensEmpty(t *testing.T) {
	assert.Zero(t, EstimateTokens(""))
}

func TestEstimateTokensKnownValue(t *testing.T) {
	// 4 words, 3 spaces and "?" are special, 17 bytes.
	// 4*1.5 + 4*0.5 = 8, plus 17/4 = 4.
	assert.Equal(t, 12, EstimateTokens("What is two plus?"))
}

func TestEstimateTokensAtLeastWordCount(t *testing.T) {
	for _, text := range []string{
		"a b c d e f g",
		"hello",
		strings.Repeat("x ", 100),
		"Füße laufen schnell",
	} {
		words := len(strings.Fields(text))
		assert.GreaterOrEqual(t, EstimateTokens(text), words, text)
	}
}

func TestEstimateTokensMonotonic(t *testing.T) {
	var b strings.Builder
	prev := 0
	for i := 0; i < 200; i++ {
		b.WriteString("word, ")
		got := EstimateTokens(b.String())
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
}

func TestEstimateTokensStable(t *testing.T) {
	text := "The quick brown fox jumps over the lazy dog."
	assert.Equal(t, EstimateTokens(text), EstimateTokens(text))
}

func TestEstimateMessages(t *testing.T) {
	msgs := []ChatMessage{SystemMessage("be brief"), UserMessage("hello there")}
	assert.Equal(t, EstimateTokens("be brief")+EstimateTokens("hello there"), EstimateMessages(msgs))
}
