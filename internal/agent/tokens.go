// File: internal/agent/tokens.go
package agent

import (
	"strings"

	"github.com/xkilldash9x/wayfarer-cli/api/schemas"
)

// imageTokenCost is the flat charge applied per attached image. Vision inputs
// are billed per tile by every provider we support; a fixed charge keeps the
// budget math model-independent.
const imageTokenCost = 800

// perMessageOverhead accounts for role markers and separators added by the
// provider when serializing a chat turn.
const perMessageOverhead = 4

// EstimateTokens returns a rough token count for text, ~4 characters per
// token for English and code, discounted for whitespace-heavy content.
// Approximate by design: the buffer only needs a stable upper-bound metric,
// not the provider's exact tokenizer.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	charCount := len([]rune(text))
	whitespace := strings.Count(text, " ") + strings.Count(text, "\n") + strings.Count(text, "\t")

	estimated := (charCount / 4) + (whitespace / 6)
	if estimated < 1 {
		return 1
	}
	return estimated
}

// estimateMessageTokens charges a message's content, its role overhead, and a
// flat cost for any attached image.
func estimateMessageTokens(msg schemas.Message) int {
	total := EstimateTokens(msg.Content) + perMessageOverhead
	if len(msg.Image) > 0 {
		total += imageTokenCost
	}
	return total
}
