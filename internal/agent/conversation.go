// File: internal/agent/conversation.go
package agent

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/wayfarer-cli/api/schemas"
)

// Conversation maintains the message window sent to the reasoning engine
// under a token budget. After every append the buffer autosizes: oldest
// non-system messages are evicted whole until the estimated total is under
// budget. The system message is exempt from eviction.
//
// Owned exclusively by one agent run; not safe for concurrent mutation.
type Conversation struct {
	messages  []schemas.Message
	maxTokens int
	model     string
	logger    *zap.Logger
}

// NewConversation builds an empty buffer with the given token budget.
func NewConversation(maxTokens int, model string, logger *zap.Logger) *Conversation {
	return &Conversation{
		maxTokens: maxTokens,
		model:     model,
		logger:    logger.Named("conversation"),
	}
}

// AddSystemMessage appends the system message. Only one is expected per
// context build; it survives every autosizing pass.
func (c *Conversation) AddSystemMessage(content string) {
	c.append(schemas.Message{Role: schemas.RoleSystem, Content: content})
}

// AddUserMessage appends a user turn.
func (c *Conversation) AddUserMessage(content string) {
	c.append(schemas.Message{Role: schemas.RoleUser, Content: content})
}

// AddUserMessageWithImage appends a user turn with an inline image. A nil
// image degrades to a plain text turn.
func (c *Conversation) AddUserMessageWithImage(content string, image []byte) {
	c.append(schemas.Message{Role: schemas.RoleUser, Content: content, Image: image})
}

// AddAssistantMessage appends an assistant turn.
func (c *Conversation) AddAssistantMessage(content string) {
	c.append(schemas.Message{Role: schemas.RoleAssistant, Content: content})
}

// Messages returns an immutable snapshot for the reasoning call.
func (c *Conversation) Messages() []schemas.Message {
	out := make([]schemas.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// TokenCount returns the estimated token total of the current window.
func (c *Conversation) TokenCount() int {
	total := 0
	for _, msg := range c.messages {
		total += estimateMessageTokens(msg)
	}
	return total
}

// Len returns the number of buffered messages.
func (c *Conversation) Len() int { return len(c.messages) }

// Reset clears all messages. The caller re-seeds the system message at the
// start of each step's context build.
func (c *Conversation) Reset() {
	c.messages = c.messages[:0]
}

func (c *Conversation) append(msg schemas.Message) {
	c.messages = append(c.messages, msg)
	c.autosize()
}

// autosize evicts oldest non-system messages, whole turns at a time, until
// the estimated total fits the budget.
func (c *Conversation) autosize() {
	total := c.TokenCount()
	if total <= c.maxTokens {
		return
	}

	evicted := 0
	for total > c.maxTokens {
		idx := c.oldestEvictable()
		if idx < 0 {
			// Only the system message remains; the window cannot shrink
			// further.
			break
		}
		total -= estimateMessageTokens(c.messages[idx])
		c.messages = append(c.messages[:idx], c.messages[idx+1:]...)
		evicted++
	}

	if evicted > 0 {
		c.logger.Debug("Conversation autosized",
			zap.Int("evicted_messages", evicted),
			zap.Int("estimated_tokens", total),
			zap.Int("max_tokens", c.maxTokens),
		)
	}
}

// oldestEvictable returns the index of the oldest non-system message, or -1
// when none qualifies. The newest turn is evictable too: a single oversized
// message must not pin the window above budget.
func (c *Conversation) oldestEvictable() int {
	for i := 0; i < len(c.messages); i++ {
		if c.messages[i].Role != schemas.RoleSystem {
			return i
		}
	}
	return -1
}
