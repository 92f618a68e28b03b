// File: internal/agent/redact.go
package agent

import (
	"context"
	"strings"

	"github.com/xkilldash9x/wayfarer-cli/api/schemas"
)

// redactingEngine wraps an LLMEngine and scrubs vault secrets from outgoing
// messages, replacing each secret value with its placeholder. The model only
// ever sees placeholders; the environment substitutes real values at
// execution time.
type redactingEngine struct {
	inner schemas.LLMEngine
	vault schemas.CredentialVault
}

// WithRedaction decorates engine so no credential value stored in vault can
// leak into a model request. A nil vault returns engine unchanged.
func WithRedaction(engine schemas.LLMEngine, vault schemas.CredentialVault) schemas.LLMEngine {
	if vault == nil {
		return engine
	}
	return &redactingEngine{inner: engine, vault: vault}
}

func (r *redactingEngine) StructuredCompletion(ctx context.Context, messages []schemas.Message, out any) error {
	replacements := r.vault.ReplacementMap()
	if len(replacements) == 0 {
		return r.inner.StructuredCompletion(ctx, messages, out)
	}
	scrubbed := make([]schemas.Message, len(messages))
	for i, msg := range messages {
		content := msg.Content
		for secret, placeholder := range replacements {
			if secret == "" {
				continue
			}
			content = strings.ReplaceAll(content, secret, placeholder)
		}
		msg.Content = content
		scrubbed[i] = msg
	}
	return r.inner.StructuredCompletion(ctx, scrubbed, out)
}

func (r *redactingEngine) Usage() schemas.UsageSummary {
	return r.inner.Usage()
}
