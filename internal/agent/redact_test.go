// File: internal/agent/redact_test.go
package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/wayfarer-cli/api/schemas"
)

func TestRedactionScrubsSecretsFromEngineTraffic(t *testing.T) {
	engine := newScriptedEngine().respondWith(ValidationResult{IsValid: true})
	vault := new(MockVault)
	vault.On("ReplacementMap").Return(map[string]string{
		"hunter2":        "@vault.password",
		"me@example.com": "@vault.email",
	})

	wrapped := WithRedaction(engine, vault)

	var out ValidationResult
	err := wrapped.StructuredCompletion(context.Background(), []schemas.Message{
		{Role: schemas.RoleUser, Content: "log in with me@example.com and hunter2"},
	}, &out)
	require.NoError(t, err)

	sent := engine.callMessages(0)
	require.Len(t, sent, 1)
	assert.NotContains(t, sent[0].Content, "hunter2")
	assert.NotContains(t, sent[0].Content, "me@example.com")
	assert.Contains(t, sent[0].Content, "@vault.password")
	assert.Contains(t, sent[0].Content, "@vault.email")
}

func TestRedactionWithNilVaultIsIdentity(t *testing.T) {
	engine := newScriptedEngine()
	assert.Equal(t, schemas.LLMEngine(engine), WithRedaction(engine, nil))
}
