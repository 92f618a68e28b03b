// File: internal/llmclient/factory.go
package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wayfarer-cli/api/schemas"
	"github.com/xkilldash9x/wayfarer-cli/internal/config"
)

// NewEngine is a factory function that creates an LLMEngine based on the
// configuration.
func NewEngine(cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMEngine, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiEngine(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s]", cfg.Provider, config.ProviderGemini)
	}
}
