// File: internal/llmclient/tracer.go
package llmclient

import (
	"sync"
	"time"

	"github.com/xkilldash9x/wayfarer-cli/api/schemas"
)

// UsageTracer accumulates per-call token accounting across a run. Safe for
// concurrent use.
type UsageTracer struct {
	mu      sync.Mutex
	summary schemas.UsageSummary
}

func NewUsageTracer() *UsageTracer {
	return &UsageTracer{}
}

// Record adds one call's accounting to the running totals.
func (t *UsageTracer) Record(model string, promptTokens, completionTokens, totalTokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.Calls++
	t.summary.PromptTokens += promptTokens
	t.summary.CompletionTokens += completionTokens
	t.summary.TotalTokens += totalTokens
	t.summary.Records = append(t.summary.Records, schemas.TokenUsage{
		Model:            model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      totalTokens,
		Timestamp:        time.Now(),
	})
}

// Summary returns a snapshot of the accumulated usage.
func (t *UsageTracer) Summary() schemas.UsageSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.summary
	out.Records = make([]schemas.TokenUsage, len(t.summary.Records))
	copy(out.Records, t.summary.Records)
	return out
}
