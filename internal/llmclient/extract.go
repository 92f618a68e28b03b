// File: internal/llmclient/extract.go
package llmclient

import (
	"fmt"
	"regexp"
	"strings"
)

// jsonFenceRegex matches a fenced code block, optionally tagged json.
var jsonFenceRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// extractJSON pulls the JSON object out of a model response. Models often
// wrap the payload in markdown fences or prose despite instructions not to.
func extractJSON(response string) (string, error) {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return "", fmt.Errorf("empty response")
	}

	if matches := jsonFenceRegex.FindStringSubmatch(trimmed); len(matches) > 1 {
		trimmed = strings.TrimSpace(matches[1])
	}

	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		return trimmed, nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON object found in response")
	}
	return trimmed[start : end+1], nil
}
