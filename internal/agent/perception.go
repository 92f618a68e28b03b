// File: internal/agent/perception.go
package agent

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/wayfarer-cli/api/schemas"
)

// shortDataLimit caps the summarized form of scraped data.
const shortDataLimit = 1000

// Perception renders observations and step results into text sized for the
// reasoning context.
type Perception struct{}

// NewPerception builds a renderer.
func NewPerception() *Perception { return &Perception{} }

// Perceive renders a full observation: page metadata plus the action space.
func (p *Perception) Perceive(obs *schemas.Observation) string {
	if obs == nil {
		return "No observation available."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Current page: %s (%s)\n", obs.Title, obs.URL)
	b.WriteString("Interactive elements:\n")
	if obs.Space == nil || len(obs.Space.Elements) == 0 {
		b.WriteString("  (none)\n")
	} else {
		for _, el := range obs.Space.Elements {
			fmt.Fprintf(&b, "  %s [%s] %s\n", el.ID, el.Kind, el.Description)
		}
	}
	b.WriteString("Page-level actions: goto, go_back, scroll, scrape\n")
	if obs.HasData() {
		b.WriteString("This page has scraped data attached.\n")
	}
	return b.String()
}

// PerceiveData renders scraped data, either verbatim or summarized.
func (p *Perception) PerceiveData(obs *schemas.Observation, raw bool) string {
	if !obs.HasData() {
		return "No data scraped on this page."
	}
	content := obs.Data.Content
	if !raw {
		runes := []rune(content)
		if len(runes) > shortDataLimit {
			content = string(runes[:shortDataLimit]) + "..."
		}
	}
	return fmt.Sprintf("Scraped data from %s:\n%s", obs.URL, content)
}
