// File: api/schemas/schemas.go
package schemas

import (
	"sort"
	"strings"
	"time"
)

// Role identifies who authored a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in the conversation sent to the reasoning engine.
// Image, when set, is an inline PNG attached to the message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Image   []byte `json:"image,omitempty"`
}

// ActionType is an enumeration of the actions the agent can take against a
// browsing session. Element-targeted actions (CLICK, FILL) reference an entry
// of the current action space by ID; page-level actions (GOTO, GO_BACK,
// SCROLL, SCRAPE) are always available.
type ActionType string

const (
	ActionGoto   ActionType = "GOTO"    // Navigate to a URL. (Params: value)
	ActionGoBack ActionType = "GO_BACK" // Return to the previous page.
	ActionClick  ActionType = "CLICK"   // Click a link or button. (Params: id)
	ActionFill   ActionType = "FILL"    // Type text into an input. (Params: id, value)
	ActionScroll ActionType = "SCROLL"  // Scroll the page. (Params: value="up"|"down")
	ActionScrape ActionType = "SCRAPE"  // Extract the page content as structured data.

	// ActionObserve is synthesized internally when the agent re-observes the
	// page after a failed action. It is never offered to the reasoning engine.
	ActionObserve ActionType = "OBSERVE"
)

// pageLevelIDs are action IDs that are valid on any loaded page, independent
// of the interactive elements the page exposes.
var pageLevelIDs = map[string]struct{}{
	"goto":    {},
	"go_back": {},
	"scroll":  {},
	"scrape":  {},
}

// Action is one concrete step decided by the reasoning engine.
type Action struct {
	// ID is either an element identifier from the action space (e.g. "L2",
	// "B1", "I3") or the lowercase name of a page-level action ("goto").
	ID    string     `json:"id"`
	Type  ActionType `json:"type"`
	Value string     `json:"value,omitempty"`

	// Selector is resolved by the environment immediately before execution;
	// the reasoning engine never produces it.
	Selector string `json:"selector,omitempty"`
}

// InteractiveElement describes one actionable element on the current page.
type InteractiveElement struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"` // "link", "button" or "input"
	Description string `json:"description"`
	Selector    string `json:"-"`
}

// ActionSpace is the set of actions valid against the current page state.
type ActionSpace struct {
	Elements []InteractiveElement `json:"elements"`
}

// Contains reports whether the given action ID is valid in this space.
// Page-level action IDs are always valid.
func (s *ActionSpace) Contains(id string) bool {
	if _, ok := pageLevelIDs[strings.ToLower(id)]; ok {
		return true
	}
	if s == nil {
		return false
	}
	for _, el := range s.Elements {
		if el.ID == id {
			return true
		}
	}
	return false
}

// ActionIDs returns every valid action ID in stable order, page-level IDs
// included.
func (s *ActionSpace) ActionIDs() []string {
	n := len(pageLevelIDs)
	if s != nil {
		n += len(s.Elements)
	}
	ids := make([]string, 0, n)
	for id := range pageLevelIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if s != nil {
		for _, el := range s.Elements {
			ids = append(ids, el.ID)
		}
	}
	return ids
}

// ScrapedData holds structured content extracted from a page by a SCRAPE
// action.
type ScrapedData struct {
	Content string `json:"content"`
}

// Observation is a snapshot of the environment state returned after an action
// or an explicit observe call.
type Observation struct {
	URL        string       `json:"url"`
	Title      string       `json:"title"`
	Timestamp  time.Time    `json:"timestamp"`
	Space      *ActionSpace `json:"space,omitempty"`
	Data       *ScrapedData `json:"data,omitempty"`
	Screenshot []byte       `json:"-"`
}

// HasData reports whether this observation carries scraped content.
func (o *Observation) HasData() bool {
	return o != nil && o.Data != nil && o.Data.Content != ""
}

// TokenUsage records the token accounting of a single reasoning call.
type TokenUsage struct {
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	Timestamp        time.Time `json:"timestamp"`
}

// UsageSummary aggregates the reasoning-engine usage of a full run.
type UsageSummary struct {
	Calls            int          `json:"calls"`
	PromptTokens     int          `json:"prompt_tokens"`
	CompletionTokens int          `json:"completion_tokens"`
	TotalTokens      int          `json:"total_tokens"`
	Records          []TokenUsage `json:"records,omitempty"`
}
