// File: internal/vault/vault.go
package vault

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wayfarer-cli/api/schemas"
)

// Placeholders the reasoning engine uses instead of real credential values.
const (
	PlaceholderEmail    = "@vault.email"
	PlaceholderUsername = "@vault.username"
	PlaceholderPassword = "@vault.password"
)

// Credential is one site's login material.
type Credential struct {
	Email    string
	Username string
	Password string
}

// InMemoryVault stores credentials keyed by host and substitutes them into
// actions at execution time. The reasoning engine only ever sees the
// placeholder tokens. Safe for concurrent use.
type InMemoryVault struct {
	mu     sync.RWMutex
	creds  map[string]Credential
	logger *zap.Logger
}

func NewInMemoryVault(logger *zap.Logger) *InMemoryVault {
	return &InMemoryVault{
		creds:  make(map[string]Credential),
		logger: logger.Named("vault"),
	}
}

// AddCredentials stores login material for a host. The host is matched
// against the page URL at substitution time.
func (v *InMemoryVault) AddCredentials(host string, cred Credential) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.creds[normalizeHost(host)] = cred
}

// ContainsCredentials reports whether the action references a placeholder.
func (v *InMemoryVault) ContainsCredentials(action schemas.Action) bool {
	return strings.Contains(action.Value, PlaceholderEmail) ||
		strings.Contains(action.Value, PlaceholderUsername) ||
		strings.Contains(action.Value, PlaceholderPassword)
}

// ReplaceCredentials returns a copy of the action with placeholders replaced
// by the secrets stored for the observed page's host. Substitution against
// an unknown host is an error: credentials must never leak to a site they
// were not stored for.
func (v *InMemoryVault) ReplaceCredentials(_ context.Context, action schemas.Action, obs *schemas.Observation) (schemas.Action, error) {
	if obs == nil || obs.URL == "" {
		return action, fmt.Errorf("credential substitution requires a current page")
	}
	parsed, err := url.Parse(obs.URL)
	if err != nil {
		return action, fmt.Errorf("failed to parse page URL %q: %w", obs.URL, err)
	}
	host := normalizeHost(parsed.Hostname())

	v.mu.RLock()
	cred, ok := v.creds[host]
	v.mu.RUnlock()
	if !ok {
		return action, fmt.Errorf("no credentials stored for host %q", host)
	}

	value := action.Value
	value = strings.ReplaceAll(value, PlaceholderEmail, cred.Email)
	value = strings.ReplaceAll(value, PlaceholderUsername, cred.Username)
	value = strings.ReplaceAll(value, PlaceholderPassword, cred.Password)
	action.Value = value

	v.logger.Debug("Substituted credentials.", zap.String("host", host))
	return action, nil
}

// ReplacementMap maps each stored secret to its placeholder, used to scrub
// outgoing reasoning-engine traffic.
func (v *InMemoryVault) ReplacementMap() map[string]string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]string)
	for _, cred := range v.creds {
		if cred.Email != "" {
			out[cred.Email] = PlaceholderEmail
		}
		if cred.Username != "" {
			out[cred.Username] = PlaceholderUsername
		}
		if cred.Password != "" {
			out[cred.Password] = PlaceholderPassword
		}
	}
	return out
}

// Instructions returns the prompt fragment explaining placeholder usage.
func (v *InMemoryVault) Instructions() string {
	return fmt.Sprintf(
		"Login credentials are managed for you. When a page requires them, fill the fields with the literal placeholders %s, %s or %s; real values are substituted at execution time. Never ask the user for credentials.",
		PlaceholderEmail, PlaceholderUsername, PlaceholderPassword)
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(host, "www.")
}
