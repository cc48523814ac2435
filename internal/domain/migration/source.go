package migration

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Source identifies the upstream CRM a migration reads from
type Source string

const (
	SourceJobNimbus Source = "jobnimbus"
	SourceAccuLynx  Source = "acculynx"
)

// IsValid returns true if the source is supported
func (s Source) IsValid() bool {
	switch s {
	case SourceJobNimbus, SourceAccuLynx:
		return true
	}
	return false
}

// String returns the string representation of Source
func (s Source) String() string {
	return string(s)
}

// ParseSource converts user input to a Source
func ParseSource(s string) (Source, error) {
	src := Source(strings.ToLower(strings.TrimSpace(s)))
	if !src.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
	}
	return src, nil
}

const redacted = "[REDACTED]"

// Credentials authenticate against a provider for the duration of one run.
// They are never persisted and render redacted through fmt and encoding/json.
type Credentials struct {
	APIKey  string
	BaseURL string
}

// Validate checks that a key is present and that an overriding base URL is absolute
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAPIKey
	}
	if c.BaseURL == "" {
		return nil
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, c.BaseURL)
	}
	return nil
}

// ResolveBaseURL returns the override when set, otherwise def, without a trailing slash
func (c Credentials) ResolveBaseURL(def string) string {
	base := def
	if c.BaseURL != "" {
		base = c.BaseURL
	}
	return strings.TrimRight(base, "/")
}

// String implements fmt.Stringer
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{APIKey: %s, BaseURL: %q}", c.maskedKey(), c.BaseURL)
}

// GoString implements fmt.GoStringer so %#v is redacted too
func (c Credentials) GoString() string {
	return c.String()
}

// MarshalJSON implements json.Marshaler
func (c Credentials) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		APIKey  string `json:"apiKey"`
		BaseURL string `json:"baseUrl,omitempty"`
	}{APIKey: c.maskedKey(), BaseURL: c.BaseURL})
}

func (c Credentials) maskedKey() string {
	if c.APIKey == "" {
		return `""`
	}
	return redacted
}
