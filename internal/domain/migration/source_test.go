package migration

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSource(t *testing.T) {
	tests := []struct {
		input   string
		want    Source
		wantErr bool
	}{
		{"jobnimbus", SourceJobNimbus, false},
		{" AccuLynx ", SourceAccuLynx, false},
		{"salesforce", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSource(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownSource)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCredentials_Validate(t *testing.T) {
	assert.ErrorIs(t, Credentials{}.Validate(), ErrMissingAPIKey)
	assert.ErrorIs(t, Credentials{APIKey: "   "}.Validate(), ErrMissingAPIKey)
	assert.NoError(t, Credentials{APIKey: "k"}.Validate())
	assert.NoError(t, Credentials{APIKey: "k", BaseURL: "https://sandbox.example.com/api"}.Validate())
	assert.ErrorIs(t, Credentials{APIKey: "k", BaseURL: "ftp://example.com"}.Validate(), ErrInvalidBaseURL)
	assert.ErrorIs(t, Credentials{APIKey: "k", BaseURL: "/relative"}.Validate(), ErrInvalidBaseURL)
}

func TestCredentials_ResolveBaseURL(t *testing.T) {
	assert.Equal(t, "https://default", Credentials{}.ResolveBaseURL("https://default/"))
	assert.Equal(t, "http://override", Credentials{BaseURL: "http://override/"}.ResolveBaseURL("https://default"))
}

func TestCredentials_Redaction(t *testing.T) {
	creds := Credentials{APIKey: "super-secret-key", BaseURL: "https://api.example.com"}

	for _, format := range []string{"%v", "%+v", "%s", "%#v"} {
		out := fmt.Sprintf(format, creds)
		assert.NotContains(t, out, "super-secret-key", format)
		assert.Contains(t, out, redacted, format)
	}

	data, err := json.Marshal(creds)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "super-secret-key")
	assert.JSONEq(t, `{"apiKey":"[REDACTED]","baseUrl":"https://api.example.com"}`, string(data))

	// nested values are redacted as well
	wrapped := struct{ Creds Credentials }{creds}
	assert.NotContains(t, fmt.Sprintf("%+v", wrapped), "super-secret-key")
}
