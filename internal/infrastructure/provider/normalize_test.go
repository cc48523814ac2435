package provider

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	assert.Equal(t, "", cleanText(""))
	assert.Equal(t, "a b c", cleanText("  a \t b\n c "))
	// decomposed e + combining acute becomes the composed form
	assert.Equal(t, "\u00e9", cleanText("e\u0301"))
}

func TestNormalizeState(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"tx", "TX"},
		{"Texas", "TX"},
		{" new  york ", "NY"},
		{"district of columbia", "DC"},
		{"Ontario", "ONTARIO"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeState(tt.in), tt.in)
	}
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "", normalizePhone(""))
	assert.Equal(t, "", normalizePhone("n/a"))
	assert.Equal(t, "5125550100", normalizePhone("(512) 555-0100"))
	assert.Equal(t, "5125550100", normalizePhone("1-512-555-0100"))
	assert.Equal(t, "+445555", normalizePhone("+44 55 55"))
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantNil bool
		wantErr bool
	}{
		{name: "missing", raw: "", wantNil: true},
		{name: "null", raw: "null", wantNil: true},
		{name: "empty string", raw: `""`, wantNil: true},
		{name: "number", raw: "1250.5", want: "1250.5"},
		{name: "formatted string", raw: `"$1,250.50"`, want: "1250.5"},
		{name: "garbage", raw: `"n/a"`, wantErr: true},
		{name: "sub-cent digits are rounded", raw: `"12.345"`, want: "12.35"},
		{name: "trailing zeros beyond cents", raw: `"10.5000"`, want: "10.5"},
		{name: "largest column value", raw: `"999999999999.99"`, want: "999999999999.99"},
		{name: "too many integer digits", raw: `"99999999999999"`, wantErr: true},
		{name: "rounds past the column", raw: `"999999999999.995"`, wantErr: true},
		{name: "huge exponent", raw: `"1e50000000"`, wantErr: true},
		{name: "tiny exponent", raw: `"1e-50000000"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAmount(json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, errInvalidAmount)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(*got))
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	got, err := parseTimestamp("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseTimestamp("2024-05-06T07:08:09-05:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 6, 12, 8, 9, 0, time.UTC), *got)

	got, err = parseTimestamp("2024-05-06")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC), *got)

	_, err = parseTimestamp("05/06/2024")
	assert.Error(t, err)
}

func TestUnixTime(t *testing.T) {
	assert.Nil(t, unixTime(0))
	assert.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC), *unixTime(1700000000))
}
