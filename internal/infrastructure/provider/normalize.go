package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/crmigrate/backend/internal/domain/crm"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var errInvalidAmount = errors.New("invalid amount")

// maxAmountScale is the most decimal places parseAmount will round away.
const maxAmountScale = 40

// cleanText composes unicode, trims and collapses inner whitespace
func cleanText(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

var emailFolder = cases.Fold()

// normalizeEmail trims and case-folds an address
func normalizeEmail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return emailFolder.String(norm.NFC.String(s))
}

// normalizeState returns the two-letter code of a US state when recognised,
// otherwise the cleaned input upper-cased.
func normalizeState(s string) string {
	s = cleanText(s)
	if s == "" {
		return ""
	}
	if code, ok := usStates[strings.ToLower(s)]; ok {
		return code
	}
	return strings.ToUpper(s)
}

// normalizePhone keeps digits and a leading plus. A leading US country
// code on an 11 digit number is dropped.
func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var b strings.Builder
	for i, r := range s {
		if unicode.IsDigit(r) || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) == 11 && out[0] == '1' {
		return out[1:]
	}
	if out == "+" {
		return ""
	}
	return out
}

// parseAmount reads a monetary amount sent as a JSON number or string.
// null, empty and zero-length values yield nil.
func parseAmount(raw json.RawMessage) (*decimal.Decimal, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", errInvalidAmount, s)
	}
	// round sub-cent digits the way a DECIMAL(14,2) column would; the
	// exponent bound keeps Round from scaling by an enormous power of ten
	if exp := d.Exponent(); exp < -2 && exp >= -maxAmountScale {
		d = d.Round(2)
	}
	if !crm.AmountFits(d) {
		return nil, fmt.Errorf("%w: %w: %.32q", errInvalidAmount, crm.ErrAmountOutOfRange, s)
	}
	return &d, nil
}

// unixTime converts unix seconds to UTC. Zero means unset.
func unixTime(secs int64) *time.Time {
	if secs <= 0 {
		return nil
	}
	t := time.Unix(secs, 0).UTC()
	return &t
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTimestamp reads ISO-8601 timestamps and dates. Empty means unset.
func parseTimestamp(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid timestamp %q", s)
}

func cleanTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = cleanText(t); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

var usStates = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR", "california": "CA",
	"colorado": "CO", "connecticut": "CT", "delaware": "DE", "district of columbia": "DC",
	"florida": "FL", "georgia": "GA", "hawaii": "HI", "idaho": "ID", "illinois": "IL",
	"indiana": "IN", "iowa": "IA", "kansas": "KS", "kentucky": "KY", "louisiana": "LA",
	"maine": "ME", "maryland": "MD", "massachusetts": "MA", "michigan": "MI", "minnesota": "MN",
	"mississippi": "MS", "missouri": "MO", "montana": "MT", "nebraska": "NE", "nevada": "NV",
	"new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM", "new york": "NY",
	"north carolina": "NC", "north dakota": "ND", "ohio": "OH", "oklahoma": "OK", "oregon": "OR",
	"pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC", "south dakota": "SD",
	"tennessee": "TN", "texas": "TX", "utah": "UT", "vermont": "VT", "virginia": "VA",
	"washington": "WA", "west virginia": "WV", "wisconsin": "WI", "wyoming": "WY",
}
