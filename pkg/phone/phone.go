// Package phone normalises contact numbers so equal numbers written differently compare equal.
package phone

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
)

// Type is the kind of line a number belongs to.
type Type string

const (
	TypeFixedLine         Type = "FIXED_LINE"
	TypeMobile            Type = "MOBILE"
	TypeFixedLineOrMobile Type = "FIXED_LINE_OR_MOBILE"
	TypeTollFree          Type = "TOLL_FREE"
	TypeVoip              Type = "VOIP"
	TypeUnknown           Type = "UNKNOWN"
)

// Result describes a parsed number.
type Result struct {
	IsValid       bool   `json:"is_valid"`
	E164          string `json:"e164"`
	International string `json:"international"`
	National      string `json:"national"`
	Region        string `json:"region"`
	Type          Type   `json:"type"`
}

// Normalizer parses numbers without a country prefix in a default region.
type Normalizer struct {
	region string
}

// NewNormalizer creates a normalizer. An empty region defaults to IN.
func NewNormalizer(region string) *Normalizer {
	if region == "" {
		region = "IN"
	}
	return &Normalizer{region: strings.ToUpper(region)}
}

// Region returns the default region.
func (n *Normalizer) Region() string { return n.region }

// Validate parses raw and reports its formats.
func (n *Normalizer) Validate(raw string) (*Result, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("phone number cannot be empty")
	}

	parsed, err := phonenumbers.Parse(raw, n.region)
	if err != nil {
		return nil, fmt.Errorf("failed to parse phone number: %w", err)
	}

	return &Result{
		IsValid:       phonenumbers.IsValidNumber(parsed),
		E164:          phonenumbers.Format(parsed, phonenumbers.E164),
		International: phonenumbers.Format(parsed, phonenumbers.INTERNATIONAL),
		National:      phonenumbers.Format(parsed, phonenumbers.NATIONAL),
		Region:        phonenumbers.GetRegionCodeForNumber(parsed),
		Type:          typeOf(phonenumbers.GetNumberType(parsed)),
	}, nil
}

// Normalize returns the E.164 form of a valid number. Numbers that do not parse as valid
// fall back to their digits (keeping a leading +) so they still compare consistently.
// Empty input returns "".
func (n *Normalizer) Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if parsed, err := phonenumbers.Parse(raw, n.region); err == nil && phonenumbers.IsValidNumber(parsed) {
		return phonenumbers.Format(parsed, phonenumbers.E164)
	}
	return digits(raw)
}

func digits(raw string) string {
	var b strings.Builder
	for i, r := range raw {
		if unicode.IsDigit(r) || (i == 0 && r == '+') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func typeOf(t phonenumbers.PhoneNumberType) Type {
	switch t {
	case phonenumbers.FIXED_LINE:
		return TypeFixedLine
	case phonenumbers.MOBILE:
		return TypeMobile
	case phonenumbers.FIXED_LINE_OR_MOBILE:
		return TypeFixedLineOrMobile
	case phonenumbers.TOLL_FREE:
		return TypeTollFree
	case phonenumbers.VOIP:
		return TypeVoip
	default:
		return TypeUnknown
	}
}
