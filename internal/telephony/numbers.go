package telephony

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Number is a parsed, dialable phone number.
type Number struct {
	E164   string `json:"e164"`
	Region string `json:"region"` // ISO2, "US"
}

// NormalizeNumber parses raw (with or without a leading "+") and returns its
// E.164 form and region. defaultRegion applies to numbers without a country
// code; pass "" to require one.
func NormalizeNumber(raw, defaultRegion string) (Number, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Number{}, ErrInvalidNumber
	}
	region := strings.ToUpper(defaultRegion)
	if region == "" && !strings.HasPrefix(raw, "+") {
		raw = "+" + raw
	}

	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return Number{}, ErrInvalidNumber
	}
	if !phonenumbers.IsValidNumber(num) {
		return Number{}, ErrInvalidNumber
	}
	return Number{
		E164:   phonenumbers.Format(num, phonenumbers.E164),
		Region: phonenumbers.GetRegionCodeForNumber(num),
	}, nil
}
