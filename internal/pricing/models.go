package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rate is the per-minute price for calls to CountryCode when presenting a
// caller ID from CallerIDCountry. Calls copy RatePerMinute at creation, so
// editing or deactivating a rate never changes historical charges.
type Rate struct {
	ID              string          `json:"id"`
	CountryCode     string          `json:"country_code"`      // "+44"
	CallerIDCountry string          `json:"caller_id_country"` // ISO2, "US"
	CountryName     string          `json:"country_name"`
	RatePerMinute   decimal.Decimal `json:"rate_per_minute"`
	Currency        string          `json:"currency"`
	Active          bool            `json:"active"`
	Flag            string          `json:"flag,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// prefix is the country code without the leading "+".
func (r Rate) prefix() string {
	return CleanDigits(r.CountryCode)
}

// Lookup is the response of the public rate lookup.
type Lookup struct {
	Rates []Rate `json:"rates"`
	Match *Rate  `json:"match,omitempty"`
}
