package pricing

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Service resolves dialed numbers to rates and prices finished calls.
//
// Contract:
// - Longest-prefix match of the rate country code against the cleaned dialed digits
// - Only active rates participate
// - Pure calculation + repository lookups; no telephony provider calls
type Service struct {
	repo  RateRepository
	clock func() time.Time
}

func NewService(repo RateRepository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// RateRepository abstracts rate persistence.
type RateRepository interface {
	ListActive(ctx context.Context, callerIDCountry string) ([]Rate, error)
	List(ctx context.Context) ([]Rate, error)
	Get(ctx context.Context, id string) (Rate, error)
	SetActive(ctx context.Context, id string, active bool, now time.Time) (Rate, error)
}

// Lookup returns active rates for the caller-ID country ordered by country
// name, plus the longest-prefix match for dialed when it is non-empty.
func (s *Service) Lookup(ctx context.Context, callerIDCountry, dialed string) (Lookup, error) {
	rates, err := s.repo.ListActive(ctx, strings.ToUpper(strings.TrimSpace(callerIDCountry)))
	if err != nil {
		return Lookup{}, err
	}
	out := Lookup{Rates: rates}
	if digits := CleanDigits(dialed); digits != "" {
		if r, ok := Match(rates, digits); ok {
			out.Match = &r
		}
	}
	return out, nil
}

// Resolve returns the active rate for dialed, or ErrUnsupportedDestination.
func (s *Service) Resolve(ctx context.Context, callerIDCountry, dialed string) (Rate, error) {
	digits := CleanDigits(dialed)
	if digits == "" {
		return Rate{}, ErrInvalidNumber
	}
	rates, err := s.repo.ListActive(ctx, strings.ToUpper(strings.TrimSpace(callerIDCountry)))
	if err != nil {
		return Rate{}, err
	}
	r, ok := Match(rates, digits)
	if !ok {
		return Rate{}, ErrUnsupportedDestination
	}
	return r, nil
}

func (s *Service) List(ctx context.Context) ([]Rate, error) {
	return s.repo.List(ctx)
}

func (s *Service) SetActive(ctx context.Context, rateID string, active bool) (Rate, error) {
	return s.repo.SetActive(ctx, rateID, active, s.clock().UTC())
}

// CleanDigits strips everything but 0-9, so "+1 (415) 555-1234" becomes "14155551234".
func CleanDigits(number string) string {
	var b strings.Builder
	b.Grow(len(number))
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Match picks the rate whose country code is the longest prefix of digits.
// On equal length the earlier rate wins, so callers pass rates in a stable order.
func Match(rates []Rate, digits string) (Rate, bool) {
	var best Rate
	bestLen := 0
	for _, r := range rates {
		p := r.prefix()
		if p == "" || len(p) <= bestLen {
			continue
		}
		if strings.HasPrefix(digits, p) {
			best = r
			bestLen = len(p)
		}
	}
	return best, bestLen > 0
}

var secondsPerMinute = decimal.NewFromInt(60)

// CallCost prices durationSeconds at ratePerMinute, billing in
// incrementSeconds steps and rounding half-up to cents.
func CallCost(ratePerMinute decimal.Decimal, durationSeconds, incrementSeconds int) decimal.Decimal {
	sec := billableSeconds(durationSeconds, 0, incrementSeconds)
	if sec == 0 {
		return decimal.Zero
	}
	return ratePerMinute.Mul(decimal.NewFromInt(int64(sec))).Div(secondsPerMinute).Round(2)
}

func billableSeconds(actualSec int, minSec int, incrementSec int) int {
	if actualSec < 0 {
		return 0
	}
	if minSec <= 0 {
		minSec = 0
	}
	if incrementSec <= 0 {
		incrementSec = 60
	}

	sec := actualSec
	if sec < minSec {
		sec = minSec
	}

	// round up to nearest increment
	q := sec / incrementSec
	r := sec % incrementSec
	if r != 0 {
		q++
	}
	return q * incrementSec
}
