package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func testRates() *MemoryRepo {
	d := decimal.RequireFromString
	return &MemoryRepo{Rates: []Rate{
		{ID: "us", CountryCode: "+1", CallerIDCountry: "US", CountryName: "United States", RatePerMinute: d("0.02"), Currency: "USD", Active: true},
		{ID: "jm", CountryCode: "+1876", CallerIDCountry: "US", CountryName: "Jamaica", RatePerMinute: d("0.25"), Currency: "USD", Active: true},
		{ID: "uk", CountryCode: "+44", CallerIDCountry: "US", CountryName: "United Kingdom", RatePerMinute: d("0.05"), Currency: "USD", Active: true},
		{ID: "de-off", CountryCode: "+49", CallerIDCountry: "US", CountryName: "Germany", RatePerMinute: d("0.06"), Currency: "USD", Active: false},
		{ID: "uk-gb", CountryCode: "+44", CallerIDCountry: "GB", CountryName: "United Kingdom", RatePerMinute: d("0.01"), Currency: "GBP", Active: true},
	}}
}

func TestResolve_LongestPrefix(t *testing.T) {
	svc := NewService(testRates())
	ctx := context.Background()

	r, err := svc.Resolve(ctx, "US", "14155551234")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if r.CountryCode != "+1" {
		t.Fatalf("expected +1, got %s", r.CountryCode)
	}

	r, err = svc.Resolve(ctx, "us", "+1 (876) 555-0101")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if r.ID != "jm" {
		t.Fatalf("expected the more specific +1876 rate, got %s", r.ID)
	}
}

func TestResolve_CallerCountryScopesRates(t *testing.T) {
	svc := NewService(testRates())
	r, err := svc.Resolve(context.Background(), "GB", "447700900123")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if r.ID != "uk-gb" {
		t.Fatalf("expected GB caller rate, got %s", r.ID)
	}
}

func TestResolve_Unsupported(t *testing.T) {
	svc := NewService(testRates())
	ctx := context.Background()

	if _, err := svc.Resolve(ctx, "US", "4930123456"); !errors.Is(err, ErrUnsupportedDestination) {
		t.Fatalf("expected inactive rate ignored, got %v", err)
	}
	if _, err := svc.Resolve(ctx, "US", "81312345678"); !errors.Is(err, ErrUnsupportedDestination) {
		t.Fatalf("expected unsupported, got %v", err)
	}
	if _, err := svc.Resolve(ctx, "US", "call me"); !errors.Is(err, ErrInvalidNumber) {
		t.Fatalf("expected invalid number, got %v", err)
	}
}

func TestLookup_OrderedByNameWithMatch(t *testing.T) {
	svc := NewService(testRates())
	res, err := svc.Lookup(context.Background(), "US", "447700900123")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	want := []string{"Jamaica", "United Kingdom", "United States"}
	if len(res.Rates) != len(want) {
		t.Fatalf("expected %d active rates, got %d", len(want), len(res.Rates))
	}
	for i, name := range want {
		if res.Rates[i].CountryName != name {
			t.Fatalf("position %d: expected %s, got %s", i, name, res.Rates[i].CountryName)
		}
	}
	if res.Match == nil || res.Match.ID != "uk" {
		t.Fatalf("expected uk match, got %+v", res.Match)
	}
}

func TestSetActive(t *testing.T) {
	repo := testRates()
	svc := NewService(repo)
	ctx := context.Background()

	if _, err := svc.SetActive(ctx, "us", false); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if _, err := svc.Resolve(ctx, "US", "14155551234"); !errors.Is(err, ErrUnsupportedDestination) {
		t.Fatalf("expected deactivated rate ignored, got %v", err)
	}
	if _, err := svc.SetActive(ctx, "missing", true); !errors.Is(err, ErrRateNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCallCost(t *testing.T) {
	d := decimal.RequireFromString
	cases := []struct {
		rate      string
		seconds   int
		increment int
		want      string
	}{
		{"0.02", 0, 1, "0"},
		{"0.02", 60, 1, "0.02"},
		{"0.02", 90, 1, "0.03"},
		{"0.10", 61, 1, "0.10"},  // 0.10166 rounds down
		{"0.10", 65, 1, "0.11"},  // 0.10833 rounds up
		{"0.10", 61, 60, "0.20"}, // per-minute billing
		{"0.25", 30, 6, "0.13"},  // 0.125 half-up
	}
	for _, tc := range cases {
		got := CallCost(d(tc.rate), tc.seconds, tc.increment)
		if !got.Equal(d(tc.want)) {
			t.Fatalf("rate %s, %ds, inc %d: expected %s, got %s", tc.rate, tc.seconds, tc.increment, tc.want, got)
		}
	}
}

func TestBillableSeconds(t *testing.T) {
	// 60s increment, 0 min
	if got := billableSeconds(1, 0, 60); got != 60 {
		t.Fatalf("expected 60, got %d", got)
	}
	if got := billableSeconds(60, 0, 60); got != 60 {
		t.Fatalf("expected 60, got %d", got)
	}
	if got := billableSeconds(61, 0, 60); got != 120 {
		t.Fatalf("expected 120, got %d", got)
	}

	// min billable seconds
	if got := billableSeconds(5, 30, 60); got != 60 {
		t.Fatalf("expected 60, got %d", got)
	}
	if got := billableSeconds(7, 0, 1); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}

func TestCleanDigits(t *testing.T) {
	if got := CleanDigits("+1 (415) 555-1234"); got != "14155551234" {
		t.Fatalf("unexpected digits %q", got)
	}
}
