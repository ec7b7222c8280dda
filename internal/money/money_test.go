package money

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency(" usd ")
	if err != nil {
		t.Fatalf("parse usd: %v", err)
	}
	if c != USD {
		t.Fatalf("expected USD, got %s", c)
	}

	if _, err := ParseCurrency("JPY"); !errors.Is(err, ErrUnsupportedCurrency) {
		t.Fatalf("expected unsupported currency, got %v", err)
	}
}

func TestParseAmount(t *testing.T) {
	cases := map[string]bool{
		"10":     true,
		"10.5":   true,
		"0.01":   true,
		"0":      false,
		"-1":     false,
		"1.001":  false,
		"abc":    false,
		"1e3":    true,
		"   7  ": true,
		"1.000":  true,
	}
	for raw, ok := range cases {
		_, err := ParseAmount(raw)
		if ok && err != nil {
			t.Fatalf("%q: unexpected error %v", raw, err)
		}
		if !ok && !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q: expected invalid amount, got %v", raw, err)
		}
	}
}

func TestFormat(t *testing.T) {
	if got := Format(NGN, decimal.NewFromInt(1500)); got != "₦1500.00" {
		t.Fatalf("unexpected NGN format %q", got)
	}
	if got := Format(GBP, decimal.RequireFromString("3.5")); got != "£3.50" {
		t.Fatalf("unexpected GBP format %q", got)
	}
}

func TestAmountRange(t *testing.T) {
	cases := []struct {
		raw string
		ok  bool
	}{
		{raw: "999999999999999999.99", ok: true},
		{raw: "1000000000000000000", ok: false},
		{raw: "1e18", ok: false},
		{raw: "1e9000000", ok: false},
		{raw: "1e2000000000", ok: false},
		{raw: "1e-9000000", ok: false},
		{raw: "0." + strings.Repeat("0", 100) + "1", ok: false},
		{raw: "1." + strings.Repeat("0", 100), ok: false},
	}
	for _, tc := range cases {
		var d decimal.Decimal
		if err := json.Unmarshal([]byte(`"`+tc.raw+`"`), &d); err != nil {
			t.Fatalf("unmarshal %.20s: %v", tc.raw, err)
		}
		err := ValidateAmount(d)
		if tc.ok && err != nil {
			t.Fatalf("%.20s: unexpected error %v", tc.raw, err)
		}
		if !tc.ok && !errors.Is(err, ErrAmountOutOfRange) {
			t.Fatalf("%.20s: expected out of range, got %v", tc.raw, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%.20s: out of range must still be an invalid amount", tc.raw)
		}
	}
}
