package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 code from the supported set.
type Currency string

const (
	NGN Currency = "NGN"
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
)

// Scale is the number of decimal places an amount may carry.
const Scale = 2

// MaxIntegerDigits bounds the integer part of an amount so it fits NUMERIC(20,2).
const MaxIntegerDigits = 18

// maxCoefficientDigits allows trailing zeros after the cents ("1.000") but
// nothing that makes rescaling expensive.
const maxCoefficientDigits = 40

var (
	// ErrUnsupportedCurrency is returned for codes outside the supported set.
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	// ErrInvalidAmount is returned for non-positive amounts or amounts with too many decimals.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrAmountOutOfRange is returned for amounts too large or too precise to store.
	ErrAmountOutOfRange = fmt.Errorf("%w: out of range", ErrInvalidAmount)
)

var symbols = map[Currency]string{
	NGN: "₦",
	USD: "$",
	EUR: "€",
	GBP: "£",
}

// Supported lists every currency an account holds a balance in, in a stable order.
func Supported() []Currency {
	return []Currency{NGN, USD, EUR, GBP}
}

// ParseCurrency normalises and validates a currency code.
func ParseCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if _, ok := symbols[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCurrency, code)
	}
	return c, nil
}

// Valid reports whether c is in the supported set.
func (c Currency) Valid() bool {
	_, ok := symbols[c]
	return ok
}

// Symbol returns the display symbol for c.
func (c Currency) Symbol() string {
	return symbols[c]
}

// ParseAmount parses a decimal string into a positive amount with at most two decimals.
func ParseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Decimal{}, err
	}
	return d, nil
}

// CheckRange rejects amounts whose exponent or digit count would not fit the
// store. It only inspects the exponent and coefficient, never rescales.
func CheckRange(d decimal.Decimal) error {
	exp := int(d.Exponent())
	if exp < -maxCoefficientDigits || exp > MaxIntegerDigits {
		return ErrAmountOutOfRange
	}
	// 10^40 needs 133 bits; anything wider is rejected before counting digits.
	if d.Coefficient().BitLen() > 133 {
		return ErrAmountOutOfRange
	}
	digits := d.NumDigits()
	if digits > maxCoefficientDigits || digits+exp > MaxIntegerDigits {
		return ErrAmountOutOfRange
	}
	return nil
}

// ValidateAmount checks that d is strictly positive, within CheckRange and has
// at most Scale decimal places.
func ValidateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if err := CheckRange(d); err != nil {
		return err
	}
	if !d.Equal(d.Truncate(Scale)) {
		return fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, Scale)
	}
	return nil
}

// Format renders an amount for people, e.g. "$1500.00". Never parse this back.
func Format(c Currency, d decimal.Decimal) string {
	return symbols[c] + d.StringFixed(Scale)
}
