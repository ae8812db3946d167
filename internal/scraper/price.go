package scraper

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	errEmptyPrice    = errors.New("empty price")
	errNegativePrice = errors.New("negative price")
)

// ParsePrice strips the currency symbol prefix and thousands separators from
// text and parses the rest as a non-negative decimal.
func ParsePrice(text, symbol string) (decimal.Decimal, error) {
	s := strings.TrimSpace(text)
	if symbol != "" {
		s = strings.TrimPrefix(s, symbol)
	}
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return decimal.Zero, &ParseError{Input: text, Err: errEmptyPrice}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ParseError{Input: text, Err: err}
	}
	if d.IsNegative() {
		return decimal.Zero, &ParseError{Input: text, Err: errNegativePrice}
	}
	return d, nil
}
