package domain

import (
	"fmt"
	"strings"
)

// Venue identifies an exchange, e.g. "coinex", "nobitex", "wallex".
type Venue string

// Quote currencies used across the supported venues.
const (
	QuoteUSDT = "USDT"
	QuoteTMN  = "TMN"
)

// Symbol is the canonical BASE/QUOTE identifier used internally after
// normalization. Exactly one canonical form exists per economically
// equivalent instrument across venues.
type Symbol struct {
	Base  string
	Quote string
}

// ParseSymbol parses a "BASE/QUOTE" string into a Symbol.
func ParseSymbol(s string) (Symbol, error) {
	base, quote, ok := strings.Cut(s, "/")
	if !ok || base == "" || quote == "" {
		return Symbol{}, fmt.Errorf("invalid symbol %q", s)
	}
	return Symbol{Base: base, Quote: quote}, nil
}

// String returns the canonical "BASE/QUOTE" form.
func (s Symbol) String() string {
	return s.Base + "/" + s.Quote
}

// WithQuote returns a copy of the symbol re-quoted in another currency.
// Used when deriving synthetic TMN symbols from USDT ones.
func (s Symbol) WithQuote(quote string) Symbol {
	return Symbol{Base: s.Base, Quote: quote}
}

// IsZero reports whether the symbol is the empty value.
func (s Symbol) IsZero() bool {
	return s.Base == "" && s.Quote == ""
}
