package enums

import (
	"fmt"
	"strings"
)

// Currency is an ISO 4217 code. Amounts are always stored in minor units.
type Currency string

const CurrencyLKR Currency = "LKR"

func (c Currency) String() string {
	return string(c)
}

func (c Currency) IsValid() bool {
	return c == CurrencyLKR
}

// MinorUnits is the number of decimal places between the major and minor
// unit, 2 for rupees and cents.
func (c Currency) MinorUnits() int32 {
	return 2
}

// ParseCurrency accepts any casing and surrounding space.
func ParseCurrency(value string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(value)))
	if !c.IsValid() {
		return "", fmt.Errorf("unsupported currency %q", value)
	}
	return c, nil
}
