package orders

import (
	"encoding/base32"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	numberPrefix     = "LK"
	numberSuffixLen  = 6
	crockfordDigits  = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
	numberDateLayout = "060102"
)

var crockford = base32.NewEncoding(crockfordDigits).WithPadding(base32.NoPadding)

// NumberSource produces a candidate order number for the given instant.
type NumberSource func(now time.Time) string

// NewNumber renders LK-YYMMDD-XXXXXX using the UTC date and six Crockford
// base32 characters drawn from a random UUID.
func NewNumber(now time.Time) string {
	id := uuid.New()
	suffix := crockford.EncodeToString(id[:4])[:numberSuffixLen]
	return strings.Join([]string{numberPrefix, now.UTC().Format(numberDateLayout), suffix}, "-")
}

// ValidNumber reports whether s has the order number shape.
func ValidNumber(s string) bool {
	parts := strings.Split(s, "-")
	if len(parts) != 3 || parts[0] != numberPrefix {
		return false
	}
	if _, err := time.Parse(numberDateLayout, parts[1]); err != nil {
		return false
	}
	if len(parts[2]) != numberSuffixLen {
		return false
	}
	for _, r := range parts[2] {
		if !strings.ContainsRune(crockfordDigits, r) {
			return false
		}
	}
	return true
}
