package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// AddressSnapshot is the copy of a shopper address frozen onto an order.
// It is stored as a JSON document so later address book edits never alter
// historical orders.
type AddressSnapshot struct {
	Recipient  string  `json:"recipient"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	District   string  `json:"district"`
	PostalCode string  `json:"postal_code,omitempty"`
	Phone      string  `json:"phone,omitempty"`
}

// Value marshals the snapshot into JSON.
func (a AddressSnapshot) Value() (driver.Value, error) {
	if strings.TrimSpace(a.Line1) == "" {
		return nil, fmt.Errorf("address: missing line1")
	}
	if strings.TrimSpace(a.District) == "" {
		return nil, fmt.Errorf("address: missing district")
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("address: marshal %w", err)
	}
	return string(raw), nil
}

// Scan decodes the JSON document.
func (a *AddressSnapshot) Scan(value interface{}) error {
	if value == nil {
		*a = AddressSnapshot{}
		return nil
	}

	raw, ok := toString(value)
	if !ok {
		return fmt.Errorf("address: unsupported scan type %T", value)
	}
	if strings.TrimSpace(raw) == "" {
		*a = AddressSnapshot{}
		return nil
	}
	if err := json.Unmarshal([]byte(raw), a); err != nil {
		return fmt.Errorf("address: unmarshal %w", err)
	}
	return nil
}

func toString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case fmt.Stringer:
		return v.String(), true
	default:
		return "", false
	}
}
