package types

import (
	"fmt"
	"strings"
)

// Address is the delivery address snapshot stored on orders and checkout
// intents as JSONB. It is copied from the address book, never referenced.
type Address struct {
	Name       string  `json:"name"`
	Phone      string  `json:"phone"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
}

// Validate reports the first missing required field.
func (a Address) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"name", a.Name},
		{"line1", a.Line1},
		{"city", a.City},
		{"state", a.State},
		{"postal_code", a.PostalCode},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("address: missing %s", r.field)
		}
	}
	return nil
}
