package enums

// Currency is an ISO-4217 code. Amounts are stored in the minor unit.
type Currency string

const (
	CurrencyINR Currency = "INR"
)

func (c Currency) String() string {
	return string(c)
}
