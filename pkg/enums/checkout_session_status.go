package enums

// CheckoutSessionStatus tracks a hosted payment attempt awaiting the
// provider's notification. Every status but open is terminal.
type CheckoutSessionStatus string

const (
	CheckoutSessionOpen      CheckoutSessionStatus = "open"
	CheckoutSessionCompleted CheckoutSessionStatus = "completed"
	CheckoutSessionFailed    CheckoutSessionStatus = "failed"
	CheckoutSessionCancelled CheckoutSessionStatus = "cancelled"
)

func (s CheckoutSessionStatus) String() string { return string(s) }

func (s CheckoutSessionStatus) IsValid() bool {
	switch s {
	case CheckoutSessionOpen, CheckoutSessionCompleted, CheckoutSessionFailed, CheckoutSessionCancelled:
		return true
	}
	return false
}

func (s CheckoutSessionStatus) IsTerminal() bool {
	return s != CheckoutSessionOpen
}

func ParseCheckoutSessionStatus(value string) (CheckoutSessionStatus, error) {
	return parse[CheckoutSessionStatus]("checkout session status", value)
}
