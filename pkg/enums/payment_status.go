package enums

// PaymentStatus is the settlement state of an order. Cash on delivery
// orders stay unpaid until fulfilment; PayHere orders are created paid.
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

func (p PaymentStatus) String() string {
	return string(p)
}

func (p PaymentStatus) IsValid() bool {
	switch p {
	case PaymentStatusUnpaid, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// Settled reports whether money has been captured for the order.
func (p PaymentStatus) Settled() bool {
	return p == PaymentStatusPaid
}

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return parse[PaymentStatus]("payment status", value)
}
