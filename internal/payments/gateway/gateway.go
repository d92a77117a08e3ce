// Package gateway builds hosted payment redirects and verifies the
// provider's server-to-server notifications.
package gateway

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/lankacart-backend/pkg/config"
	"github.com/angelmondragon/lankacart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lankacart-backend/pkg/errors"
)

// Status codes sent in the notification's status_code field.
const (
	StatusSuccess     = 2
	StatusPending     = 0
	StatusCancelled   = -1
	StatusFailed      = -2
	StatusChargedBack = -3
)

// Provider is implemented by both the configured and the unconfigured
// gateway so callers never branch on nil.
type Provider interface {
	Configured() bool
	BuildCheckout(req CheckoutRequest) (*CheckoutForm, error)
	VerifyNotification(n Notification) error
}

// Customer is the payer block of the hosted form.
type Customer struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Address   string
	City      string
	Country   string
}

// CheckoutRequest describes one hosted payment attempt.
type CheckoutRequest struct {
	Reference   string
	Description string
	AmountCents int64
	Currency    enums.Currency
	Customer    Customer
}

// CheckoutForm is posted by the browser to the provider.
type CheckoutForm struct {
	Action string            `json:"action"`
	Fields map[string]string `json:"fields"`
}

// Notification is the provider's asynchronous payment status callback.
type Notification struct {
	MerchantID    string
	Reference     string
	ProviderTxnID string
	Amount        string
	Currency      string
	StatusCode    int
	Signature     string
	Method        string
	StatusMessage string
}

// New returns the PayHere client when credentials are present and an
// unconfigured stand-in otherwise.
func New(cfg config.PayHereConfig) Provider {
	if !cfg.Configured() {
		return NotConfigured{}
	}
	return &PayHere{cfg: cfg}
}

// PayHere signs redirects and notifications with the merchant secret.
type PayHere struct {
	cfg config.PayHereConfig
}

func (p *PayHere) Configured() bool { return true }

func (p *PayHere) BuildCheckout(req CheckoutRequest) (*CheckoutForm, error) {
	if strings.TrimSpace(req.Reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	if req.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}
	currency := req.Currency
	if currency == "" {
		currency = enums.CurrencyLKR
	}
	amount := FormatAmount(req.AmountCents)
	country := req.Customer.Country
	if country == "" {
		country = "Sri Lanka"
	}

	fields := map[string]string{
		"merchant_id": p.cfg.MerchantID,
		"return_url":  p.cfg.ReturnURL,
		"cancel_url":  p.cfg.CancelURL,
		"notify_url":  p.cfg.NotifyURL,
		"order_id":    req.Reference,
		"items":       req.Description,
		"currency":    currency.String(),
		"amount":      amount,
		"first_name":  req.Customer.FirstName,
		"last_name":   req.Customer.LastName,
		"email":       req.Customer.Email,
		"phone":       req.Customer.Phone,
		"address":     req.Customer.Address,
		"city":        req.Customer.City,
		"country":     country,
		"hash":        p.checkoutHash(req.Reference, amount, currency.String()),
	}
	return &CheckoutForm{Action: p.cfg.CheckoutURL, Fields: fields}, nil
}

// VerifyNotification checks the merchant id and the md5sig of a callback.
// The amount is signed exactly as received.
func (p *PayHere) VerifyNotification(n Notification) error {
	if n.MerchantID != p.cfg.MerchantID {
		return pkgerrors.New(pkgerrors.CodeInvalidSignature, "merchant mismatch")
	}
	expected := upperMD5(
		n.MerchantID +
			n.Reference +
			n.Amount +
			n.Currency +
			strconv.Itoa(n.StatusCode) +
			upperMD5(p.cfg.MerchantSecret),
	)
	got := strings.ToUpper(strings.TrimSpace(n.Signature))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
		return pkgerrors.New(pkgerrors.CodeInvalidSignature, "signature mismatch")
	}
	return nil
}

func (p *PayHere) checkoutHash(reference, amount, currency string) string {
	return upperMD5(p.cfg.MerchantID + reference + amount + currency + upperMD5(p.cfg.MerchantSecret))
}

// NotConfigured rejects every operation with a dependency error.
type NotConfigured struct{}

func (NotConfigured) Configured() bool { return false }

func (NotConfigured) BuildCheckout(CheckoutRequest) (*CheckoutForm, error) {
	return nil, errNotConfigured()
}

func (NotConfigured) VerifyNotification(Notification) error {
	return errNotConfigured()
}

func errNotConfigured() error {
	return pkgerrors.New(pkgerrors.CodeDependency, "payment gateway is not configured")
}

func upperMD5(s string) string {
	sum := md5.Sum([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// FormatAmount renders minor units with two decimals, e.g. 150000 -> "1500.00".
func FormatAmount(cents int64) string {
	exp := enums.CurrencyLKR.MinorUnits()
	return decimal.New(cents, -exp).StringFixed(exp)
}

// ParseAmountCents converts a provider amount such as "1500.00" to minor units.
func ParseAmountCents(amount string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	cents := d.Shift(enums.CurrencyLKR.MinorUnits())
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has sub-cent precision", amount)
	}
	return cents.IntPart(), nil
}
