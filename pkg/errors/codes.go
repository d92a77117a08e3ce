package errors

import "net/http"

// Code is the stable, client-facing identifier of an error class.
type Code string

// Generic request and platform failures.
const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Storefront failures surfaced by cart, pricing and checkout.
const (
	CodeInvalidQuantity      Code = "INVALID_QUANTITY"
	CodeOutOfStock           Code = "OUT_OF_STOCK"
	CodeInsufficientStock    Code = "INSUFFICIENT_STOCK"
	CodeStockChanged         Code = "STOCK_CHANGED"
	CodeShippingUnavailable  Code = "SHIPPING_UNAVAILABLE"
	CodeNoShippingRate       Code = "NO_SHIPPING_RATE"
	CodeInvalidPaymentMethod Code = "INVALID_PAYMENT_METHOD"
	CodeInvalidSignature     Code = "INVALID_SIGNATURE"
	CodeTransactionAborted   Code = "TRANSACTION_ABORTED"

	// CodeDuplicateIdempotencyToken marks a lost race on the orders unique
	// index. Callers resolve it to the winning order; it never reaches HTTP.
	CodeDuplicateIdempotencyToken Code = "DUPLICATE_IDEMPOTENCY_TOKEN"
)

// Metadata describes how a code is rendered to clients.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	transient = true
	detailed  = true
)

var catalog = map[Code]Metadata{
	CodeValidation:    {http.StatusBadRequest, false, "validation failed", detailed},
	CodeUnauthorized:  {http.StatusUnauthorized, false, "authentication required", false},
	CodeForbidden:     {http.StatusForbidden, false, "access denied", false},
	CodeNotFound:      {http.StatusNotFound, false, "resource not found", false},
	CodeConflict:      {http.StatusConflict, false, "conflict detected", false},
	CodeStateConflict: {http.StatusUnprocessableEntity, false, "state transition disallowed", detailed},
	CodeIdempotency:   {http.StatusConflict, false, "idempotency key reused", detailed},
	CodeRateLimit:     {http.StatusTooManyRequests, false, "rate limit exceeded", false},
	CodeInternal:      {http.StatusInternalServerError, transient, "internal server error", false},
	CodeDependency:    {http.StatusServiceUnavailable, transient, "dependency unavailable", detailed},

	CodeInvalidQuantity:           {http.StatusUnprocessableEntity, false, "invalid quantity", detailed},
	CodeOutOfStock:                {http.StatusConflict, false, "item is out of stock", detailed},
	CodeInsufficientStock:         {http.StatusConflict, false, "not enough stock", detailed},
	CodeStockChanged:              {http.StatusConflict, false, "stock changed since the cart was priced", detailed},
	CodeShippingUnavailable:       {http.StatusUnprocessableEntity, false, "shipping is not available to this address", detailed},
	CodeNoShippingRate:            {http.StatusUnprocessableEntity, false, "no shipping rate applies to this order", detailed},
	CodeInvalidPaymentMethod:      {http.StatusBadRequest, false, "invalid payment method", detailed},
	CodeInvalidSignature:          {http.StatusUnauthorized, false, "invalid signature", false},
	CodeTransactionAborted:        {http.StatusServiceUnavailable, transient, "please try again", false},
	CodeDuplicateIdempotencyToken: {http.StatusConflict, transient, "request already processed", false},
}

// MetadataFor returns the rendering rules for code. Unknown codes render as
// internal errors.
func MetadataFor(code Code) Metadata {
	if meta, ok := catalog[code]; ok {
		return meta
	}
	return catalog[CodeInternal]
}

// Known reports whether code is registered.
func (c Code) Known() bool {
	_, ok := catalog[c]
	return ok
}
