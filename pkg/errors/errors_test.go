package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStorefrontCodesRender(t *testing.T) {
	cases := map[Code]struct {
		status    int
		retryable bool
		details   bool
	}{
		CodeValidation:                {http.StatusBadRequest, false, true},
		CodeUnauthorized:              {http.StatusUnauthorized, false, false},
		CodeStateConflict:             {http.StatusUnprocessableEntity, false, true},
		CodeDependency:                {http.StatusServiceUnavailable, true, true},
		CodeOutOfStock:                {http.StatusConflict, false, true},
		CodeStockChanged:              {http.StatusConflict, false, true},
		CodeShippingUnavailable:       {http.StatusUnprocessableEntity, false, true},
		CodeInvalidSignature:          {http.StatusUnauthorized, false, false},
		CodeTransactionAborted:        {http.StatusServiceUnavailable, true, false},
		CodeDuplicateIdempotencyToken: {http.StatusConflict, true, false},
	}
	for code, want := range cases {
		meta := MetadataFor(code)
		if meta.HTTPStatus != want.status || meta.Retryable != want.retryable || meta.DetailsAllowed != want.details {
			t.Fatalf("%s: got %+v", code, meta)
		}
		if meta.PublicMessage == "" {
			t.Fatalf("%s: missing public message", code)
		}
	}
}

func TestUnknownCodeRendersAsInternal(t *testing.T) {
	if Code("NOPE").Known() {
		t.Fatal("unexpected known code")
	}
	if got := MetadataFor("NOPE"); got != MetadataFor(CodeInternal) {
		t.Fatalf("got %+v", got)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stdErrors.New("connection reset")
	err := Wrap(CodeDependency, cause, "load catalog")
	if !stdErrors.Is(err, cause) {
		t.Fatal("cause lost")
	}
	if got, want := err.Error(), "DEPENDENCY_ERROR: load catalog: connection reset"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if Wrap(CodeInternal, nil, "x").Unwrap() != nil {
		t.Fatal("nil cause should stay nil")
	}
}

func TestNewfAndDetails(t *testing.T) {
	err := Newf(CodeInsufficientStock, "Only %d left", 2).WithDetails(map[string]int{"available": 2})
	if err.Message() != "Only 2 left" {
		t.Fatalf("message = %q", err.Message())
	}
	if err.Details() == nil {
		t.Fatal("details dropped")
	}
	var nilErr *Error
	if nilErr.WithDetails("x") != nil || nilErr.Code() != CodeInternal || nilErr.Error() != "" {
		t.Fatal("nil receiver should be inert")
	}
}

func TestCodeMatchingThroughChain(t *testing.T) {
	err := fmt.Errorf("place order: %w", New(CodeStockChanged, "only 1 left"))

	if !IsCode(err, CodeStockChanged) || IsCode(err, CodeOutOfStock) || IsCode(nil, CodeStockChanged) {
		t.Fatal("IsCode mismatch")
	}
	if !stdErrors.Is(err, New(CodeStockChanged, "")) {
		t.Fatal("errors.Is should match by code")
	}
	if stdErrors.Is(err, New(CodeNotFound, "")) {
		t.Fatal("errors.Is matched a different code")
	}
	if As(err) == nil || As(stdErrors.New("plain")) != nil || As(nil) != nil {
		t.Fatal("As mismatch")
	}
}

func TestRetryableAndStatusOf(t *testing.T) {
	tests := []struct {
		err       error
		retryable bool
		status    int
	}{
		{nil, false, http.StatusInternalServerError},
		{stdErrors.New("socket closed"), true, http.StatusInternalServerError},
		{New(CodeValidation, "bad"), false, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", New(CodeTransactionAborted, "abort")), true, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		if got := Retryable(tt.err); got != tt.retryable {
			t.Fatalf("Retryable(%v) = %v", tt.err, got)
		}
		if got := StatusOf(tt.err); got != tt.status {
			t.Fatalf("StatusOf(%v) = %d", tt.err, got)
		}
	}
}
