package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Status enumerates the normalised payment states reported by the gateway.
type Status string

const (
	// StatusPending indicates the charge is awaiting customer action or gateway confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the gateway reports the charge as captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the gateway reports a terminal failure.
	StatusFailed Status = "failed"
)

var (
	// ErrNotConfigured is returned when no gateway credentials are configured.
	ErrNotConfigured = errors.New("payments: gateway not configured")
	// ErrCredentialFormat is returned when the configured API key is malformed.
	ErrCredentialFormat = errors.New("payments: invalid gateway credential format")
	// ErrAuthenticationFailed is returned when the gateway rejects the configured credentials.
	ErrAuthenticationFailed = errors.New("payments: gateway authentication failed")
	// ErrUnavailable is returned when the gateway cannot be reached or the
	// circuit breaker is open.
	ErrUnavailable = errors.New("payments: gateway unavailable")
)

// RequestError wraps a gateway rejection that is neither a credential nor an
// availability problem.
type RequestError struct {
	Code        string
	Description string
	StatusCode  int
	Err         error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("payments: gateway request failed (%s): %s", e.Code, e.Description)
	}
	return fmt.Sprintf("payments: gateway request failed (%s)", e.Code)
}

// Unwrap exposes the underlying gateway error.
func (e *RequestError) Unwrap() error { return e.Err }

// IntentRequest captures the payload required to open a charge with the gateway.
type IntentRequest struct {
	Amount     int64
	Currency   string
	ReceiptRef string
	Metadata   map[string]string
}

// Intent represents the external charge reference returned to the client so
// it can complete payment.
type Intent struct {
	ID       string
	Amount   int64
	Currency string
	Status   Status
}

// Gateway defines the contract for payment gateway adapters.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
}

// VerifyCallbackSignature checks a payment callback signature: an
// HMAC-SHA256 hex digest over "<intentID>|<paymentID>" keyed with the shared
// callback secret. The comparison is constant time.
func VerifyCallbackSignature(intentID, paymentID, signature, secret string) bool {
	if strings.TrimSpace(secret) == "" || strings.TrimSpace(signature) == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s|%s", intentID, paymentID)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}

// ValidateAPIKey rejects keys that are missing, carry an unexpected prefix,
// or still hold a placeholder value from an env template.
func ValidateAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrNotConfigured
	}
	if strings.Contains(key, "your_") {
		return fmt.Errorf("%w: placeholder value", ErrCredentialFormat)
	}
	for _, prefix := range []string{"sk_test_", "sk_live_", "rk_test_", "rk_live_"} {
		if strings.HasPrefix(key, prefix) {
			return nil
		}
	}
	return fmt.Errorf("%w: unexpected key prefix", ErrCredentialFormat)
}
