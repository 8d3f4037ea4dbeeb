package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// GatewayLogger defines the logging contract for gateway operations.
type GatewayLogger func(ctx context.Context, event string, fields map[string]any)

type stripeIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeGatewayConfig configures the StripeGateway.
type StripeGatewayConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   GatewayLogger
	Clock    func() time.Time

	// Intents overrides the Stripe client for tests.
	Intents stripeIntentAPI
}

// StripeGateway implements the Gateway interface on top of Stripe
// PaymentIntents. All calls run behind a circuit breaker so a degraded
// gateway fails fast instead of tying up request workers.
type StripeGateway struct {
	intents stripeIntentAPI
	clock   func() time.Time
	logger  GatewayLogger
	breaker *gobreaker.CircuitBreaker[Intent]
}

// NewStripeGateway validates the credentials and constructs a StripeGateway.
func NewStripeGateway(cfg StripeGatewayConfig) (*StripeGateway, error) {
	intents := cfg.Intents
	if intents == nil {
		if err := ValidateAPIKey(cfg.APIKey); err != nil {
			return nil, err
		}
		sc := client.New(strings.TrimSpace(cfg.APIKey), cfg.Backends)
		intents = sc.PaymentIntents
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	breaker := gobreaker.NewCircuitBreaker[Intent](gobreaker.Settings{
		Name:    "stripe-intents",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Client-side rejections must not trip the breaker.
			if err == nil {
				return true
			}
			var reqErr *RequestError
			return errors.As(err, &reqErr) && reqErr.StatusCode < http.StatusInternalServerError
		},
	})

	return &StripeGateway{
		intents: intents,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger:  logger,
		breaker: breaker,
	}, nil
}

// CreateIntent opens a payment intent for the requested amount.
func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if g == nil {
		return Intent{}, ErrNotConfigured
	}

	intent, err := g.breaker.Execute(func() (Intent, error) {
		return g.createIntent(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Intent{}, fmt.Errorf("%w: circuit open", ErrUnavailable)
		}
		return Intent{}, err
	}
	return intent, nil
}

func (g *StripeGateway) createIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
	}
	params.Context = ctx
	if ref := strings.TrimSpace(req.ReceiptRef); ref != "" {
		params.Description = stripe.String(ref)
	}
	metadata := make(map[string]string, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	if ref := strings.TrimSpace(req.ReceiptRef); ref != "" {
		metadata["receipt"] = ref
	}
	if len(metadata) > 0 {
		params.Metadata = metadata
	}

	intent, err := g.intents.New(params)
	if err != nil {
		return Intent{}, mapStripeError(err)
	}

	g.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
		"currency":      intent.Currency,
	})

	return Intent{
		ID:       intent.ID,
		Amount:   intent.Amount,
		Currency: strings.ToLower(string(intent.Currency)),
		Status:   stripeIntentStatus(intent.Status),
	}, nil
}

func stripeIntentStatus(status stripe.PaymentIntentStatus) Status {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return StatusFailed
	default:
		return StatusPending
	}
}

func mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if stripeErr.HTTPStatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", ErrAuthenticationFailed, stripeErr.Msg)
	}
	return &RequestError{
		Code:        string(stripeErr.Code),
		Description: stripeErr.Msg,
		StatusCode:  stripeErr.HTTPStatusCode,
		Err:         err,
	}
}
