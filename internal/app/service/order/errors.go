package order

import "errors"

var (
	// ErrInvalidTier means the requested tier is not in the price table.
	ErrInvalidTier = errors.New("invalid premium tier")
	// ErrMissingIdempotencyKey means the client sent no retry token.
	ErrMissingIdempotencyKey = errors.New("missing idempotency key")
	// ErrEmailNotVerified means the user has not proven their identity yet.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrRateLimited means the user exhausted the order-creation window.
	ErrRateLimited = errors.New("too many payment attempts")
	// ErrAlreadyEntitled means the user already holds an unexpired entitlement.
	ErrAlreadyEntitled = errors.New("user already entitled")
	// ErrGateway wraps any failure talking to the payment gateway.
	ErrGateway = errors.New("payment gateway error")
	// ErrAlreadyCaptured means the gateway reports the order was captured by
	// an earlier call; the local ledger row carries the authoritative result.
	ErrAlreadyCaptured = errors.New("order already captured at gateway")
	// ErrNotFound means no order exists for the user and gateway order id.
	ErrNotFound = errors.New("order not found")
	// ErrAlreadyProcessed means the order already left the pending state.
	ErrAlreadyProcessed = errors.New("order already processed")
	// ErrAmountMismatch means the gateway charged a different amount than the
	// price table demands for the order's tier.
	ErrAmountMismatch = errors.New("charged amount does not match plan price")
)
