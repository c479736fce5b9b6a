package webhook

import "errors"

var (
	// ErrUnauthorized means the gateway rejected the notification signature.
	ErrUnauthorized = errors.New("webhook signature verification failed")
	// ErrBadPayload means the notification body or headers are malformed.
	ErrBadPayload = errors.New("malformed webhook payload")
)
