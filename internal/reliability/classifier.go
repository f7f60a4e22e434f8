package reliability

import (
	"context"
	"errors"
)

// Class labels a failure for metrics and logs. Nothing in the service retries;
// the label only records whether a retry could have helped.
type Class string

const (
	ClassRetryable Class = "retryable"
	ClassPermanent Class = "permanent"
	ClassCanceled  Class = "canceled"
	ClassTimeout   Class = "timeout"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

type statusCarrier interface {
	error
	HTTPStatus() int
}

// Classify labels err. Errors exposing an HTTP status are classified by it;
// errors without one are treated as transport failures and labelled
// retryable.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return ClassCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	}
	var sc statusCarrier
	if errors.As(err, &sc) && sc.HTTPStatus() > 0 {
		if IsRetryableHTTPStatus(sc.HTTPStatus()) {
			return ClassRetryable
		}
		return ClassPermanent
	}
	return ClassRetryable
}
