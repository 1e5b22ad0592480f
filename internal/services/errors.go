package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrTransient     = errors.New("transient failure")
	ErrThrottled     = fmt.Errorf("throttled: %w", ErrTransient)
	ErrMalformed     = errors.New("malformed response")
	ErrPermanent     = errors.New("permanent failure")
	ErrConfiguration = errors.New("configuration error")
	ErrStorage       = errors.New("storage error")
	ErrUnavailable   = errors.New("backend unavailable")
)

// Kind is the retry-relevant classification of an error.
type Kind string

const (
	KindThrottled Kind = "throttled"
	KindTransient Kind = "transient"
	KindMalformed Kind = "malformed"
	KindPermanent Kind = "permanent"
	KindCanceled  Kind = "canceled"
)

// Retryable reports whether the backoff controller may try again.
func (k Kind) Retryable() bool {
	return k == KindThrottled || k == KindTransient
}

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrPermanent
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf classifies err using only its tags. Untagged errors are permanent:
// backend adapters are responsible for tagging anything worth retrying.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		if errors.Is(err, ErrTransient) {
			return kindOfTransient(err)
		}
		return KindCanceled
	case errors.Is(err, ErrTransient):
		return kindOfTransient(err)
	case errors.Is(err, ErrMalformed):
		return KindMalformed
	default:
		return KindPermanent
	}
}

func kindOfTransient(err error) Kind {
	if errors.Is(err, ErrThrottled) {
		return KindThrottled
	}
	return KindTransient
}

// RetryHint carries a server-provided delay (for example Retry-After) alongside
// a tagged error.
type RetryHint struct {
	After time.Duration
	Err   error
}

func (h *RetryHint) Error() string {
	if h.Err == nil {
		return fmt.Sprintf("retry after %s", h.After)
	}
	return h.Err.Error()
}

func (h *RetryHint) Unwrap() error { return h.Err }

// WithRetryAfter attaches a server delay hint to err. A non-positive delay
// returns err unchanged.
func WithRetryAfter(err error, after time.Duration) error {
	if err == nil || after <= 0 {
		return err
	}
	return &RetryHint{After: after, Err: err}
}

// RetryAfter extracts the delay hint from err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var hint *RetryHint
	if errors.As(err, &hint) && hint.After > 0 {
		return hint.After, true
	}
	return 0, false
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
