package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"quizqa/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrPermanent, "openrouter", "evaluate", "bad request", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"openrouter", "evaluate", "bad request"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestKindOfUsesTagsOnly(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want services.Kind
	}{
		{"nil", nil, ""},
		{"throttled", services.Wrap(services.ErrThrottled, "a", "b", "429", nil), services.KindThrottled},
		{"transient", services.Wrap(services.ErrTransient, "a", "b", "timeout", nil), services.KindTransient},
		{"malformed", services.Wrap(services.ErrMalformed, "a", "b", "junk", nil), services.KindMalformed},
		{"permanent", services.Wrap(services.ErrPermanent, "a", "b", "400", nil), services.KindPermanent},
		{"untagged mentioning 429", errors.New("http 429 rate limit"), services.KindPermanent},
		{"canceled", fmt.Errorf("call: %w", context.Canceled), services.KindCanceled},
		{"transient wrapping deadline", services.Wrap(services.ErrTransient, "a", "b", "", context.DeadlineExceeded), services.KindTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.KindOf(tc.err); got != tc.want {
				t.Fatalf("KindOf = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestThrottledIsTransient(t *testing.T) {
	if !errors.Is(services.ErrThrottled, services.ErrTransient) {
		t.Fatal("throttled errors should also match ErrTransient")
	}
	if !services.KindThrottled.Retryable() || !services.KindTransient.Retryable() {
		t.Fatal("throttled and transient kinds must be retryable")
	}
	if services.KindPermanent.Retryable() || services.KindMalformed.Retryable() {
		t.Fatal("permanent and malformed kinds must not be retryable")
	}
}

func TestRetryAfterHint(t *testing.T) {
	base := services.Wrap(services.ErrThrottled, "anthropic", "evaluate", "rate limited", nil)
	err := services.WithRetryAfter(base, 3*time.Second)
	after, ok := services.RetryAfter(fmt.Errorf("outer: %w", err))
	if !ok || after != 3*time.Second {
		t.Fatalf("RetryAfter = %v, %v", after, ok)
	}
	if services.KindOf(err) != services.KindThrottled {
		t.Fatalf("hint must not hide the tag, got %q", services.KindOf(err))
	}
	if services.WithRetryAfter(base, 0) != base {
		t.Fatal("zero delay should return the original error")
	}
}
