package runner

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"
)

var fastRetry = RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxJitter: time.Millisecond}

func TestWithRetryTransientThenSuccess(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastRetry, func(context.Context) error {
		calls++
		if calls <= 2 {
			return RateLimited(errors.New("429 from model API"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestWithRetryFatalFailsImmediately(t *testing.T) {
	calls := 0
	cause := errors.New("document is not a PDF")
	err := WithRetry(context.Background(), fastRetry, func(context.Context) error {
		calls++
		return Fatal(cause)
	})
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected cause to propagate, got %v", err)
	}
}

func TestWithRetryExhaustsRetries(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxJitter: time.Millisecond}, func(context.Context) error {
		calls++
		return ServerUnavailable(fmt.Errorf("upstream 503"))
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3 (initial + 2 retries)", calls)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"tagged rate limit", RateLimited(errors.New("x")), ClassRateLimited},
		{"tagged unavailable", ServerUnavailable(errors.New("x")), ClassServerUnavailable},
		{"tagged reset", NetworkReset(errors.New("x")), ClassNetworkReset},
		{"tagged fatal", Fatal(errors.New("x")), ClassFatal},
		{"wrapped tag", fmt.Errorf("call failed: %w", RateLimited(errors.New("x"))), ClassRateLimited},
		{"raw econnreset", fmt.Errorf("read: %w", syscall.ECONNRESET), ClassNetworkReset},
		{"plain error", errors.New("anything else"), ClassFatal},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestFromHTTPStatus(t *testing.T) {
	base := errors.New("upstream")
	if got := Classify(FromHTTPStatus(429, base)); got != ClassRateLimited {
		t.Errorf("429: got %v", got)
	}
	if got := Classify(FromHTTPStatus(500, base)); got != ClassServerUnavailable {
		t.Errorf("500: got %v", got)
	}
	if got := Classify(FromHTTPStatus(503, base)); got != ClassServerUnavailable {
		t.Errorf("503: got %v", got)
	}
	if got := Classify(FromHTTPStatus(404, base)); got != ClassFatal {
		t.Errorf("404: got %v", got)
	}
}
