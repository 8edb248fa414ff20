package clock

import (
	"errors"
	"testing"
	"time"

	"github.com/nimbusvale/directble/codec"
)

func TestWithTimeoutReturnsFnResult(t *testing.T) {
	err := WithTimeout("op", time.Second, nil, func() error { return nil })
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	want := errors.New("boom")
	err = WithTimeout("op", time.Second, nil, func() error { return want })
	if err != want {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestWithTimeoutExpires(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	err := WithTimeout("op", 10*time.Millisecond, nil, func() error {
		<-block
		return nil
	})
	ce, ok := err.(*codec.Error)
	if !ok || ce.Kind != codec.KindTimeout {
		t.Fatalf("expected KindTimeout, got %v", err)
	}
}

func TestWithTimeoutAbort(t *testing.T) {
	abort := make(chan struct{})
	close(abort)
	block := make(chan struct{})
	defer close(block)
	err := WithTimeout("op", time.Second, abort, func() error {
		<-block
		return nil
	})
	ce, ok := err.(*codec.Error)
	if !ok || ce.Kind != codec.KindDisconnected {
		t.Fatalf("expected KindDisconnected, got %v", err)
	}
}

func TestRetrySucceedsWithinBudget(t *testing.T) {
	attempts := 0
	err := Retry(RetryPolicy{MaxAttempts: 3, Retryable: RetryableKind(codec.KindTimeout)}, func(attempt int) error {
		attempts++
		if attempt < 3 {
			return codec.NewError(codec.KindTimeout, "scan", "no response", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success by third attempt, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	attempts := 0
	paramErr := codec.NewError(codec.KindParam, "scan", "bad filter", nil)
	err := Retry(RetryPolicy{MaxAttempts: 3, Retryable: RetryableKind(codec.KindTimeout, codec.KindTransport)}, func(attempt int) error {
		attempts++
		return paramErr
	})
	if err != paramErr {
		t.Fatalf("expected the non-retryable error back, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestRetryExhaustsMaxAttempts(t *testing.T) {
	attempts := 0
	err := Retry(RetryPolicy{MaxAttempts: 3, Retryable: RetryableKind(codec.KindTransport)}, func(attempt int) error {
		attempts++
		return codec.NewError(codec.KindTransport, "scan", "link down", nil)
	})
	if err == nil {
		t.Fatal("expected the final error after exhausting attempts")
	}
	if attempts != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", attempts)
	}
}
