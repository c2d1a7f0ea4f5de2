package sink

import (
	"context"
	"errors"
	"testing"
)

func TestFallbackUsesPrimaryFirst(t *testing.T) {
	var primary, fallback int
	s := Fallback(
		Func(func(ctx context.Context, n Notification) error { primary++; return nil }),
		Func(func(ctx context.Context, n Notification) error { fallback++; return nil }),
	)
	if err := s.Show(context.Background(), Notification{Title: "t"}); err != nil {
		t.Fatalf("show: %v", err)
	}
	if primary != 1 || fallback != 0 {
		t.Fatalf("primary=%d fallback=%d", primary, fallback)
	}
}

func TestFallbackOnTransientError(t *testing.T) {
	var fallback int
	s := Fallback(
		Func(func(ctx context.Context, n Notification) error { return errors.New("bus gone") }),
		Func(func(ctx context.Context, n Notification) error { fallback++; return nil }),
	)
	if err := s.Show(context.Background(), Notification{}); err != nil {
		t.Fatalf("show: %v", err)
	}
	if fallback != 1 {
		t.Fatalf("fallback not used")
	}
}

func TestFallbackPropagatesDenied(t *testing.T) {
	var fallback int
	s := Fallback(
		Func(func(ctx context.Context, n Notification) error { return ErrDenied }),
		Func(func(ctx context.Context, n Notification) error { fallback++; return nil }),
	)
	err := s.Show(context.Background(), Notification{})
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("err = %v, want ErrDenied", err)
	}
	if fallback != 0 {
		t.Fatalf("denied delivery was silently re-routed")
	}
}

func TestRateLimitedStopsOnContextCancel(t *testing.T) {
	var shows int
	s := RateLimited(Func(func(ctx context.Context, n Notification) error {
		shows++
		return nil
	}), 1)

	ctx := context.Background()
	// Burst of 1: first call passes immediately.
	if err := s.Show(ctx, Notification{}); err != nil {
		t.Fatalf("show: %v", err)
	}

	// Second call would wait ~1s; a cancelled context aborts instead.
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if err := s.Show(cctx, Notification{}); err == nil {
		t.Fatalf("limiter ignored cancelled context")
	}
	if shows != 1 {
		t.Fatalf("shows = %d, want 1", shows)
	}
}
