package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var (
	errTransient = errors.New("transient")
	errFatal     = errors.New("fatal")
)

func TestDo(t *testing.T) {
	tests := []struct {
		name         string
		failures     []error // error returned per attempt; nil once exhausted
		maxAttempts  int
		wantAttempts int
		wantErr      error
	}{
		{"first try", nil, 3, 1, nil},
		{"succeeds on third", []error{errTransient, errTransient}, 3, 3, nil},
		{"exhausts budget", []error{errTransient, errTransient, errTransient, errTransient}, 3, 3, errTransient},
		{"stops on fatal", []error{errTransient, errFatal, errTransient}, 3, 2, errFatal},
		{"zero attempts means one", []error{errTransient}, 0, 1, errTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Policy{
				MaxAttempts: tt.maxAttempts,
				IsRetryable: func(err error) bool { return errors.Is(err, errTransient) },
			}
			calls := 0
			v, attempts, err := Do(context.Background(), p, func(_ context.Context, attempt int) (string, error) {
				calls++
				if attempt != calls {
					t.Errorf("attempt = %d, want %d", attempt, calls)
				}
				if attempt <= len(tt.failures) && tt.failures[attempt-1] != nil {
					return "", tt.failures[attempt-1]
				}
				return "ok", nil
			})
			if attempts != tt.wantAttempts {
				t.Errorf("Do() attempts = %d, want %d", attempts, tt.wantAttempts)
			}
			if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil) {
				t.Errorf("Do() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && v != "ok" {
				t.Errorf("Do() value = %q, want ok", v)
			}
		})
	}
}

func TestDoOnRetryAndBackoff(t *testing.T) {
	var retried []int
	p := Policy{
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
		OnRetry:     func(attempt int, _ error) { retried = append(retried, attempt) },
	}
	_, _, err := Do(context.Background(), p, func(context.Context, int) (int, error) {
		return 0, errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Fatalf("Do() error = %v", err)
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", retried)
	}
}

func TestDoStopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 5, Backoff: time.Hour}

	done := make(chan struct{})
	var attempts int
	var err error
	go func() {
		defer close(done)
		_, attempts, err = Do(ctx, p, func(context.Context, int) (int, error) {
			return 0, errTransient
		})
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Do() did not return after cancel")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if attempts > 1 {
		t.Errorf("Do() attempts = %d, want at most 1", attempts)
	}
}

func TestDoBackoffGrowsLinearly(t *testing.T) {
	step := 20 * time.Millisecond
	var gaps []time.Duration
	last := time.Now()
	p := Policy{MaxAttempts: 3, Backoff: step}
	_, _, _ = Do(context.Background(), p, func(_ context.Context, attempt int) (int, error) {
		now := time.Now()
		if attempt > 1 {
			gaps = append(gaps, now.Sub(last))
		}
		last = now
		return 0, errTransient
	})
	if len(gaps) != 2 {
		t.Fatalf("gaps = %v, want 2", gaps)
	}
	for i, gap := range gaps {
		if want := step * time.Duration(i+1); gap < want {
			t.Errorf("wait before attempt %d = %v, want >= %v", i+2, gap, want)
		}
	}
}
