package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeAdapter struct {
	err   error
	delay time.Duration
}

func (f fakeAdapter) HealthCheck(ctx context.Context) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func TestRegistry_AllHealthy(t *testing.T) {
	r := NewRegistry()
	r.Register(NewAdapterChecker("store", fakeAdapter{}, time.Second))
	r.Register(NewPingChecker("app"))

	result := r.Check(context.Background())
	if !result.IsHealthy() {
		t.Fatalf("expected healthy, got %+v", result)
	}
	if len(result.Checks) != 2 || result.Checks[0].Name != "app" || result.Checks[1].Name != "store" {
		t.Fatalf("expected results ordered by name, got %+v", result.Checks)
	}
}

func TestRegistry_OneUnhealthy(t *testing.T) {
	r := NewRegistry()
	r.Register(NewPingChecker("app"))
	r.Register(NewAdapterChecker("store", fakeAdapter{err: errors.New("dynamodb ping failed")}, time.Second))

	result := r.Check(context.Background())
	if result.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", result.Status)
	}
	if result.Checks[1].Error != "dynamodb ping failed" {
		t.Fatalf("unexpected error %q", result.Checks[1].Error)
	}
}

func TestRegistry_ReplaceByName(t *testing.T) {
	r := NewRegistry()
	r.Register(NewAdapterChecker("store", fakeAdapter{err: errors.New("down")}, time.Second))
	r.Register(NewAdapterChecker("store", fakeAdapter{}, time.Second))

	result := r.Check(context.Background())
	if !result.IsHealthy() || len(result.Checks) != 1 {
		t.Fatalf("expected a single healthy check, got %+v", result)
	}
}

func TestAdapterChecker_Timeout(t *testing.T) {
	c := NewAdapterChecker("slow", fakeAdapter{delay: time.Second}, 20*time.Millisecond)

	result := c.Check(context.Background())
	if result.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy on timeout, got %s", result.Status)
	}
	if result.Error != context.DeadlineExceeded.Error() {
		t.Fatalf("unexpected error %q", result.Error)
	}
}

func TestRegistry_Empty(t *testing.T) {
	result := NewRegistry().Check(context.Background())
	if !result.IsHealthy() || len(result.Checks) != 0 {
		t.Fatalf("empty registry should be healthy, got %+v", result)
	}
}
