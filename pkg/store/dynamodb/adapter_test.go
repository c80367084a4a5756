package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/lowfatcats/contentstore/pkg/observability/logger"
)

func TestNewAdapter_Validation(t *testing.T) {
	_, err := NewAdapter(Config{}, logger.NewNop())
	if err == nil {
		t.Fatal("expected error for empty region")
	}
}

func TestPing_WhenClosed(t *testing.T) {
	a := &Adapter{closed: true, logger: logger.NewNop()}
	if err := a.Ping(context.Background()); err == nil {
		t.Fatal("expected error when closed")
	}
}

func TestClose_Idempotent(t *testing.T) {
	a := &Adapter{}
	if err := a.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}
}

func TestErrorClassifiers(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		check    func(error) bool
		expected bool
	}{
		{name: "throttling nil", err: nil, check: IsThrottlingError, expected: false},
		{name: "throttling generic", err: errors.New("x"), check: IsThrottlingError, expected: false},
		{name: "throttling", err: &types.ProvisionedThroughputExceededException{}, check: IsThrottlingError, expected: true},
		{name: "conditional wrapped", err: fmt.Errorf("put: %w", &types.ConditionalCheckFailedException{}), check: IsConditionalCheckFailed, expected: true},
		{name: "conditional generic", err: errors.New("x"), check: IsConditionalCheckFailed, expected: false},
		{name: "table exists", err: &types.ResourceInUseException{}, check: IsResourceInUse, expected: true},
		{name: "table exists nil", err: nil, check: IsResourceInUse, expected: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.check(tt.err); got != tt.expected {
				t.Fatalf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestWithOperationTimeout_UsesAdapterTimeoutWhenNoDeadline(t *testing.T) {
	a := &Adapter{timeout: 2 * time.Second}

	ctx, cancel := a.withOperationTimeout(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("expected deadline from operation timeout")
	}
	if remaining := time.Until(deadline); remaining <= 0 || remaining > 2*time.Second {
		t.Fatalf("unexpected remaining timeout: %v", remaining)
	}
}

func TestWithOperationTimeout_PreservesCallerDeadline(t *testing.T) {
	a := &Adapter{timeout: 2 * time.Second}
	parentCtx, parentCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer parentCancel()

	ctx, cancel := a.withOperationTimeout(parentCtx)
	defer cancel()

	parentDeadline, _ := parentCtx.Deadline()
	gotDeadline, _ := ctx.Deadline()
	if !gotDeadline.Equal(parentDeadline) {
		t.Fatalf("expected caller deadline to be preserved, got %v want %v", gotDeadline, parentDeadline)
	}
}
