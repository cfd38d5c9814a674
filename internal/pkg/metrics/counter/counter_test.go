package counter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nanbonsmr/quickwriteai-sub001/internal/pkg/cache"
)

func requireTestRedis(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cache.GetClient().Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
}

func TestAddAndPendingWordsUsed(t *testing.T) {
	requireTestRedis(t)
	ctx := context.Background()

	userID := fmt.Sprintf("test-user-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		cache.GetClient().HDel(context.Background(), usageHashKey, userID)
	})

	pending, err := PendingWordsUsed(ctx, userID)
	if err != nil {
		t.Fatalf("PendingWordsUsed() error = %v", err)
	}
	if pending != 0 {
		t.Fatalf("PendingWordsUsed() for fresh user = %d, want 0", pending)
	}

	if err := AddWordsUsed(ctx, userID, 120); err != nil {
		t.Fatalf("AddWordsUsed() error = %v", err)
	}
	if err := AddWordsUsed(ctx, userID, 30); err != nil {
		t.Fatalf("AddWordsUsed() error = %v", err)
	}

	pending, err = PendingWordsUsed(ctx, userID)
	if err != nil {
		t.Fatalf("PendingWordsUsed() error = %v", err)
	}
	if pending != 150 {
		t.Fatalf("PendingWordsUsed() = %d, want 150", pending)
	}
}

func TestAddWordsUsedIgnoresNonPositive(t *testing.T) {
	requireTestRedis(t)
	ctx := context.Background()

	userID := fmt.Sprintf("test-user-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		cache.GetClient().HDel(context.Background(), usageHashKey, userID)
	})

	if err := AddWordsUsed(ctx, userID, 0); err != nil {
		t.Fatalf("AddWordsUsed(0) error = %v", err)
	}
	if err := AddWordsUsed(ctx, userID, -5); err != nil {
		t.Fatalf("AddWordsUsed(-5) error = %v", err)
	}

	pending, err := PendingWordsUsed(ctx, userID)
	if err != nil {
		t.Fatalf("PendingWordsUsed() error = %v", err)
	}
	if pending != 0 {
		t.Fatalf("PendingWordsUsed() = %d, want 0", pending)
	}
}
