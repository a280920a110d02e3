//go:build integration

package redis

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockdesk/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		host = "localhost"
	}
	c, err := NewClient(host, 6379, "", 15)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDecisionCache(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	hash := uuid.New().String()

	_, ok, err := c.GetDecision(ctx, hash)
	require.NoError(t, err)
	assert.False(t, ok)

	want := models.RoutingDecision{Domain: models.DomainMovement, Confidence: 0.9}
	require.NoError(t, c.SetDecision(ctx, hash, want, time.Minute))

	got, ok, err := c.GetDecision(ctx, hash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, *got)
}

func TestIncrementDaily_ConcurrentNeverExceedsLimit(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	user := uuid.New().String()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := c.IncrementDaily(ctx, user, "2025-11-20", 5)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, granted)
	count, err := c.DailyCount(ctx, user, "2025-11-20")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestMonthlyUsage_Accumulates(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	period := fmt.Sprintf("test-%s", uuid.New().String())

	require.NoError(t, c.AddMonthlyUsage(ctx, period, 100, 20, 0.5))
	require.NoError(t, c.AddMonthlyUsage(ctx, period, 50, 10, 0.25))

	usage, err := c.MonthlyUsage(ctx, period)
	require.NoError(t, err)
	assert.Equal(t, int64(150), usage.InputTokens)
	assert.Equal(t, int64(30), usage.OutputTokens)
	assert.InDelta(t, 0.75, usage.TotalCost, 1e-9)
}
