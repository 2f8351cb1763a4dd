package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingJanitor struct {
	calls atomic.Int64
	err   error
}

func (c *countingJanitor) CleanupStale(context.Context) (int64, error) {
	c.calls.Add(1)
	return 2, c.err
}

func (c *countingJanitor) CleanupExpiredTokens(context.Context) (int64, error) {
	c.calls.Add(1)
	return 1, c.err
}

func (c *countingJanitor) PurgeExpired(context.Context) (int, error) {
	c.calls.Add(1)
	return 1, c.err
}

func (c *countingJanitor) ResetMonthlyAllowances(context.Context) (int64, error) {
	c.calls.Add(1)
	return 3, c.err
}

func TestRunOnceExecutesEveryTask(t *testing.T) {
	sessions := &countingJanitor{}
	tokens := &countingJanitor{}
	accounts := &countingJanitor{}
	allowances := &countingJanitor{}

	cleanup := NewCleanup(sessions, tokens, accounts, allowances, nil, time.Hour)
	cleanup.RunOnce(context.Background())

	for name, janitor := range map[string]*countingJanitor{
		"sessions":   sessions,
		"tokens":     tokens,
		"accounts":   accounts,
		"allowances": allowances,
	} {
		if janitor.calls.Load() != 1 {
			t.Fatalf("%s task calls = %d, want 1", name, janitor.calls.Load())
		}
	}
}

func TestRunOnceContinuesPastFailures(t *testing.T) {
	sessions := &countingJanitor{err: errors.New("db down")}
	allowances := &countingJanitor{}

	cleanup := NewCleanup(sessions, nil, nil, allowances, nil, time.Hour)
	cleanup.RunOnce(context.Background())

	if allowances.calls.Load() != 1 {
		t.Fatalf("later task skipped after failure")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	sessions := &countingJanitor{}
	cleanup := NewCleanup(sessions, nil, nil, nil, nil, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cleanup.Run(ctx)
		close(done)
	}()

	// Let the initial pass and at least one tick happen.
	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("worker did not stop after cancel")
	}
	if sessions.calls.Load() < 2 {
		t.Fatalf("expected initial pass plus ticks, got %d", sessions.calls.Load())
	}
}
