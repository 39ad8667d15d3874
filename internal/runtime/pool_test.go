package runtime

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPoolDispatchRunsTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewPool(ctx, 4, 8)
	if p.ShardCount() != 4 {
		t.Fatalf("expected 4 shards, got %d", p.ShardCount())
	}

	var wg sync.WaitGroup
	wg.Add(1)
	ran := false
	p.Dispatch(func(ctx context.Context) {
		ran = true
		wg.Done()
	})

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run within timeout")
	}
	if !ran {
		t.Fatal("expected task to run")
	}
}

func TestDefaultReactorCountIsPositive(t *testing.T) {
	if DefaultReactorCount() < 1 {
		t.Fatal("expected a positive default reactor count")
	}
}
