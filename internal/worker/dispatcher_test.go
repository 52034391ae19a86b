package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"companion/internal/models"
)

func TestDispatcherSerializesScope(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MinWorkers: 2, MaxWorkers: 4, QueueSize: 10})
	defer d.Close()

	var (
		mu      sync.Mutex
		order   []int
		active  int32
		overlap int32
	)
	results := make([]<-chan error, 0, 5)
	for i := 0; i < 5; i++ {
		i := i
		ch, err := d.Submit(context.Background(), "alice", func(context.Context) error {
			if atomic.AddInt32(&active, 1) > 1 {
				atomic.StoreInt32(&overlap, 1)
			}
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			atomic.AddInt32(&active, -1)
			return nil
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		results = append(results, ch)
	}
	for i, ch := range results {
		if err := waitResult(t, ch); err != nil {
			t.Fatalf("job %d: %v", i, err)
		}
	}
	if atomic.LoadInt32(&overlap) != 0 {
		t.Fatalf("jobs of one scope ran concurrently")
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("jobs ran out of order: %v", order)
		}
	}
}

func TestDispatcherRunsScopesInParallel(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MinWorkers: 0, MaxWorkers: 2, QueueSize: 10})
	defer d.Close()

	var started sync.WaitGroup
	started.Add(2)
	allStarted := make(chan struct{})
	go func() {
		started.Wait()
		close(allStarted)
	}()

	job := func(context.Context) error {
		started.Done()
		select {
		case <-allStarted:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("peer job never started")
		}
	}
	a, err := d.Submit(context.Background(), "alice", job)
	if err != nil {
		t.Fatalf("submit alice: %v", err)
	}
	b, err := d.Submit(context.Background(), "bob", job)
	if err != nil {
		t.Fatalf("submit bob: %v", err)
	}
	if err := waitResult(t, a); err != nil {
		t.Fatalf("alice: %v", err)
	}
	if err := waitResult(t, b); err != nil {
		t.Fatalf("bob: %v", err)
	}
}

func TestDispatcherBusy(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1})
	defer d.Close()

	release := make(chan struct{})
	first, err := d.Submit(context.Background(), "alice", func(context.Context) error {
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := d.Submit(context.Background(), "bob", func(context.Context) error { return nil }); !errors.Is(err, ErrDispatcherBusy) {
		t.Fatalf("expected ErrDispatcherBusy, got %v", err)
	}
	close(release)
	if err := waitResult(t, first); err != nil {
		t.Fatalf("first job: %v", err)
	}
	if err := d.Do(context.Background(), "bob", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("capacity should be back after completion: %v", err)
	}
}

func TestDispatcherSkipsCanceledJob(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 4})
	defer d.Close()

	release := make(chan struct{})
	blocker, err := d.Submit(context.Background(), "alice", func(context.Context) error {
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	queued, err := d.Submit(ctx, "alice", func(context.Context) error {
		ran.Store(true)
		return nil
	})
	if err != nil {
		t.Fatalf("submit queued: %v", err)
	}
	cancel()
	close(release)

	if err := waitResult(t, blocker); err != nil {
		t.Fatalf("blocker: %v", err)
	}
	if err := waitResult(t, queued); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ran.Load() {
		t.Fatalf("canceled job should not run")
	}
}

func TestDispatcherRecoversPanic(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 4})
	defer d.Close()

	err := d.Do(context.Background(), "alice", func(context.Context) error {
		panic("boom")
	})
	if err == nil {
		t.Fatalf("expected panic to surface as error")
	}
	if err := d.Do(context.Background(), "alice", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("worker should survive a panic: %v", err)
	}
}

func TestDispatcherClosed(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{})
	d.Close()
	if err := d.Do(context.Background(), models.Scope("alice"), func(context.Context) error { return nil }); !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("expected ErrDispatcherClosed, got %v", err)
	}
	d.Close()
}

func TestDispatcherSubmitRacingClose(t *testing.T) {
	for round := 0; round < 50; round++ {
		d := NewDispatcher(DispatcherConfig{MaxWorkers: 2, QueueSize: 32})
		var wg sync.WaitGroup
		results := make(chan (<-chan error), 32)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				scope := models.Scope([]string{"alice", "bob"}[i%2])
				ch, err := d.Submit(context.Background(), scope, func(context.Context) error { return nil })
				if err != nil {
					if !errors.Is(err, ErrDispatcherClosed) {
						t.Errorf("unexpected submit error: %v", err)
					}
					return
				}
				results <- ch
			}(i)
		}
		d.Close()
		wg.Wait()
		close(results)
		for ch := range results {
			if err := waitResult(t, ch); err != nil && !errors.Is(err, ErrDispatcherClosed) {
				t.Fatalf("round %d: unexpected job result %v", round, err)
			}
		}
	}
}

func TestWaitPrefersReadyResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 100; i++ {
		result := make(chan error, 1)
		result <- nil
		if err := wait(ctx, result); err != nil {
			t.Fatalf("iteration %d: expected finished job result, got %v", i, err)
		}
	}

	if err := wait(ctx, make(chan error, 1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled without a result, got %v", err)
	}
}

func TestPoolShutdownExpired(t *testing.T) {
	p := newJobChannelPool(1, 3, time.Hour)
	defer p.close()

	chans := []chan Job{p.acquire(), p.acquire(), p.acquire()}
	for _, ch := range chans {
		p.Release(ch)
	}
	if running, idle := p.stats(); running != 3 || idle != 3 {
		t.Fatalf("unexpected stats running=%d idle=%d", running, idle)
	}

	p.shutdownExpired(time.Now().Add(2 * time.Hour))
	deadline := time.Now().Add(2 * time.Second)
	for {
		running, idle := p.stats()
		if running == 1 && idle == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("workers not retired: running=%d idle=%d", running, idle)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitResult(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for job result")
		return nil
	}
}
