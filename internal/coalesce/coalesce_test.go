package coalesce

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKey_NormalizesQuery(t *testing.T) {
	if Key("  How do I restart? ", "minecraft") != Key("how do i restart?", "minecraft") {
		t.Error("Key() should ignore case and surrounding whitespace")
	}
	if Key("q", "minecraft") == Key("q", "valheim") {
		t.Error("Key() should partition by domain")
	}
	if Key("q", "") != Key("q", "generic") {
		t.Error("Key() should treat empty domain as generic")
	}
}

func TestDo_SingleCaller(t *testing.T) {
	c := New(0)
	val, primary, err := c.Do(context.Background(), "k", func(ctx context.Context) (string, error) {
		return "result", nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !primary {
		t.Error("Do() primary = false for the only caller")
	}
	if val != "result" {
		t.Errorf("Do() = %q, want %q", val, "result")
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d after completion, want 0", c.Pending())
	}
}

func TestDo_FiftyConcurrentCallersOneExecution(t *testing.T) {
	c := New(0)

	var invocations atomic.Int64
	release := make(chan struct{})
	fn := func(ctx context.Context) (string, error) {
		invocations.Add(1)
		<-release
		return "shared", nil
	}

	const callers = 50
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	primaries := atomic.Int64{}

	started := make(chan struct{}, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started <- struct{}{}
			val, primary, err := c.Do(context.Background(), "same-key", fn)
			if primary {
				primaries.Add(1)
			}
			results[i], errs[i] = val, err
		}(i)
	}

	// Wait until every goroutine is running, then let the primary finish.
	for i := 0; i < callers; i++ {
		<-started
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := invocations.Load(); got != 1 {
		t.Errorf("delegate ran %d times, want exactly 1", got)
	}
	if got := primaries.Load(); got != 1 {
		t.Errorf("%d callers reported primary, want 1", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d error = %v", i, errs[i])
		}
		if results[i] != "shared" {
			t.Errorf("caller %d result = %q, want %q", i, results[i], "shared")
		}
	}
}

func TestDo_ErrorFansOutAndIsNotCached(t *testing.T) {
	c := New(0)
	wantErr := errors.New("upstream unavailable")

	var calls atomic.Int64
	release := make(chan struct{})
	fn := func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "", wantErr
	}

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = c.Do(context.Background(), "k", fn)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, wantErr) {
			t.Errorf("caller %d error = %v, want %v", i, err, wantErr)
		}
	}

	// The failure must not be replayed: a fresh call retries the delegate.
	_, _, err := c.Do(context.Background(), "k", func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("delegate ran %d times across failure and retry, want 2", got)
	}
}

func TestDo_DistinctKeysRunIndependently(t *testing.T) {
	c := New(0)

	var invocations atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i)
			_, _, err := c.Do(context.Background(), key, func(ctx context.Context) (string, error) {
				invocations.Add(1)
				return key, nil
			})
			if err != nil {
				t.Errorf("Do(%s) error = %v", key, err)
			}
		}(i)
	}
	wg.Wait()

	if got := invocations.Load(); got != 5 {
		t.Errorf("delegate ran %d times for 5 distinct keys, want 5", got)
	}
}

func TestDo_WaiterTimeoutIsLocal(t *testing.T) {
	c := New(30 * time.Millisecond)

	release := make(chan struct{})
	primaryDone := make(chan struct{})
	go func() {
		defer close(primaryDone)
		val, _, err := c.Do(context.Background(), "slow", func(ctx context.Context) (string, error) {
			<-release
			return "late but fine", nil
		})
		if err != nil || val != "late but fine" {
			t.Errorf("primary = (%q, %v), want success despite waiter timeout", val, err)
		}
	}()

	// Give the primary time to register.
	time.Sleep(10 * time.Millisecond)

	_, primary, err := c.Do(context.Background(), "slow", func(ctx context.Context) (string, error) {
		t.Error("waiter must not run the delegate")
		return "", nil
	})
	if primary {
		t.Error("second caller reported primary")
	}
	if !errors.Is(err, ErrWaitTimeout) {
		t.Errorf("waiter error = %v, want ErrWaitTimeout", err)
	}

	close(release)
	<-primaryDone
}

func TestDo_WaiterContextCancelIsLocal(t *testing.T) {
	c := New(time.Minute)

	release := make(chan struct{})
	primaryDone := make(chan struct{})
	go func() {
		defer close(primaryDone)
		_, _, err := c.Do(context.Background(), "k", func(ctx context.Context) (string, error) {
			<-release
			return "ok", nil
		})
		if err != nil {
			t.Errorf("primary error = %v", err)
		}
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, _, err := c.Do(ctx, "k", func(ctx context.Context) (string, error) {
		return "", nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled waiter error = %v, want context.Canceled", err)
	}

	close(release)
	<-primaryDone
}

func TestPendingAndWaiters(t *testing.T) {
	c := New(time.Minute)

	release := make(chan struct{})
	primaryDone := make(chan struct{})
	go func() {
		defer close(primaryDone)
		c.Do(context.Background(), "k", func(ctx context.Context) (string, error) {
			<-release
			return "ok", nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	waiterDone := make(chan struct{})
	go func() {
		defer close(waiterDone)
		c.Do(context.Background(), "k", func(ctx context.Context) (string, error) {
			return "", nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	if got := c.Pending(); got != 1 {
		t.Errorf("Pending() = %d, want 1", got)
	}
	if got := c.Waiters(); got != 1 {
		t.Errorf("Waiters() = %d, want 1", got)
	}

	close(release)
	<-primaryDone
	<-waiterDone

	if got := c.Pending(); got != 0 {
		t.Errorf("Pending() = %d after completion, want 0", got)
	}
}

func TestDrain_FailsWaiters(t *testing.T) {
	c := New(time.Minute)

	release := make(chan struct{})
	primaryDone := make(chan struct{})
	go func() {
		defer close(primaryDone)
		val, _, err := c.Do(context.Background(), "k", func(ctx context.Context) (string, error) {
			<-release
			return "primary result", nil
		})
		if err != nil || val != "primary result" {
			t.Errorf("primary = (%q, %v), want its own result after drain", val, err)
		}
	}()
	time.Sleep(10 * time.Millisecond)

	waiterErr := make(chan error, 1)
	go func() {
		_, _, err := c.Do(context.Background(), "k", func(ctx context.Context) (string, error) {
			return "", nil
		})
		waiterErr <- err
	}()
	time.Sleep(10 * time.Millisecond)

	c.Drain()

	if err := <-waiterErr; !errors.Is(err, ErrDrained) {
		t.Errorf("drained waiter error = %v, want ErrDrained", err)
	}

	close(release)
	<-primaryDone
}
