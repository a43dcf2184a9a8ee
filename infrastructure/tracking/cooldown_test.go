package tracking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/helixml/codestore/domain/tracking"
	"github.com/helixml/codestore/infrastructure/tracking"
)

// fakeObserver records every invocation event delivered to it.
type fakeObserver struct {
	domain.NopObserver
	mu          sync.Mutex
	invocations []domain.Invocation
}

func (f *fakeObserver) OnInvocation(_ context.Context, e domain.Invocation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invocations = append(f.invocations, e)
}

func (f *fakeObserver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.invocations)
}

func (f *fakeObserver) last() domain.Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invocations[len(f.invocations)-1]
}

func failure(backend string, attempt int) domain.Invocation {
	return domain.Invocation{
		Backend: backend,
		Attempt: attempt,
		Outcome: domain.OutcomeFailure,
		Err:     errors.New("boom"),
	}
}

func TestCooldown_FirstFailurePassesThrough(t *testing.T) {
	fake := &fakeObserver{}
	cooldown := tracking.NewCooldown(fake, time.Second)
	defer func() { _ = cooldown.Close() }()

	cooldown.OnInvocation(context.Background(), failure("openai", 1))

	if fake.count() != 1 {
		t.Fatalf("expected 1 delivery, got %d", fake.count())
	}
}

func TestCooldown_ThrottlesRepeatedFailures(t *testing.T) {
	fake := &fakeObserver{}
	cooldown := tracking.NewCooldown(fake, 300*time.Millisecond)
	defer func() { _ = cooldown.Close() }()

	ctx := context.Background()
	for i := 1; i <= 20; i++ {
		cooldown.OnInvocation(ctx, failure("openai", i))
	}

	if fake.count() != 1 {
		t.Fatalf("expected 1 delivery during throttle window, got %d", fake.count())
	}

	time.Sleep(500 * time.Millisecond)

	if fake.count() != 2 {
		t.Fatalf("expected 2 deliveries after cooldown, got %d", fake.count())
	}
	if fake.last().Attempt != 20 {
		t.Fatalf("expected pending flush to carry attempt 20, got %d", fake.last().Attempt)
	}
}

func TestCooldown_SuccessPassesAndDropsPending(t *testing.T) {
	fake := &fakeObserver{}
	cooldown := tracking.NewCooldown(fake, time.Hour)

	ctx := context.Background()
	cooldown.OnInvocation(ctx, failure("openai", 1))
	cooldown.OnInvocation(ctx, failure("openai", 2))
	cooldown.OnInvocation(ctx, domain.Invocation{Backend: "openai", Attempt: 3, Outcome: domain.OutcomeSuccess})

	if fake.count() != 2 {
		t.Fatalf("expected 2 deliveries (first failure + success), got %d", fake.count())
	}
	if fake.last().Outcome != domain.OutcomeSuccess {
		t.Fatalf("expected success last, got %s", fake.last().Outcome)
	}

	_ = cooldown.Close()
	if fake.count() != 2 {
		t.Fatalf("expected no pending flush after success, got %d", fake.count())
	}
}

func TestCooldown_IndependentKeys(t *testing.T) {
	fake := &fakeObserver{}
	cooldown := tracking.NewCooldown(fake, time.Hour)
	defer func() { _ = cooldown.Close() }()

	ctx := context.Background()
	cooldown.OnInvocation(ctx, failure("openai", 1))
	cooldown.OnInvocation(ctx, failure("local", 1))
	cooldown.OnInvocation(ctx, domain.Invocation{Backend: "openai", Outcome: domain.OutcomeRateLimited})

	if fake.count() != 3 {
		t.Fatalf("expected 3 deliveries for independent keys, got %d", fake.count())
	}
}

func TestCooldown_CloseFlushesPending(t *testing.T) {
	fake := &fakeObserver{}
	cooldown := tracking.NewCooldown(fake, time.Hour)

	ctx := context.Background()
	cooldown.OnInvocation(ctx, failure("openai", 1))
	cooldown.OnInvocation(ctx, failure("openai", 5))

	if fake.count() != 1 {
		t.Fatalf("expected 1 delivery before close, got %d", fake.count())
	}

	_ = cooldown.Close()

	if fake.count() != 2 {
		t.Fatalf("expected 2 deliveries after close, got %d", fake.count())
	}
	if fake.last().Attempt != 5 {
		t.Fatalf("expected flushed attempt 5, got %d", fake.last().Attempt)
	}
}

func TestCooldown_ConcurrentFailures(t *testing.T) {
	fake := &fakeObserver{}
	cooldown := tracking.NewCooldown(fake, 200*time.Millisecond)
	defer func() { _ = cooldown.Close() }()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			cooldown.OnInvocation(ctx, failure("openai", n))
		}(i)
	}
	wg.Wait()

	if fake.count() >= 50 {
		t.Fatalf("expected throttling to reduce deliveries, got %d", fake.count())
	}
}

func TestCooldown_AllowsFailureAfterIntervalPasses(t *testing.T) {
	fake := &fakeObserver{}
	cooldown := tracking.NewCooldown(fake, 100*time.Millisecond)
	defer func() { _ = cooldown.Close() }()

	ctx := context.Background()
	cooldown.OnInvocation(ctx, failure("openai", 1))
	time.Sleep(150 * time.Millisecond)
	cooldown.OnInvocation(ctx, failure("openai", 2))

	if fake.count() != 2 {
		t.Fatalf("expected 2 after interval passed, got %d", fake.count())
	}
}
