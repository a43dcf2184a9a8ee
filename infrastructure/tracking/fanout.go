package tracking

import (
	"context"
	"sync"

	"github.com/helixml/codestore/domain/tracking"
)

// Fanout delivers every event to each subscribed observer in order.
type Fanout struct {
	mu          sync.RWMutex
	subscribers []tracking.Observer
}

// NewFanout creates a Fanout with the given observers. Nil observers are ignored.
func NewFanout(observers ...tracking.Observer) *Fanout {
	f := &Fanout{}
	for _, o := range observers {
		f.Subscribe(o)
	}
	return f
}

// Subscribe adds an observer.
func (f *Fanout) Subscribe(o tracking.Observer) {
	if o == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribers = append(f.subscribers, o)
}

func (f *Fanout) each(fn func(tracking.Observer)) {
	f.mu.RLock()
	subscribers := f.subscribers
	f.mu.RUnlock()

	for _, o := range subscribers {
		fn(o)
	}
}

func (f *Fanout) OnInvocation(ctx context.Context, e tracking.Invocation) {
	f.each(func(o tracking.Observer) { o.OnInvocation(ctx, e) })
}

func (f *Fanout) OnRotation(ctx context.Context, e tracking.Rotation) {
	f.each(func(o tracking.Observer) { o.OnRotation(ctx, e) })
}

func (f *Fanout) OnGeneration(ctx context.Context, e tracking.Generation) {
	f.each(func(o tracking.Observer) { o.OnGeneration(ctx, e) })
}

func (f *Fanout) OnStorageAttempt(ctx context.Context, e tracking.StorageAttempt) {
	f.each(func(o tracking.Observer) { o.OnStorageAttempt(ctx, e) })
}

func (f *Fanout) OnRecordSkipped(ctx context.Context, e tracking.RecordSkipped) {
	f.each(func(o tracking.Observer) { o.OnRecordSkipped(ctx, e) })
}

func (f *Fanout) OnRetrieval(ctx context.Context, e tracking.Retrieval) {
	f.each(func(o tracking.Observer) { o.OnRetrieval(ctx, e) })
}

var _ tracking.Observer = (*Fanout)(nil)
