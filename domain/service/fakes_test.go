package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/helixml/codestore/domain/embedding"
	"github.com/helixml/codestore/domain/tracking"
)

// --- fakes ---

type fakeCall struct {
	key   string
	texts []string
}

// fakeBackend returns {marker, len(text)} per text unless embed is set.
type fakeBackend struct {
	name   string
	marker float64
	delay  time.Duration
	embed  func(call int, credential embedding.Credential, texts []string) ([][]float64, error)

	mu    sync.Mutex
	calls []fakeCall
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Embed(ctx context.Context, credential embedding.Credential, texts []string) ([][]float64, error) {
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, fakeCall{key: credential.Key(), texts: append([]string(nil), texts...)})
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if f.embed != nil {
		return f.embed(n, credential, texts)
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = []float64{f.marker, float64(len(text))}
	}
	return out, nil
}

func (f *fakeBackend) Calls() []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeCall(nil), f.calls...)
}

func (f *fakeBackend) Keys() []string {
	calls := f.Calls()
	keys := make([]string, len(calls))
	for i, c := range calls {
		keys[i] = c.key
	}
	return keys
}

func failing(err error) func(int, embedding.Credential, []string) ([][]float64, error) {
	return func(int, embedding.Credential, []string) ([][]float64, error) { return nil, err }
}

type statusError struct{ code int }

func (e statusError) Error() string   { return "http error" }
func (e statusError) StatusCode() int { return e.code }

var errBoom = errors.New("boom")

type recordingObserver struct {
	tracking.NopObserver

	mu          sync.Mutex
	invocations []tracking.Invocation
	rotations   []tracking.Rotation
	generations []tracking.Generation
}

func (o *recordingObserver) OnInvocation(_ context.Context, e tracking.Invocation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.invocations = append(o.invocations, e)
}

func (o *recordingObserver) OnRotation(_ context.Context, e tracking.Rotation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rotations = append(o.rotations, e)
}

func (o *recordingObserver) OnGeneration(_ context.Context, e tracking.Generation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.generations = append(o.generations, e)
}

func endpoint(b *fakeBackend, priority int, keys ...string) embedding.Endpoint {
	cfg := embedding.NewBackendConfig(b.name).WithPriority(priority).WithModel(b.name + "-model")
	return embedding.NewEndpoint(b, cfg, embedding.NewCredentialPool(keys...))
}

func fastInvoker(stats *embedding.Stats, opts ...InvokerOption) *Invoker {
	opts = append([]InvokerOption{WithBackoff(time.Millisecond, time.Millisecond)}, opts...)
	return NewInvoker(stats, opts...)
}
