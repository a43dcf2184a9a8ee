package tracking_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/helixml/codestore/domain/tracking"
	"github.com/helixml/codestore/infrastructure/tracking"
)

func TestMetricsObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	o, err := tracking.NewMetricsObserver(reg)
	require.NoError(t, err)

	ctx := context.Background()
	o.OnInvocation(ctx, domain.Invocation{Backend: "openai", Outcome: domain.OutcomeSuccess, Duration: time.Millisecond})
	o.OnInvocation(ctx, domain.Invocation{Backend: "openai", Outcome: domain.OutcomeRateLimited})
	o.OnInvocation(ctx, domain.Invocation{Backend: "openai", Outcome: domain.OutcomeSuccess})
	o.OnRotation(ctx, domain.Rotation{Backend: "openai"})
	o.OnGeneration(ctx, domain.Generation{Strategy: "failover", Succeeded: 4, Failed: 1})
	o.OnStorageAttempt(ctx, domain.StorageAttempt{Operation: "bulk_upsert"})
	o.OnStorageAttempt(ctx, domain.StorageAttempt{Operation: "bulk_upsert", Err: errors.New("locked")})
	o.OnRecordSkipped(ctx, domain.RecordSkipped{ID: "x"})
	o.OnRetrieval(ctx, domain.Retrieval{Returned: 7})

	expected := `
# HELP codestore_backend_invocations_total Backend attempts by outcome.
# TYPE codestore_backend_invocations_total counter
codestore_backend_invocations_total{backend="openai",outcome="rate_limited"} 1
codestore_backend_invocations_total{backend="openai",outcome="success"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, bytes.NewBufferString(expected), "codestore_backend_invocations_total"))

	count, err := testutil.GatherAndCount(reg, "codestore_backend_invocation_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	expected = `
# HELP codestore_generate_items_total Texts processed by embedding requests.
# TYPE codestore_generate_items_total counter
codestore_generate_items_total{result="failure",strategy="failover"} 1
codestore_generate_items_total{result="success",strategy="failover"} 4
# HELP codestore_storage_attempts_total Store operation attempts by outcome.
# TYPE codestore_storage_attempts_total counter
codestore_storage_attempts_total{operation="bulk_upsert",outcome="failure"} 1
codestore_storage_attempts_total{operation="bulk_upsert",outcome="success"} 1
# HELP codestore_credential_rotations_total Credential rotations after rate limiting.
# TYPE codestore_credential_rotations_total counter
codestore_credential_rotations_total{backend="openai"} 1
# HELP codestore_records_skipped_total Records the store rejected inside a bulk upsert.
# TYPE codestore_records_skipped_total counter
codestore_records_skipped_total 1
# HELP codestore_retrievals_total Retrieval requests.
# TYPE codestore_retrievals_total counter
codestore_retrievals_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, bytes.NewBufferString(expected),
		"codestore_generate_items_total",
		"codestore_storage_attempts_total",
		"codestore_credential_rotations_total",
		"codestore_records_skipped_total",
		"codestore_retrievals_total",
	))
}

func TestMetricsObserver_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := tracking.NewMetricsObserver(reg)
	require.NoError(t, err)

	_, err = tracking.NewMetricsObserver(reg)
	require.Error(t, err)
}

func TestLoggingObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	o := tracking.NewLoggingObserver(logger)

	ctx := context.Background()
	o.OnInvocation(ctx, domain.Invocation{Backend: "openai", Outcome: domain.OutcomeSuccess})
	assert.Empty(t, buf.String(), "successful attempts log at debug")

	o.OnInvocation(ctx, domain.Invocation{Backend: "openai", Outcome: domain.OutcomeTimeout, Err: errors.New("deadline")})
	assert.Contains(t, buf.String(), "backend invocation failed")
	assert.Contains(t, buf.String(), "outcome=timeout")
	assert.Contains(t, buf.String(), "error=deadline")

	buf.Reset()
	o.OnStorageAttempt(ctx, domain.StorageAttempt{Operation: "get"})
	assert.Empty(t, buf.String())

	o.OnGeneration(ctx, domain.Generation{RequestID: "req-1", Strategy: "race", Items: 2, Failed: 1})
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "request_id=req-1")

	buf.Reset()
	o.OnRecordSkipped(ctx, domain.RecordSkipped{ID: "abc", Err: errors.New("invalid parent")})
	assert.Contains(t, buf.String(), "id=abc")
}

type countingObserver struct {
	domain.NopObserver
	generations int
	retrievals  int
}

func (c *countingObserver) OnGeneration(context.Context, domain.Generation) { c.generations++ }
func (c *countingObserver) OnRetrieval(context.Context, domain.Retrieval)   { c.retrievals++ }

func TestFanout(t *testing.T) {
	a := &countingObserver{}
	b := &countingObserver{}
	f := tracking.NewFanout(a, nil)
	f.Subscribe(b)

	ctx := context.Background()
	f.OnGeneration(ctx, domain.Generation{})
	f.OnRetrieval(ctx, domain.Retrieval{})
	f.OnInvocation(ctx, domain.Invocation{})

	assert.Equal(t, 1, a.generations)
	assert.Equal(t, 1, b.generations)
	assert.Equal(t, 1, a.retrievals)
	assert.Equal(t, 1, b.retrievals)
}
