package coordinator_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockbook/internal/coordinator"
	"github.com/odyssey-erp/stockbook/internal/shared"
	"github.com/odyssey-erp/stockbook/internal/store/memory"
)

// flakyRunner fails the first n transactions with a transient conflict
// after running the callback, as a serialization failure at commit would.
type flakyRunner struct {
	inner *memory.Store
	fails int32
	calls atomic.Int32
}

func (r *flakyRunner) WithTx(ctx context.Context, fn func(context.Context, coordinator.UnitOfWork) error) error {
	n := r.calls.Add(1)
	if n <= r.fails {
		_ = r.inner.WithTx(ctx, func(ctx context.Context, uow coordinator.UnitOfWork) error {
			if err := fn(ctx, uow); err != nil {
				return err
			}
			return shared.E(shared.KindTransientConflict, "test", "could not serialize access")
		})
		return shared.E(shared.KindTransientConflict, "test", "could not serialize access")
	}
	return r.inner.WithTx(ctx, fn)
}

func TestTransientConflictIsRetried(t *testing.T) {
	store := memory.New()
	runner := &flakyRunner{inner: store, fails: 2}
	reg := prometheus.NewRegistry()
	metrics := coordinator.NewMetrics(reg)
	c := coordinator.New(runner, quietLogger(), coordinator.Config{MaxAttempts: 3}, coordinator.WithMetrics(metrics))

	v, err := c.CreateVendor(principalCtx(tenant), coordinator.CreateVendorInput{Name: "V1"})
	require.NoError(t, err)
	require.Equal(t, 1, v.Priority)
	require.Equal(t, int32(3), runner.calls.Load())

	list, err := c.ListVendors(principalCtx(tenant))
	require.NoError(t, err)
	require.Len(t, list, 1)

	retries, err := testutil.GatherAndCount(reg, "stockbook_operation_retries_total")
	require.NoError(t, err)
	require.Equal(t, 1, retries)
}

func TestTransientConflictGivesUp(t *testing.T) {
	store := memory.New()
	runner := &flakyRunner{inner: store, fails: 10}
	c := coordinator.New(runner, quietLogger(), coordinator.Config{MaxAttempts: 3})

	_, err := c.CreateVendor(principalCtx(tenant), coordinator.CreateVendorInput{Name: "V1"})
	require.ErrorIs(t, err, shared.ErrTransientConflict)
	require.Contains(t, err.Error(), "gave up after 3 attempts")
	require.Equal(t, int32(3), runner.calls.Load())

	ids, err := store.ListTenantIDs(context.Background())
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestBusinessErrorsAreNotRetried(t *testing.T) {
	store := memory.New()
	runner := &flakyRunner{inner: store}
	c := coordinator.New(runner, quietLogger(), coordinator.Config{MaxAttempts: 5})

	_, err := c.DeleteVendor(principalCtx(tenant), 42)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Equal(t, int32(1), runner.calls.Load())
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	store := memory.New()
	runner := &flakyRunner{inner: store, fails: 10}
	c := coordinator.New(runner, quietLogger(), coordinator.Config{MaxAttempts: 5})

	ctx, cancel := context.WithCancel(principalCtx(tenant))
	cancel()
	_, err := c.CreateVendor(ctx, coordinator.CreateVendorInput{Name: "V1"})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, int32(1), runner.calls.Load())
}
