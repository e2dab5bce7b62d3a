//go:build integration

package numerator_test

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corenumerator "kabala/internal/core/numerator"
	"kabala/internal/infrastructure/numerator"
	"kabala/internal/testutil/pgtest"
)

func TestStore_LockIsPermanent(t *testing.T) {
	db := pgtest.New(t)
	store := numerator.NewStore(db.TxManager)
	ctx := context.Background()
	tenantID := db.Tenant(t)

	seq, err := store.Lock(ctx, tenantID, corenumerator.TypeReceipt, 100, "R")
	require.NoError(t, err)
	assert.True(t, seq.IsLocked)
	assert.EqualValues(t, 99, seq.CurrentNumber)
	require.NotNil(t, seq.LockedAt)

	_, err = store.Lock(ctx, tenantID, corenumerator.TypeReceipt, 5000, "X")
	assert.ErrorIs(t, err, corenumerator.ErrAlreadyLocked)

	got, err := store.Get(ctx, tenantID, corenumerator.TypeReceipt)
	require.NoError(t, err)
	assert.EqualValues(t, 100, got.StartingNumber)
	assert.Equal(t, "R", got.Prefix)

	// The schema refuses direct edits of a locked row too.
	_, err = db.Pool.Exec(ctx,
		`UPDATE document_sequences SET starting_number = 1 WHERE tenant_id = $1 AND document_type = $2`,
		tenantID, corenumerator.TypeReceipt)
	assert.Error(t, err)

	_, err = db.Pool.Exec(ctx,
		`UPDATE document_sequences SET is_locked = FALSE, locked_at = NULL WHERE tenant_id = $1 AND document_type = $2`,
		tenantID, corenumerator.TypeReceipt)
	assert.Error(t, err)

	_, err = db.Pool.Exec(ctx,
		`DELETE FROM document_sequences WHERE tenant_id = $1 AND document_type = $2`,
		tenantID, corenumerator.TypeReceipt)
	assert.Error(t, err)
}

func TestStore_AllocateMissing(t *testing.T) {
	db := pgtest.New(t)
	store := numerator.NewStore(db.TxManager)

	_, err := store.Allocate(context.Background(), db.Tenant(t), corenumerator.TypeQuote)
	assert.ErrorIs(t, err, corenumerator.ErrNotFound)
}

func TestStore_ConcurrentAllocationIsContiguous(t *testing.T) {
	db := pgtest.New(t)
	store := numerator.NewStore(db.TxManager)
	ctx := context.Background()
	tenantID := db.Tenant(t)

	_, err := store.Lock(ctx, tenantID, corenumerator.TypeTaxInvoice, 1000, "")
	require.NoError(t, err)

	const workers = 100
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []int64
		errs    []error
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := store.Allocate(ctx, tenantID, corenumerator.TypeTaxInvoice)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			numbers = append(numbers, a.Number)
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Len(t, numbers, workers)
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	for i, n := range numbers {
		assert.EqualValues(t, 1000+i, n)
	}

	seq, err := store.Get(ctx, tenantID, corenumerator.TypeTaxInvoice)
	require.NoError(t, err)
	assert.EqualValues(t, 1000+workers-1, seq.CurrentNumber)
}

func TestStore_TenantsDoNotShareSequences(t *testing.T) {
	db := pgtest.New(t)
	store := numerator.NewStore(db.TxManager)
	ctx := context.Background()
	a, b := db.Tenant(t), db.Tenant(t)

	_, err := store.Lock(ctx, a, corenumerator.TypeReceipt, 1, "")
	require.NoError(t, err)
	_, err = store.Lock(ctx, b, corenumerator.TypeReceipt, 500, "B")
	require.NoError(t, err)

	first, err := store.Allocate(ctx, a, corenumerator.TypeReceipt)
	require.NoError(t, err)
	other, err := store.Allocate(ctx, b, corenumerator.TypeReceipt)
	require.NoError(t, err)

	assert.Equal(t, "000001", first.Formatted)
	assert.Equal(t, "B000500", other.Formatted)
}
