package dek

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryRegistryInsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry()

	require.NoError(t, r.Insert(ctx, "u1", []byte("wrapped-1")))
	require.NoError(t, r.Insert(ctx, "u1", []byte("wrapped-2")))

	rec, err := r.GetActive(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []byte("wrapped-1"), rec.WrappedDEK)
}

func TestMemoryRegistryUpdateOptimisticLock(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry()
	require.NoError(t, r.Insert(ctx, "u1", []byte("v0")))

	require.NoError(t, r.Update(ctx, "u1", []byte("v1"), 0))

	err := r.Update(ctx, "u1", []byte("v2"), 0)
	require.Error(t, err)

	rec, err := r.GetActive(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), rec.WrappedDEK)
	require.Equal(t, int64(1), rec.Revision)
}

func TestMemoryRegistryConcurrentInsertLeavesOneWinner(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = r.Insert(ctx, "u1", []byte{byte(i)})
		}(i)
	}
	wg.Wait()

	rec, err := r.GetActive(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, int64(0), rec.Revision)
}
