package fixset

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state", "fixed.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func implementations(t *testing.T) map[string]Set {
	t.Helper()
	return map[string]Set{
		"memory": NewMemory(),
		"sqlite": newTestSQLite(t),
	}
}

func TestSetMarkHasList(t *testing.T) {
	ctx := context.Background()
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := s.Has(ctx, "A")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Mark(ctx, "B"))
			require.NoError(t, s.Mark(ctx, "A"))
			require.NoError(t, s.Mark(ctx, "B"))

			ok, err = s.Has(ctx, "A")
			require.NoError(t, err)
			assert.True(t, ok)

			ids, err := s.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"B", "A"}, ids)
		})
	}
}

func TestMemoryListIsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Mark(ctx, "A")

	ids, _ := m.List(ctx)
	ids[0] = "mutated"

	ids, _ = m.List(ctx)
	assert.Equal(t, []string{"A"}, ids)
}

func TestMemoryConcurrentMark(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Mark(ctx, "same")
		}()
	}
	wg.Wait()

	ids, _ := m.List(ctx)
	assert.Equal(t, []string{"same"}, ids)
}

func TestSQLitePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fixed.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Mark(ctx, "A"))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	ok, err := s.Has(ctx, "A")
	require.NoError(t, err)
	assert.True(t, ok)
}
