package plancache

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/deft-ml/deft/internal/tensor"
)

func TestNewKeyCanonicalization(t *testing.T) {
	k1 := NewKey("matmul", []tensor.Shape{{2, 3}, {3, 4}}, 1, 0)
	k2 := NewKey("matmul", []tensor.Shape{{2, 3}, {3, 4}}, 1, 0)
	require.Equal(t, k1, k2)

	// Any structural difference produces a distinct key.
	require.NotEqual(t, k1, NewKey("cumsum", []tensor.Shape{{2, 3}, {3, 4}}, 1, 0))
	require.NotEqual(t, k1, NewKey("matmul", []tensor.Shape{{2, 3}, {3, 5}}, 1, 0))
	require.NotEqual(t, k1, NewKey("matmul", []tensor.Shape{{2, 3}, {3, 4}}, 2, 0))
}

func TestGetOrCreateBuildsOnce(t *testing.T) {
	m := NewMemory()
	key := NewKey("matmul", nil, 16)

	builds := 0
	build := func() (any, error) {
		builds++
		return "plan", nil
	}

	for i := 0; i < 3; i++ {
		plan, err := m.GetOrCreate(key, build)
		require.NoError(t, err)
		require.Equal(t, "plan", plan)
	}
	require.Equal(t, 1, builds)

	hits, misses, entries := m.Stats()
	require.Equal(t, uint64(2), hits)
	require.Equal(t, uint64(1), misses)
	require.Equal(t, 1, entries)
}

func TestGetOrCreateFailedBuildNotCached(t *testing.T) {
	m := NewMemory()
	key := NewKey("trace", nil)

	_, err := m.GetOrCreate(key, func() (any, error) {
		return nil, errors.New("shader compile failed")
	})
	require.Error(t, err)

	// The failure left nothing behind; the next build runs and succeeds.
	plan, err := m.GetOrCreate(key, func() (any, error) { return 42, nil })
	require.NoError(t, err)
	require.Equal(t, 42, plan)

	_, _, entries := m.Stats()
	require.Equal(t, 1, entries)
}

func TestGetOrCreateConcurrent(t *testing.T) {
	m := NewMemory()
	key := NewKey("cumsum", []tensor.Shape{{1024}})

	var mu sync.Mutex
	builds := 0

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			plan, err := m.GetOrCreate(key, func() (any, error) {
				mu.Lock()
				builds++
				mu.Unlock()
				return "shared", nil
			})
			if err != nil || plan != "shared" {
				t.Errorf("GetOrCreate returned (%v, %v)", plan, err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, builds)
}

func TestStatsConsistentUnderConcurrentClear(t *testing.T) {
	m := NewMemory()
	key := NewKey("matmul", []tensor.Shape{{8, 8}, {8, 8}})

	const lookups = 64
	var wg sync.WaitGroup
	for i := 0; i < lookups; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			plan, err := m.GetOrCreate(key, func() (any, error) { return "plan", nil })
			if err != nil || plan != "plan" {
				t.Errorf("GetOrCreate returned (%v, %v)", plan, err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.Clear()
	}()
	wg.Wait()

	// Every lookup either hit the cache or rebuilt the plan after Clear.
	hits, misses, _ := m.Stats()
	require.Equal(t, uint64(lookups), hits+misses)
	require.GreaterOrEqual(t, misses, uint64(1))
}

func TestClearAndEach(t *testing.T) {
	m := NewMemory()
	for _, op := range []string{"a", "b", "c"} {
		_, err := m.GetOrCreate(NewKey(op, nil), func() (any, error) { return op, nil })
		require.NoError(t, err)
	}

	seen := map[string]bool{}
	m.Each(func(key Key, plan any) {
		seen[key.Op] = true
	})
	require.Len(t, seen, 3)

	m.Clear()
	_, _, entries := m.Stats()
	require.Equal(t, 0, entries)
}
