package main

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryClaim(t *testing.T) {
	t.Run("claims a free slot", func(t *testing.T) {
		r := newRegistry()

		assert.True(t, r.claim(1, roleA, "conn-1"))

		connID, ok := r.find(1, roleA)
		require.True(t, ok)
		assert.Equal(t, "conn-1", connID)
	})

	t.Run("rejects a held slot", func(t *testing.T) {
		r := newRegistry()

		require.True(t, r.claim(1, roleA, "conn-1"))
		assert.False(t, r.claim(1, roleA, "conn-2"))

		connID, _ := r.find(1, roleA)
		assert.Equal(t, "conn-1", connID)
	})

	t.Run("re-claiming an owned slot is a no-op", func(t *testing.T) {
		r := newRegistry()

		require.True(t, r.claim(1, roleA, "conn-1"))
		assert.True(t, r.claim(1, roleA, "conn-1"))
	})

	t.Run("same role in another group is independent", func(t *testing.T) {
		r := newRegistry()

		assert.True(t, r.claim(1, roleA, "conn-1"))
		assert.True(t, r.claim(2, roleA, "conn-2"))
	})

	t.Run("claiming a new slot vacates the previous one", func(t *testing.T) {
		r := newRegistry()

		require.True(t, r.claim(1, roleA, "conn-1"))
		require.True(t, r.claim(2, roleB, "conn-1"))

		_, ok := r.find(1, roleA)
		assert.False(t, ok)

		connID, ok := r.find(2, roleB)
		require.True(t, ok)
		assert.Equal(t, "conn-1", connID)
	})
}

func TestRegistryRelease(t *testing.T) {
	t.Run("frees the held slot", func(t *testing.T) {
		r := newRegistry()

		require.True(t, r.claim(1, roleC, "conn-1"))
		r.release("conn-1")

		_, ok := r.find(1, roleC)
		assert.False(t, ok)
		assert.True(t, r.claim(1, roleC, "conn-2"))
	})

	t.Run("is idempotent", func(t *testing.T) {
		r := newRegistry()

		require.True(t, r.claim(1, roleC, "conn-1"))
		r.release("conn-1")
		r.release("conn-1")
		r.release("never-registered")

		assert.Empty(t, r.occupants(1))
	})
}

func TestRegistryOccupants(t *testing.T) {
	r := newRegistry()

	require.True(t, r.claim(1, roleD, "conn-1"))
	require.True(t, r.claim(1, roleA, "conn-2"))
	require.True(t, r.claim(2, roleB, "conn-3"))

	assert.Equal(t, []Role{roleA, roleD}, r.occupants(1))
	assert.Equal(t, []Role{roleB}, r.occupants(2))
	assert.Empty(t, r.occupants(3))
}

func TestRegistryConcurrentClaims(t *testing.T) {
	const attempts = 32

	r := newRegistry()

	var wg sync.WaitGroup
	var wins atomic.Int32

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if r.claim(1, roleE, fmt.Sprintf("conn-%d", n)) {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "exactly one concurrent claim must win")
}
