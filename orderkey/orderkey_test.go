package orderkey

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstAndAfter(t *testing.T) {
	assert.Equal(t, "a0", First())

	k1 := First()
	k2, err := After(k1)
	require.NoError(t, err)
	assert.Equal(t, "a1", k2)
	assert.Less(t, k1, k2)

	k3, err := After(k2)
	require.NoError(t, err)
	assert.Less(t, k2, k3)
}

func TestAfterCarriesIntoLongerInteger(t *testing.T) {
	k, err := After("az")
	require.NoError(t, err)
	assert.Equal(t, "b00", k)
	assert.Less(t, "az", k)
}

func TestBetweenFrontSentinel(t *testing.T) {
	k, err := Between("", "a0")
	require.NoError(t, err)
	assert.Equal(t, "Zz", k)
	assert.Less(t, k, "a0")

	// moving even further to the front keeps producing smaller keys
	k2, err := Between("", k)
	require.NoError(t, err)
	assert.Less(t, k2, k)
}

func TestBetweenNeighbors(t *testing.T) {
	a, b := "a0", "a1"
	mid, err := Between(a, b)
	require.NoError(t, err)
	assert.Less(t, a, mid)
	assert.Less(t, mid, b)

	// inserting repeatedly in the same gap keeps working
	lo, hi := a, mid
	for i := 0; i < 50; i++ {
		m, err := Between(lo, hi)
		require.NoError(t, err)
		require.True(t, IsValid(m), "key %q", m)
		require.Less(t, lo, m)
		require.Less(t, m, hi)
		hi = m
	}
}

// Narrowing a gap whose upper fraction starts with '0' must not truncate
// the key into one ending in '0'; such a key would poison the room, every
// later insert next to it failing validation.
func TestBetweenUpperFractionStartingWithZero(t *testing.T) {
	k, err := Between("a0", "a01")
	require.NoError(t, err)
	require.True(t, IsValid(k), "key %q", k)

	k2, err := Between("a0", k)
	require.NoError(t, err)
	require.True(t, IsValid(k2), "key %q", k2)
	assert.Less(t, "a0", k2)
	assert.Less(t, k2, k)

	// every key on the way down stays usable
	hi := k2
	for i := 0; i < 40; i++ {
		m, err := Between("a0", hi)
		require.NoError(t, err)
		require.True(t, IsValid(m), "key %q", m)
		next, err := After(m)
		require.NoError(t, err)
		require.Less(t, m, next)
		hi = m
	}
}

func TestBetweenRejectsBadOrder(t *testing.T) {
	_, err := Between("a1", "a0")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = Between("a0", "a0")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestInvalidKeys(t *testing.T) {
	for _, k := range []string{"", "0", "a", "b0", "a0!", "a00", "a10"} {
		assert.False(t, IsValid(k), "key %q", k)
	}
	for _, k := range []string{"a0", "a1", "Zz", "b00", "a0i"} {
		assert.True(t, IsValid(k), "key %q", k)
	}
}

// Random insert positions must always yield unique keys whose string order
// matches the logical order.
func TestRandomizedInsertions(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	keys := []string{First()}
	for i := 0; i < 500; i++ {
		pos := rng.Intn(len(keys) + 1)
		lo, hi := "", ""
		if pos > 0 {
			lo = keys[pos-1]
		}
		if pos < len(keys) {
			hi = keys[pos]
		}
		k, err := Between(lo, hi)
		require.NoError(t, err)
		require.True(t, IsValid(k), "key %q between %q and %q", k, lo, hi)
		keys = append(keys[:pos], append([]string{k}, keys[pos:]...)...)
	}
	assert.True(t, sort.StringsAreSorted(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		_, dup := seen[k]
		require.False(t, dup, "duplicate key %q", k)
		seen[k] = struct{}{}
	}
}
