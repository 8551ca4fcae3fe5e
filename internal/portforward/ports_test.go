package portforward

import (
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocator_ClaimAndRelease(t *testing.T) {
	a := NewAllocator(41000, 41004)

	p1, err := a.Claim()
	require.NoError(t, err)
	p2, err := a.Claim()
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
	assert.GreaterOrEqual(t, p1, 41000)
	assert.LessOrEqual(t, p1, 41004)

	a.Release(p1)
	p3, err := a.Claim()
	require.NoError(t, err)
	assert.Equal(t, p1, p3)
}

func TestAllocator_ExhaustedRange(t *testing.T) {
	a := NewAllocator(41010, 41012)

	for i := 0; i < 3; i++ {
		_, err := a.Claim()
		require.NoError(t, err)
	}
	_, err := a.Claim()
	assert.ErrorIs(t, err, ErrNoFreePort)
}

func TestAllocator_SkipsPortsHeldByOthers(t *testing.T) {
	a := NewAllocator(41020, 41022)

	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", 41020))
	require.NoError(t, err)
	defer l.Close()

	p, err := a.Claim()
	require.NoError(t, err)
	assert.NotEqual(t, 41020, p)
}

func TestAllocator_ConcurrentClaimsAreUnique(t *testing.T) {
	a := NewAllocator(41030, 41061)

	var mu sync.Mutex
	seen := make(map[int]int)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := a.Claim()
			if err != nil {
				return
			}
			mu.Lock()
			seen[p]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 16)
	for p, n := range seen {
		assert.Equal(t, 1, n, "port %d claimed more than once", p)
	}
}

func TestAllocator_ReleaseUnclaimedIsNoop(t *testing.T) {
	a := NewAllocator(41070, 41071)
	a.Release(41070)

	p, err := a.Claim()
	require.NoError(t, err)
	assert.Equal(t, 41070, p)
}
