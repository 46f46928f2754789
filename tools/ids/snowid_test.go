package ids

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerator_UniqueAndIncreasing(t *testing.T) {
	req := require.New(t)
	g := NewGenerator(7)

	prev := int64(0)
	for i := 0; i < 10000; i++ {
		id := g.Next()
		req.Greater(id, prev)
		req.Equal(int64(7), NodeOf(id))
		prev = id
	}
}

func TestGenerator_Concurrent(t *testing.T) {
	req := require.New(t)
	g := NewGenerator(3)

	var (
		mu   sync.Mutex
		seen = make(map[int64]struct{})
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, 500)
			for i := 0; i < 500; i++ {
				local = append(local, g.Next())
			}
			mu.Lock()
			for _, id := range local {
				seen[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	req.Len(seen, 4000)
}

func TestNewGenerator_InvalidNodeFallsBack(t *testing.T) {
	require.Equal(t, int64(1), NodeOf(NewGenerator(5000).Next()))
}
