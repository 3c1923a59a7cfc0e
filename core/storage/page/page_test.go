package page

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPage_ResetClearsStateAndMemory(t *testing.T) {
	p := NewPage(PageID(7), 128)
	copy(p.GetData(), []byte("stale bytes"))
	p.Pin()
	p.SetDirty(true)

	p.Reset()

	require.Equal(t, InvalidPageID, p.GetPageID())
	require.Equal(t, uint32(0), p.GetPinCount())
	require.False(t, p.IsDirty())
	for i, b := range p.GetData() {
		require.Zero(t, b, "byte %d must be zeroed", i)
	}
}

func TestPage_PinCountNeverGoesNegative(t *testing.T) {
	p := NewPage(PageID(1), 16)
	p.Unpin()
	require.Equal(t, uint32(0), p.GetPinCount())
	p.Pin()
	p.Pin()
	p.Unpin()
	require.Equal(t, uint32(1), p.GetPinCount())
}

func TestPage_LatchAllowsConcurrentReaders(t *testing.T) {
	p := NewPage(PageID(1), 16)

	p.RLock()
	done := make(chan struct{})
	go func() {
		p.RLock()
		p.RUnlock()
		close(done)
	}()
	<-done
	p.RUnlock()

	// An exclusive latch serializes against everything else.
	var wg sync.WaitGroup
	p.Lock()
	entered := false
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.RLock()
		entered = true
		p.RUnlock()
	}()
	require.False(t, entered, "reader must wait for the writer")
	p.Unlock()
	wg.Wait()
	require.True(t, entered)
}
