package chain

import "sync"

// Clock supplies the height and timestamp of the block currently being built.
// The chain never reads wall time directly.
type Clock interface {
	Now() (height uint64, timestamp uint64)
	Set(height uint64, timestamp uint64)
}

// ManualClock is a Clock driven explicitly by its owner. The daemon advances
// it when sealing blocks; tests use it to mine and fast-forward.
type ManualClock struct {
	mu        sync.Mutex
	height    uint64
	timestamp uint64
}

func NewManualClock(height, timestamp uint64) *ManualClock {
	return &ManualClock{height: height, timestamp: timestamp}
}

func (c *ManualClock) Now() (uint64, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height, c.timestamp
}

func (c *ManualClock) Set(height, timestamp uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height = height
	c.timestamp = timestamp
}

// Mine advances the height by n blocks, one second apart.
func (c *ManualClock) Mine(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height += n
	c.timestamp += n
}

// FastForward moves time forward by seconds and mines a single block.
func (c *ManualClock) FastForward(seconds uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timestamp += seconds
	c.height++
}

// SetTime pins the timestamp without changing the height.
func (c *ManualClock) SetTime(timestamp uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timestamp = timestamp
}
