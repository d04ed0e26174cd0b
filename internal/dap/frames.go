package dap

import "sync"

// FrameThreadIndex remembers which thread produced each stack frame id.
// Scopes and evaluate requests carry only a frame id; the remote services
// also need the owning thread.
type FrameThreadIndex struct {
	mu     sync.RWMutex
	frames map[int]int
}

// NewFrameThreadIndex creates an empty index
func NewFrameThreadIndex() *FrameThreadIndex {
	return &FrameThreadIndex{
		frames: make(map[int]int),
	}
}

// Record associates a frame id with the thread that produced it
func (x *FrameThreadIndex) Record(frameID, threadID int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.frames[frameID] = threadID
}

// Lookup returns the thread that produced a frame
func (x *FrameThreadIndex) Lookup(frameID int) (int, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	threadID, ok := x.frames[frameID]
	return threadID, ok
}

// Len returns the number of known frames
func (x *FrameThreadIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.frames)
}

// Reset forgets every frame; frame ids do not survive a reconnect
func (x *FrameThreadIndex) Reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.frames = make(map[int]int)
}
