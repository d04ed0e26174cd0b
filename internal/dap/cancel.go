package dap

import "sync"

// CancellationRegistry records which in-flight requests the frontend asked to cancel.
// A request is only consulted right before its remote call is issued; calls
// already on the wire run to completion.
type CancellationRegistry struct {
	mu       sync.Mutex
	inFlight map[int]bool // request seq -> cancel requested
}

// NewCancellationRegistry creates an empty registry
func NewCancellationRegistry() *CancellationRegistry {
	return &CancellationRegistry{
		inFlight: make(map[int]bool),
	}
}

// Begin marks a request as in flight
func (r *CancellationRegistry) Begin(seq int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight[seq] = false
}

// End forgets a request once its response is produced
func (r *CancellationRegistry) End(seq int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, seq)
}

// Cancel records a cancellation; it returns false if the request is not in flight
func (r *CancellationRegistry) Cancel(seq int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.inFlight[seq]; !ok {
		return false
	}
	r.inFlight[seq] = true
	return true
}

// IsCancelled reports whether a cancellation was recorded for the request
func (r *CancellationRegistry) IsCancelled(seq int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight[seq]
}
