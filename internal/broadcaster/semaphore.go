package broadcaster

import "context"

// writeSlots bounds how many subscriber writes of one pass are in flight
type writeSlots chan struct{}

func newWriteSlots(n int) writeSlots {
	return make(writeSlots, n)
}

// acquire waits for a free slot; it fails only when ctx is done
func (s writeSlots) acquire(ctx context.Context) error {
	select {
	case s <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s writeSlots) release() {
	<-s
}
