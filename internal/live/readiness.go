package live

import (
	"sync"
	"time"
)

// readiness settles exactly once: opened, failed or timed out. Later
// settle attempts are ignored.
type readiness struct {
	once  sync.Once
	done  chan struct{}
	err   error
	timer *time.Timer
}

func newReadiness(timeout time.Duration) *readiness {
	r := &readiness{
		done:  make(chan struct{}),
		timer: time.NewTimer(timeout),
	}
	go func() {
		select {
		case <-r.timer.C:
			r.settle(ErrOpenTimeout)
		case <-r.done:
		}
	}()
	return r
}

// settle records the outcome. A nil err means the session opened. It
// reports whether this call was the one that settled.
func (r *readiness) settle(err error) bool {
	settled := false
	r.once.Do(func() {
		r.timer.Stop()
		r.err = err
		close(r.done)
		settled = true
	})
	return settled
}

// wait blocks until settled and returns the outcome.
func (r *readiness) wait() error {
	<-r.done
	return r.err
}
