package core

import "sync/atomic"

// CancelToken is a cooperative cancellation flag checked between units of work.
// The zero value is ready to use.
type CancelToken struct {
	cancelled atomic.Bool
}

func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

func (t *CancelToken) Cancel() {
	t.cancelled.Store(true)
}

func (t *CancelToken) IsCancelled() bool {
	return t.cancelled.Load()
}

// Check returns ErrCancelled once Cancel has been called.
func (t *CancelToken) Check() error {
	if t.IsCancelled() {
		return ErrCancelled
	}
	return nil
}
