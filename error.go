package gomtl

import (
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrorChannel holds the message of the most recent failure. It is only written when a call fails: successful
// calls leave it untouched.
//
// Concurrent failing calls overwrite each other's message: the reader sees one of them.
type ErrorChannel struct {
	mu      sync.Mutex
	message string
	err     error
}

// Record stores err as the latest failure. A nil err is ignored.
func (c *ErrorChannel) Record(err error) {
	if err == nil {
		return
	}
	klog.V(2).Infof("gomtl: %+v", err)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
	c.message = err.Error()
}

// Message returns the latest failure message, or "" if nothing failed yet.
func (c *ErrorChannel) Message() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.message
}

// Err returns the latest failure, or nil.
func (c *ErrorChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// CopyTo copies the latest failure message into dst as a NUL terminated string, truncating it to fit.
// It is a no-op if dst is empty.
func (c *ErrorChannel) CopyTo(dst []byte) {
	if len(dst) == 0 {
		return
	}
	message := c.Message()
	n := copy(dst[:len(dst)-1], message)
	dst[n] = 0
}

// recoverPanic converts a panic in the runtime into a recorded failure. It must be called deferred.
func (c *ErrorChannel) recoverPanic(op string) {
	if r := recover(); r != nil {
		err := errors.Errorf("SubmissionError: %s: unexpected failure: %v", op, r)
		klog.Errorf("gomtl: %+v", err)
		c.Record(err)
	}
}
