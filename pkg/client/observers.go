package client

import (
	"sync"

	"github.com/tablefeed/tablefeed-go/pkg/connection"
)

// StatusCallback receives connection status changes.
type StatusCallback func(connection.Status)

// statusObserver is one registration. Its address is its identity.
type statusObserver struct {
	cb StatusCallback
}

// AddStatusCallback registers cb and calls it immediately with the current
// status. It is then called on every transition, in registration order,
// with the client's state lock held. cb may read Status, IsActive, Tenant,
// LastError and Diagnostics, which take no lock. The returned function
// removes exactly this registration.
func (c *Client) AddStatusCallback(cb StatusCallback) func() {
	o := &statusObserver{cb: cb}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return func() {}
	}
	c.observers = append(c.observers, o)
	cb(c.status)
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, existing := range c.observers {
				if existing == o {
					c.observers = append(c.observers[:i], c.observers[i+1:]...)
					return
				}
			}
		})
	}
}
