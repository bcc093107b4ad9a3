package client

import (
	"github.com/tablefeed/tablefeed-go/pkg/health"
	"github.com/tablefeed/tablefeed-go/pkg/subscription"
)

// Option customizes a Client.
type Option func(*Client)

// WithChecker sets the liveness checker used by the prober, replacing the
// checker derived from Config.URL.
func WithChecker(checker health.Checker) Option {
	return func(c *Client) {
		c.checker = checker
	}
}

// WithRegistry shares an existing subscription registry with the client.
func WithRegistry(registry *subscription.Registry) Option {
	return func(c *Client) {
		if registry != nil {
			c.registry = registry
		}
	}
}

// WithConnectionIDs sets the generator for connection ids. The default
// produces random UUIDs.
func WithConnectionIDs(next func() string) Option {
	return func(c *Client) {
		if next != nil {
			c.newConnID = next
		}
	}
}
