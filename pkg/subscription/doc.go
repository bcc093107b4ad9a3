// Package subscription maps tenant keys to notification consumers.
//
// A Registry holds, per tenant key, an ordered list of callbacks. The same
// function may be registered several times; every registration gets its own
// handle and is removed independently.
//
// The registry never talks to the transport. The client asks it whether a key
// has at least one consumer before subscribing the tenant's topic, and hands
// every decoded notification to Dispatch for fan-out.
//
// # Delivery
//
// Callbacks for one notification run in registration order on the caller's
// goroutine. A panicking callback is recovered and logged; later callbacks
// still receive the notification.
//
// # Lifecycle
//
// Registrations survive reconnects. A consumer stays registered until its
// unsubscribe function is called or the registry is cleared.
package subscription
