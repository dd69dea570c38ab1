// Package events provides the synchronous, in-process publish/subscribe
// primitive shared by the session manager and the registry synchronizer.
// Handlers run on the dispatching goroutine in registration order; a handler
// may stop propagation for the current dispatch, and handler errors abort the
// remaining handler invocations and surface to the dispatcher.
package events
