// Package session orchestrates authenticators across an endpoint catalog.
//
// Endpoints sharing a credential fingerprint resolve to one authenticator, so
// bulk operations prompt once per distinct credential set. Progress surfaces
// through a synchronous event bus the caller can subscribe to or relay.
package session
