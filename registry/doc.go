// Package registry reconciles a local endpoint catalog against remote service
// registries. Synchronization is scoped by registry ownership tag: manually
// added endpoints and endpoints imported by another registry are never
// touched, so repeated syncs are safe to run against any catalog.
package registry
