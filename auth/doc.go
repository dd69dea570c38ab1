// Package auth provides concrete authenticator implementations for the
// credential schemes the module ships with. Callers with other schemes supply
// their own core.Authenticator through a custom factory.
package auth
