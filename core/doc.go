// Package core defines the domain model and contracts shared by the session
// manager and the registry synchronizer: endpoints and their authentication
// configuration, the credential fingerprint used to deduplicate sessions, the
// authenticator contract with its explicit restore-outcome variant, and the
// catalog store consumed as an external collaborator.
package core
