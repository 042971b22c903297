// Package keypool keeps a set of developer console logins authenticated and
// hands out their API keys round-robin.
//
// Each [Session] owns one login and the keys it holds. A [Pool] owns every
// session, resolves the host's public IP and publishes an immutable view of
// all usable keys. [Pool.NextKey] walks that view with a single atomic
// cursor, so concurrent callers never block one another and never index past
// a session's key list.
//
// When the public IP changes every key stops working at once. [Pool.Reinit]
// marks the pool not ready, re-resolves the IP and refreshes each session in
// turn, revoking stale keys and creating replacements. Concurrent reinit
// requests share a single run.
package keypool
