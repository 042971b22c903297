// Package developer is a client for the developer console that issues API
// keys. A console login is tied to one account; keys are scoped to the
// public IP ranges they were created for and stop working as soon as the
// host's address leaves those ranges.
//
// Key creation and revocation share a rate limiter so that refreshing many
// accounts at once does not trip the console's own limits on key changes.
package developer
