// Package common contains shared constants and sentinel errors used across
// authkeeper components.
package common

// AuthorizationHeaderName carries the bearer access token on inbound
// HTTP requests.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the access token in the Authorization header.
const BearerPrefix = "Bearer "

// Bounds on the random bytes behind an opaque token. Tokens travel hex
// encoded, so their text is twice as long.
const (
	MinTokenBytes = 20
	MaxTokenBytes = 150
)
