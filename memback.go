// Package memback is an in-memory substitute for a remote object storage
// backend. Requests shaped like the backend's object API are resolved
// entirely against local collections instead of a network.
package memback

import "github.com/memback/memback/core"

// Request is a normalized object API request.
type Request = core.Request

// Response is the envelope returned for every request.
type Response = core.Response

// Open returns a new engine instance with empty collections.
func Open(opts ...core.Option) *core.Store {
	return core.Open(opts...)
}
