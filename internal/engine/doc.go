// Package engine implements the connection/channel broadcast core: the
// registries tracking live connections and their channel subscriptions, the
// binary frame reassembly buffer, the action dispatcher, the broadcast
// fan-out, and the keep-alive supervision that keeps the registries
// consistent as connections come and go.
//
// The engine owns no transport and no persistence. It consumes the transport
// as a narrow Transport handle per connection and the persistence and blob
// collaborators through the domain interfaces.
package engine
