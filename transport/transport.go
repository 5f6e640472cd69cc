// Package transport wraps net/rpc for CRAQ inter-replica traffic. The
// craqnode package asks for a Transporter rather than dialing net/rpc
// itself, so the replication logic never names a concrete network
// implementation.
package transport

// Client is a connection to one remote replica. Call blocks for the RPC
// round trip; Close releases the underlying connection.
type Client interface {
	Call(serviceMethod string, args, reply any) error
	Close() error
}

// Transporter connects to a remote replica and serves RPC requests for a
// local one.
type Transporter interface {
	// Connect dials addr and returns a Client for making RPCs against it.
	Connect(addr string) (Client, error)

	// Serve registers rcvr's exported methods as an RPC service and blocks
	// accepting connections on addr until the listener is closed or errors.
	Serve(addr string, rcvr any) error
}
