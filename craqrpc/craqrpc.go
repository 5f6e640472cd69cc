// Package craqrpc defines the wire types exchanged between CRAQ replicas
// and between a client router and a replica. Messages travel as framed JSON
// over TCP via net/rpc/jsonrpc (see the transport package) — the struct tags
// here are what actually goes on the wire, mirroring the reference
// {type, key, val, ver, status, message} shapes.
package craqrpc

// Status is the outcome of a request, carried back to the caller exactly as
// the reference server reports it ("OK", or an error string).
type Status string

const (
	StatusOK    Status = "OK"
	StatusError Status = "Error"
)

// SetArgs is a SET request. Version is unset (zero) when a client sends it
// to the head; the head assigns it and every downstream hop forwards the
// assigned value.
type SetArgs struct {
	Key     string `json:"key"`
	Val     string `json:"val"`
	Version uint64 `json:"ver,omitempty"`
}

// SetReply is returned by every hop, and also by the tail back up the chain.
type SetReply struct {
	Status Status `json:"status"`
	Ver    uint64 `json:"ver,omitempty"`
}

// GetArgs is a GET request, servable by any replica.
type GetArgs struct {
	Key string `json:"key"`
}

// GetReply carries the value read, or an error status if the key is absent.
type GetReply struct {
	Status Status `json:"status"`
	Val    string `json:"val,omitempty"`
}

// VerGetArgs is issued by a replica with a dirty entry, against the tail.
type VerGetArgs struct {
	Key string `json:"key"`
}

// VerGetReply reports the tail's committed version for a key, or an error
// if the tail has never seen the key.
type VerGetReply struct {
	Key     string `json:"key,omitempty"`
	Ver     uint64 `json:"ver,omitempty"`
	Status  Status `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// Found reports whether the tail actually had the key: a miss comes back
// as {status: Error, message: "Key not found"} rather than a Ver the
// caller could dereference unconditionally.
func (r VerGetReply) Found() bool {
	return r.Status != StatusError
}

// ErrKeyNotFound is the canonical message a VER_GET miss carries.
const ErrKeyNotFound = "Key not found"
