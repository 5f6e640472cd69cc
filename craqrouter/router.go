// Package craqrouter is a client-side handle to a CRAQ chain: SETs always
// go to the head, GETs round-robin over every replica. It mirrors the
// reference CraqClient in craq_cluster.py, adapted to dial through the
// transport package instead of a bespoke TcpClient.
package craqrouter

import (
	"fmt"
	"sync"

	"github.com/vedant-sharmaa/projects/craqrpc"
	"github.com/vedant-sharmaa/projects/transport"
)

// Router is a client-side handle to an entire CRAQ chain.
type Router struct {
	head    transport.Client
	servers []transport.Client // all replicas, in chain order, for GET round-robin

	mu      sync.Mutex
	counter uint64
}

// Dial connects to the head (addrs[0]) and every replica in addrs, in
// order, and returns a Router. addrs must list the chain head-to-tail.
func Dial(tr transport.Transporter, addrs []string) (*Router, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("craqrouter: no replica addresses given")
	}

	servers := make([]transport.Client, 0, len(addrs))
	for _, addr := range addrs {
		c, err := tr.Connect(addr)
		if err != nil {
			for _, opened := range servers {
				opened.Close()
			}
			return nil, fmt.Errorf("craqrouter: connect to %s: %w", addr, err)
		}
		servers = append(servers, c)
	}

	return &Router{head: servers[0], servers: servers}, nil
}

// Set sends key/val to the head. It succeeds iff the head reports OK.
func (r *Router) Set(key, val string) error {
	var reply craqrpc.SetReply
	args := craqrpc.SetArgs{Key: key, Val: val}
	if err := r.head.Call("RPC.Set", args, &reply); err != nil {
		return fmt.Errorf("craqrouter: set: %w", err)
	}
	if reply.Status != craqrpc.StatusOK {
		return fmt.Errorf("craqrouter: set %q: %s", key, reply.Status)
	}
	return nil
}

// Get reads key from whichever replica the round-robin counter selects
// next.
func (r *Router) Get(key string) (string, error) {
	server := r.next()

	var reply craqrpc.GetReply
	args := craqrpc.GetArgs{Key: key}
	if err := server.Call("RPC.Get", args, &reply); err != nil {
		return "", fmt.Errorf("craqrouter: get: %w", err)
	}
	if reply.Status != craqrpc.StatusOK {
		return "", fmt.Errorf("craqrouter: get %q: %s", key, reply.Status)
	}
	return reply.Val, nil
}

// next picks the replica for a GET, protected by a mutex since multiple
// goroutines may share one Router.
func (r *Router) next() transport.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.servers[r.counter%uint64(len(r.servers))]
	r.counter++
	return s
}

// Close releases every replica connection.
func (r *Router) Close() error {
	var firstErr error
	for _, c := range r.servers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
