package transport

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"github.com/vedant-sharmaa/projects/corelog"
)

var log = corelog.Component("transport")

// JSONRPC implements Transporter using net/rpc served with the stdlib JSON
// codec, so replicas speak framed JSON over TCP while the call-site shape
// (client.Call("RPC.Method", args, reply)) stays the familiar net/rpc one.
type JSONRPC struct {
	// DialTimeout bounds a single connection attempt. Retries, where the
	// protocol calls for them (VER_GET), are the caller's responsibility.
	DialTimeout time.Duration
}

// Connect dials addr over plain TCP and wraps the connection in a JSON-RPC
// client.
func (t JSONRPC) Connect(addr string) (Client, error) {
	timeout := t.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	return &jsonrpcClient{client: jsonrpc.NewClient(conn)}, nil
}

// Serve registers rcvr's methods against a fresh *rpc.Server (net/rpc's
// DefaultServer is process-global and would collide if this node ever runs
// two services in the same binary, e.g. in tests) and serves each accepted
// connection in its own goroutine via ServeCodec with a JSON server codec,
// until the listener closes.
func (t JSONRPC) Serve(addr string, rcvr any) error {
	server := rpc.NewServer()
	if err := server.Register(rcvr); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	log.Info().Str("addr", addr).Msg("rpc listener started")

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go server.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

type jsonrpcClient struct {
	client *rpc.Client
}

func (c *jsonrpcClient) Call(serviceMethod string, args, reply any) error {
	return c.client.Call(serviceMethod, args, reply)
}

func (c *jsonrpcClient) Close() error {
	return c.client.Close()
}
