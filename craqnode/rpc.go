package craqnode

import "github.com/vedant-sharmaa/projects/craqrpc"

// RPC adapts Node's methods to the signature net/rpc requires
// (func(args, *reply) error), registered via rpc.Register(&RPC{n}).
type RPC struct {
	*Node
}

// Set handles an inbound SET, forwarded from a predecessor or issued
// directly by a client router against the head.
func (r *RPC) Set(args craqrpc.SetArgs, reply *craqrpc.SetReply) error {
	res, err := r.Node.Set(args)
	if err != nil {
		return err
	}
	*reply = res
	return nil
}

// Get handles an inbound GET, servable by any replica.
func (r *RPC) Get(args craqrpc.GetArgs, reply *craqrpc.GetReply) error {
	val, err := r.Node.Get(args.Key)
	if err != nil {
		*reply = craqrpc.GetReply{Status: craqrpc.Status(err.Error())}
		return nil
	}
	*reply = craqrpc.GetReply{Status: craqrpc.StatusOK, Val: val}
	return nil
}

// VerGet handles an inbound VER_GET, issued by a dirty replica against the
// tail.
func (r *RPC) VerGet(args craqrpc.VerGetArgs, reply *craqrpc.VerGetReply) error {
	*reply = r.Node.VerGet(args.Key)
	return nil
}
