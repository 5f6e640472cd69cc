package craqnode

import (
	"github.com/vedant-sharmaa/projects/corelog"

	"golang.org/x/sync/errgroup"
)

// ListenAndServe registers this node's RPC service and blocks serving it,
// the same errgroup-wrapped shape node.go's ListenAndServe uses — here
// there's no coordinator handshake to run alongside the listener since
// chain membership is static, but the errgroup stays so a future second
// long-running activity (e.g. a metrics endpoint) has somewhere to hook
// in without restructuring the call site.
func (n *Node) ListenAndServe(addr string) error {
	logger := corelog.Bind("node_id", n.id)
	logger.Info().Str("role", n.role.String()).Str("prev", n.prev).Str("addr", addr).Msg("starting craq node")

	errg := errgroup.Group{}
	errg.Go(func() error {
		return n.tr.Serve(addr, &RPC{n})
	})
	return errg.Wait()
}
