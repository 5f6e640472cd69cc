// Command craq-node launches a single CRAQ replica. It is started with its
// own role and neighbor addresses baked in — chain membership is static,
// so there is no dynamic coordinator-join handshake.
//
// Example — four-node chain a -> b -> c -> d:
//
//	craq-node -id a -role head   -addr :9900 -next :9901 -tail :9903
//	craq-node -id b -role middle -addr :9901 -next :9902 -tail :9903
//	craq-node -id c -role middle -addr :9902 -next :9903 -tail :9903
//	craq-node -id d -role tail   -addr :9903
package main

import (
	"flag"
	"os"

	"github.com/vedant-sharmaa/projects/corelog"
	"github.com/vedant-sharmaa/projects/craqnode"
	"github.com/vedant-sharmaa/projects/store"
	"github.com/vedant-sharmaa/projects/transport"
)

func parseRole(s string) (craqnode.Role, bool) {
	switch s {
	case "head":
		return craqnode.RoleHead, true
	case "middle":
		return craqnode.RoleMiddle, true
	case "tail":
		return craqnode.RoleTail, true
	default:
		return 0, false
	}
}

func main() {
	id := flag.String("id", "", "unique replica identifier, used only for logging")
	roleFlag := flag.String("role", "", "head | middle | tail")
	addr := flag.String("addr", ":9900", "address to listen on")
	next := flag.String("next", "", "address of the next replica (unused for tail)")
	tail := flag.String("tail", "", "address of the chain tail (unused for tail itself)")
	prev := flag.String("prev", "", "identity of the previous replica, for logging only")
	flag.Parse()

	log := corelog.Component("craq-node")

	role, ok := parseRole(*roleFlag)
	if !ok {
		log.Error().Str("role", *roleFlag).Msg("invalid -role, must be head, middle, or tail")
		os.Exit(1)
	}
	if role != craqnode.RoleTail && *next == "" {
		log.Error().Msg("-next is required for head and middle replicas")
		os.Exit(1)
	}
	if role != craqnode.RoleTail && *tail == "" {
		log.Error().Msg("-tail is required for head and middle replicas")
		os.Exit(1)
	}

	n := craqnode.New(craqnode.Opts{
		ID:        *id,
		Role:      role,
		Prev:      *prev,
		NextAddr:  *next,
		TailAddr:  *tail,
		Store:     store.NewMemory(),
		Transport: transport.JSONRPC{},
	})

	if err := n.ListenAndServe(*addr); err != nil {
		log.Error().Err(err).Msg("craq node exited")
		os.Exit(1)
	}
}
