// Command stream-coordinator launches the coordinator that drives
// checkpoint epochs and recovery for a fixed set of mappers and reducers.
package main

import (
	"flag"
	"os"

	"github.com/vedant-sharmaa/projects/coordinator"
	"github.com/vedant-sharmaa/projects/corelog"
)

type addrList []string

func (l *addrList) String() string { return "" }
func (l *addrList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	listenAddr := flag.String("addr", ":9600", "UDP address this coordinator listens on")
	var mapperAddrs addrList
	var reducerAddrs addrList
	flag.Var(&mapperAddrs, "mapper", "mapper UDP address; repeat for each mapper")
	flag.Var(&reducerAddrs, "reducer", "reducer UDP address; repeat for each reducer")
	flag.Parse()

	log := corelog.Component("stream-coordinator")
	if len(mapperAddrs) == 0 {
		log.Error().Msg("at least one -mapper address is required")
		os.Exit(1)
	}

	c := coordinator.New(coordinator.Opts{
		ListenAddr:   *listenAddr,
		MapperAddrs:  mapperAddrs,
		ReducerAddrs: reducerAddrs,
	})

	if err := c.Run(); err != nil {
		log.Error().Err(err).Msg("coordinator exited")
		os.Exit(1)
	}
}
