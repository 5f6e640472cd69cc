// Command stream-reducer launches a single Reducer accepting connections
// from a fixed number of mappers.
package main

import (
	"flag"
	"os"

	"github.com/vedant-sharmaa/projects/checkpoint"
	"github.com/vedant-sharmaa/projects/corelog"
	"github.com/vedant-sharmaa/projects/reducer"
)

func main() {
	id := flag.String("id", "", "reducer identity, e.g. Reducer_0")
	numMappers := flag.Int("num-mappers", 1, "number of mappers that will connect to this reducer")
	tcpAddr := flag.String("tcp-addr", ":9800", "TCP address this reducer listens on for mapper connections")
	listenAddr := flag.String("addr", ":9750", "UDP address this reducer listens on for coordinator commands")
	coordAddr := flag.String("coordinator", ":9600", "UDP address of the coordinator")
	checkpointDir := flag.String("checkpoint-dir", checkpoint.Dir, "directory for checkpoint files")
	flag.Parse()

	log := corelog.Component("stream-reducer")
	if *numMappers < 1 {
		log.Error().Int("num-mappers", *numMappers).Msg("-num-mappers must be at least 1")
		os.Exit(1)
	}

	r := reducer.New(reducer.Opts{
		ID:            *id,
		NumMappers:    *numMappers,
		CheckpointDir: *checkpointDir,
		TCPAddr:       *tcpAddr,
		ListenAddr:    *listenAddr,
		CoordAddr:     *coordAddr,
	})

	if err := r.Run(); err != nil {
		log.Error().Err(err).Msg("reducer exited")
		os.Exit(1)
	}
}
