// Command stream-mapper launches a single Mapper against one partition of
// an in-process broker (broker.Memory). Like craq-node, every address is a
// CLI flag baked in at launch; there is no discovery handshake.
package main

import (
	"flag"
	"os"

	"github.com/vedant-sharmaa/projects/broker"
	"github.com/vedant-sharmaa/projects/checkpoint"
	"github.com/vedant-sharmaa/projects/corelog"
	"github.com/vedant-sharmaa/projects/mapper"
	"github.com/vedant-sharmaa/projects/partition"
)

type reducerAddrList []string

func (l *reducerAddrList) String() string { return "" }
func (l *reducerAddrList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	id := flag.String("id", "", "mapper identity, e.g. Mapper_0")
	idx := flag.Int("idx", 0, "mapper index, used as source_id in checkpoint markers")
	listenAddr := flag.String("addr", ":9700", "UDP address this mapper listens on for coordinator commands")
	coordAddr := flag.String("coordinator", ":9600", "UDP address of the coordinator")
	checkpointDir := flag.String("checkpoint-dir", checkpoint.Dir, "directory for checkpoint files")
	partitionKind := flag.String("partition", "first-letter", "first-letter | hash-mod")
	text := flag.String("text", "", "input text for this mapper's partition (demo broker)")
	var reducerAddrs reducerAddrList
	flag.Var(&reducerAddrs, "reducer", "reducer TCP address; repeat for each reducer")
	flag.Parse()

	log := corelog.Component("stream-mapper")
	if len(reducerAddrs) == 0 {
		log.Error().Msg("at least one -reducer address is required")
		os.Exit(1)
	}

	var p partition.Partitioner
	switch *partitionKind {
	case "first-letter":
		p = partition.FirstLetter{}
	case "hash-mod":
		p = partition.HashMod{}
	default:
		log.Error().Str("partition", *partitionKind).Msg("unknown -partition kind")
		os.Exit(1)
	}

	b := broker.NewMemory(*text)
	m := mapper.New(mapper.Opts{
		ID:            *id,
		Idx:           *idx,
		ReducerAddrs:  reducerAddrs,
		CheckpointDir: *checkpointDir,
		ListenAddr:    *listenAddr,
		CoordAddr:     *coordAddr,
		Partition:     b.Partition(0),
		Partitioner:   p,
	})

	if err := m.Run(); err != nil {
		log.Error().Err(err).Msg("mapper exited")
		os.Exit(1)
	}
}
