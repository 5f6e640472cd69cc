// Package mapper implements the Mapper role: it reads one partition of an
// input stream, tokenizes and hash-partitions words, and forwards counts
// to reducers over durable TCP links while participating in
// checkpointing. It reworks the reference mapper.py's
// MapperState/Cmd/CmdHandler/Mapper classes into a single long-lived
// Mapper type running three goroutines under an errgroup.
package mapper

import (
	"net"
	"strings"
	"sync"
	"time"

	"github.com/vedant-sharmaa/projects/broker"
	"github.com/vedant-sharmaa/projects/corelog"
	"github.com/vedant-sharmaa/projects/partition"
	"github.com/vedant-sharmaa/projects/streamwire"

	"golang.org/x/sync/errgroup"
)

// HeartbeatInterval is how often a mapper pings the coordinator, matching
// HEARTBEAT_INTERVAL in the reference constants module.
const HeartbeatInterval = 500 * time.Millisecond

// Opts configures a new Mapper.
type Opts struct {
	ID            string
	Idx           int
	ReducerAddrs  []string
	CheckpointDir string
	ListenAddr    string // UDP address this mapper listens on for coordinator commands
	CoordAddr     string // UDP address of the coordinator
	Partition     broker.Partition
	Partitioner   partition.Partitioner // defaults to partition.FirstLetter
}

// Mapper runs the input, coordinator, and heartbeat loops for one
// partition.
type Mapper struct {
	state       *State
	queue       *cmdQueue
	part        broker.Partition
	partitioner partition.Partitioner

	listenAddr string
	coordAddr  string
	conn       *net.UDPConn
	coordUDP   *net.UDPAddr

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New constructs a Mapper. It does not dial reducers or bind sockets yet;
// that happens in Run.
func New(opts Opts) *Mapper {
	p := opts.Partitioner
	if p == nil {
		p = partition.FirstLetter{}
	}
	return &Mapper{
		state: &State{
			ID:            opts.ID,
			Idx:           opts.Idx,
			ReducerAddrs:  opts.ReducerAddrs,
			CheckpointDir: opts.CheckpointDir,
			LastStreamID:  string(broker.StartCursor),
		},
		queue:       newCmdQueue(),
		part:        opts.Partition,
		partitioner: p,
		listenAddr:  opts.ListenAddr,
		coordAddr:   opts.CoordAddr,
		stopCh:      make(chan struct{}),
	}
}

// Run connects to every reducer, binds the coordinator UDP socket exactly
// once (the reference MapperState.__post_init__ binds it a second,
// ineffective time — a bug deliberately not reproduced here), and runs the
// input/coordinator/heartbeat loops until Exit is processed.
func (m *Mapper) Run() error {
	log := corelog.Bind("mapper_id", m.state.ID)

	if err := m.state.connectReducers(); err != nil {
		return err
	}

	coordUDP, err := net.ResolveUDPAddr("udp", m.coordAddr)
	if err != nil {
		return err
	}
	m.coordUDP = coordUDP

	conn, err := net.ListenUDP("udp", mustResolveUDP(m.listenAddr))
	if err != nil {
		return err
	}
	m.conn = conn
	defer conn.Close()

	log.Info().Str("listen", m.listenAddr).Msg("mapper started")

	errg := errgroup.Group{}
	errg.Go(m.coordinatorLoop)
	errg.Go(m.heartbeatLoop)
	errg.Go(m.commandLoop)

	return errg.Wait()
}

func mustResolveUDP(addr string) *net.UDPAddr {
	a, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		// A bad listen address is a startup configuration error, not a
		// runtime condition to recover from.
		panic(err)
	}
	return a
}

func (m *Mapper) requestStop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// toCoordinator sends one datagram to the coordinator over the mapper's
// single bound UDP socket.
func (m *Mapper) toCoordinator(msg streamwire.CoordMessage) error {
	b, err := streamwire.MarshalDatagram(msg)
	if err != nil {
		return err
	}
	_, err = m.conn.WriteToUDP(b, m.coordUDP)
	return err
}

// heartbeatLoop periodically pings the coordinator so it can detect this
// mapper's death via a missed-heartbeat timeout.
func (m *Mapper) heartbeatLoop() error {
	log := corelog.Bind("mapper_id", m.state.ID)
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return nil
		case <-ticker.C:
			if err := m.toCoordinator(streamwire.CoordMessage{MsgType: streamwire.MsgHeartbeat, Source: m.state.ID}); err != nil {
				log.Warn().Err(err).Msg("heartbeat send failed")
			}
		}
	}
}

// coordinatorLoop listens for CHECKPOINT/RECOVER/EXIT datagrams and
// enqueues the matching command.
func (m *Mapper) coordinatorLoop() error {
	log := corelog.Bind("mapper_id", m.state.ID)
	buf := make([]byte, 4096)

	for {
		select {
		case <-m.stopCh:
			return nil
		default:
		}

		m.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, _, err := m.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			log.Error().Err(err).Msg("coordinator datagram read failed")
			continue
		}

		msg, err := streamwire.UnmarshalDatagram(buf[:n])
		if err != nil {
			log.Error().Err(err).Msg("malformed coordinator datagram")
			continue
		}

		switch msg.MsgType {
		case streamwire.MsgCheckpoint:
			m.queue.push(Checkpoint{CheckpointID: msg.CheckpointID, RecoveryID: msg.RecoveryID})
		case streamwire.MsgRecover:
			m.queue.push(Recover{CheckpointID: msg.CheckpointID, RecoveryID: msg.RecoveryID})
		case streamwire.MsgExit:
			m.queue.push(Exit{})
		}
	}
}

// commandLoop is the reference CmdHandler.run: non-blocking pop with a
// word-count fallback while the partition still has data, blocking pop
// once it's drained.
func (m *Mapper) commandLoop() error {
	log := corelog.Bind("mapper_id", m.state.ID)
	for {
		select {
		case <-m.stopCh:
			return nil
		default:
		}

		if m.state.IsDrained {
			cmd := m.queue.popBlocking()
			if err := cmd.Apply(m); err != nil {
				log.Error().Err(err).Msg("command failed")
			}
			continue
		}

		if cmd, ok := m.queue.tryPop(); ok {
			if err := cmd.Apply(m); err != nil {
				log.Error().Err(err).Msg("command failed")
			}
			continue
		}

		m.wordCount()
	}
}

// wordCount reads one record from this mapper's partition, tokenizes it,
// and forwards a WORD_COUNT message per distinct word to the reducer the
// partitioner selects.
func (m *Mapper) wordCount() {
	log := corelog.Bind("mapper_id", m.state.ID)

	rec, ok, err := m.part.Next(broker.Cursor(m.state.LastStreamID))
	if err != nil {
		log.Error().Err(err).Msg("partition read failed")
		time.Sleep(100 * time.Millisecond)
		return
	}
	if !ok {
		m.state.IsDrained = true
		log.Info().Msg("partition drained")
		if err := m.toCoordinator(streamwire.CoordMessage{MsgType: streamwire.MsgDone, Source: m.state.ID}); err != nil {
			log.Warn().Err(err).Msg("DONE send failed")
		}
		return
	}

	counts := map[string]int{}
	for _, word := range strings.Fields(rec.Text) {
		counts[word]++
	}

	for word, count := range counts {
		reducerIdx := m.partitioner.Reducer(word, len(m.state.reducerConns))
		msg := streamwire.DataMessage{
			MsgType:        streamwire.MsgWordCount,
			Source:         m.state.ID,
			Key:            word,
			Value:          count,
			LastRecoveryID: m.state.LastRecoveryID,
		}
		if err := streamwire.WriteFrame(m.state.reducerConns[reducerIdx], msg); err != nil {
			log.Error().Err(err).Str("word", word).Msg("word count send failed")
		}
	}

	m.state.LastStreamID = string(rec.ID)
}
