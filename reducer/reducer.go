// Package reducer accepts one TCP connection per mapper, aggregates
// WORD_COUNT messages into a running total, aligns FWD_CHECKPOINT markers
// across all mappers behind a party-count barrier, and persists a
// consistent snapshot once every mapper's marker for a checkpoint has
// arrived. It is a from-scratch Go port of the reference reducer.py's
// ReducerState/Cmd/CmdHandler classes, restructured the way mapper.Mapper
// restructures mapper.py: one long-lived type, its loops run under an
// errgroup.
package reducer

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/vedant-sharmaa/projects/corelog"
	"github.com/vedant-sharmaa/projects/streamwire"

	"golang.org/x/sync/errgroup"
)

// Opts configures a new Reducer.
type Opts struct {
	ID            string
	NumMappers    int
	CheckpointDir string
	TCPAddr       string // address this reducer listens on for mapper connections
	ListenAddr    string // UDP address this reducer listens on for coordinator commands
	CoordAddr     string // UDP address of the coordinator
}

// Reducer runs the acceptor, coordinator, and command-worker loops for one
// partition of the aggregate.
type Reducer struct {
	state   *State
	queue   *cmdQueue
	barrier *Barrier

	tcpAddr string
	ln      net.Listener

	listenAddr string
	coordAddr  string
	conn       *net.UDPConn
	coordUDP   *net.UDPAddr

	connsMu sync.Mutex
	conns   []net.Conn

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New constructs a Reducer. It does not bind sockets yet; that happens in
// Run.
func New(opts Opts) *Reducer {
	return &Reducer{
		state:      newState(opts.ID, opts.NumMappers, opts.CheckpointDir),
		queue:      newCmdQueue(),
		barrier:    NewBarrier(opts.NumMappers),
		tcpAddr:    opts.TCPAddr,
		listenAddr: opts.ListenAddr,
		coordAddr:  opts.CoordAddr,
		stopCh:     make(chan struct{}),
	}
}

// Run binds the mapper-facing TCP listener and the coordinator-facing UDP
// socket, then runs the acceptor/coordinator/command-worker loops until Exit
// is processed.
func (r *Reducer) Run() error {
	log := corelog.Bind("reducer_id", r.state.ID)

	ln, err := net.Listen("tcp", r.tcpAddr)
	if err != nil {
		return err
	}
	r.ln = ln
	defer ln.Close()

	coordUDP, err := net.ResolveUDPAddr("udp", r.coordAddr)
	if err != nil {
		return err
	}
	r.coordUDP = coordUDP

	conn, err := net.ListenUDP("udp", mustResolveUDP(r.listenAddr))
	if err != nil {
		return err
	}
	r.conn = conn
	defer conn.Close()

	log.Info().Str("tcp", r.tcpAddr).Str("udp", r.listenAddr).Msg("reducer started")

	errg := errgroup.Group{}
	errg.Go(r.acceptorLoop)
	errg.Go(r.coordinatorLoop)
	errg.Go(r.commandLoop)

	return errg.Wait()
}

func mustResolveUDP(addr string) *net.UDPAddr {
	a, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		panic(err)
	}
	return a
}

func (r *Reducer) requestStop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

func (r *Reducer) toCoordinator(msg streamwire.CoordMessage) error {
	b, err := streamwire.MarshalDatagram(msg)
	if err != nil {
		return err
	}
	_, err = r.conn.WriteToUDP(b, r.coordUDP)
	return err
}

func (r *Reducer) addConn(c net.Conn) {
	r.connsMu.Lock()
	r.conns = append(r.conns, c)
	r.connsMu.Unlock()
}

// closeListener stops the acceptor loop by closing the mapper-facing
// listener, unblocking its Accept call.
func (r *Reducer) closeListener() {
	if r.ln != nil {
		r.ln.Close()
	}
}

func (r *Reducer) closeMapperConns() {
	r.connsMu.Lock()
	defer r.connsMu.Unlock()
	for _, c := range r.conns {
		c.Close()
	}
	r.conns = nil
}

// acceptorLoop accepts one connection per mapper (and any reconnect after a
// mapper recovers) and spawns an input handler for each.
func (r *Reducer) acceptorLoop() error {
	log := corelog.Bind("reducer_id", r.state.ID)
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			select {
			case <-r.stopCh:
				return nil
			default:
				log.Error().Err(err).Msg("accept failed")
				return nil
			}
		}
		r.addConn(conn)
		go r.mapperInputLoop(conn)
	}
}

// mapperInputLoop is the per-mapper input handler: length-framed reads,
// dispatched by message type.
func (r *Reducer) mapperInputLoop(conn net.Conn) {
	log := corelog.Bind("reducer_id", r.state.ID)
	for {
		msg, err := streamwire.ReadFrame(conn)
		if err != nil {
			// Frames are fixed-size, so a frame whose JSON is malformed can
			// be skipped without losing alignment on the stream.
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				log.Warn().Err(err).Str("peer", conn.RemoteAddr().String()).Msg("malformed frame from mapper, skipping")
				continue
			}
			return // connection closed; acceptor will see a fresh one on recovery
		}

		switch msg.MsgType {
		case streamwire.MsgWordCount:
			r.queue.push(WC{Key: msg.Key, Value: msg.Value, RecoveryID: msg.LastRecoveryID})

		case streamwire.MsgFwdCheckpoint:
			if r.state.markCheckpoint(msg.CheckpointID, msg.SourceID) {
				r.queue.push(CPMarker{CheckpointID: msg.CheckpointID, RecoveryID: msg.RecoveryID})
			}
			r.barrier.Wait()

		default:
			log.Warn().Str("msg_type", string(msg.MsgType)).Msg("unexpected message on mapper channel")
		}
	}
}

// coordinatorLoop listens for RECOVER/EXIT datagrams; checkpoint markers
// arrive through mappers, never as a CHECKPOINT datagram directly from the
// coordinator.
func (r *Reducer) coordinatorLoop() error {
	log := corelog.Bind("reducer_id", r.state.ID)
	buf := make([]byte, 4096)

	for {
		select {
		case <-r.stopCh:
			return nil
		default:
		}

		r.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, _, err := r.conn.ReadFromUDP(buf)
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
		case streamwire.MsgRecover:
			r.queue.push(Recover{CheckpointID: msg.CheckpointID, RecoveryID: msg.RecoveryID})
		case streamwire.MsgExit:
			r.queue.push(Exit{})
		}
	}
}

// commandLoop is the serial command worker: a blocking pop followed by
// Apply.
func (r *Reducer) commandLoop() error {
	log := corelog.Bind("reducer_id", r.state.ID)
	for {
		select {
		case <-r.stopCh:
			return nil
		default:
		}
		cmd := r.queue.popBlocking()
		if err := cmd.Apply(r); err != nil {
			log.Error().Err(err).Msg("command failed")
		}
	}
}
