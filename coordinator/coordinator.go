// Package coordinator drives checkpoint epochs across every mapper, watches
// heartbeats to detect a dead worker and trigger recovery, and declares the
// job finished once every mapper has drained and no checkpoint
// acknowledgement is outstanding (recovery acknowledgements are not
// tracked). It speaks the same UDP wire contract mapper.Mapper and
// reducer.Reducer already implement, without changing their semantics, and
// is structured the same errgroup-of-loops way they are.
package coordinator

import (
	"net"
	"sync"
	"time"

	"github.com/vedant-sharmaa/projects/corelog"
	"github.com/vedant-sharmaa/projects/streamwire"

	"golang.org/x/sync/errgroup"
)

// HeartbeatTimeout is how long a worker may go without a HEARTBEAT before
// the coordinator treats it as dead and triggers a recovery round.
const HeartbeatTimeout = 2 * time.Second

// CheckpointInterval is how often the coordinator starts a new checkpoint
// round across all mappers.
const CheckpointInterval = time.Second

// Opts configures a Coordinator.
type Opts struct {
	ListenAddr   string   // UDP address the coordinator listens on
	MapperAddrs  []string // UDP addresses of every mapper
	ReducerAddrs []string // UDP addresses of every reducer
}

type workerStatus struct {
	lastSeen time.Time
	drained  bool
}

// Coordinator drives the checkpoint/recovery protocol across a fixed set of
// mappers and reducers. Workers are known to the coordinator only by UDP
// address at construction (that's all Opts carries), but every datagram a
// worker sends back identifies itself by its own worker ID (mapper.State.ID
// / reducer.State.ID), not by address — so all bookkeeping keyed off a
// worker's reports (heartbeats, acks, DONE) is keyed by that ID, learned the
// first time a worker is heard from.
type Coordinator struct {
	listenAddr   string
	mapperAddrs  []string
	reducerAddrs []string
	numMappers   int
	numAckers    int // mappers + reducers: both ack CHECKPOINT rounds

	conn *net.UDPConn

	mu            sync.Mutex
	workers       map[string]*workerStatus // keyed by mapper ID (heartbeat + DONE)
	nextCPID      int
	lastDurableCP int
	recoveryID    int
	cpAcks        map[int]map[string]bool // cp_id -> set of worker IDs (mapper or reducer) that have acked
	declaredDone  bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New constructs a Coordinator. It does not bind its socket until Run.
func New(opts Opts) *Coordinator {
	return &Coordinator{
		listenAddr:    opts.ListenAddr,
		mapperAddrs:   opts.MapperAddrs,
		reducerAddrs:  opts.ReducerAddrs,
		numMappers:    len(opts.MapperAddrs),
		numAckers:     len(opts.MapperAddrs) + len(opts.ReducerAddrs),
		workers:       map[string]*workerStatus{},
		lastDurableCP: -1,
		cpAcks:        map[int]map[string]bool{},
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// workerFor returns the worker status for id, creating it (with lastSeen set
// to now, so a freshly-registered worker isn't immediately flagged stale) if
// this is the first message heard from it. Caller must hold c.mu.
func (c *Coordinator) workerFor(id string) *workerStatus {
	st, ok := c.workers[id]
	if !ok {
		st = &workerStatus{lastSeen: time.Now()}
		c.workers[id] = st
	}
	return st
}

// Run binds the coordinator's UDP socket and runs the checkpoint ticker,
// heartbeat watchdog, and inbound-message loop until the job drains (every
// mapper has reported DONE and no checkpoint ack is outstanding).
func (c *Coordinator) Run() error {
	log := corelog.Component("coordinator")

	conn, err := net.ListenUDP("udp", mustResolveUDP(c.listenAddr))
	if err != nil {
		return err
	}
	c.conn = conn
	defer conn.Close()

	log.Info().Str("listen", c.listenAddr).Int("mappers", len(c.mapperAddrs)).Msg("coordinator started")

	errg := errgroup.Group{}
	errg.Go(c.inboundLoop)
	errg.Go(c.checkpointLoop)
	errg.Go(c.watchdogLoop)

	return errg.Wait()
}

func mustResolveUDP(addr string) *net.UDPAddr {
	a, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		panic(err)
	}
	return a
}

func (c *Coordinator) requestStop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Done returns a channel closed once the coordinator has broadcast EXIT.
func (c *Coordinator) Done() <-chan struct{} { return c.doneCh }

func (c *Coordinator) broadcast(addrs []string, msg streamwire.CoordMessage) {
	log := corelog.Component("coordinator")
	b, err := streamwire.MarshalDatagram(msg)
	if err != nil {
		log.Error().Err(err).Msg("marshal broadcast failed")
		return
	}
	for _, addr := range addrs {
		udpAddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			log.Error().Err(err).Str("addr", addr).Msg("resolve worker address failed")
			continue
		}
		if _, err := c.conn.WriteToUDP(b, udpAddr); err != nil {
			log.Warn().Err(err).Str("addr", addr).Msg("send to worker failed")
		}
	}
}

// checkpointLoop starts a new checkpoint round across all mappers every
// CheckpointInterval.
func (c *Coordinator) checkpointLoop() error {
	ticker := time.NewTicker(CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return nil
		case <-ticker.C:
			c.mu.Lock()
			cpID := c.nextCPID
			c.nextCPID++
			c.cpAcks[cpID] = map[string]bool{}
			recoveryID := c.recoveryID
			c.mu.Unlock()

			c.broadcast(c.mapperAddrs, streamwire.CoordMessage{
				MsgType:      streamwire.MsgCheckpoint,
				Source:       "coordinator",
				CheckpointID: cpID,
				RecoveryID:   recoveryID,
			})
		}
	}
}

// watchdogLoop triggers a recovery round whenever a mapper's heartbeat goes
// silent for longer than HeartbeatTimeout.
func (c *Coordinator) watchdogLoop() error {
	log := corelog.Component("coordinator")
	ticker := time.NewTicker(HeartbeatTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return nil
		case <-ticker.C:
			c.mu.Lock()
			stale := false
			for id, st := range c.workers {
				if time.Since(st.lastSeen) > HeartbeatTimeout {
					log.Warn().Str("worker", id).Msg("heartbeat timeout, triggering recovery")
					stale = true
				}
			}
			if stale {
				c.recoveryID++
				cpID := c.lastDurableCP
				recoveryID := c.recoveryID
				for _, st := range c.workers {
					st.lastSeen = time.Now()
				}
				c.mu.Unlock()

				all := append(append([]string{}, c.mapperAddrs...), c.reducerAddrs...)
				c.broadcast(all, streamwire.CoordMessage{
					MsgType:      streamwire.MsgRecover,
					Source:       "coordinator",
					CheckpointID: cpID,
					RecoveryID:   recoveryID,
				})
				continue
			}
			c.mu.Unlock()
		}
	}
}

// inboundLoop processes HEARTBEAT, CHECKPOINT_ACK, LAST_CHECKPOINT_ACK,
// RECOVERY_ACK, and DONE datagrams from workers, and declares the job
// drained (broadcasting EXIT) once every mapper has reported DONE and no
// checkpoint ack is outstanding.
func (c *Coordinator) inboundLoop() error {
	log := corelog.Component("coordinator")
	buf := make([]byte, 4096)

	for {
		select {
		case <-c.stopCh:
			return nil
		default:
		}

		c.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, from, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			log.Error().Err(err).Msg("coordinator read failed")
			continue
		}

		msg, err := streamwire.UnmarshalDatagram(buf[:n])
		if err != nil {
			log.Error().Err(err).Msg("malformed worker datagram")
			continue
		}

		c.handleMessage(msg, from.String())
	}
}

func (c *Coordinator) handleMessage(msg streamwire.CoordMessage, from string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.MsgType {
	case streamwire.MsgHeartbeat:
		id := msg.Source
		if id == "" {
			// A worker that somehow omitted its ID is still trackable by
			// address, better than not tracking it at all.
			id = from
		}
		c.workerFor(id).lastSeen = time.Now()

	case streamwire.MsgCheckpointAck, streamwire.MsgLastCheckpointAck:
		acks, ok := c.cpAcks[msg.CheckpointID]
		if !ok {
			return
		}
		acks[msg.Source] = true
		if len(acks) >= c.numAckers {
			if msg.CheckpointID > c.lastDurableCP {
				c.lastDurableCP = msg.CheckpointID
			}
			delete(c.cpAcks, msg.CheckpointID)
			// Every mapper may already have reported DONE while this round
			// was still outstanding.
			c.maybeDeclareDoneLocked()
		}

	case streamwire.MsgRecoveryAck:
		// Acknowledged; no further bookkeeping required beyond the
		// heartbeat reset already applied in watchdogLoop.

	case streamwire.MsgDone:
		c.workerFor(msg.Source).drained = true
		c.maybeDeclareDoneLocked()
	}
}

// maybeDeclareDoneLocked broadcasts EXIT once every mapper has reported
// DONE and no checkpoint ack remains outstanding. Caller must hold c.mu.
func (c *Coordinator) maybeDeclareDoneLocked() {
	if c.declaredDone || len(c.cpAcks) > 0 {
		return
	}
	if len(c.workers) < c.numMappers {
		return
	}
	for _, st := range c.workers {
		if !st.drained {
			return
		}
	}
	c.declaredDone = true

	all := append(append([]string{}, c.mapperAddrs...), c.reducerAddrs...)
	go func() {
		c.broadcast(all, streamwire.CoordMessage{MsgType: streamwire.MsgExit, Source: "coordinator"})
		c.requestStop()
		close(c.doneCh)
	}()
}
