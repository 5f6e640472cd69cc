package mapper

import (
	"fmt"
	"net"
	"time"

	"github.com/vedant-sharmaa/projects/checkpoint"
)

// State is a mapper's process-local state: a cursor into its input
// partition, the current checkpoint/recovery epoch, and the persistent
// TCP connections to every reducer. It corresponds to the reference
// MapperState dataclass, minus the pid/signal bookkeeping that only
// exists there to support the Python self.exit()'s os.kill.
type State struct {
	ID            string
	Idx           int
	ReducerAddrs  []string
	CheckpointDir string

	LastStreamID   string
	LastCPID       int
	LastRecoveryID int
	IsDrained      bool

	reducerConns []net.Conn
	dialTimeout  time.Duration
}

// connectReducers dials every reducer address, retrying each with a short
// backoff until it accepts — the reference mapper does the same blocking
// retry loop in MapperState.__post_init__ and State.recover, because a
// reducer may not have started listening yet.
func (s *State) connectReducers() error {
	s.reducerConns = make([]net.Conn, len(s.ReducerAddrs))
	for i, addr := range s.ReducerAddrs {
		conn, err := dialWithRetry(addr, s.dialTimeout)
		if err != nil {
			return fmt.Errorf("mapper %s: connect to reducer %s: %w", s.ID, addr, err)
		}
		s.reducerConns[i] = conn
	}
	return nil
}

func dialWithRetry(addr string, timeout time.Duration) (net.Conn, error) {
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}
	for {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			return conn, nil
		}
		time.Sleep(timeout)
	}
}

// writeCheckpoint persists the current cursor to
// checkpoints/<id>_<cp>.txt and records the checkpoint id.
func (s *State) writeCheckpoint(cpID int) error {
	if err := checkpoint.WriteMapperCursor(s.CheckpointDir, s.ID, cpID, s.LastStreamID); err != nil {
		return err
	}
	s.LastCPID = cpID
	return nil
}

// recover reconnects to every reducer and reloads the cursor from cpID (or
// resets to the start of the stream if cpID == -1).
func (s *State) recover(recoveryID, cpID int) error {
	s.IsDrained = false

	for _, c := range s.reducerConns {
		if c != nil {
			c.Close()
		}
	}
	if err := s.connectReducers(); err != nil {
		return err
	}

	if cpID == -1 {
		s.LastStreamID = "0"
	} else {
		cursor, err := checkpoint.ReadMapperCursor(s.CheckpointDir, s.ID, cpID)
		if err != nil {
			return err
		}
		s.LastStreamID = cursor
	}

	s.LastRecoveryID = recoveryID
	return nil
}

// closeReducerConns shuts down every reducer connection, for Exit.
func (s *State) closeReducerConns() {
	for _, c := range s.reducerConns {
		if c != nil {
			c.Close()
		}
	}
	s.reducerConns = nil
}
