package mapper

import (
	"github.com/vedant-sharmaa/projects/corelog"
	"github.com/vedant-sharmaa/projects/streamwire"
)

// Cmd is a unit of work delivered to a mapper's command queue: a tagged
// variant with a single Apply method, replacing the reference
// Cmd/Checkpoint/Recover/Exit inheritance hierarchy.
type Cmd interface {
	Apply(m *Mapper) error
}

// Checkpoint writes the mapper's cursor to disk, forwards an in-band
// FWD_CHECKPOINT marker to every reducer, and acks the coordinator.
// Forwarding the marker on the same TCP channel as WORD_COUNT is what
// gives the Chandy-Lamport cut its FIFO guarantee.
type Checkpoint struct {
	CheckpointID int
	RecoveryID   int
}

func (c Checkpoint) Apply(m *Mapper) error {
	if err := m.state.writeCheckpoint(c.CheckpointID); err != nil {
		return err
	}

	marker := streamwire.DataMessage{
		MsgType:      streamwire.MsgFwdCheckpoint,
		Source:       m.state.ID,
		SourceID:     m.state.Idx,
		CheckpointID: c.CheckpointID,
		RecoveryID:   c.RecoveryID,
	}

	log := corelog.Bind("mapper_id", m.state.ID)
	for _, conn := range m.state.reducerConns {
		if err := streamwire.WriteFrame(conn, marker); err != nil {
			log.Error().Err(err).Msg("forwarding checkpoint marker failed")
		}
	}

	ackType := streamwire.MsgCheckpointAck
	if c.CheckpointID == 0 {
		ackType = streamwire.MsgLastCheckpointAck
	}
	return m.toCoordinator(streamwire.CoordMessage{
		MsgType:      ackType,
		Source:       m.state.ID,
		CheckpointID: c.CheckpointID,
	})
}

// Recover reopens every reducer connection, reloads (or resets) the
// cursor, adopts the new recovery epoch, and acks the coordinator.
type Recover struct {
	CheckpointID int
	RecoveryID   int
}

func (c Recover) Apply(m *Mapper) error {
	if err := m.state.recover(c.RecoveryID, c.CheckpointID); err != nil {
		return err
	}
	return m.toCoordinator(streamwire.CoordMessage{
		MsgType:    streamwire.MsgRecoveryAck,
		Source:     m.state.ID,
		RecoveryID: c.RecoveryID,
	})
}

// Exit closes every reducer connection and signals stop. The rest of the
// teardown happens in Mapper.Run, not here: each loop returns once it sees
// the stop signal, and Run's deferred close releases the UDP socket — a
// straight os.Kill the way the reference Python exit() does it has no clean
// Go analog and would defeat graceful shutdown.
type Exit struct{}

func (Exit) Apply(m *Mapper) error {
	m.state.closeReducerConns()
	m.requestStop()
	return nil
}
