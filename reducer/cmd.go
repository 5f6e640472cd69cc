package reducer

import "github.com/vedant-sharmaa/projects/streamwire"

// Cmd is a unit of work on a reducer's serial command queue, mirroring
// mapper.Cmd: a single apply method in place of the reference Cmd/WC/
// CPMarker/Recover/Exit inheritance hierarchy.
type Cmd interface {
	Apply(r *Reducer) error
}

// WC merges one mapper's word count into the running aggregate, subject to
// the stale-recovery-epoch filter.
type WC struct {
	Key        string
	Value      int
	RecoveryID int
}

func (c WC) Apply(r *Reducer) error {
	r.state.applyWordCount(c.Key, c.Value, c.RecoveryID)
	return nil
}

// CPMarker persists the word-count snapshot once every mapper's marker for
// CheckpointID has arrived, then acks the coordinator.
type CPMarker struct {
	CheckpointID int
	RecoveryID   int
}

func (c CPMarker) Apply(r *Reducer) error {
	if err := r.state.persist(c.CheckpointID); err != nil {
		return err
	}
	r.state.resetCheckpointMarkers(c.CheckpointID)

	ackType := streamwire.MsgCheckpointAck
	if c.CheckpointID == 0 {
		ackType = streamwire.MsgLastCheckpointAck
	}
	return r.toCoordinator(streamwire.CoordMessage{
		MsgType:      ackType,
		Source:       r.state.ID,
		CheckpointID: c.CheckpointID,
	})
}

// Recover resets the checkpoint barrier, reloads (or clears) the word-count
// table, adopts the new recovery epoch, and acks the coordinator.
type Recover struct {
	CheckpointID int
	RecoveryID   int
}

func (c Recover) Apply(r *Reducer) error {
	r.barrier.Reset()
	if err := r.state.recover(c.RecoveryID, c.CheckpointID); err != nil {
		return err
	}
	return r.toCoordinator(streamwire.CoordMessage{
		MsgType:    streamwire.MsgRecoveryAck,
		Source:     r.state.ID,
		RecoveryID: c.RecoveryID,
	})
}

// Exit shuts down every mapper connection and the accept socket.
type Exit struct{}

func (Exit) Apply(r *Reducer) error {
	r.requestStop()
	r.closeListener()
	r.closeMapperConns()
	return nil
}
