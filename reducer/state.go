package reducer

import (
	"sync"

	"github.com/vedant-sharmaa/projects/checkpoint"
)

// State is a reducer's process-local state: its running word-count table,
// the set of mapper indices that have forwarded a FWD_CHECKPOINT marker for
// the checkpoint currently in progress, and the current recovery epoch.
// It corresponds to the reference ReducerState dataclass.
type State struct {
	ID            string
	NumMappers    int
	CheckpointDir string

	mu             sync.Mutex
	wc             map[string]int
	cpMarker       map[int]int // mapper source_id -> last cp_id it has forwarded
	lastCPID       int
	lastRecoveryID int
}

// newState builds a State with an empty word-count table.
func newState(id string, numMappers int, checkpointDir string) *State {
	return &State{
		ID:            id,
		NumMappers:    numMappers,
		CheckpointDir: checkpointDir,
		wc:            map[string]int{},
		cpMarker:      map[int]int{},
		lastCPID:      -1,
	}
}

// applyWordCount merges a WORD_COUNT message into the running table only
// if its recovery id matches the current epoch exactly — the
// stale-message filter that makes recovery idempotent against re-sent
// counts.
func (s *State) applyWordCount(key string, value, msgRecoveryID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msgRecoveryID != s.lastRecoveryID {
		return
	}
	s.wc[key] += value
}

// markCheckpoint records that mapper sourceID has forwarded its
// FWD_CHECKPOINT marker for cpID. It returns true once every mapper's
// recorded marker equals cpID, meaning the Chandy-Lamport cut is complete
// on this reducer's incoming edges.
func (s *State) markCheckpoint(cpID, sourceID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cpMarker[sourceID] = cpID
	if len(s.cpMarker) < s.NumMappers {
		return false
	}
	for _, v := range s.cpMarker {
		if v != cpID {
			return false
		}
	}
	return true
}

// snapshot copies the current word-count table for persistence.
func (s *State) snapshot() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.wc))
	for k, v := range s.wc {
		out[k] = v
	}
	return out
}

// resetCheckpointMarkers clears the per-checkpoint marker set once a
// checkpoint has been persisted, readying State for the next one.
func (s *State) resetCheckpointMarkers(cpID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cpMarker = map[int]int{}
	s.lastCPID = cpID
}

// persist writes the current word-count snapshot to disk under cpID.
func (s *State) persist(cpID int) error {
	return checkpoint.WriteReducerWordCount(s.CheckpointDir, s.ID, cpID, s.snapshot())
}

// recover reloads the word-count table from a prior checkpoint (or resets
// to empty if cpID == -1) and adopts the new recovery epoch.
func (s *State) recover(recoveryID, cpID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cpID == -1 {
		s.wc = map[string]int{}
	} else {
		wc, err := checkpoint.ReadReducerWordCount(s.CheckpointDir, s.ID, cpID)
		if err != nil {
			return err
		}
		s.wc = wc
	}
	s.cpMarker = map[int]int{}
	s.lastRecoveryID = recoveryID
	return nil
}
