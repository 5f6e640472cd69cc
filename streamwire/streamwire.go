// Package streamwire defines the two wire formats used by the
// mapper/reducer engine: fixed-size framed JSON records on the
// mapper->reducer TCP channel, and JSON datagrams on the worker<->
// coordinator UDP channel. It mirrors the reference Message/MT classes
// (mapper.py, reducer.py), generalized from a single tagged class into Go
// structs distinguished by a MsgType string field.
package streamwire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// FrameSize is the fixed record size on the mapper->reducer TCP channel:
// 1024-byte records, zero-padded if shorter.
const FrameSize = 1024

// DataMsgType distinguishes the two message kinds sent in-band on the
// mapper->reducer channel.
type DataMsgType string

const (
	MsgWordCount     DataMsgType = "WORD_COUNT"
	MsgFwdCheckpoint DataMsgType = "FWD_CHECKPOINT"
)

// DataMessage is everything that travels mapper->reducer. Only the fields
// relevant to MsgType are populated; this mirrors the reference system's
// single Message class carrying a kwargs-shaped payload, flattened into one
// Go struct since Go has no convenient dynamic kwargs dict.
type DataMessage struct {
	MsgType        DataMsgType `json:"msg_type"`
	Source         string      `json:"source"`
	Key            string      `json:"key,omitempty"`
	Value          int         `json:"value,omitempty"`
	LastRecoveryID int         `json:"last_recovery_id,omitempty"`
	SourceID       int         `json:"source_id,omitempty"`
	CheckpointID   int         `json:"checkpoint_id,omitempty"`
	RecoveryID     int         `json:"recovery_id,omitempty"`
}

// WriteFrame marshals msg to JSON, zero-pads it to FrameSize, and writes it
// in one call. It errors if the marshaled message doesn't fit.
func WriteFrame(w io.Writer, msg DataMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if len(b) > FrameSize {
		return fmt.Errorf("streamwire: message of %d bytes exceeds frame size %d", len(b), FrameSize)
	}
	buf := make([]byte, FrameSize)
	copy(buf, b)
	_, err = w.Write(buf)
	return err
}

// ReadFrame reads exactly one FrameSize record and unmarshals the JSON
// payload up to the first zero-padding byte. Read errors come straight from
// io.ReadFull: io.EOF if the connection closed before any byte of the frame
// arrived, io.ErrUnexpectedEOF if it closed mid-frame.
func ReadFrame(r io.Reader) (DataMessage, error) {
	buf := make([]byte, FrameSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return DataMessage{}, err
	}
	n := bytes.IndexByte(buf, 0)
	if n == -1 {
		n = len(buf)
	}
	var msg DataMessage
	if err := json.Unmarshal(buf[:n], &msg); err != nil {
		return DataMessage{}, fmt.Errorf("streamwire: malformed frame: %w", err)
	}
	return msg, nil
}

// CoordMsgType enumerates the worker<->coordinator datagram types.
type CoordMsgType string

const (
	MsgHeartbeat         CoordMsgType = "HEARTBEAT"
	MsgCheckpoint        CoordMsgType = "CHECKPOINT"
	MsgCheckpointAck     CoordMsgType = "CHECKPOINT_ACK"
	MsgLastCheckpointAck CoordMsgType = "LAST_CHECKPOINT_ACK"
	MsgRecover           CoordMsgType = "RECOVER"
	MsgRecoveryAck       CoordMsgType = "RECOVERY_ACK"
	MsgExit              CoordMsgType = "EXIT"
	MsgDone              CoordMsgType = "DONE"
)

// CoordMessage is a single UDP datagram payload between a worker and the
// coordinator.
type CoordMessage struct {
	MsgType      CoordMsgType `json:"msg_type"`
	Source       string       `json:"source"`
	CheckpointID int          `json:"checkpoint_id,omitempty"`
	RecoveryID   int          `json:"recovery_id,omitempty"`
}

// MarshalDatagram serializes a CoordMessage for a single UDP packet.
func MarshalDatagram(msg CoordMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// UnmarshalDatagram parses a single UDP packet payload.
func UnmarshalDatagram(b []byte) (CoordMessage, error) {
	var msg CoordMessage
	if err := json.Unmarshal(b, &msg); err != nil {
		return CoordMessage{}, fmt.Errorf("streamwire: malformed datagram: %w", err)
	}
	return msg, nil
}
