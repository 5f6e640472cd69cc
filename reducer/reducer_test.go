package reducer

import (
	"net"
	"testing"
	"time"

	"github.com/vedant-sharmaa/projects/checkpoint"
	"github.com/vedant-sharmaa/projects/streamwire"
)

func freeTCPAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func freeUDPAddr(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatal(err)
	}
	addr := conn.LocalAddr().String()
	conn.Close()
	return addr
}

// newRunningReducer starts a Reducer in the background and returns it along
// with its bound addresses and a UDP socket standing in for the
// coordinator.
func newRunningReducer(t *testing.T, numMappers int) (*Reducer, string, *net.UDPConn, string) {
	t.Helper()
	tcpAddr := freeTCPAddr(t)
	reducerUDPAddr := freeUDPAddr(t)

	coordConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { coordConn.Close() })

	r := New(Opts{
		ID:            "Reducer_0",
		NumMappers:    numMappers,
		CheckpointDir: t.TempDir(),
		TCPAddr:       tcpAddr,
		ListenAddr:    reducerUDPAddr,
		CoordAddr:     coordConn.LocalAddr().String(),
	})

	done := make(chan error, 1)
	go func() { done <- r.Run() }()
	time.Sleep(50 * time.Millisecond) // let the listener bind

	t.Cleanup(func() {
		sendCoordDatagram(t, coordConn, reducerUDPAddr, streamwire.CoordMessage{MsgType: streamwire.MsgExit})
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("reducer did not exit during cleanup")
		}
	})

	return r, tcpAddr, coordConn, reducerUDPAddr
}

func sendCoordDatagram(t *testing.T, from *net.UDPConn, to string, msg streamwire.CoordMessage) {
	t.Helper()
	b, err := streamwire.MarshalDatagram(msg)
	if err != nil {
		t.Fatal(err)
	}
	toAddr, err := net.ResolveUDPAddr("udp", to)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := from.WriteToUDP(b, toAddr); err != nil {
		t.Fatal(err)
	}
}

func dialMapper(t *testing.T, tcpAddr string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", tcpAddr)
	if err != nil {
		t.Fatal(err)
	}
	return conn
}

// waitForWC polls the reducer's in-memory snapshot until it matches want or
// the timeout expires.
func waitForWC(t *testing.T, r *Reducer, want map[string]int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		got := r.state.snapshot()
		if len(got) == len(want) {
			match := true
			for k, v := range want {
				if got[k] != v {
					match = false
					break
				}
			}
			if match {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("word count never reached %v, last snapshot %v", want, r.state.snapshot())
}

func TestReducerAggregatesAcrossMappers(t *testing.T) {
	r, tcpAddr, _, _ := newRunningReducer(t, 2)

	m0 := dialMapper(t, tcpAddr)
	m1 := dialMapper(t, tcpAddr)
	defer m0.Close()
	defer m1.Close()

	streamwire.WriteFrame(m0, streamwire.DataMessage{MsgType: streamwire.MsgWordCount, Source: "Mapper_0", Key: "alpha", Value: 2})
	streamwire.WriteFrame(m1, streamwire.DataMessage{MsgType: streamwire.MsgWordCount, Source: "Mapper_1", Key: "beta", Value: 1})

	waitForWC(t, r, map[string]int{"alpha": 2, "beta": 1}, time.Second)
}

// TestAlignedCheckpointWaitsForAllMappers verifies the reducer must not
// persist a checkpoint until every mapper's marker for that checkpoint id
// has arrived.
func TestAlignedCheckpointWaitsForAllMappers(t *testing.T) {
	r, tcpAddr, _, _ := newRunningReducer(t, 2)

	m0 := dialMapper(t, tcpAddr)
	m1 := dialMapper(t, tcpAddr)
	defer m0.Close()
	defer m1.Close()

	streamwire.WriteFrame(m0, streamwire.DataMessage{MsgType: streamwire.MsgWordCount, Source: "Mapper_0", Key: "alpha", Value: 1})
	waitForWC(t, r, map[string]int{"alpha": 1}, time.Second)

	markerDone := make(chan struct{})
	go func() {
		streamwire.WriteFrame(m0, streamwire.DataMessage{MsgType: streamwire.MsgFwdCheckpoint, Source: "Mapper_0", SourceID: 0, CheckpointID: 3})
		close(markerDone)
	}()
	<-markerDone

	// Only mapper_0's marker has arrived; the checkpoint file must not exist
	// yet.
	time.Sleep(100 * time.Millisecond)
	if _, err := checkpoint.ReadReducerWordCount(r.state.CheckpointDir, r.state.ID, 3); err == nil {
		t.Fatal("checkpoint persisted before all mappers reported their marker")
	}

	// mapper_1 reports a word before its own marker; it is on the
	// pre-marker side of mapper_1's channel, so it must appear in the cp=3
	// snapshot.
	streamwire.WriteFrame(m1, streamwire.DataMessage{MsgType: streamwire.MsgWordCount, Source: "Mapper_1", Key: "gamma", Value: 5})
	waitForWC(t, r, map[string]int{"alpha": 1, "gamma": 5}, time.Second)

	streamwire.WriteFrame(m1, streamwire.DataMessage{MsgType: streamwire.MsgFwdCheckpoint, Source: "Mapper_1", SourceID: 1, CheckpointID: 3})

	deadline := time.Now().Add(time.Second)
	var wc map[string]int
	var err error
	for time.Now().Before(deadline) {
		wc, err = checkpoint.ReadReducerWordCount(r.state.CheckpointDir, r.state.ID, 3)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("checkpoint never persisted: %v", err)
	}
	if wc["alpha"] != 1 || wc["gamma"] != 5 {
		t.Fatalf("unexpected checkpoint contents %v", wc)
	}
}

// TestStaleWordCountDiscardedAfterRecovery verifies a WORD_COUNT tagged
// with a stale recovery id gets dropped once the reducer has moved to a
// newer epoch.
func TestStaleWordCountDiscardedAfterRecovery(t *testing.T) {
	r, tcpAddr, coordConn, reducerUDPAddr := newRunningReducer(t, 1)

	m0 := dialMapper(t, tcpAddr)
	defer m0.Close()

	// Reducer starts at recovery epoch 0; this message matches it.
	streamwire.WriteFrame(m0, streamwire.DataMessage{MsgType: streamwire.MsgWordCount, Source: "Mapper_0", Key: "alpha", Value: 2, LastRecoveryID: 0})
	waitForWC(t, r, map[string]int{"alpha": 2}, time.Second)

	sendCoordDatagram(t, coordConn, reducerUDPAddr, streamwire.CoordMessage{MsgType: streamwire.MsgRecover, CheckpointID: -1, RecoveryID: 2})
	time.Sleep(100 * time.Millisecond)

	if got := r.state.snapshot(); len(got) != 0 {
		t.Fatalf("word count should be empty after a cp_id=-1 recovery, got %v", got)
	}

	// Stale message tagged with the pre-recovery epoch (0) must be dropped
	// now that the reducer has moved on to epoch 2.
	streamwire.WriteFrame(m0, streamwire.DataMessage{MsgType: streamwire.MsgWordCount, Source: "Mapper_0", Key: "alpha", Value: 9, LastRecoveryID: 0})
	time.Sleep(100 * time.Millisecond)
	if got := r.state.snapshot(); len(got) != 0 {
		t.Fatalf("stale WORD_COUNT should have been discarded, got %v", got)
	}

	// A fresh message tagged with the new epoch must apply.
	streamwire.WriteFrame(m0, streamwire.DataMessage{MsgType: streamwire.MsgWordCount, Source: "Mapper_0", Key: "beta", Value: 4, LastRecoveryID: 2})
	waitForWC(t, r, map[string]int{"beta": 4}, time.Second)
}
