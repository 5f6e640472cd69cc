package coordinator

import (
	"net"
	"testing"
	"time"

	"github.com/vedant-sharmaa/projects/streamwire"
)

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

// fakeWorker stands in for a mapper or reducer: it listens on its own UDP
// socket and records every datagram the coordinator sends it.
type fakeWorker struct {
	conn *net.UDPConn
	recv chan streamwire.CoordMessage
}

func newFakeWorker(t *testing.T) *fakeWorker {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatal(err)
	}
	w := &fakeWorker{conn: conn, recv: make(chan streamwire.CoordMessage, 64)}
	go w.readLoop()
	return w
}

func (w *fakeWorker) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := w.conn.Read(buf)
		if err != nil {
			return
		}
		msg, err := streamwire.UnmarshalDatagram(buf[:n])
		if err != nil {
			continue
		}
		w.recv <- msg
	}
}

func (w *fakeWorker) addr() string { return w.conn.LocalAddr().String() }
func (w *fakeWorker) close()       { w.conn.Close() }

func (w *fakeWorker) send(t *testing.T, to string, msg streamwire.CoordMessage) {
	t.Helper()
	b, err := streamwire.MarshalDatagram(msg)
	if err != nil {
		t.Fatal(err)
	}
	toAddr, err := net.ResolveUDPAddr("udp", to)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.conn.WriteToUDP(b, toAddr); err != nil {
		t.Fatal(err)
	}
}

func (w *fakeWorker) expect(t *testing.T, msgType streamwire.CoordMsgType, timeout time.Duration) streamwire.CoordMessage {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case msg := <-w.recv:
			if msg.MsgType == msgType {
				return msg
			}
		case <-deadline:
			t.Fatalf("never received %s", msgType)
		}
	}
}

// Workers identify themselves by worker ID, not by the UDP address the
// coordinator dials them at — these tests deliberately use an ID that
// differs from the fake worker's address to catch any bookkeeping that's
// accidentally keyed by address instead.
const (
	testMapperID  = "Mapper_0"
	testReducerID = "Reducer_0"
)

func TestCoordinatorDeclaresExitAfterAllMappersDrain(t *testing.T) {
	mapperW := newFakeWorker(t)
	defer mapperW.close()
	reducerW := newFakeWorker(t)
	defer reducerW.close()

	coordAddr := freeUDPAddr(t)
	c := New(Opts{
		ListenAddr:   coordAddr,
		MapperAddrs:  []string{mapperW.addr()},
		ReducerAddrs: []string{reducerW.addr()},
	})

	runDone := make(chan error, 1)
	go func() { runDone <- c.Run() }()
	time.Sleep(50 * time.Millisecond)

	// Send a heartbeat so the watchdog doesn't fire a spurious recovery.
	mapperW.send(t, coordAddr, streamwire.CoordMessage{MsgType: streamwire.MsgHeartbeat, Source: testMapperID})

	// Both the mapper and the reducer ack the first checkpoint round.
	ackMsg := mapperW.expect(t, streamwire.MsgCheckpoint, 2*time.Second)
	mapperW.send(t, coordAddr, streamwire.CoordMessage{MsgType: streamwire.MsgCheckpointAck, Source: testMapperID, CheckpointID: ackMsg.CheckpointID})
	reducerW.send(t, coordAddr, streamwire.CoordMessage{MsgType: streamwire.MsgCheckpointAck, Source: testReducerID, CheckpointID: ackMsg.CheckpointID})

	// Report the mapper drained with no outstanding checkpoint ack.
	mapperW.send(t, coordAddr, streamwire.CoordMessage{MsgType: streamwire.MsgDone, Source: testMapperID})

	mapperW.expect(t, streamwire.MsgExit, 2*time.Second)
	reducerW.expect(t, streamwire.MsgExit, 2*time.Second)

	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not stop after declaring done")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastDurableCP < 0 {
		t.Fatalf("lastDurableCP = %d, want it advanced past the acked round", c.lastDurableCP)
	}
}

func TestCoordinatorTriggersRecoveryOnMissedHeartbeat(t *testing.T) {
	mapperW := newFakeWorker(t)
	defer mapperW.close()

	coordAddr := freeUDPAddr(t)
	c := New(Opts{
		ListenAddr:  coordAddr,
		MapperAddrs: []string{mapperW.addr()},
	})
	// Seed the worker (by ID, not address) as already seen so the watchdog
	// has a baseline to compare against.
	c.workers[testMapperID] = &workerStatus{lastSeen: time.Now().Add(-3 * HeartbeatTimeout)}

	go c.Run()
	defer c.requestStop()

	msg := mapperW.expect(t, streamwire.MsgRecover, 3*time.Second)
	if msg.RecoveryID != 1 {
		t.Fatalf("expected recovery_id 1, got %d", msg.RecoveryID)
	}
}
