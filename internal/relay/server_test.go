package relay

import (
	"net"
	"testing"
	"time"

	"github.com/Klingon-tech/klingnet-pos/pkg/txn"
	"github.com/Klingon-tech/klingnet-pos/pkg/wire"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	s := New(Config{Addr: "127.0.0.1:0", Debug: true}, nil, zerolog.Nop())
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)
	return s
}

func dialAndHello(t *testing.T, addr, id string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	require.NoError(t, wire.WriteMessage(conn, wire.NewHello(id)))
	return conn
}

func mustReadWithin(t *testing.T, conn net.Conn, d time.Duration) wire.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(d))
	msg, err := wire.ReadMessage(conn)
	require.NoError(t, err)
	return msg
}

func assertNoMessageWithin(t *testing.T, conn net.Conn, d time.Duration) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(d))
	_, err := wire.ReadMessage(conn)
	require.Error(t, err, "expected no message, but one arrived")
}

func TestFanOutExcludesOrigin(t *testing.T) {
	s := startTestServer(t)
	addr := s.Addr()

	a := dialAndHello(t, addr, "A")
	defer a.Close()
	b := dialAndHello(t, addr, "B")
	defer b.Close()

	time.Sleep(50 * time.Millisecond) // let HELLOs resolve

	tx := txn.Transaction{Sender: "A", Receiver: "B", Amount: 5, Timestamp: 1, Type: txn.Transfer}
	require.NoError(t, wire.WriteMessage(a, wire.NewTransaction("A", tx)))

	got := mustReadWithin(t, b, time.Second)
	require.Equal(t, wire.TransactionT, got.Type)
	require.NotNil(t, got.Tx)
	require.Equal(t, "B", got.Tx.Receiver)

	assertNoMessageWithin(t, a, 100*time.Millisecond)
}

func TestDropSuppressesDelivery(t *testing.T) {
	s := startTestServer(t)
	addr := s.Addr()

	a := dialAndHello(t, addr, "A")
	defer a.Close()
	b := dialAndHello(t, addr, "B")
	defer b.Close()
	c := dialAndHello(t, addr, "C")
	defer c.Close()
	time.Sleep(50 * time.Millisecond)

	s.SetDrop("B", true)

	tx := txn.Transaction{Sender: "A", Receiver: "C", Amount: 5, Timestamp: 1, Type: txn.Transfer}
	require.NoError(t, wire.WriteMessage(a, wire.NewTransaction("A", tx)))

	mustReadWithin(t, c, time.Second)
	assertNoMessageWithin(t, b, 150*time.Millisecond)
}

func TestDelayPreservesOrderForSamePeer(t *testing.T) {
	s := startTestServer(t)
	addr := s.Addr()

	a := dialAndHello(t, addr, "A")
	defer a.Close()
	b := dialAndHello(t, addr, "B")
	defer b.Close()
	time.Sleep(50 * time.Millisecond)

	s.SetDelay("B", 80*time.Millisecond)

	first := txn.Transaction{Sender: "A", Receiver: "B", Amount: 1, Timestamp: 1, Type: txn.Transfer}
	second := txn.Transaction{Sender: "A", Receiver: "B", Amount: 2, Timestamp: 2, Type: txn.Transfer}
	require.NoError(t, wire.WriteMessage(a, wire.NewTransaction("A", first)))
	require.NoError(t, wire.WriteMessage(a, wire.NewTransaction("A", second)))

	got1 := mustReadWithin(t, b, time.Second)
	got2 := mustReadWithin(t, b, time.Second)
	require.Equal(t, float64(1), got1.Tx.Amount)
	require.Equal(t, float64(2), got2.Tx.Amount)
}

func TestByeBroadcastOnDisconnect(t *testing.T) {
	s := startTestServer(t)
	addr := s.Addr()

	a := dialAndHello(t, addr, "A")
	defer a.Close()
	b := dialAndHello(t, addr, "B")
	defer b.Close()
	time.Sleep(50 * time.Millisecond)

	a.Close()

	got := mustReadWithin(t, b, time.Second)
	require.Equal(t, wire.Bye, got.Type)
	require.Equal(t, "A", got.SenderID)
}

func TestOneShotStepIgnoresPeriodicToggle(t *testing.T) {
	s := startTestServer(t)
	addr := s.Addr()

	a := dialAndHello(t, addr, "A")
	defer a.Close()
	time.Sleep(50 * time.Millisecond)

	s.SetPeriodicStep(false)
	s.Step()

	got := mustReadWithin(t, a, time.Second)
	require.Equal(t, wire.Step, got.Type)
}
