package main

import (
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/Klingon-tech/klingnet-pos/pkg/wire"
	"github.com/rs/zerolog"
)

// relayConn is the node's outbound connection to the relay: it satisfies
// node.RelayClient and drives an inbound read loop that feeds every framed
// message to a dispatch callback. One relayConn per process; Send is safe
// for concurrent use by both the dispatch goroutine (broadcasts triggered
// by inbound messages) and the operator CLI goroutine.
type relayConn struct {
	conn   net.Conn
	logger zerolog.Logger

	mu sync.Mutex
}

// dialRelay connects to addr and announces senderID with a HELLO.
func dialRelay(addr, senderID string, logger zerolog.Logger) (*relayConn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("posnode: dial relay %s: %w", addr, err)
	}
	rc := &relayConn{conn: conn, logger: logger}
	if err := rc.Send(wire.NewHello(senderID)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("posnode: send hello: %w", err)
	}
	return rc, nil
}

// Send writes one framed message to the relay.
func (rc *relayConn) Send(msg wire.Message) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return wire.WriteMessage(rc.conn, msg)
}

// Close closes the underlying connection.
func (rc *relayConn) Close() error {
	return rc.conn.Close()
}

// readLoop blocks reading framed messages from the relay and hands each one
// to dispatch, until the connection is closed or an unrecoverable framing
// error occurs.
func (rc *relayConn) readLoop(dispatch func(wire.Message)) {
	for {
		msg, err := wire.ReadMessage(rc.conn)
		if err != nil {
			if err != io.EOF {
				rc.logger.Warn().Err(err).Msg("relay connection read failed, closing")
			}
			return
		}
		dispatch(msg)
	}
}
