package relay

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// queueDepth bounds a peer's outbound backlog. A peer this far behind is
// considered unresponsive rather than allowed to stall the relay.
const queueDepth = 256

type queuedFrame struct {
	frame  []byte
	sendAt time.Time
}

// peerConn is one accepted connection. connID is a stable internal
// identity assigned at accept time; senderID is resolved once the peer's
// HELLO arrives and is what drop/delay/broadcast addressing uses
// thereafter (spec.md §4.4).
type peerConn struct {
	connID    string
	senderID  string // "" until HELLO
	conn      net.Conn
	queue     chan queuedFrame
	done      chan struct{}
	closeOnce sync.Once
	logger    zerolog.Logger
}

func newPeerConn(conn net.Conn, logger zerolog.Logger) *peerConn {
	p := &peerConn{
		connID: uuid.New().String(),
		conn:   conn,
		queue:  make(chan queuedFrame, queueDepth),
		done:   make(chan struct{}),
		logger: logger,
	}
	go p.writeLoop()
	return p
}

// id returns the address a drop/delay/broadcast rule should match: the
// resolved sender id once known, otherwise the connection's internal id.
func (p *peerConn) id() string {
	if p.senderID != "" {
		return p.senderID
	}
	return p.connID
}

// enqueue schedules frame for delivery, optionally after delay. Per-peer
// delivery is strictly FIFO: the write loop processes queue in order, so a
// later, shorter-delay send still waits behind an earlier one.
func (p *peerConn) enqueue(frame []byte, delay time.Duration) {
	var sendAt time.Time
	if delay > 0 {
		sendAt = time.Now().Add(delay)
	}
	select {
	case <-p.done:
		return
	default:
	}
	select {
	case p.queue <- queuedFrame{frame: frame, sendAt: sendAt}:
	case <-p.done:
	default:
		p.logger.Warn().Str("peer", p.id()).Msg("outbound queue full, dropping frame")
	}
}

func (p *peerConn) writeLoop() {
	for {
		select {
		case <-p.done:
			return
		case item := <-p.queue:
			if !item.sendAt.IsZero() {
				if wait := time.Until(item.sendAt); wait > 0 {
					time.Sleep(wait)
				}
			}
			if _, err := p.conn.Write(item.frame); err != nil {
				p.logger.Debug().Err(err).Str("peer", p.id()).Msg("write failed")
				return
			}
		}
	}
}

// close stops the write loop and closes the underlying connection. Safe to
// call more than once, including concurrently from removePeer and Stop.
func (p *peerConn) close() {
	p.closeOnce.Do(func() { close(p.done) })
	p.conn.Close()
}
