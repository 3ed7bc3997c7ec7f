// Package relay implements the relay server (spec.md §4.4 "Relay Server
// (C4)"): a dumb star-topology fan-out with fault injection and a clock
// source for the network.
//
// Server follows the accept-loop/per-peer-goroutine shape of the teacher's
// internal/p2p.Node, generalized with the relay's drop/delay fault
// injection and its own framing (pkg/wire) instead of the teacher's raw
// libp2p streams, and the Start/Stop/net.Listener lifecycle of the
// teacher's internal/rpc.Server.
package relay

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/Klingon-tech/klingnet-pos/pkg/block"
	"github.com/Klingon-tech/klingnet-pos/pkg/txn"
	"github.com/Klingon-tech/klingnet-pos/pkg/wire"
	"github.com/rs/zerolog"
)

// Detector is the subset of internal/detector.Detector the relay depends
// on. Declared locally so relay does not need to know detector's full
// surface (spec.md §4.5's alerting/config machinery is none of its
// business); *detector.Detector satisfies it.
type Detector interface {
	ObserveTransaction(nodeID string, t txn.Transaction)
	ObserveBlock(nodeID string, b *block.Block)
}

// Config holds the relay's tunable parameters (spec.md §6 "Configuration").
type Config struct {
	Addr         string
	StepInterval time.Duration
	Debug        bool // single-step mode: no periodic STEP ticker
}

// Server is the relay: it owns every peer connection and the detector.
type Server struct {
	cfg      Config
	logger   zerolog.Logger
	detector Detector

	listener net.Listener

	mu      sync.Mutex
	peers   map[string]*peerConn // keyed by connID
	dropSet map[string]bool      // keyed by resolved sender id
	delays  map[string]time.Duration
	stepOn  bool
	closing bool

	stepTicker *time.Ticker
	stepStop   chan struct{}
	wg         sync.WaitGroup
}

// New builds a relay server. detector may be nil to disable detection.
func New(cfg Config, detector Detector, logger zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		logger:   logger,
		detector: detector,
		peers:    make(map[string]*peerConn),
		dropSet:  make(map[string]bool),
		delays:   make(map[string]time.Duration),
		stepOn:   !cfg.Debug,
		stepStop: make(chan struct{}),
	}
}

// Start binds the listener and begins accepting connections.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("relay: listen %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()

	if !s.cfg.Debug {
		s.stepTicker = time.NewTicker(s.cfg.StepInterval)
		s.wg.Add(1)
		go s.stepLoop()
	}
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

// Stop performs graceful shutdown: broadcasts BYE("server"), closes every
// peer connection, and waits for the accept socket to close (spec.md §6
// "exit").
func (s *Server) Stop() {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.closing = true
	s.mu.Unlock()

	s.broadcastFrom(nil, wire.NewBye("server"))

	if s.stepTicker != nil {
		s.stepTicker.Stop()
	}
	close(s.stepStop)

	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	peers := make([]*peerConn, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()
	for _, p := range peers {
		p.close()
	}

	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return
			}
			s.logger.Warn().Err(err).Msg("accept error")
			continue
		}
		p := newPeerConn(conn, s.logger)
		s.mu.Lock()
		s.peers[p.connID] = p
		s.mu.Unlock()
		s.wg.Add(1)
		go s.readLoop(p)
	}
}

func (s *Server) readLoop(p *peerConn) {
	defer s.wg.Done()
	defer s.removePeer(p)
	for {
		msg, err := wire.ReadMessage(p.conn)
		if err != nil {
			return
		}
		s.handleInbound(p, msg)
	}
}

func (s *Server) handleInbound(p *peerConn, msg wire.Message) {
	if msg.Type == wire.Hello {
		s.mu.Lock()
		p.senderID = msg.SenderID
		s.mu.Unlock()
	}

	s.feedDetector(msg)
	s.broadcastFrom(p, msg)
}

// feedDetector hands observed payloads to the detector inline; any panic
// or nil detector must never affect forwarding (spec.md §4.5, §5).
func (s *Server) feedDetector(msg wire.Message) {
	if s.detector == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn().Interface("panic", r).Msg("detector panicked, ignoring")
		}
	}()
	switch msg.Type {
	case wire.TransactionT:
		if msg.Tx != nil {
			s.detector.ObserveTransaction(msg.SenderID, *msg.Tx)
		}
	case wire.BlockT:
		if msg.Block != nil {
			s.detector.ObserveBlock(msg.SenderID, msg.Block)
		}
	}
}

// broadcastFrom fans msg out to every peer other than origin, subject to
// the drop/delay tables. origin == nil broadcasts to everyone (server-
// originated messages like STEP and shutdown BYE).
func (s *Server) broadcastFrom(origin *peerConn, msg wire.Message) {
	frame, err := wire.Encode(msg)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode outbound message")
		return
	}

	s.mu.Lock()
	targets := make([]*peerConn, 0, len(s.peers))
	for _, p := range s.peers {
		if p == origin {
			continue
		}
		targets = append(targets, p)
	}
	dropSet := make(map[string]bool, len(s.dropSet))
	for k, v := range s.dropSet {
		dropSet[k] = v
	}
	delays := make(map[string]time.Duration, len(s.delays))
	for k, v := range s.delays {
		delays[k] = v
	}
	s.mu.Unlock()

	for _, p := range targets {
		if dropSet[p.id()] {
			continue
		}
		p.enqueue(frame, delays[p.id()])
	}
}

func (s *Server) removePeer(p *peerConn) {
	s.mu.Lock()
	_, ok := s.peers[p.connID]
	delete(s.peers, p.connID)
	closing := s.closing
	s.mu.Unlock()
	if !ok || closing {
		return
	}
	p.close()
	s.broadcastFrom(nil, wire.NewBye(p.id()))
}

func (s *Server) stepLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stepStop:
			return
		case <-s.stepTicker.C:
			s.mu.Lock()
			on := s.stepOn
			s.mu.Unlock()
			if on {
				s.broadcastFrom(nil, wire.NewStep("server"))
			}
		}
	}
}

// Step broadcasts a single one-shot STEP, regardless of the periodic
// ticker's on/off state (operator console "step" command).
func (s *Server) Step() {
	s.broadcastFrom(nil, wire.NewStep("server"))
}

// SetPeriodicStep toggles the periodic STEP ticker (operator "stop"/
// "continue" commands).
func (s *Server) SetPeriodicStep(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepOn = on
}

// SetDrop sets or clears the drop rule for a peer id.
func (s *Server) SetDrop(id string, drop bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if drop {
		s.dropSet[id] = true
	} else {
		delete(s.dropSet, id)
	}
}

// ToggleDrop flips the drop rule for a peer id and reports the new state.
func (s *Server) ToggleDrop(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := !s.dropSet[id]
	if next {
		s.dropSet[id] = true
	} else {
		delete(s.dropSet, id)
	}
	return next
}

// SetDelay sets or clears the artificial delivery delay for a peer id.
func (s *Server) SetDelay(id string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if delay <= 0 {
		delete(s.delays, id)
		return
	}
	s.delays[id] = delay
}

// PeerIDs returns the resolved sender ids of every currently connected peer.
func (s *Server) PeerIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.peers))
	for _, p := range s.peers {
		ids = append(ids, p.id())
	}
	return ids
}
