// Package session establishes and tracks peer-to-peer media links between
// campaign participants, using the relay as its signaling transport.
package session

import (
	"encoding/json"
	"sync"
)

// State is a PeerSession's position in the signaling handshake.
type State int

const (
	StateIdle State = iota
	StateOffering
	StateAnswering
	StateConnected
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOffering:
		return "offering"
	case StateAnswering:
		return "answering"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MediaPeer is the media-transport side of a peer link. The production
// implementation wraps a pion PeerConnection; tests substitute a fake.
type MediaPeer interface {
	// Signal feeds a remote signal payload (SDP or ICE candidate) into the
	// transport.
	Signal(data json.RawMessage) error
	Close() error
}

// PeerEvents are the callbacks a MediaPeer fires back into the coordinator.
type PeerEvents struct {
	// OnSignal delivers a locally generated signal payload to forward to the
	// remote side.
	OnSignal func(data json.RawMessage)
	// OnStream fires when remote media becomes available.
	OnStream  func(streamID string)
	OnConnect func()
	OnClose   func()
	OnError   func(err error)
}

// PeerFactory builds the media transport for one remote participant.
type PeerFactory func(initiator bool, ev PeerEvents) (MediaPeer, error)

// PeerSession tracks one remote participant's media link. Signals arriving
// before the transport is attached are queued and replayed, which keeps the
// duplicate-offer guard race free.
type PeerSession struct {
	mu         sync.Mutex
	remoteID   string
	remoteName string
	initiator  bool
	state      State
	streamID   string
	peer       MediaPeer
	pending    []json.RawMessage
}

func newPeerSession(remoteID, remoteName string, initiator bool) *PeerSession {
	state := StateAnswering
	if initiator {
		state = StateOffering
	}
	return &PeerSession{
		remoteID:   remoteID,
		remoteName: remoteName,
		initiator:  initiator,
		state:      state,
	}
}

func (s *PeerSession) RemoteID() string   { return s.remoteID }
func (s *PeerSession) RemoteName() string { return s.remoteName }
func (s *PeerSession) Initiator() bool    { return s.initiator }

func (s *PeerSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StreamID reports the remote media stream, once negotiation produced one.
func (s *PeerSession) StreamID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamID, s.streamID != ""
}

// attach binds the media transport and replays any signals that arrived
// while the transport was still being built.
func (s *PeerSession) attach(peer MediaPeer) error {
	s.mu.Lock()
	s.peer = peer
	queued := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, sig := range queued {
		if err := peer.Signal(sig); err != nil {
			return err
		}
	}
	return nil
}

// deliver routes a remote signal into the transport, queueing it if the
// transport is not attached yet.
func (s *PeerSession) deliver(sig json.RawMessage) error {
	s.mu.Lock()
	if s.peer == nil {
		s.pending = append(s.pending, sig)
		s.mu.Unlock()
		return nil
	}
	peer := s.peer
	s.mu.Unlock()
	return peer.Signal(sig)
}

func (s *PeerSession) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *PeerSession) setStream(streamID string) {
	s.mu.Lock()
	s.streamID = streamID
	s.mu.Unlock()
}

func (s *PeerSession) closePeer() {
	s.mu.Lock()
	peer := s.peer
	s.peer = nil
	s.mu.Unlock()
	if peer != nil {
		_ = peer.Close()
	}
}
