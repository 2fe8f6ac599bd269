package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrosstech/vttless-sub000/internal/events"
)

// SendFunc pushes an event to the relay.
type SendFunc func(event string, data any) error

// NoticeFunc surfaces a user-visible failure naming a remote participant.
type NoticeFunc func(remoteName string, err error)

// CoordinatorConfig wires a Coordinator to its campaign and transports.
type CoordinatorConfig struct {
	CampaignID  string
	UserID      string
	UserName    string
	Send        SendFunc
	NewPeer     PeerFactory
	Notify      NoticeFunc    // optional
	SettleDelay time.Duration // delay before announcing video join
	Logger      zerolog.Logger
}

// Coordinator shepherds the offer/answer/ICE exchange for every remote
// participant in the campaign's video call. At most one PeerSession exists
// per remote id; a signal for a known remote always feeds the existing
// session, which absorbs duplicate offers and double-initiation glare.
type Coordinator struct {
	cfg CoordinatorConfig

	mu       sync.Mutex
	sessions map[string]*PeerSession
}

// NewCoordinator builds a coordinator for one local participant.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = 100 * time.Millisecond
	}
	return &Coordinator{
		cfg:      cfg,
		sessions: make(map[string]*PeerSession),
	}
}

// JoinVideo starts the local side of the call: it initiates toward every
// member already present, then announces itself after a short settle delay.
// The delay gives both sides a moment to observe each other's state and
// narrows the double-initiation window.
func (co *Coordinator) JoinVideo(members []events.Member) {
	for _, m := range members {
		if m.UserID == co.cfg.UserID {
			continue
		}
		co.ensureSession(m.UserID, m.UserName, true)
	}

	time.AfterFunc(co.cfg.SettleDelay, func() {
		err := co.cfg.Send(events.EventUserJoinedVideo, events.UserJoinedVideo{
			CampaignID: co.cfg.CampaignID,
			UserID:     co.cfg.UserID,
			UserName:   co.cfg.UserName,
		})
		if err != nil {
			co.cfg.Logger.Warn().Err(err).Msg("failed to announce video join")
		}
	})
}

// LeaveVideo announces departure and tears down every session.
func (co *Coordinator) LeaveVideo() {
	err := co.cfg.Send(events.EventUserLeftVideo, events.UserLeftVideo{
		CampaignID: co.cfg.CampaignID,
		UserID:     co.cfg.UserID,
	})
	if err != nil {
		co.cfg.Logger.Warn().Err(err).Msg("failed to announce video leave")
	}

	co.mu.Lock()
	remotes := make([]string, 0, len(co.sessions))
	for id := range co.sessions {
		remotes = append(remotes, id)
	}
	co.mu.Unlock()

	for _, id := range remotes {
		co.dropSession(id, StateClosed, nil)
	}
}

// HandleEvent consumes one relayed signaling event.
func (co *Coordinator) HandleEvent(env events.Envelope) {
	switch env.Event {
	case events.EventUserJoinedVideo:
		var p events.UserJoinedVideo
		if err := json.Unmarshal(env.Data, &p); err != nil {
			co.cfg.Logger.Warn().Err(err).Msg("bad user-joined-video payload")
			return
		}
		if p.UserID == co.cfg.UserID {
			return
		}
		co.ensureSession(p.UserID, p.UserName, true)

	case events.EventWebRTCOffer:
		var p events.Offer
		if err := json.Unmarshal(env.Data, &p); err != nil {
			co.cfg.Logger.Warn().Err(err).Msg("bad webrtc-offer payload")
			return
		}
		if p.ToUserID != "" && p.ToUserID != co.cfg.UserID {
			return
		}
		s, _ := co.ensureSession(p.FromUserID, p.UserName, false)
		if s == nil {
			return
		}
		if err := s.deliver(p.Signal); err != nil {
			co.dropSession(p.FromUserID, StateFailed, err)
		}

	case events.EventWebRTCAnswer:
		var p events.Answer
		if err := json.Unmarshal(env.Data, &p); err != nil {
			co.cfg.Logger.Warn().Err(err).Msg("bad webrtc-answer payload")
			return
		}
		if p.ToUserID != "" && p.ToUserID != co.cfg.UserID {
			return
		}
		co.deliverToExisting(p.FromUserID, p.Signal)

	case events.EventWebRTCIce:
		var p events.IceCandidate
		if err := json.Unmarshal(env.Data, &p); err != nil {
			co.cfg.Logger.Warn().Err(err).Msg("bad webrtc-ice-candidate payload")
			return
		}
		if p.ToUserID != "" && p.ToUserID != co.cfg.UserID {
			return
		}
		co.deliverToExisting(p.FromUserID, p.Signal)

	case events.EventUserLeftVideo:
		var p events.UserLeftVideo
		if err := json.Unmarshal(env.Data, &p); err != nil {
			co.cfg.Logger.Warn().Err(err).Msg("bad user-left-video payload")
			return
		}
		co.dropSession(p.UserID, StateClosed, nil)
	}
}

// Session reports the session for a remote id, if any.
func (co *Coordinator) Session(remoteID string) (*PeerSession, bool) {
	co.mu.Lock()
	defer co.mu.Unlock()
	s, ok := co.sessions[remoteID]
	return s, ok
}

// SessionCount reports how many peer sessions exist.
func (co *Coordinator) SessionCount() int {
	co.mu.Lock()
	defer co.mu.Unlock()
	return len(co.sessions)
}

// ensureSession returns the session for remoteID, creating it (and its media
// transport) if needed. The session is registered before the transport is
// built, so concurrent signals for the same remote land in one session and
// queue until the transport attaches.
func (co *Coordinator) ensureSession(remoteID, remoteName string, initiator bool) (*PeerSession, bool) {
	co.mu.Lock()
	if s, ok := co.sessions[remoteID]; ok {
		co.mu.Unlock()
		return s, false
	}
	s := newPeerSession(remoteID, remoteName, initiator)
	co.sessions[remoteID] = s
	co.mu.Unlock()

	ev := PeerEvents{
		OnSignal: func(sig json.RawMessage) {
			co.forwardSignal(s, sig)
		},
		OnStream: func(streamID string) {
			s.setStream(streamID)
		},
		OnConnect: func() {
			s.setState(StateConnected)
			co.cfg.Logger.Info().Str("remote", remoteID).Msg("peer connected")
		},
		OnClose: func() {
			co.dropSession(remoteID, StateClosed, nil)
		},
		OnError: func(err error) {
			co.dropSession(remoteID, StateFailed, err)
		},
	}

	peer, err := co.cfg.NewPeer(initiator, ev)
	if err != nil {
		co.dropSession(remoteID, StateFailed, err)
		return nil, false
	}
	if err := s.attach(peer); err != nil {
		co.dropSession(remoteID, StateFailed, err)
		return nil, false
	}

	co.cfg.Logger.Info().
		Str("remote", remoteID).
		Bool("initiator", initiator).
		Msg("peer session started")
	return s, true
}

func (co *Coordinator) deliverToExisting(remoteID string, sig json.RawMessage) {
	co.mu.Lock()
	s, ok := co.sessions[remoteID]
	co.mu.Unlock()
	if !ok {
		co.cfg.Logger.Debug().Str("remote", remoteID).Msg("signal for unknown peer dropped")
		return
	}
	if err := s.deliver(sig); err != nil {
		co.dropSession(remoteID, StateFailed, err)
	}
}

// forwardSignal sends a locally generated signal payload out through the
// relay, picking the event by payload kind: SDP offers and answers carry a
// type field, everything else is a trickled ICE candidate.
func (co *Coordinator) forwardSignal(s *PeerSession, sig json.RawMessage) {
	var kind struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(sig, &kind)

	var event string
	var payload any
	switch kind.Type {
	case "offer":
		event = events.EventWebRTCOffer
		payload = events.Offer{
			CampaignID: co.cfg.CampaignID,
			FromUserID: co.cfg.UserID,
			ToUserID:   s.RemoteID(),
			Signal:     sig,
			UserName:   co.cfg.UserName,
		}
	case "answer":
		event = events.EventWebRTCAnswer
		payload = events.Answer{
			CampaignID: co.cfg.CampaignID,
			FromUserID: co.cfg.UserID,
			ToUserID:   s.RemoteID(),
			Signal:     sig,
		}
	default:
		event = events.EventWebRTCIce
		payload = events.IceCandidate{
			CampaignID: co.cfg.CampaignID,
			FromUserID: co.cfg.UserID,
			ToUserID:   s.RemoteID(),
			Signal:     sig,
		}
	}

	if err := co.cfg.Send(event, payload); err != nil {
		co.cfg.Logger.Warn().Err(err).Str("remote", s.RemoteID()).Str("event", event).Msg("failed to forward signal")
	}
}

// dropSession removes and closes the session for remoteID. cause non-nil
// marks a failure and raises the user notice.
func (co *Coordinator) dropSession(remoteID string, state State, cause error) {
	co.mu.Lock()
	s, ok := co.sessions[remoteID]
	if ok {
		delete(co.sessions, remoteID)
	}
	co.mu.Unlock()
	if !ok {
		return
	}

	s.setState(state)
	s.closePeer()

	if cause != nil {
		co.cfg.Logger.Warn().Err(cause).Str("remote", remoteID).Msg("peer session failed")
		if co.cfg.Notify != nil {
			name := s.RemoteName()
			if name == "" {
				name = remoteID
			}
			co.cfg.Notify(name, cause)
		}
	}
}
