package session

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrosstech/vttless-sub000/internal/events"
)

type fakePeer struct {
	mu        sync.Mutex
	initiator bool
	ev        PeerEvents
	signals   []json.RawMessage
	closed    bool
}

func (p *fakePeer) Signal(data json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals = append(p.signals, data)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) signalCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.signals)
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type sentEvent struct {
	event string
	data  any
}

type harness struct {
	co      *Coordinator
	mu      sync.Mutex
	sent    []sentEvent
	peers   []*fakePeer
	notices []string
}

func newHarness(t *testing.T, settle time.Duration) *harness {
	t.Helper()
	h := &harness{}
	h.co = NewCoordinator(CoordinatorConfig{
		CampaignID: "camp-1",
		UserID:     "alice",
		UserName:   "Alice",
		Send: func(event string, data any) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.sent = append(h.sent, sentEvent{event: event, data: data})
			return nil
		},
		NewPeer: func(initiator bool, ev PeerEvents) (MediaPeer, error) {
			p := &fakePeer{initiator: initiator, ev: ev}
			h.mu.Lock()
			defer h.mu.Unlock()
			h.peers = append(h.peers, p)
			return p, nil
		},
		Notify: func(remoteName string, err error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.notices = append(h.notices, remoteName)
		},
		SettleDelay: settle,
		Logger:      zerolog.Nop(),
	})
	return h
}

func (h *harness) peerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *harness) peer(i int) *fakePeer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peers[i]
}

func (h *harness) sentEvents() []sentEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]sentEvent(nil), h.sent...)
}

func envelope(t *testing.T, event string, data any) events.Envelope {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", event, err)
	}
	return events.Envelope{Event: event, Data: raw}
}

func TestInitiatesOnRemoteVideoJoin(t *testing.T) {
	h := newHarness(t, time.Millisecond)

	h.co.HandleEvent(envelope(t, events.EventUserJoinedVideo, events.UserJoinedVideo{
		CampaignID: "camp-1", UserID: "bob", UserName: "Bob",
	}))

	if h.peerCount() != 1 {
		t.Fatalf("peer count = %d, want 1", h.peerCount())
	}
	if !h.peer(0).initiator {
		t.Error("peer created as non-initiator, want initiator")
	}
	s, ok := h.co.Session("bob")
	if !ok {
		t.Fatal("no session for bob")
	}
	if s.State() != StateOffering {
		t.Errorf("state = %s, want offering", s.State())
	}
}

func TestIgnoresOwnVideoJoinEcho(t *testing.T) {
	h := newHarness(t, time.Millisecond)

	h.co.HandleEvent(envelope(t, events.EventUserJoinedVideo, events.UserJoinedVideo{
		CampaignID: "camp-1", UserID: "alice", UserName: "Alice",
	}))

	if h.peerCount() != 0 {
		t.Errorf("peer count = %d, want 0", h.peerCount())
	}
}

func TestAnswersInboundOffer(t *testing.T) {
	h := newHarness(t, time.Millisecond)
	offerSignal := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)

	h.co.HandleEvent(envelope(t, events.EventWebRTCOffer, events.Offer{
		CampaignID: "camp-1", FromUserID: "bob", ToUserID: "alice",
		Signal: offerSignal, UserName: "Bob",
	}))

	if h.peerCount() != 1 {
		t.Fatalf("peer count = %d, want 1", h.peerCount())
	}
	p := h.peer(0)
	if p.initiator {
		t.Error("peer created as initiator, want non-initiator")
	}
	if p.signalCount() != 1 {
		t.Fatalf("delivered signals = %d, want 1", p.signalCount())
	}

	s, _ := h.co.Session("bob")
	if s.State() != StateAnswering {
		t.Errorf("state = %s, want answering", s.State())
	}

	// The fake produces an answer; it must go out as webrtc-answer to bob.
	p.ev.OnSignal(json.RawMessage(`{"type":"answer","sdp":"v=0"}`))
	sent := h.sentEvents()
	if len(sent) != 1 || sent[0].event != events.EventWebRTCAnswer {
		t.Fatalf("sent = %+v, want one webrtc-answer", sent)
	}
	answer := sent[0].data.(events.Answer)
	if answer.ToUserID != "bob" || answer.FromUserID != "alice" {
		t.Errorf("answer routing = %s->%s, want alice->bob", answer.FromUserID, answer.ToUserID)
	}
}

func TestDuplicateOffersShareOneSession(t *testing.T) {
	h := newHarness(t, time.Millisecond)

	for _, sdp := range []string{`{"type":"offer","sdp":"s1"}`, `{"type":"offer","sdp":"s2"}`} {
		h.co.HandleEvent(envelope(t, events.EventWebRTCOffer, events.Offer{
			CampaignID: "camp-1", FromUserID: "bob", ToUserID: "alice",
			Signal: json.RawMessage(sdp), UserName: "Bob",
		}))
	}

	if h.peerCount() != 1 {
		t.Fatalf("peer count = %d, want 1", h.peerCount())
	}
	if h.co.SessionCount() != 1 {
		t.Errorf("session count = %d, want 1", h.co.SessionCount())
	}
	if got := h.peer(0).signalCount(); got != 2 {
		t.Errorf("delivered signals = %d, want both fed to the same peer", got)
	}
}

func TestGlareFeedsExistingSession(t *testing.T) {
	h := newHarness(t, time.Millisecond)

	// Alice initiates toward bob first.
	h.co.JoinVideo([]events.Member{{UserID: "bob", UserName: "Bob"}})
	if h.peerCount() != 1 {
		t.Fatalf("peer count = %d, want 1", h.peerCount())
	}

	// Bob initiated too; his offer must not spawn a second session.
	h.co.HandleEvent(envelope(t, events.EventWebRTCOffer, events.Offer{
		CampaignID: "camp-1", FromUserID: "bob", ToUserID: "alice",
		Signal: json.RawMessage(`{"type":"offer","sdp":"v=0"}`), UserName: "Bob",
	}))

	if h.peerCount() != 1 {
		t.Errorf("peer count after glare = %d, want 1", h.peerCount())
	}
	if got := h.peer(0).signalCount(); got != 1 {
		t.Errorf("delivered signals = %d, want 1 (offer fed to existing peer)", got)
	}
}

func TestIgnoresSignalsForOtherRecipients(t *testing.T) {
	h := newHarness(t, time.Millisecond)

	h.co.HandleEvent(envelope(t, events.EventWebRTCOffer, events.Offer{
		CampaignID: "camp-1", FromUserID: "bob", ToUserID: "carol",
		Signal: json.RawMessage(`{"type":"offer","sdp":"v=0"}`), UserName: "Bob",
	}))

	if h.peerCount() != 0 {
		t.Errorf("peer count = %d, want 0", h.peerCount())
	}
}

func TestOutboundSignalClassification(t *testing.T) {
	h := newHarness(t, time.Millisecond)

	h.co.HandleEvent(envelope(t, events.EventUserJoinedVideo, events.UserJoinedVideo{
		CampaignID: "camp-1", UserID: "bob", UserName: "Bob",
	}))
	p := h.peer(0)

	p.ev.OnSignal(json.RawMessage(`{"type":"offer","sdp":"v=0"}`))
	p.ev.OnSignal(json.RawMessage(`{"candidate":"candidate:1","sdpMid":"0"}`))

	sent := h.sentEvents()
	if len(sent) != 2 {
		t.Fatalf("sent %d events, want 2", len(sent))
	}
	if sent[0].event != events.EventWebRTCOffer {
		t.Errorf("first event = %q, want webrtc-offer", sent[0].event)
	}
	offer := sent[0].data.(events.Offer)
	if offer.UserName != "Alice" || offer.ToUserID != "bob" {
		t.Errorf("offer = %+v, want userName Alice to bob", offer)
	}
	if sent[1].event != events.EventWebRTCIce {
		t.Errorf("second event = %q, want webrtc-ice-candidate", sent[1].event)
	}
}

func TestUserLeftVideoClosesSession(t *testing.T) {
	h := newHarness(t, time.Millisecond)

	h.co.HandleEvent(envelope(t, events.EventUserJoinedVideo, events.UserJoinedVideo{
		CampaignID: "camp-1", UserID: "bob", UserName: "Bob",
	}))
	s, _ := h.co.Session("bob")

	h.co.HandleEvent(envelope(t, events.EventUserLeftVideo, events.UserLeftVideo{
		CampaignID: "camp-1", UserID: "bob",
	}))

	if h.co.SessionCount() != 0 {
		t.Errorf("session count = %d, want 0", h.co.SessionCount())
	}
	if s.State() != StateClosed {
		t.Errorf("state = %s, want closed", s.State())
	}
	if !h.peer(0).isClosed() {
		t.Error("peer not closed")
	}
}

func TestPeerErrorDiscardsSessionAndNotifies(t *testing.T) {
	h := newHarness(t, time.Millisecond)

	h.co.HandleEvent(envelope(t, events.EventUserJoinedVideo, events.UserJoinedVideo{
		CampaignID: "camp-1", UserID: "bob", UserName: "Bob",
	}))
	s, _ := h.co.Session("bob")

	h.peer(0).ev.OnError(errors.New("dtls handshake failed"))

	if h.co.SessionCount() != 0 {
		t.Errorf("session count = %d, want 0", h.co.SessionCount())
	}
	if s.State() != StateFailed {
		t.Errorf("state = %s, want failed", s.State())
	}
	h.mu.Lock()
	notices := append([]string(nil), h.notices...)
	h.mu.Unlock()
	if len(notices) != 1 || notices[0] != "Bob" {
		t.Errorf("notices = %v, want [Bob]", notices)
	}
}

func TestConnectAndStreamTracking(t *testing.T) {
	h := newHarness(t, time.Millisecond)

	h.co.HandleEvent(envelope(t, events.EventUserJoinedVideo, events.UserJoinedVideo{
		CampaignID: "camp-1", UserID: "bob", UserName: "Bob",
	}))
	p := h.peer(0)
	s, _ := h.co.Session("bob")

	p.ev.OnStream("stream-42")
	p.ev.OnConnect()

	if s.State() != StateConnected {
		t.Errorf("state = %s, want connected", s.State())
	}
	if id, ok := s.StreamID(); !ok || id != "stream-42" {
		t.Errorf("StreamID() = (%q, %v), want (stream-42, true)", id, ok)
	}
}

func TestJoinAnnouncementWaitsForSettleDelay(t *testing.T) {
	h := newHarness(t, 20*time.Millisecond)

	h.co.JoinVideo(nil)

	if sent := h.sentEvents(); len(sent) != 0 {
		t.Fatalf("announced before settle delay: %+v", sent)
	}

	deadline := time.Now().Add(time.Second)
	for {
		sent := h.sentEvents()
		if len(sent) == 1 {
			if sent[0].event != events.EventUserJoinedVideo {
				t.Fatalf("announced %q, want user-joined-video", sent[0].event)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("join announcement never sent")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLeaveVideoClosesEverything(t *testing.T) {
	// Long settle so the join announcement can't sneak into sent first.
	h := newHarness(t, time.Minute)

	h.co.JoinVideo([]events.Member{
		{UserID: "bob", UserName: "Bob"},
		{UserID: "carol", UserName: "Carol"},
		{UserID: "alice", UserName: "Alice"}, // self, skipped
	})
	if h.co.SessionCount() != 2 {
		t.Fatalf("session count = %d, want 2", h.co.SessionCount())
	}

	h.co.LeaveVideo()

	if h.co.SessionCount() != 0 {
		t.Errorf("session count after leave = %d, want 0", h.co.SessionCount())
	}
	for i := 0; i < h.peerCount(); i++ {
		if !h.peer(i).isClosed() {
			t.Errorf("peer %d not closed", i)
		}
	}

	sent := h.sentEvents()
	if len(sent) == 0 || sent[0].event != events.EventUserLeftVideo {
		t.Errorf("first sent event = %+v, want user-left-video", sent)
	}
}

func TestSignalsQueuedUntilTransportAttaches(t *testing.T) {
	// The session is registered before its transport exists; signals
	// delivered in between must queue, not vanish.
	s := newPeerSession("bob", "Bob", false)
	if err := s.deliver(json.RawMessage(`{"type":"offer","sdp":"v=0"}`)); err != nil {
		t.Fatalf("deliver() error = %v", err)
	}

	p := &fakePeer{}
	if err := s.attach(p); err != nil {
		t.Fatalf("attach() error = %v", err)
	}
	if p.signalCount() != 1 {
		t.Errorf("queued signals after attach = %d, want 1", p.signalCount())
	}
}
