package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// DefaultRTCConfig is the ICE configuration used when the caller has no
// TURN/STUN deployment of its own.
func DefaultRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}
}

// NewRTCPeerFactory returns a PeerFactory backed by pion peer connections
// with trickle ICE.
func NewRTCPeerFactory(cfg webrtc.Configuration) PeerFactory {
	return func(initiator bool, ev PeerEvents) (MediaPeer, error) {
		return newRTCPeer(cfg, initiator, ev)
	}
}

type rtcPeer struct {
	pc *webrtc.PeerConnection
	ev PeerEvents
}

func newRTCPeer(cfg webrtc.Configuration, initiator bool, ev PeerEvents) (*rtcPeer, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	p := &rtcPeer{pc: pc, ev: ev}

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add %s transceiver: %w", kind, err)
		}
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil || ev.OnSignal == nil {
			return
		}
		raw, err := json.Marshal(cand.ToJSON())
		if err != nil {
			return
		}
		ev.OnSignal(raw)
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if ev.OnStream != nil {
			ev.OnStream(track.StreamID())
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			if ev.OnConnect != nil {
				ev.OnConnect()
			}
		case webrtc.PeerConnectionStateFailed:
			if ev.OnError != nil {
				ev.OnError(errors.New("peer connection failed"))
			}
		case webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			if ev.OnClose != nil {
				ev.OnClose()
			}
		}
	})

	if initiator {
		offer, err := pc.CreateOffer(nil)
		if err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("create offer: %w", err)
		}
		if err := pc.SetLocalDescription(offer); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("set local description: %w", err)
		}
		if ev.OnSignal != nil {
			raw, err := json.Marshal(offer)
			if err != nil {
				_ = pc.Close()
				return nil, err
			}
			ev.OnSignal(raw)
		}
	}

	return p, nil
}

// Signal feeds a remote SDP or ICE candidate into the connection. Answer
// creation for inbound offers happens here, so the non-initiator side needs
// no extra choreography.
func (p *rtcPeer) Signal(data json.RawMessage) error {
	var kind struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(data, &kind)

	switch kind.Type {
	case "offer":
		var offer webrtc.SessionDescription
		if err := json.Unmarshal(data, &offer); err != nil {
			return fmt.Errorf("bad offer payload: %w", err)
		}
		if err := p.pc.SetRemoteDescription(offer); err != nil {
			return fmt.Errorf("set remote offer: %w", err)
		}
		answer, err := p.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := p.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local answer: %w", err)
		}
		if p.ev.OnSignal != nil {
			raw, err := json.Marshal(answer)
			if err != nil {
				return err
			}
			p.ev.OnSignal(raw)
		}
		return nil

	case "answer":
		var answer webrtc.SessionDescription
		if err := json.Unmarshal(data, &answer); err != nil {
			return fmt.Errorf("bad answer payload: %w", err)
		}
		if err := p.pc.SetRemoteDescription(answer); err != nil {
			return fmt.Errorf("set remote answer: %w", err)
		}
		return nil

	default:
		var cand webrtc.ICECandidateInit
		if err := json.Unmarshal(data, &cand); err != nil {
			return fmt.Errorf("bad candidate payload: %w", err)
		}
		if err := p.pc.AddICECandidate(cand); err != nil {
			return fmt.Errorf("add ice candidate: %w", err)
		}
		return nil
	}
}

func (p *rtcPeer) Close() error {
	return p.pc.Close()
}
