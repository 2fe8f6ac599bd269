package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrosstech/vttless-sub000/internal/auth"
	"github.com/mrosstech/vttless-sub000/internal/events"
	"github.com/mrosstech/vttless-sub000/internal/presence"
)

// Config holds the relay's transport tuning knobs.
type Config struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

// Relay owns a room registry and routes campaign session events between the
// connections joined to each room. Instances are independent, so tests can
// run several side by side.
type Relay struct {
	cfg      Config
	registry *Registry
	verifier *auth.Verifier
	presence *presence.Store
	log      zerolog.Logger
}

// New builds a relay. store may be nil; presence tracking then degrades to
// nothing rather than blocking delivery.
func New(cfg Config, verifier *auth.Verifier, store *presence.Store, log zerolog.Logger) *Relay {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 32768
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 54 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	return &Relay{
		cfg:      cfg,
		registry: NewRegistry(),
		verifier: verifier,
		presence: store,
		log:      log,
	}
}

// HandleMessage routes one inbound frame from a client. Payloads are relayed
// verbatim; the relay only reads the envelope and, for targeted signaling,
// the recipient id.
func (rl *Relay) HandleMessage(c *Client, data []byte) {
	var env events.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		rl.sendError(c, "malformed frame")
		return
	}

	switch env.Event {
	case events.EventJoinCampaign:
		rl.handleJoin(c, env.Data)
	case events.EventWebRTCOffer, events.EventWebRTCAnswer, events.EventWebRTCIce:
		rl.relayTargeted(c, env.Data, data)
	case events.EventTokenMove, events.EventTest:
		rl.relayToRoom(c, data)
	case events.EventUserJoinedVideo:
		c.inVideo = true
		rl.relayToRoom(c, data)
	case events.EventUserLeftVideo:
		c.inVideo = false
		rl.relayToRoom(c, data)
	default:
		rl.log.Debug().Str("event", env.Event).Str("client", c.ID).Msg("unknown event")
		rl.sendError(c, "unknown event: "+env.Event)
	}
}

func (rl *Relay) handleJoin(c *Client, data json.RawMessage) {
	var join events.JoinCampaign
	if err := json.Unmarshal(data, &join); err != nil || join.CampaignID == "" {
		rl.sendError(c, "joinCampaign requires a campaignId")
		return
	}

	claims, err := rl.verifier.Verify(join.Token, join.CampaignID)
	if err != nil {
		rl.log.Warn().Err(err).Str("client", c.ID).Str("campaign", join.CampaignID).Msg("join rejected")
		rl.sendError(c, "join rejected: invalid participant token")
		return
	}
	if c.UserID != "" && c.UserID != claims.UserID {
		rl.sendError(c, "connection is bound to another user")
		return
	}
	if c.UserID == "" {
		c.UserID = claims.UserID
		c.UserName = claims.UserName
	}

	if prev, ok := rl.registry.RoomOf(c); ok && prev != join.CampaignID {
		rl.removePresence(prev, c.UserID)
		if c.inVideo {
			// Moving rooms ends the old room's call membership.
			c.inVideo = false
			rl.synthesizeVideoLeave(prev, c)
		}
	}
	rl.registry.Join(c, join.CampaignID)
	rl.addPresence(join.CampaignID, c.UserID)

	members := rl.registry.Members(join.CampaignID)
	snapshot := make([]events.Member, 0, len(members))
	for _, m := range members {
		snapshot = append(snapshot, events.Member{UserID: m.UserID, UserName: m.UserName})
	}

	rl.log.Info().
		Str("client", c.ID).
		Str("user", c.UserID).
		Str("campaign", join.CampaignID).
		Int("members", len(members)).
		Msg("joined campaign")

	rl.sendEvent(c, events.EventJoined, events.Joined{
		CampaignID: join.CampaignID,
		UserID:     c.UserID,
		Members:    snapshot,
	})
}

// relayToRoom fans a frame out to every other member of the sender's room.
// Broadcasting into an empty room is a no-op, not an error.
func (rl *Relay) relayToRoom(sender *Client, frame []byte) {
	campaignID, ok := rl.registry.RoomOf(sender)
	if !ok {
		rl.sendError(sender, "join a campaign before sending events")
		return
	}
	for _, member := range rl.registry.Members(campaignID) {
		if member == sender {
			continue
		}
		if err := member.enqueue(frame); err != nil {
			rl.log.Warn().Str("client", member.ID).Str("campaign", campaignID).Msg("dropped frame, send buffer full")
		}
	}
}

// relayTargeted delivers signaling frames to the named recipient only,
// falling back to a room broadcast when no target is given.
func (rl *Relay) relayTargeted(sender *Client, data json.RawMessage, frame []byte) {
	campaignID, ok := rl.registry.RoomOf(sender)
	if !ok {
		rl.sendError(sender, "join a campaign before sending events")
		return
	}

	var target struct {
		ToUserID string `json:"toUserId"`
	}
	if err := json.Unmarshal(data, &target); err != nil || target.ToUserID == "" {
		rl.relayToRoom(sender, frame)
		return
	}

	recipient, found := rl.registry.FindUser(campaignID, target.ToUserID)
	if !found {
		// Recipient already left; signaling toward it is moot.
		rl.log.Debug().Str("campaign", campaignID).Str("to", target.ToUserID).Msg("signal target not in room")
		return
	}
	if recipient == sender {
		return
	}
	if err := recipient.enqueue(frame); err != nil {
		rl.log.Warn().Str("client", recipient.ID).Str("campaign", campaignID).Msg("dropped signal, send buffer full")
	}
}

// disconnect runs when a client's transport drops. If the client was in the
// video call and never said goodbye, the relay says it for them so remote
// peers don't wait on their own peer-connection timeouts.
func (rl *Relay) disconnect(c *Client) {
	campaignID, ok := rl.registry.Remove(c)
	if !ok {
		return
	}
	rl.removePresence(campaignID, c.UserID)

	if c.inVideo {
		rl.synthesizeVideoLeave(campaignID, c)
	}

	rl.log.Info().Str("client", c.ID).Str("user", c.UserID).Str("campaign", campaignID).Msg("left campaign")
}

// synthesizeVideoLeave tells a room's remaining members that c's video call
// membership ended without an explicit user-left-video.
func (rl *Relay) synthesizeVideoLeave(campaignID string, c *Client) {
	frame, err := events.Marshal(events.EventUserLeftVideo, events.UserLeftVideo{
		CampaignID: campaignID,
		UserID:     c.UserID,
	})
	if err != nil {
		return
	}
	for _, member := range rl.registry.Members(campaignID) {
		if member == c {
			continue
		}
		_ = member.enqueue(frame)
	}
}

func (rl *Relay) sendEvent(c *Client, event string, data any) {
	frame, err := events.Marshal(event, data)
	if err != nil {
		rl.log.Error().Err(err).Str("event", event).Msg("marshal failed")
		return
	}
	_ = c.enqueue(frame)
}

func (rl *Relay) sendError(c *Client, msg string) {
	rl.sendEvent(c, events.EventError, events.Error{Message: msg})
}

func (rl *Relay) addPresence(campaignID, userID string) {
	if rl.presence == nil {
		return
	}
	if err := rl.presence.Add(context.Background(), campaignID, userID); err != nil {
		rl.log.Warn().Err(err).Str("campaign", campaignID).Msg("presence add failed")
	}
}

func (rl *Relay) removePresence(campaignID, userID string) {
	if rl.presence == nil {
		return
	}
	if err := rl.presence.Remove(context.Background(), campaignID, userID); err != nil {
		rl.log.Warn().Err(err).Str("campaign", campaignID).Msg("presence remove failed")
	}
}

func (rl *Relay) touchPresence(c *Client) {
	if rl.presence == nil {
		return
	}
	campaignID, ok := rl.registry.RoomOf(c)
	if !ok {
		return
	}
	if err := rl.presence.Refresh(context.Background(), campaignID); err != nil {
		rl.log.Debug().Err(err).Str("campaign", campaignID).Msg("presence refresh failed")
	}
}
