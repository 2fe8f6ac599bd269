package events

import "encoding/json"

// Event names carried on the wire. These match what the browser client
// emits, so renaming any of them is a protocol break.
const (
	EventJoinCampaign    = "joinCampaign"
	EventJoined          = "joined"
	EventError           = "error"
	EventTokenMove       = "tokenMove"
	EventWebRTCOffer     = "webrtc-offer"
	EventWebRTCAnswer    = "webrtc-answer"
	EventWebRTCIce       = "webrtc-ice-candidate"
	EventUserJoinedVideo = "user-joined-video"
	EventUserLeftVideo   = "user-left-video"
	EventTest            = "test-event"
)

// Envelope is the frame format for every relay message. Data stays raw so
// the relay can forward payloads verbatim without re-encoding them.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Marshal builds a wire frame from an event name and payload.
func Marshal(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// JoinCampaign asks the relay to place this connection in a campaign room.
// Token is the participant token minted by the campaign API.
type JoinCampaign struct {
	CampaignID string `json:"campaignId"`
	Token      string `json:"token"`
}

// Member identifies one participant in a campaign room.
type Member struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// Joined confirms a join and carries a snapshot of the room's members.
type Joined struct {
	CampaignID string   `json:"campaignId"`
	UserID     string   `json:"userId"`
	Members    []Member `json:"members"`
}

// Error is sent back to a connection whose frame could not be processed.
type Error struct {
	Message string `json:"message"`
}

// TokenMove reports a map token's new position.
type TokenMove struct {
	CampaignID string  `json:"campaignId"`
	TokenID    string  `json:"tokenId"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	PlayerID   string  `json:"playerId"`
}

// Offer carries an SDP offer from one participant to another. Signal is
// opaque to the relay.
type Offer struct {
	CampaignID string          `json:"campaignId"`
	FromUserID string          `json:"fromUserId"`
	ToUserID   string          `json:"toUserId"`
	Signal     json.RawMessage `json:"signal"`
	UserName   string          `json:"userName"`
}

// Answer carries an SDP answer back to the offering participant.
type Answer struct {
	CampaignID string          `json:"campaignId"`
	FromUserID string          `json:"fromUserId"`
	ToUserID   string          `json:"toUserId"`
	Signal     json.RawMessage `json:"signal"`
}

// IceCandidate carries a trickled ICE candidate between two participants.
type IceCandidate struct {
	CampaignID string          `json:"campaignId"`
	FromUserID string          `json:"fromUserId"`
	ToUserID   string          `json:"toUserId"`
	Signal     json.RawMessage `json:"signal"`
}

// UserJoinedVideo announces that a participant started the video call.
type UserJoinedVideo struct {
	CampaignID string `json:"campaignId"`
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
}

// UserLeftVideo announces that a participant left the video call.
type UserLeftVideo struct {
	CampaignID string `json:"campaignId"`
	UserID     string `json:"userId"`
}
