package client

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/mrosstech/vttless-sub000/internal/board"
	"github.com/mrosstech/vttless-sub000/internal/events"
	"github.com/mrosstech/vttless-sub000/internal/session"
)

// LiveSessionConfig describes one participant's live campaign session.
type LiveSessionConfig struct {
	CampaignID string
	Token      string
	UserName   string
	GridSize   float64
	NewPeer    session.PeerFactory
	Notify     session.NoticeFunc
	Logger     zerolog.Logger
}

// LiveSession ties a relay connection to the token board and the video
// signaling coordinator, dispatching inbound events to whichever layer owns
// them.
type LiveSession struct {
	conn  *Conn
	Board *board.Board
	Video *session.Coordinator
	log   zerolog.Logger
}

// NewLiveSession joins the campaign room and wires up both client layers.
// The returned session is idle until Run is called.
func NewLiveSession(conn *Conn, cfg LiveSessionConfig) (*LiveSession, error) {
	joined, err := conn.JoinCampaign(cfg.CampaignID, cfg.Token)
	if err != nil {
		return nil, err
	}

	ls := &LiveSession{conn: conn, log: cfg.Logger}

	ls.Board = board.New(cfg.CampaignID, joined.UserID, cfg.GridSize, func(mv events.TokenMove) {
		if err := conn.Send(events.EventTokenMove, mv); err != nil {
			cfg.Logger.Warn().Err(err).Str("token", mv.TokenID).Msg("failed to emit token move")
		}
	})

	ls.Video = session.NewCoordinator(session.CoordinatorConfig{
		CampaignID: cfg.CampaignID,
		UserID:     joined.UserID,
		UserName:   cfg.UserName,
		Send:       conn.Send,
		NewPeer:    cfg.NewPeer,
		Notify:     cfg.Notify,
		Logger:     cfg.Logger,
	})

	return ls, nil
}

// Run consumes relay events until the connection drops.
func (ls *LiveSession) Run() error {
	return ls.conn.Listen(ls.dispatch)
}

// JoinVideo starts the campaign video call. Members should come from the
// join snapshot or a later room-state refresh.
func (ls *LiveSession) JoinVideo(members []events.Member) {
	ls.Video.JoinVideo(members)
}

// LeaveVideo leaves the call but keeps the room connection open.
func (ls *LiveSession) LeaveVideo() {
	ls.Video.LeaveVideo()
}

// Close tears the whole session down.
func (ls *LiveSession) Close() error {
	ls.Video.LeaveVideo()
	return ls.conn.Close()
}

func (ls *LiveSession) dispatch(env events.Envelope) {
	switch env.Event {
	case events.EventTokenMove:
		var mv events.TokenMove
		if err := json.Unmarshal(env.Data, &mv); err != nil {
			ls.log.Warn().Err(err).Msg("bad tokenMove payload")
			return
		}
		ls.Board.ApplyRemote(mv)
	case events.EventWebRTCOffer, events.EventWebRTCAnswer, events.EventWebRTCIce,
		events.EventUserJoinedVideo, events.EventUserLeftVideo:
		ls.Video.HandleEvent(env)
	case events.EventError:
		var relayErr events.Error
		_ = json.Unmarshal(env.Data, &relayErr)
		ls.log.Warn().Str("message", relayErr.Message).Msg("relay error")
	case events.EventTest:
		ls.log.Debug().RawJSON("data", env.Data).Msg("test event")
	}
}
