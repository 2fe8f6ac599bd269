package board

import (
	"testing"

	"github.com/mrosstech/vttless-sub000/internal/events"
)

func TestSnapRoundsToNearestCell(t *testing.T) {
	b := New("camp-1", "alice", 40, nil)

	tests := []struct {
		in   float64
		want float64
	}{
		{83, 80},
		{81, 80},
		{100, 120}, // round half up
		{99, 80},
		{0, 0},
		{-19, -0},
		{-21, -40},
	}
	for _, tt := range tests {
		if got := b.Snap(tt.in); got != tt.want {
			t.Errorf("Snap(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSnapIsIdempotent(t *testing.T) {
	b := New("camp-1", "alice", 40, nil)
	for _, v := range []float64{0, 1, 39, 83, 120, 1000.5, -77} {
		once := b.Snap(v)
		if twice := b.Snap(once); twice != once {
			t.Errorf("Snap(Snap(%v)) = %v, want %v", v, twice, once)
		}
	}
}

func TestDragSnapsAndEmits(t *testing.T) {
	var emitted []events.TokenMove
	b := New("camp-1", "alice", 40, func(mv events.TokenMove) {
		emitted = append(emitted, mv)
	})
	b.Place("t1", 0, 0)

	b.BeginDrag("t1")
	b.DragTo(83, 81)
	b.DragTo(122, 41)
	b.EndDrag()

	if len(emitted) != 2 {
		t.Fatalf("emitted %d moves, want 2 (one per pointer move)", len(emitted))
	}
	if emitted[0].X != 80 || emitted[0].Y != 80 {
		t.Errorf("first move = (%v, %v), want (80, 80)", emitted[0].X, emitted[0].Y)
	}
	if emitted[1].X != 120 || emitted[1].Y != 40 {
		t.Errorf("second move = (%v, %v), want (120, 40)", emitted[1].X, emitted[1].Y)
	}
	if emitted[0].PlayerID != "alice" || emitted[0].CampaignID != "camp-1" {
		t.Errorf("move attribution = %s/%s, want alice/camp-1", emitted[0].PlayerID, emitted[0].CampaignID)
	}
}

func TestDragToWithoutBeginDragIsNoop(t *testing.T) {
	var emitted int
	b := New("camp-1", "alice", 40, func(events.TokenMove) { emitted++ })
	b.Place("t1", 0, 0)

	b.DragTo(83, 81)

	if emitted != 0 {
		t.Errorf("emitted %d moves without an active drag, want 0", emitted)
	}
	if p, _ := b.Position("t1"); p.X != 0 || p.Y != 0 {
		t.Errorf("position = %+v, want unchanged (0,0)", p)
	}
}

func TestApplyRemoteMovesUndraggedToken(t *testing.T) {
	b := New("camp-1", "alice", 40, nil)
	b.Place("t1", 0, 0)

	b.ApplyRemote(events.TokenMove{CampaignID: "camp-1", TokenID: "t1", X: 120, Y: 80, PlayerID: "bob"})

	if p, _ := b.Position("t1"); p.X != 120 || p.Y != 80 {
		t.Errorf("position = %+v, want (120, 80)", p)
	}
}

func TestApplyRemoteIgnoresEchoFromSelf(t *testing.T) {
	b := New("camp-1", "alice", 40, nil)
	b.Place("t1", 40, 40)

	b.ApplyRemote(events.TokenMove{CampaignID: "camp-1", TokenID: "t1", X: 0, Y: 0, PlayerID: "alice"})

	if p, _ := b.Position("t1"); p.X != 40 || p.Y != 40 {
		t.Errorf("position = %+v, want unchanged (40, 40)", p)
	}
}

func TestLocalDragHasAuthority(t *testing.T) {
	b := New("camp-1", "alice", 40, nil)
	b.Place("t1", 0, 0)

	b.BeginDrag("t1")
	b.DragTo(83, 81)

	// Stale move from bob arrives mid-drag.
	b.ApplyRemote(events.TokenMove{CampaignID: "camp-1", TokenID: "t1", X: 400, Y: 400, PlayerID: "bob"})

	if p, _ := b.Position("t1"); p.X != 80 || p.Y != 80 {
		t.Errorf("mid-drag position = %+v, want local (80, 80)", p)
	}

	// Other tokens are still fair game during the drag.
	b.ApplyRemote(events.TokenMove{CampaignID: "camp-1", TokenID: "t2", X: 200, Y: 240, PlayerID: "bob"})
	if p, _ := b.Position("t2"); p.X != 200 || p.Y != 240 {
		t.Errorf("other token position = %+v, want (200, 240)", p)
	}

	b.EndDrag()

	// Once the drag ends, remote updates win again.
	b.ApplyRemote(events.TokenMove{CampaignID: "camp-1", TokenID: "t1", X: 360, Y: 360, PlayerID: "bob"})
	if p, _ := b.Position("t1"); p.X != 360 || p.Y != 360 {
		t.Errorf("post-drag position = %+v, want (360, 360)", p)
	}
}
