// Package board keeps the client's local view of map tokens consistent with
// what the relay reports, without letting remote updates fight an in-progress
// local drag.
package board

import (
	"math"
	"sync"

	"github.com/mrosstech/vttless-sub000/internal/events"
)

// Point is a token position in map pixels, always on the grid.
type Point struct {
	X float64
	Y float64
}

// Board holds token positions for one campaign map. Remote moves for a token
// the local player is dragging are ignored until the drag ends; the local
// hand has authority over its own drag.
type Board struct {
	mu         sync.Mutex
	campaignID string
	playerID   string
	gridSize   float64
	tokens     map[string]Point
	dragging   string
	emit       func(events.TokenMove)
}

// New builds a board. emit is called for every local drag step and may be
// nil for a read-only view.
func New(campaignID, playerID string, gridSize float64, emit func(events.TokenMove)) *Board {
	if gridSize <= 0 {
		gridSize = 1
	}
	return &Board{
		campaignID: campaignID,
		playerID:   playerID,
		gridSize:   gridSize,
		tokens:     make(map[string]Point),
		emit:       emit,
	}
}

// Snap rounds a coordinate to the nearest grid cell. Snapping an already
// snapped value is a no-op, so every participant converges on the same cell.
func (b *Board) Snap(v float64) float64 {
	return math.Round(v/b.gridSize) * b.gridSize
}

// Place sets a token's position directly, snapped. Used for initial map load.
func (b *Board) Place(tokenID string, x, y float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens[tokenID] = Point{X: b.Snap(x), Y: b.Snap(y)}
}

// Position reports a token's current position.
func (b *Board) Position(tokenID string) (Point, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.tokens[tokenID]
	return p, ok
}

// ApplyRemote merges a relayed token move. Moves echoed from the local
// player, or targeting the token currently under a local drag, are dropped;
// everything else is last-write-observed-wins.
func (b *Board) ApplyRemote(mv events.TokenMove) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if mv.PlayerID == b.playerID {
		return
	}
	if b.dragging != "" && mv.TokenID == b.dragging {
		return
	}
	b.tokens[mv.TokenID] = Point{X: mv.X, Y: mv.Y}
}

// BeginDrag marks a token as locally owned until EndDrag.
func (b *Board) BeginDrag(tokenID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dragging = tokenID
}

// DragTo moves the dragged token to the pointer position, snapped to the
// grid, and emits the move. Called on every pointer move; no debounce.
func (b *Board) DragTo(x, y float64) {
	b.mu.Lock()
	if b.dragging == "" {
		b.mu.Unlock()
		return
	}
	tokenID := b.dragging
	p := Point{X: b.Snap(x), Y: b.Snap(y)}
	b.tokens[tokenID] = p
	emit := b.emit
	mv := events.TokenMove{
		CampaignID: b.campaignID,
		TokenID:    tokenID,
		X:          p.X,
		Y:          p.Y,
		PlayerID:   b.playerID,
	}
	b.mu.Unlock()

	if emit != nil {
		emit(mv)
	}
}

// EndDrag releases local authority over the dragged token.
func (b *Board) EndDrag() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dragging = ""
}

// Dragging reports which token, if any, is under a local drag.
func (b *Board) Dragging() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dragging, b.dragging != ""
}
