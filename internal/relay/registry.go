package relay

import "sync"

// Registry tracks which connections belong to which campaign room. It is
// owned by a Relay instance; nothing else mutates it.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	member map[*Client]string
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string]map[*Client]struct{}),
		member: make(map[*Client]string),
	}
}

// Join places client in the campaign's room. Joins are exclusive: any prior
// room membership is dropped first, so a client navigating between campaigns
// on one connection never leaks broadcasts from the old room. Re-joining the
// same room is a no-op.
func (r *Registry) Join(client *Client, campaignID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.member[client]; ok {
		if prev == campaignID {
			return
		}
		r.removeLocked(client, prev)
	}

	room, ok := r.rooms[campaignID]
	if !ok {
		room = make(map[*Client]struct{})
		r.rooms[campaignID] = room
	}
	room[client] = struct{}{}
	r.member[client] = campaignID
}

// Remove drops the client from whatever room it is in and reports which room
// that was. Empty rooms are deleted.
func (r *Registry) Remove(client *Client) (campaignID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	campaignID, ok = r.member[client]
	if !ok {
		return "", false
	}
	r.removeLocked(client, campaignID)
	return campaignID, true
}

func (r *Registry) removeLocked(client *Client, campaignID string) {
	delete(r.member, client)
	if room, ok := r.rooms[campaignID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(r.rooms, campaignID)
		}
	}
}

// RoomOf reports the room the client currently belongs to.
func (r *Registry) RoomOf(client *Client) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	campaignID, ok := r.member[client]
	return campaignID, ok
}

// Members snapshots the clients currently in a room.
func (r *Registry) Members(campaignID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[campaignID]
	if !ok {
		return nil
	}
	out := make([]*Client, 0, len(room))
	for c := range room {
		out = append(out, c)
	}
	return out
}

// FindUser looks up a room member by its verified user id.
func (r *Registry) FindUser(campaignID, userID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.rooms[campaignID] {
		if c.UserID == userID {
			return c, true
		}
	}
	return nil, false
}

// MemberCount reports how many connections a room has.
func (r *Registry) MemberCount(campaignID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[campaignID])
}
