package models

// Player is a session holder that joined a room from a mobile device.
type Player struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	SessionToken string `json:"-"`
	ConnID       string `json:"-"`
	Connected    bool   `json:"connected"`

	// Timeline holds the cards this player placed correctly, oldest year first.
	Timeline []Card `json:"-"`
}

// Host is the shared-screen session that created the room.
type Host struct {
	SessionToken string `json:"-"`
	ConnID       string `json:"-"`
	Connected    bool   `json:"connected"`
}

// Bind attaches a live connection to the host session.
func (h *Host) Bind(connID string) {
	h.ConnID = connID
	h.Connected = connID != ""
}

// Bind attaches a live connection to the player session.
func (p *Player) Bind(connID string) {
	p.ConnID = connID
	p.Connected = connID != ""
}

// TimelineCopy returns the player's timeline by value.
func (p *Player) TimelineCopy() []Card {
	out := make([]Card, len(p.Timeline))
	copy(out, p.Timeline)
	return out
}
