package room

import (
	"time"

	"github.com/kapu/hitblow-duel/internal/game"
)

// Role identifies a seat in the room. Fixed for the life of a session.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// Other returns the opposing role.
func (r Role) Other() Role {
	if r == RoleHost {
		return RoleGuest
	}
	return RoleHost
}

// Status represents the room lifecycle state. Transitions are monotonic:
// WAITING → PLAYING → FINISHED.
type Status string

const (
	StatusWaiting  Status = "WAITING"
	StatusPlaying  Status = "PLAYING"
	StatusFinished Status = "FINISHED"
)

// Player is one seat's state inside the shared record.
type Player struct {
	UID   string `json:"uid"`
	Role  Role   `json:"role"`
	Ready bool   `json:"ready"`
	// Secret is write-once; empty means not yet committed.
	Secret string `json:"secret,omitempty"`
	// Guesses is append-only within a playing phase, in submission
	// order; it is cleared when the room reopens for a new opponent.
	Guesses      []string  `json:"guesses"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Room is the shared record for one match, stored as JSON.
type Room struct {
	ID          string      `json:"id"`
	Status      Status      `json:"status"`
	Config      game.Config `json:"config"`
	Host        Player      `json:"host"`
	Guest       *Player     `json:"guest,omitempty"`
	CurrentTurn Role        `json:"current_turn"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// PlayerByUID resolves a uid to its seat, or nil when it matches neither.
func (r *Room) PlayerByUID(uid string) *Player {
	if uid == "" {
		return nil
	}
	if r.Host.UID == uid {
		return &r.Host
	}
	if r.Guest != nil && r.Guest.UID == uid {
		return r.Guest
	}
	return nil
}

// PlayerByRole returns the seat for a role, or nil for an empty guest slot.
func (r *Room) PlayerByRole(role Role) *Player {
	if role == RoleHost {
		return &r.Host
	}
	return r.Guest
}

// Opponent returns the seat opposing role.
func (r *Room) Opponent(role Role) *Player { return r.PlayerByRole(role.Other()) }
