package session

import (
    "github.com/kapu/hitblow-duel/internal/game"
    "github.com/kapu/hitblow-duel/internal/room"
)

// Winner derives the standing from a room snapshot. The earliest fully
// matching guess (by submission order) wins for its guesser; nothing about
// the outcome is ever stored in the record, so any two clients holding the
// same snapshot agree.
//
// Turns alternate with the host first, so the host's guess at index i was
// submitted before the guest's at the same index. Comparing (index, host
// first) therefore reproduces real submission order exactly.
func Winner(r *room.Room) (room.Role, bool) {
    if r == nil || r.Guest == nil { return "", false }
    hostIdx := game.FirstClear(r.Host.Guesses, r.Guest.Secret, r.Config)
    guestIdx := game.FirstClear(r.Guest.Guesses, r.Host.Secret, r.Config)
    switch {
    case hostIdx < 0 && guestIdx < 0:
        return "", false
    case guestIdx < 0:
        return room.RoleHost, true
    case hostIdx < 0:
        return room.RoleGuest, true
    case hostIdx <= guestIdx:
        return room.RoleHost, true
    default:
        return room.RoleGuest, true
    }
}

// TurnsLeft reports remaining guesses for a role under Config.MaxTurns, or
// -1 when unlimited. The state machine does not enforce this cap itself;
// callers check it before submitting.
func TurnsLeft(r *room.Room, role room.Role) int {
    if r == nil || r.Config.MaxTurns <= 0 { return -1 }
    p := r.PlayerByRole(role)
    if p == nil { return r.Config.MaxTurns }
    left := r.Config.MaxTurns - len(p.Guesses)
    if left < 0 { return 0 }
    return left
}
