package session

import (
    "context"
    "crypto/rand"
    "encoding/hex"
    "errors"
    "fmt"
    "time"

    "go.uber.org/zap"

    "github.com/kapu/hitblow-duel/internal/game"
    "github.com/kapu/hitblow-duel/internal/obslog"
    "github.com/kapu/hitblow-duel/internal/room"
    "github.com/kapu/hitblow-duel/internal/store"
)

var ErrInvalidArgs = errors.New("invalid arguments")

// Manager drives the room lifecycle and the in-game state machine. All
// mutations go through the store's conditional apply, so every precondition
// below is checked against the state actually being overwritten.
type Manager struct {
    store *store.Store
}

func NewManager(st *store.Store) *Manager { return &Manager{store: st} }

// CreateRoom allocates a fresh room with only the host seat filled.
func (m *Manager) CreateRoom(ctx context.Context, cfg game.Config, hostUID string) (*room.Room, error) {
    if hostUID == "" { return nil, ErrInvalidArgs }
    if err := game.ValidateConfig(cfg); err != nil { return nil, err }

    now := time.Now()
    r := &room.Room{
        ID:     fmt.Sprintf("hb-%d-%s", now.UnixNano(), randSuffix(3)),
        Status: room.StatusWaiting,
        Config: cfg,
        Host: room.Player{
            UID:          hostUID,
            Role:         room.RoleHost,
            Guesses:      []string{},
            LastActiveAt: now,
        },
        CurrentTurn: room.RoleHost,
        CreatedAt:   now,
        UpdatedAt:   now,
    }
    if err := m.store.Create(ctx, r); err != nil { return nil, err }
    obslog.L().Info("room_create",
        zap.String("room_id", r.ID),
        zap.String("host_uid", hostUID),
        zap.Int("digits", cfg.Digits),
        zap.Bool("allow_duplicate", cfg.AllowDuplicate),
    )
    return r, nil
}

// JoinRoom seats guestUID in the guest slot. The capacity check runs inside
// the store transaction, so two near-simultaneous joins cannot both win.
func (m *Manager) JoinRoom(ctx context.Context, id, guestUID string) (*room.Room, error) {
    if id == "" || guestUID == "" { return nil, ErrInvalidArgs }
    r, err := m.store.Apply(ctx, id, func(cur *room.Room) error {
        // capacity before status: a started room always has its guest
        // seated, so it reports full rather than merely unjoinable
        if cur.Guest != nil { return room.ErrAlreadyFull }
        if cur.Status != room.StatusWaiting { return room.ErrNotJoinable }
        if cur.Host.UID == guestUID { return room.ErrNotJoinable }
        cur.Guest = &room.Player{
            UID:          guestUID,
            Role:         room.RoleGuest,
            Guesses:      []string{},
            LastActiveAt: time.Now(),
        }
        return nil
    })
    if err != nil { return nil, err }
    obslog.L().Info("room_join", zap.String("room_id", id), zap.String("guest_uid", guestUID))
    return r, nil
}

// ListWaitingRooms returns joinable rooms, newest-created first.
func (m *Manager) ListWaitingRooms(ctx context.Context, limit int) ([]*room.Room, error) {
    return m.store.ListWaiting(ctx, limit)
}

// LeaveAsGuest vacates the guest slot and reopens the room.
func (m *Manager) LeaveAsGuest(ctx context.Context, id, guestUID string) (*room.Room, error) {
    if id == "" || guestUID == "" { return nil, ErrInvalidArgs }
    r, err := m.store.Apply(ctx, id, func(cur *room.Room) error {
        if cur.Guest == nil || cur.Guest.UID != guestUID { return room.ErrPlayerNotFound }
        cur.Guest = nil
        cur.Status = room.StatusWaiting
        cur.CurrentTurn = room.RoleHost
        // the guess log is scoped to one playing phase; a new opponent
        // gets a clean transcript and the host must confirm again
        cur.Host.Ready = false
        cur.Host.Guesses = []string{}
        return nil
    })
    if err != nil { return nil, err }
    obslog.L().Info("room_leave", zap.String("room_id", id), zap.String("guest_uid", guestUID))
    return r, nil
}

// DeleteRoom tears the room down for both sides. Host exit path.
func (m *Manager) DeleteRoom(ctx context.Context, id string) error {
    if id == "" { return ErrInvalidArgs }
    if err := m.store.Delete(ctx, id); err != nil { return err }
    obslog.L().Info("room_delete", zap.String("room_id", id))
    return nil
}

// SetSecret commits a player's hidden number. Write-once, pre-game only.
func (m *Manager) SetSecret(ctx context.Context, id, uid, secret string) (*room.Room, error) {
    if id == "" || uid == "" { return nil, ErrInvalidArgs }
    r, err := m.store.Apply(ctx, id, func(cur *room.Room) error {
        if cur.Status != room.StatusWaiting { return room.ErrAlreadyStarted }
        p := cur.PlayerByUID(uid)
        if p == nil { return room.ErrPlayerNotFound }
        if p.Secret != "" { return room.ErrSecretAlreadySet }
        if verr := game.ValidateGuess(secret, cur.Config); verr != nil { return verr }
        p.Secret = secret
        return nil
    })
    if err != nil { return nil, err }
    // the secret itself stays out of the logs
    obslog.L().Info("secret_set", zap.String("room_id", id), zap.String("uid", uid))
    return r, nil
}

// SetReady toggles a player's readiness flag.
func (m *Manager) SetReady(ctx context.Context, id, uid string, ready bool) (*room.Room, error) {
    if id == "" || uid == "" { return nil, ErrInvalidArgs }
    r, err := m.store.Apply(ctx, id, func(cur *room.Room) error {
        p := cur.PlayerByUID(uid)
        if p == nil { return room.ErrPlayerNotFound }
        p.Ready = ready
        return nil
    })
    if err != nil { return nil, err }
    obslog.L().Info("ready_set", zap.String("room_id", id), zap.String("uid", uid), zap.Bool("ready", ready))
    return r, nil
}

// StartGame is the single gate out of the waiting state: both seats ready,
// both secrets committed. Turn order is already host from creation.
func (m *Manager) StartGame(ctx context.Context, id string) (*room.Room, error) {
    if id == "" { return nil, ErrInvalidArgs }
    r, err := m.store.Apply(ctx, id, func(cur *room.Room) error {
        if cur.Status != room.StatusWaiting { return room.ErrAlreadyStarted }
        if cur.Guest == nil || !cur.Host.Ready || !cur.Guest.Ready { return room.ErrNotReady }
        if cur.Host.Secret == "" || cur.Guest.Secret == "" { return room.ErrSecretsMissing }
        cur.Status = room.StatusPlaying
        return nil
    })
    if err != nil { return nil, err }
    obslog.L().Info("game_start", zap.String("room_id", id))
    return r, nil
}

// SubmitGuess appends a guess to the caller's sequence and flips the turn.
// The turn check runs inside the same transaction as the append, so only the
// active player can advance the game. Outcome is never stored: both clients
// derive it from the synchronized record (see Winner).
func (m *Manager) SubmitGuess(ctx context.Context, id, uid, guess string) (*room.Room, error) {
    if id == "" || uid == "" { return nil, ErrInvalidArgs }
    r, err := m.store.Apply(ctx, id, func(cur *room.Room) error {
        if cur.Status != room.StatusPlaying { return room.ErrNotPlaying }
        p := cur.PlayerByUID(uid)
        if p == nil { return room.ErrPlayerNotFound }
        if p.Role != cur.CurrentTurn { return room.ErrNotYourTurn }
        if verr := game.ValidateGuess(guess, cur.Config); verr != nil { return verr }
        p.Guesses = append(p.Guesses, guess)
        cur.CurrentTurn = p.Role.Other()
        return nil
    })
    if err != nil { return nil, err }
    obslog.L().Info("guess_submit",
        zap.String("room_id", id),
        zap.String("uid", uid),
        zap.String("next_turn", string(r.CurrentTurn)),
    )
    return r, nil
}

func randSuffix(n int) string {
    b := make([]byte, n)
    if _, err := rand.Read(b); err == nil {
        return hex.EncodeToString(b)
    }
    return fmt.Sprintf("%x", time.Now().UnixNano()%1_000_000)
}
