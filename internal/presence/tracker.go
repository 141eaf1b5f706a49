package presence

import (
    "context"
    "time"

    "go.uber.org/zap"

    "github.com/kapu/hitblow-duel/internal/obslog"
    "github.com/kapu/hitblow-duel/internal/room"
    "github.com/kapu/hitblow-duel/internal/store"
)

const (
    DefaultPeriod    = 10 * time.Second
    DefaultThreshold = 30 * time.Second // three missed beats
)

// Tracker maintains a best-effort liveness signal per player. Presence is
// advisory: a stale or failed heartbeat never blocks gameplay.
type Tracker struct {
    store     *store.Store
    period    time.Duration
    threshold time.Duration
}

func NewTracker(st *store.Store, period, threshold time.Duration) *Tracker {
    if period <= 0 { period = DefaultPeriod }
    if threshold <= 0 { threshold = DefaultThreshold }
    return &Tracker{store: st, period: period, threshold: threshold}
}

// Beat stamps the player's LastActiveAt. Callers inside Run swallow the
// error; direct callers may inspect it.
func (t *Tracker) Beat(ctx context.Context, roomID, uid string) error {
    _, err := t.store.Apply(ctx, roomID, func(cur *room.Room) error {
        p := cur.PlayerByUID(uid)
        if p == nil { return room.ErrPlayerNotFound }
        p.LastActiveAt = time.Now()
        return nil
    })
    return err
}

// Run beats once immediately and then on every period tick until ctx is
// cancelled. Failures (room already deleted, transport hiccups) are logged
// and ignored.
func (t *Tracker) Run(ctx context.Context, roomID, uid string) {
    beat := func() {
        if err := t.Beat(ctx, roomID, uid); err != nil && ctx.Err() == nil {
            obslog.L().Debug("heartbeat_skip",
                zap.String("room_id", roomID),
                zap.String("uid", uid),
                zap.Error(err),
            )
        }
    }
    beat()
    ticker := time.NewTicker(t.period)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            beat()
        }
    }
}

// IsOnline reports whether a player beat within the staleness threshold.
func (t *Tracker) IsOnline(lastActiveAt time.Time) bool {
    if lastActiveAt.IsZero() { return false }
    return time.Since(lastActiveAt) < t.threshold
}
