package presence

import (
    "context"
    "errors"
    "testing"
    "time"

    miniredis "github.com/alicebob/miniredis/v2"
    "github.com/redis/go-redis/v9"

    "github.com/kapu/hitblow-duel/internal/game"
    "github.com/kapu/hitblow-duel/internal/room"
    "github.com/kapu/hitblow-duel/internal/store"
)

func newTestTracker(t *testing.T) (*Tracker, *store.Store) {
    t.Helper()
    mr, err := miniredis.Run()
    if err != nil { t.Fatalf("miniredis: %v", err) }
    t.Cleanup(func() { mr.Close() })
    st := store.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
    return NewTracker(st, 10*time.Millisecond, 30*time.Second), st
}

func seedRoom(t *testing.T, st *store.Store, id string) {
    t.Helper()
    err := st.Create(context.Background(), &room.Room{
        ID:          id,
        Status:      room.StatusWaiting,
        Config:      game.Config{Digits: 4},
        Host:        room.Player{UID: "u1", Role: room.RoleHost, Guesses: []string{}},
        CurrentTurn: room.RoleHost,
        CreatedAt:   time.Now(),
    })
    if err != nil { t.Fatalf("seed room: %v", err) }
}

func TestIsOnlineThreshold(t *testing.T) {
    tr, _ := newTestTracker(t)
    if tr.IsOnline(time.Now().Add(-31 * time.Second)) {
        t.Fatalf("31s old beat should be offline")
    }
    if !tr.IsOnline(time.Now().Add(-5 * time.Second)) {
        t.Fatalf("5s old beat should be online")
    }
    if tr.IsOnline(time.Time{}) {
        t.Fatalf("zero timestamp should be offline")
    }
}

func TestBeatStampsLastActive(t *testing.T) {
    tr, st := newTestTracker(t)
    ctx := context.Background()
    seedRoom(t, st, "r1")

    before := time.Now()
    if err := tr.Beat(ctx, "r1", "u1"); err != nil { t.Fatalf("Beat: %v", err) }
    got, err := st.Get(ctx, "r1")
    if err != nil || got == nil { t.Fatalf("Get: %v", err) }
    if got.Host.LastActiveAt.Before(before) {
        t.Fatalf("LastActiveAt not stamped: %v", got.Host.LastActiveAt)
    }
}

func TestBeatOnMissingRoom(t *testing.T) {
    tr, _ := newTestTracker(t)
    if err := tr.Beat(context.Background(), "gone", "u1"); !errors.Is(err, room.ErrNotFound) {
        t.Fatalf("expected ErrNotFound, got %v", err)
    }
}

func TestRunBeatsUntilCancelled(t *testing.T) {
    tr, st := newTestTracker(t)
    seedRoom(t, st, "r1")

    ctx, cancel := context.WithCancel(context.Background())
    done := make(chan struct{})
    go func() { tr.Run(ctx, "r1", "u1"); close(done) }()

    time.Sleep(50 * time.Millisecond)
    cancel()
    select {
    case <-done:
    case <-time.After(time.Second):
        t.Fatalf("Run did not stop on cancel")
    }

    got, err := st.Get(context.Background(), "r1")
    if err != nil || got == nil { t.Fatalf("Get: %v", err) }
    if got.Host.LastActiveAt.IsZero() { t.Fatalf("no beat recorded") }
}

// Heartbeats against a deleted room are swallowed by Run.
func TestRunSurvivesRoomDeletion(t *testing.T) {
    tr, st := newTestTracker(t)
    seedRoom(t, st, "r1")

    ctx, cancel := context.WithCancel(context.Background())
    done := make(chan struct{})
    go func() { tr.Run(ctx, "r1", "u1"); close(done) }()

    time.Sleep(20 * time.Millisecond)
    if err := st.Delete(context.Background(), "r1"); err != nil { t.Fatalf("Delete: %v", err) }
    time.Sleep(30 * time.Millisecond)

    cancel()
    select {
    case <-done:
    case <-time.After(time.Second):
        t.Fatalf("Run did not stop after deletion + cancel")
    }
}
