package session

import (
    "context"
    "errors"
    "testing"

    miniredis "github.com/alicebob/miniredis/v2"
    "github.com/redis/go-redis/v9"

    "github.com/kapu/hitblow-duel/internal/game"
    "github.com/kapu/hitblow-duel/internal/room"
    "github.com/kapu/hitblow-duel/internal/store"
)

func newTestManager(t *testing.T) *Manager {
    t.Helper()
    mr, err := miniredis.Run()
    if err != nil { t.Fatalf("miniredis: %v", err) }
    t.Cleanup(func() { mr.Close() })
    st := store.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
    return NewManager(st)
}

func fourDigits() game.Config { return game.Config{Digits: 4, AllowDuplicate: false} }

// readyRoom creates a room, joins a guest, and commits both secrets/ready.
func readyRoom(t *testing.T, m *Manager, hostSecret, guestSecret string) *room.Room {
    t.Helper()
    ctx := context.Background()
    r, err := m.CreateRoom(ctx, fourDigits(), "host-1")
    if err != nil { t.Fatalf("CreateRoom: %v", err) }
    if _, err := m.JoinRoom(ctx, r.ID, "guest-1"); err != nil { t.Fatalf("JoinRoom: %v", err) }
    if _, err := m.SetSecret(ctx, r.ID, "host-1", hostSecret); err != nil { t.Fatalf("SetSecret host: %v", err) }
    if _, err := m.SetSecret(ctx, r.ID, "guest-1", guestSecret); err != nil { t.Fatalf("SetSecret guest: %v", err) }
    if _, err := m.SetReady(ctx, r.ID, "host-1", true); err != nil { t.Fatalf("SetReady host: %v", err) }
    if _, err := m.SetReady(ctx, r.ID, "guest-1", true); err != nil { t.Fatalf("SetReady guest: %v", err) }
    return r
}

func TestCreateRoomInitialState(t *testing.T) {
    m := newTestManager(t)
    r, err := m.CreateRoom(context.Background(), fourDigits(), "host-1")
    if err != nil { t.Fatalf("CreateRoom: %v", err) }
    if r.ID == "" { t.Fatalf("expected non-empty id") }
    if r.Status != room.StatusWaiting { t.Fatalf("status = %s, want WAITING", r.Status) }
    if r.CurrentTurn != room.RoleHost { t.Fatalf("turn = %s, want host", r.CurrentTurn) }
    if r.Guest != nil { t.Fatalf("fresh room must have no guest") }
    if r.Host.UID != "host-1" || r.Host.Role != room.RoleHost { t.Fatalf("host seat: %+v", r.Host) }
}

func TestCreateRoomRejectsBadConfig(t *testing.T) {
    m := newTestManager(t)
    if _, err := m.CreateRoom(context.Background(), game.Config{Digits: 11}, "host-1"); !errors.Is(err, game.ErrInvalidConfig) {
        t.Fatalf("expected ErrInvalidConfig, got %v", err)
    }
}

func TestJoinRoom(t *testing.T) {
    m := newTestManager(t)
    ctx := context.Background()
    r, _ := m.CreateRoom(ctx, fourDigits(), "host-1")

    got, err := m.JoinRoom(ctx, r.ID, "guest-1")
    if err != nil { t.Fatalf("JoinRoom: %v", err) }
    if got.Guest == nil || got.Guest.UID != "guest-1" || got.Guest.Role != room.RoleGuest {
        t.Fatalf("guest seat: %+v", got.Guest)
    }

    // second guest is turned away
    if _, err := m.JoinRoom(ctx, r.ID, "guest-2"); !errors.Is(err, room.ErrAlreadyFull) {
        t.Fatalf("expected ErrAlreadyFull, got %v", err)
    }
    // host cannot take its own guest slot
    r2, _ := m.CreateRoom(ctx, fourDigits(), "host-2")
    if _, err := m.JoinRoom(ctx, r2.ID, "host-2"); !errors.Is(err, room.ErrNotJoinable) {
        t.Fatalf("expected ErrNotJoinable on self-join, got %v", err)
    }
    // unknown room
    if _, err := m.JoinRoom(ctx, "nope", "guest-1"); !errors.Is(err, room.ErrNotFound) {
        t.Fatalf("expected ErrNotFound, got %v", err)
    }
}

func TestJoinRoomAfterStartRejected(t *testing.T) {
    m := newTestManager(t)
    ctx := context.Background()
    r := readyRoom(t, m, "1234", "5678")
    if _, err := m.StartGame(ctx, r.ID); err != nil { t.Fatalf("StartGame: %v", err) }
    // capacity is checked before status, so a started room reports full
    if _, err := m.JoinRoom(ctx, r.ID, "guest-2"); !errors.Is(err, room.ErrAlreadyFull) {
        t.Fatalf("expected ErrAlreadyFull, got %v", err)
    }
}

func TestListWaitingRooms(t *testing.T) {
    m := newTestManager(t)
    ctx := context.Background()
    a, _ := m.CreateRoom(ctx, fourDigits(), "h1")
    b, _ := m.CreateRoom(ctx, fourDigits(), "h2")

    got, err := m.ListWaitingRooms(ctx, 10)
    if err != nil { t.Fatalf("ListWaitingRooms: %v", err) }
    if len(got) != 2 { t.Fatalf("expected 2 rooms, got %d", len(got)) }
    // newest first
    if got[0].ID != b.ID || got[1].ID != a.ID {
        t.Fatalf("unexpected order: %s, %s", got[0].ID, got[1].ID)
    }
}

func TestSetSecret(t *testing.T) {
    m := newTestManager(t)
    ctx := context.Background()
    r, _ := m.CreateRoom(ctx, fourDigits(), "host-1")

    if _, err := m.SetSecret(ctx, r.ID, "host-1", "123"); err != nil {
        var verr *game.ValidationError
        if !errors.As(err, &verr) || verr.Reason != game.WrongLength {
            t.Fatalf("expected WrongLength, got %v", err)
        }
    } else {
        t.Fatalf("short secret accepted")
    }

    if _, err := m.SetSecret(ctx, r.ID, "host-1", "1234"); err != nil { t.Fatalf("SetSecret: %v", err) }
    // write-once
    if _, err := m.SetSecret(ctx, r.ID, "host-1", "4321"); !errors.Is(err, room.ErrSecretAlreadySet) {
        t.Fatalf("expected ErrSecretAlreadySet, got %v", err)
    }
    // unknown player
    if _, err := m.SetSecret(ctx, r.ID, "stranger", "1234"); !errors.Is(err, room.ErrPlayerNotFound) {
        t.Fatalf("expected ErrPlayerNotFound, got %v", err)
    }
}

func TestStartGamePreconditions(t *testing.T) {
    m := newTestManager(t)
    ctx := context.Background()
    r, _ := m.CreateRoom(ctx, fourDigits(), "host-1")

    // no guest yet
    if _, err := m.StartGame(ctx, r.ID); !errors.Is(err, room.ErrNotReady) {
        t.Fatalf("expected ErrNotReady without guest, got %v", err)
    }

    if _, err := m.JoinRoom(ctx, r.ID, "guest-1"); err != nil { t.Fatalf("JoinRoom: %v", err) }
    if _, err := m.SetReady(ctx, r.ID, "host-1", true); err != nil { t.Fatalf("SetReady: %v", err) }
    if _, err := m.StartGame(ctx, r.ID); !errors.Is(err, room.ErrNotReady) {
        t.Fatalf("expected ErrNotReady with one ready, got %v", err)
    }

    if _, err := m.SetReady(ctx, r.ID, "guest-1", true); err != nil { t.Fatalf("SetReady: %v", err) }
    if _, err := m.StartGame(ctx, r.ID); !errors.Is(err, room.ErrSecretsMissing) {
        t.Fatalf("expected ErrSecretsMissing, got %v", err)
    }

    if _, err := m.SetSecret(ctx, r.ID, "host-1", "1234"); err != nil { t.Fatalf("SetSecret: %v", err) }
    if _, err := m.SetSecret(ctx, r.ID, "guest-1", "5678"); err != nil { t.Fatalf("SetSecret: %v", err) }

    got, err := m.StartGame(ctx, r.ID)
    if err != nil { t.Fatalf("StartGame: %v", err) }
    if got.Status != room.StatusPlaying { t.Fatalf("status = %s, want PLAYING", got.Status) }
    if got.CurrentTurn != room.RoleHost { t.Fatalf("turn = %s, want host", got.CurrentTurn) }

    // starting twice is rejected
    if _, err := m.StartGame(ctx, r.ID); !errors.Is(err, room.ErrAlreadyStarted) {
        t.Fatalf("expected ErrAlreadyStarted, got %v", err)
    }
}

func TestSecretLockedOnceStarted(t *testing.T) {
    m := newTestManager(t)
    ctx := context.Background()
    r := readyRoom(t, m, "1234", "5678")
    if _, err := m.StartGame(ctx, r.ID); err != nil { t.Fatalf("StartGame: %v", err) }
    if _, err := m.SetSecret(ctx, r.ID, "host-1", "9999"); !errors.Is(err, room.ErrAlreadyStarted) {
        t.Fatalf("expected ErrAlreadyStarted, got %v", err)
    }
}

func TestSubmitGuessAlternatesTurns(t *testing.T) {
    m := newTestManager(t)
    ctx := context.Background()
    r := readyRoom(t, m, "1234", "5678")
    if _, err := m.StartGame(ctx, r.ID); err != nil { t.Fatalf("StartGame: %v", err) }

    got, err := m.SubmitGuess(ctx, r.ID, "host-1", "0123")
    if err != nil { t.Fatalf("SubmitGuess host: %v", err) }
    if got.CurrentTurn != room.RoleGuest { t.Fatalf("turn = %s, want guest", got.CurrentTurn) }
    if len(got.Host.Guesses) != 1 || got.Host.Guesses[0] != "0123" {
        t.Fatalf("host guesses: %v", got.Host.Guesses)
    }

    got, err = m.SubmitGuess(ctx, r.ID, "guest-1", "9876")
    if err != nil { t.Fatalf("SubmitGuess guest: %v", err) }
    if got.CurrentTurn != room.RoleHost { t.Fatalf("turn = %s, want host", got.CurrentTurn) }
    if len(got.Guest.Guesses) != 1 { t.Fatalf("guest guesses: %v", got.Guest.Guesses) }
}

func TestSubmitGuessRejections(t *testing.T) {
    m := newTestManager(t)
    ctx := context.Background()
    r := readyRoom(t, m, "1234", "5678")

    // not playing yet
    if _, err := m.SubmitGuess(ctx, r.ID, "host-1", "0123"); !errors.Is(err, room.ErrNotPlaying) {
        t.Fatalf("expected ErrNotPlaying, got %v", err)
    }
    if _, err := m.StartGame(ctx, r.ID); err != nil { t.Fatalf("StartGame: %v", err) }

    // guest moving out of turn
    if _, err := m.SubmitGuess(ctx, r.ID, "guest-1", "0123"); !errors.Is(err, room.ErrNotYourTurn) {
        t.Fatalf("expected ErrNotYourTurn, got %v", err)
    }
    // stranger
    if _, err := m.SubmitGuess(ctx, r.ID, "stranger", "0123"); !errors.Is(err, room.ErrPlayerNotFound) {
        t.Fatalf("expected ErrPlayerNotFound, got %v", err)
    }
    // malformed guess leaves the turn untouched
    if _, err := m.SubmitGuess(ctx, r.ID, "host-1", "12x4"); err == nil {
        t.Fatalf("malformed guess accepted")
    }
    got, err := m.SubmitGuess(ctx, r.ID, "host-1", "0123")
    if err != nil { t.Fatalf("SubmitGuess after rejects: %v", err) }
    if got.CurrentTurn != room.RoleGuest { t.Fatalf("turn = %s, want guest", got.CurrentTurn) }
}

func TestLeaveAsGuestReopensRoom(t *testing.T) {
    m := newTestManager(t)
    ctx := context.Background()
    r, _ := m.CreateRoom(ctx, fourDigits(), "host-1")
    if _, err := m.JoinRoom(ctx, r.ID, "guest-1"); err != nil { t.Fatalf("JoinRoom: %v", err) }

    got, err := m.LeaveAsGuest(ctx, r.ID, "guest-1")
    if err != nil { t.Fatalf("LeaveAsGuest: %v", err) }
    if got.Guest != nil { t.Fatalf("guest slot not cleared") }
    if got.Status != room.StatusWaiting || got.CurrentTurn != room.RoleHost {
        t.Fatalf("room not reopened: %s %s", got.Status, got.CurrentTurn)
    }

    // the slot is joinable again
    if _, err := m.JoinRoom(ctx, r.ID, "guest-2"); err != nil { t.Fatalf("rejoin: %v", err) }

    // leaving with the wrong uid fails
    if _, err := m.LeaveAsGuest(ctx, r.ID, "guest-1"); !errors.Is(err, room.ErrPlayerNotFound) {
        t.Fatalf("expected ErrPlayerNotFound, got %v", err)
    }
}

func TestGuestDetachMidGameResetsHostMatchState(t *testing.T) {
    m := newTestManager(t)
    ctx := context.Background()
    r := readyRoom(t, m, "1234", "5678")
    if _, err := m.StartGame(ctx, r.ID); err != nil { t.Fatalf("StartGame: %v", err) }
    if _, err := m.SubmitGuess(ctx, r.ID, "host-1", "0987"); err != nil { t.Fatalf("SubmitGuess: %v", err) }

    left, err := m.LeaveAsGuest(ctx, r.ID, "guest-1")
    if err != nil { t.Fatalf("LeaveAsGuest: %v", err) }
    if left.Host.Ready { t.Fatalf("host still ready after reopen") }
    if len(left.Host.Guesses) != 0 { t.Fatalf("stale host guesses survived reopen: %v", left.Host.Guesses) }

    // rematch where the new guest's secret collides with a guess from the
    // abandoned match
    if _, err := m.JoinRoom(ctx, r.ID, "guest-2"); err != nil { t.Fatalf("JoinRoom: %v", err) }
    if _, err := m.SetSecret(ctx, r.ID, "guest-2", "0987"); err != nil { t.Fatalf("SetSecret: %v", err) }
    if _, err := m.SetReady(ctx, r.ID, "guest-2", true); err != nil { t.Fatalf("SetReady guest: %v", err) }

    // host has to confirm again before the rematch can start
    if _, err := m.StartGame(ctx, r.ID); !errors.Is(err, room.ErrNotReady) {
        t.Fatalf("expected ErrNotReady before host re-confirms, got %v", err)
    }
    if _, err := m.SetReady(ctx, r.ID, "host-1", true); err != nil { t.Fatalf("SetReady host: %v", err) }

    got, err := m.StartGame(ctx, r.ID)
    if err != nil { t.Fatalf("rematch StartGame: %v", err) }
    if _, over := Winner(got); over { t.Fatalf("winner derived before any guess in the rematch") }
}

func TestDeleteRoom(t *testing.T) {
    m := newTestManager(t)
    ctx := context.Background()
    r, _ := m.CreateRoom(ctx, fourDigits(), "host-1")
    if err := m.DeleteRoom(ctx, r.ID); err != nil { t.Fatalf("DeleteRoom: %v", err) }
    if _, err := m.JoinRoom(ctx, r.ID, "guest-1"); !errors.Is(err, room.ErrNotFound) {
        t.Fatalf("expected ErrNotFound after delete, got %v", err)
    }
}

func TestWinnerDerivation(t *testing.T) {
    m := newTestManager(t)
    ctx := context.Background()
    r := readyRoom(t, m, "1234", "5678")
    if _, err := m.StartGame(ctx, r.ID); err != nil { t.Fatalf("StartGame: %v", err) }

    // host misses, guest misses, host solves the guest secret
    if _, err := m.SubmitGuess(ctx, r.ID, "host-1", "0123"); err != nil { t.Fatalf("guess: %v", err) }
    if _, err := m.SubmitGuess(ctx, r.ID, "guest-1", "9876"); err != nil { t.Fatalf("guess: %v", err) }
    got, err := m.SubmitGuess(ctx, r.ID, "host-1", "5678")
    if err != nil { t.Fatalf("guess: %v", err) }

    w, over := Winner(got)
    if !over || w != room.RoleHost { t.Fatalf("Winner = %v %v, want host win", w, over) }

    // nothing about the outcome is stored
    if got.Status != room.StatusPlaying { t.Fatalf("status mutated by win: %s", got.Status) }
}

func TestWinnerTieBreak(t *testing.T) {
    // both sides solved at the same index: host moved first, host wins
    r := &room.Room{
        Config: game.Config{Digits: 4},
        Host:   room.Player{Role: room.RoleHost, Secret: "1234", Guesses: []string{"5678"}},
        Guest:  &room.Player{Role: room.RoleGuest, Secret: "5678", Guesses: []string{"1234"}},
    }
    w, over := Winner(r)
    if !over || w != room.RoleHost { t.Fatalf("Winner = %v %v, want host", w, over) }
}

func TestTurnsLeft(t *testing.T) {
    r := &room.Room{
        Config: game.Config{Digits: 4, MaxTurns: 3},
        Host:   room.Player{Role: room.RoleHost, Guesses: []string{"0123", "4567"}},
        Guest:  &room.Player{Role: room.RoleGuest, Guesses: []string{}},
    }
    if n := TurnsLeft(r, room.RoleHost); n != 1 { t.Fatalf("host TurnsLeft = %d, want 1", n) }
    if n := TurnsLeft(r, room.RoleGuest); n != 3 { t.Fatalf("guest TurnsLeft = %d, want 3", n) }
    r.Config.MaxTurns = 0
    if n := TurnsLeft(r, room.RoleHost); n != -1 { t.Fatalf("unlimited TurnsLeft = %d, want -1", n) }
}
