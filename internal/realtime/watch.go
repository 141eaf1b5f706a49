package realtime

import (
    "context"
    "encoding/json"
    "sync"

    "go.uber.org/zap"

    "github.com/kapu/hitblow-duel/internal/obslog"
    "github.com/kapu/hitblow-duel/internal/room"
    "github.com/kapu/hitblow-duel/internal/store"
)

// Snapshot is one delivered view of the shared record. Room == nil means the
// record is absent (never existed, or was deleted mid-watch).
type Snapshot struct {
    Room *room.Room
}

// Watch subscribes to one record and turns the store's push notifications
// into a latest-wins snapshot channel: the current state is delivered first,
// then every committed mutation, with stale snapshots dropped when the
// consumer lags. Deletion arrives as an absent snapshot.
//
// cancel must be called exactly once; it releases the store subscription and
// the channel closes shortly after. Cancelling the ctx has the same effect.
func Watch(ctx context.Context, st *store.Store, roomID string) (<-chan Snapshot, func(), error) {
    ps := st.Subscribe(ctx, roomID)
    // force the subscription onto the wire before the initial read so no
    // commit can fall between the two
    if _, err := ps.Receive(ctx); err != nil {
        _ = ps.Close()
        return nil, nil, err
    }
    initial, err := st.Get(ctx, roomID)
    if err != nil {
        _ = ps.Close()
        return nil, nil, err
    }

    out := make(chan Snapshot, 1)
    var once sync.Once
    cancel := func() { once.Do(func() { _ = ps.Close() }) }

    go func() {
        defer close(out)
        push(out, Snapshot{Room: initial})
        for {
            select {
            case <-ctx.Done():
                cancel()
                return
            case msg, ok := <-ps.Channel():
                if !ok { return }
                var r *room.Room
                if err := json.Unmarshal([]byte(msg.Payload), &r); err != nil {
                    obslog.L().Warn("watch_bad_payload", zap.String("room_id", roomID), zap.Error(err))
                    continue
                }
                push(out, Snapshot{Room: r})
            }
        }
    }()
    return out, cancel, nil
}

// push delivers latest-wins: at most one snapshot is in flight, and a newer
// one displaces an unconsumed older one.
func push(out chan Snapshot, s Snapshot) {
    for {
        select {
        case out <- s:
            return
        default:
            select {
            case <-out:
            default:
            }
        }
    }
}
