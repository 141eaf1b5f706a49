package store

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/url"
    "strconv"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"

    "github.com/kapu/hitblow-duel/internal/room"
)

const (
    ttlRoom      = 24 * time.Hour
    maxTxRetries = 3
)

// Store is the document-store collaborator for room records. Records live as
// JSON under hb:room:<id>; a sorted set indexes waiting rooms by creation
// time; every committed mutation is published on the record's event channel
// (deletion as a "null" tombstone).
type Store struct {
    rdb *redis.Client
}

func New(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// NewFromURL dials Redis and verifies connectivity.
func NewFromURL(redisURL string) (*Store, error) {
    if strings.TrimSpace(redisURL) == "" {
        return nil, fmt.Errorf("REDIS_URL required for room store")
    }
    opts, err := parseRedisURL(redisURL)
    if err != nil { return nil, err }
    rdb := redis.NewClient(opts)
    if err := rdb.Ping(context.Background()).Err(); err != nil {
        return nil, fmt.Errorf("redis ping: %w", err)
    }
    return &Store{rdb: rdb}, nil
}

func (s *Store) Close() error {
    if s == nil || s.rdb == nil { return nil }
    return s.rdb.Close()
}

func (s *Store) keyRoom(id string) string   { return "hb:room:" + strings.TrimSpace(id) }
func (s *Store) keyEvents(id string) string { return s.keyRoom(id) + ":events" }
func (s *Store) keyLobby() string           { return "hb:lobby" }

// Get returns the room record, or nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*room.Room, error) {
    raw, err := s.rdb.Get(ctx, s.keyRoom(id)).Bytes()
    if err == redis.Nil { return nil, nil }
    if err != nil { return nil, fmt.Errorf("room get: %w", err) }
    var r room.Room
    if err := json.Unmarshal(raw, &r); err != nil { return nil, err }
    return &r, nil
}

// Create writes a fresh record. The id must be unused; SetNX guards against
// collisions the same way lobby codes are allocated.
func (s *Store) Create(ctx context.Context, r *room.Room) error {
    raw, err := json.Marshal(r)
    if err != nil { return err }
    ok, err := s.rdb.SetNX(ctx, s.keyRoom(r.ID), raw, ttlRoom).Result()
    if err != nil { return fmt.Errorf("room create: %w", err) }
    if !ok { return fmt.Errorf("room id collision: %s", r.ID) }
    pipe := s.rdb.TxPipeline()
    pipe.ZAdd(ctx, s.keyLobby(), redis.Z{Score: float64(r.CreatedAt.UnixNano()), Member: r.ID})
    pipe.Publish(ctx, s.keyEvents(r.ID), raw)
    if _, err := pipe.Exec(ctx); err != nil {
        return fmt.Errorf("lobby index: %w", err)
    }
    return nil
}

// Apply runs a conditional read-modify-write on one record. The mutate
// closure sees the current state and either mutates it in place or aborts
// with a precondition error, which is returned unchanged. The write commits
// only if the record was untouched since the read (WATCH/MULTI/EXEC);
// interleaved writers cause a bounded retry, re-running mutate against the
// fresh state. This closes the read-then-write races a get+set sequence
// would have. The subscriber notification rides in the same transaction as
// the write, so publishes always arrive in commit order.
func (s *Store) Apply(ctx context.Context, id string, mutate func(*room.Room) error) (*room.Room, error) {
    key := s.keyRoom(id)
    var out *room.Room
    for attempt := 0; attempt < maxTxRetries; attempt++ {
        err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
            b, err := tx.Get(ctx, key).Bytes()
            if err == redis.Nil { return room.ErrNotFound }
            if err != nil { return fmt.Errorf("room get: %w", err) }
            var cur room.Room
            if jerr := json.Unmarshal(b, &cur); jerr != nil { return jerr }
            if err := mutate(&cur); err != nil { return err }
            cur.UpdatedAt = time.Now()

            raw, err := json.Marshal(&cur)
            if err != nil { return err }
            pipe := tx.TxPipeline()
            pipe.Set(ctx, key, raw, ttlRoom)
            if cur.Status == room.StatusWaiting {
                pipe.ZAdd(ctx, s.keyLobby(), redis.Z{Score: float64(cur.CreatedAt.UnixNano()), Member: cur.ID})
            } else {
                pipe.ZRem(ctx, s.keyLobby(), cur.ID)
            }
            pipe.Publish(ctx, s.keyEvents(id), raw)
            if _, err := pipe.Exec(ctx); err != nil { return err }
            out = &cur
            return nil
        }, key)
        if errors.Is(err, redis.TxFailedErr) {
            // concurrent writer got there first; re-read and re-decide
            continue
        }
        if err != nil { return nil, err }
        return out, nil
    }
    return nil, fmt.Errorf("room apply: too many concurrent updates: %s", id)
}

// Delete removes the record and notifies subscribers with a tombstone, in
// one transaction so the tombstone cannot interleave with a racing Apply.
func (s *Store) Delete(ctx context.Context, id string) error {
    pipe := s.rdb.TxPipeline()
    pipe.Del(ctx, s.keyRoom(id))
    pipe.ZRem(ctx, s.keyLobby(), id)
    pipe.Publish(ctx, s.keyEvents(id), []byte("null"))
    if _, err := pipe.Exec(ctx); err != nil {
        return fmt.Errorf("room delete: %w", err)
    }
    return nil
}

// ListWaiting returns open rooms newest-created first, at most limit.
// Index entries whose record has expired or moved on are skipped.
func (s *Store) ListWaiting(ctx context.Context, limit int) ([]*room.Room, error) {
    if limit <= 0 { return nil, nil }
    ids, err := s.rdb.ZRevRange(ctx, s.keyLobby(), 0, int64(limit*2)).Result()
    if err != nil { return nil, fmt.Errorf("lobby range: %w", err) }
    var out []*room.Room
    for _, id := range ids {
        if len(out) >= limit { break }
        r, gerr := s.Get(ctx, id)
        if gerr != nil || r == nil { continue }
        if r.Status != room.StatusWaiting { continue }
        out = append(out, r)
    }
    return out, nil
}

// Subscribe registers a push listener for one record's committed mutations.
// The caller owns the returned PubSub and must Close it.
func (s *Store) Subscribe(ctx context.Context, id string) *redis.PubSub {
    return s.rdb.Subscribe(ctx, s.keyEvents(id))
}

func parseRedisURL(raw string) (*redis.Options, error) {
    u, err := url.Parse(raw)
    if err != nil { return nil, err }
    if u.Scheme != "redis" && u.Scheme != "rediss" { return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme) }
    db := 0
    if p := strings.TrimPrefix(u.Path, "/"); p != "" {
        if n, err := strconv.Atoi(p); err == nil { db = n }
    }
    pass, _ := u.User.Password()
    return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
