package main

import (
    "bufio"
    "context"
    "errors"
    "fmt"
    "log"
    "os"
    "strings"
    "sync"

    "github.com/joho/godotenv"
    "go.uber.org/zap"

    "github.com/kapu/hitblow-duel/internal/archive"
    appcfg "github.com/kapu/hitblow-duel/internal/config"
    "github.com/kapu/hitblow-duel/internal/game"
    "github.com/kapu/hitblow-duel/internal/identity"
    "github.com/kapu/hitblow-duel/internal/msgcat"
    "github.com/kapu/hitblow-duel/internal/obslog"
    "github.com/kapu/hitblow-duel/internal/presence"
    "github.com/kapu/hitblow-duel/internal/presenter"
    "github.com/kapu/hitblow-duel/internal/realtime"
    "github.com/kapu/hitblow-duel/internal/room"
    "github.com/kapu/hitblow-duel/internal/session"
    "github.com/kapu/hitblow-duel/internal/store"
)

// client bundles the per-process state for one player: the room currently
// attached to, the local view of its latest snapshot, and the cancel funcs
// for the watch subscription and the heartbeat loop.
type client struct {
    uid       string
    mgr       *session.Manager
    st        *store.Store
    tracker   *presence.Tracker
    format    *presenter.Formatter
    cat       *msgcat.Catalog
    repo      *archive.Repository
    gameCfg   game.Config
    lobbyMax  int

    mu        sync.Mutex
    roomID    string
    role      room.Role
    snap      *room.Room
    archived  bool
    cancelAll []func()
}

func main() {
    _ = godotenv.Load()

    cfg, err := appcfg.Load()
    if err != nil {
        log.Fatalf("config error: %v", err)
    }
    if err := obslog.InitFromEnv(); err != nil {
        log.Fatalf("log init error: %v", err)
    }

    provider := identity.NewProvider(cfg.AuthBaseURL, identity.WithFixedUID(cfg.UserID))
    uid, err := provider.SignIn(context.Background())
    if err != nil {
        log.Fatalf("sign-in error: %v", err)
    }

    st, err := store.NewFromURL(cfg.RedisURL)
    if err != nil {
        log.Fatalf("store init error: %v", err)
    }
    defer st.Close()

    var repo *archive.Repository
    if cfg.DatabaseURL != "" {
        repo, err = archive.NewRepository(cfg.DatabaseURL)
        if err != nil {
            log.Fatalf("archive init error: %v", err)
        }
        defer repo.Close()
    }

    cat, err := msgcat.New()
    if err != nil {
        log.Fatalf("message catalog error: %v", err)
    }

    tracker := presence.NewTracker(st, cfg.HeartbeatPeriod, cfg.PresenceThreshold)
    c := &client{
        uid:     uid,
        mgr:     session.NewManager(st),
        st:      st,
        tracker: tracker,
        format:  presenter.NewFormatter(tracker),
        cat:     cat,
        repo:    repo,
        gameCfg: game.Config{Digits: cfg.Digits, AllowDuplicate: cfg.AllowDuplicate, MaxTurns: cfg.MaxTurns},
        lobbyMax: cfg.LobbyListLimit,
    }

    fmt.Printf("signed in as %s\n", uid)
    fmt.Println("commands: create | list | join <id> | secret <n>|auto | ready [off] | start | guess <n> | board | leave | quit")

    scanner := bufio.NewScanner(os.Stdin)
    for {
        fmt.Print("> ")
        if !scanner.Scan() {
            break
        }
        line := strings.TrimSpace(scanner.Text())
        if line == "" {
            continue
        }
        fields := strings.Fields(line)
        if fields[0] == "quit" || fields[0] == "exit" {
            break
        }
        c.handle(context.Background(), fields)
    }

    c.detach(context.Background())
    provider.SignOut()
}

func (c *client) handle(ctx context.Context, fields []string) {
    var err error
    switch fields[0] {
    case "create":
        err = c.create(ctx)
    case "list":
        err = c.list(ctx)
    case "join":
        if len(fields) < 2 {
            fmt.Println("usage: join <room-id>")
            return
        }
        err = c.join(ctx, fields[1])
    case "secret":
        if len(fields) < 2 {
            fmt.Println("usage: secret <digits>|auto")
            return
        }
        err = c.secret(ctx, fields[1])
    case "ready":
        on := len(fields) < 2 || fields[1] != "off"
        err = c.ready(ctx, on)
    case "start":
        err = c.start(ctx)
    case "guess":
        if len(fields) < 2 {
            fmt.Println("usage: guess <digits>")
            return
        }
        err = c.guess(ctx, fields[1])
    case "board":
        c.board()
    case "leave":
        err = c.leave(ctx)
    default:
        fmt.Println("unknown command:", fields[0])
    }
    if err != nil {
        fmt.Println(c.cat.MustRender("error.generic", map[string]any{"Reason": err.Error()}))
    }
}

func (c *client) create(ctx context.Context) error {
    r, err := c.mgr.CreateRoom(ctx, c.gameCfg, c.uid)
    if err != nil {
        return err
    }
    fmt.Println(c.cat.MustRender("room.created", map[string]any{"RoomID": r.ID}))
    return c.attach(ctx, r, room.RoleHost)
}

func (c *client) list(ctx context.Context) error {
    rooms, err := c.mgr.ListWaitingRooms(ctx, c.lobbyMax)
    if err != nil {
        return err
    }
    fmt.Print(c.format.Lobby(rooms))
    return nil
}

func (c *client) join(ctx context.Context, id string) error {
    r, err := c.mgr.JoinRoom(ctx, id, c.uid)
    if err != nil {
        return err
    }
    fmt.Println(c.cat.MustRender("room.joined", map[string]any{"RoomID": r.ID}))
    return c.attach(ctx, r, room.RoleGuest)
}

func (c *client) secret(ctx context.Context, value string) error {
    id, _, ok := c.current()
    if !ok {
        return errors.New("not in a room")
    }
    if value == "auto" {
        var err error
        value, err = game.Generate(c.gameCfg)
        if err != nil {
            return err
        }
        fmt.Printf("your secret: %s\n", value)
    }
    if _, err := c.mgr.SetSecret(ctx, id, c.uid, value); err != nil {
        return err
    }
    fmt.Println(c.cat.MustRender("game.secret_set", nil))
    return nil
}

func (c *client) ready(ctx context.Context, on bool) error {
    id, _, ok := c.current()
    if !ok {
        return errors.New("not in a room")
    }
    if _, err := c.mgr.SetReady(ctx, id, c.uid, on); err != nil {
        return err
    }
    fmt.Println(c.cat.MustRender("game.ready", map[string]any{"Ready": on}))
    return nil
}

func (c *client) start(ctx context.Context) error {
    id, _, ok := c.current()
    if !ok {
        return errors.New("not in a room")
    }
    r, err := c.mgr.StartGame(ctx, id)
    if err != nil {
        return err
    }
    fmt.Println(c.cat.MustRender("game.started", map[string]any{"Turn": string(r.CurrentTurn)}))
    return nil
}

func (c *client) guess(ctx context.Context, value string) error {
    id, role, ok := c.current()
    if !ok {
        return errors.New("not in a room")
    }

    // MaxTurns is a caller-side precondition, checked on the local snapshot
    c.mu.Lock()
    snap := c.snap
    c.mu.Unlock()
    if snap != nil && session.TurnsLeft(snap, role) == 0 {
        fmt.Println(c.cat.MustRender("game.turn_limit", map[string]any{"MaxTurns": snap.Config.MaxTurns}))
        return nil
    }

    r, err := c.mgr.SubmitGuess(ctx, id, c.uid, value)
    if err != nil {
        return err
    }
    if opp := r.Opponent(role); opp != nil && opp.Secret != "" {
        res := game.Evaluate(opp.Secret, value)
        fmt.Println(c.cat.MustRender("game.guess_result", map[string]any{
            "Guess": value, "Hit": res.Hit, "Blow": res.Blow,
        }))
    }
    return nil
}

func (c *client) board() {
    c.mu.Lock()
    snap, role := c.snap, c.role
    c.mu.Unlock()
    if snap == nil {
        fmt.Println("not in a room")
        return
    }
    fmt.Print(c.format.Board(snap, role))
}

func (c *client) leave(ctx context.Context) error {
    id, role, ok := c.current()
    if !ok {
        return errors.New("not in a room")
    }
    var err error
    if role == room.RoleHost {
        // host exit tears the room down for both sides
        err = c.mgr.DeleteRoom(ctx, id)
    } else {
        _, err = c.mgr.LeaveAsGuest(ctx, id, c.uid)
    }
    c.release()
    return err
}

// attach scopes a watch subscription and a heartbeat loop to the room. Both
// are released on leave, room deletion, or process exit.
func (c *client) attach(ctx context.Context, r *room.Room, role room.Role) error {
    c.release()

    snaps, cancelWatch, err := realtime.Watch(ctx, c.st, r.ID)
    if err != nil {
        return err
    }
    hbCtx, cancelHB := context.WithCancel(ctx)
    go c.tracker.Run(hbCtx, r.ID, c.uid)
    go c.consume(snaps, role)

    c.mu.Lock()
    c.roomID, c.role, c.snap, c.archived = r.ID, role, r, false
    c.cancelAll = []func(){cancelWatch, cancelHB}
    c.mu.Unlock()
    return nil
}

// consume applies pushed snapshots to the local view and reports the events
// a player cares about: opponent seat changes, game start, incoming guesses,
// game over, room teardown.
func (c *client) consume(snaps <-chan realtime.Snapshot, role room.Role) {
    var prev *room.Room
    for s := range snaps {
        if s.Room == nil {
            fmt.Println("\n" + c.cat.MustRender("room.deleted", nil))
            c.release()
            return
        }
        c.mu.Lock()
        c.snap = s.Room
        c.mu.Unlock()
        c.report(prev, s.Room, role)
        prev = s.Room
    }
}

func (c *client) report(prev, cur *room.Room, role room.Role) {
    if prev != nil && role == room.RoleHost {
        if prev.Guest == nil && cur.Guest != nil {
            fmt.Println("\n" + c.cat.MustRender("room.opponent_joined", nil))
        }
        if prev.Guest != nil && cur.Guest == nil {
            fmt.Println("\n" + c.cat.MustRender("room.opponent_left", nil))
        }
    }
    if prev != nil && prev.Status == room.StatusWaiting && cur.Status == room.StatusPlaying {
        fmt.Println("\n" + c.cat.MustRender("game.started", map[string]any{"Turn": string(cur.CurrentTurn)}))
    }

    // each client evaluates incoming guesses against its own secret
    mine := cur.PlayerByRole(role)
    opp := cur.Opponent(role)
    var prevOppGuesses int
    if prev != nil {
        if p := prev.Opponent(role); p != nil {
            prevOppGuesses = len(p.Guesses)
        }
    }
    if opp != nil && mine != nil && mine.Secret != "" {
        for _, g := range opp.Guesses[min(prevOppGuesses, len(opp.Guesses)):] {
            res := game.Evaluate(mine.Secret, g)
            fmt.Println("\n" + c.cat.MustRender("game.opponent_guess", map[string]any{
                "Guess": g, "Hit": res.Hit, "Blow": res.Blow,
            }))
        }
    }

    if w, over := session.Winner(cur); over {
        if w == role {
            fmt.Println(c.cat.MustRender("game.win", nil))
        } else {
            fmt.Println(c.cat.MustRender("game.lose", nil))
        }
        c.archiveOnce(cur, w)
    } else if cur.Status == room.StatusPlaying {
        if cur.CurrentTurn == role {
            fmt.Println(c.cat.MustRender("game.your_turn", nil))
        }
    }
}

// archiveOnce persists the derived outcome, at most once per attachment.
// Both clients may archive; the repository upsert keeps that idempotent.
func (c *client) archiveOnce(r *room.Room, winner room.Role) {
    if c.repo == nil {
        return
    }
    c.mu.Lock()
    done := c.archived
    c.archived = true
    c.mu.Unlock()
    if done {
        return
    }
    if err := c.repo.SaveResult(context.Background(), r, winner, "solved"); err != nil {
        obslog.L().Error("match_archive_error", zap.String("room_id", r.ID), zap.Error(err))
        return
    }
    obslog.L().Info("match_archive", zap.String("room_id", r.ID), zap.String("winner", string(winner)))
}

func (c *client) current() (string, room.Role, bool) {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.roomID, c.role, c.roomID != ""
}

// release cancels the watch and heartbeat scoped to the current room.
func (c *client) release() {
    c.mu.Lock()
    cancels := c.cancelAll
    c.cancelAll = nil
    c.roomID, c.snap = "", nil
    c.mu.Unlock()
    for _, fn := range cancels {
        fn()
    }
}

// detach is the exit path: the host deletes its room so the opponent is not
// left waiting on a dead record.
func (c *client) detach(ctx context.Context) {
    id, role, ok := c.current()
    if ok {
        if role == room.RoleHost {
            _ = c.mgr.DeleteRoom(ctx, id)
        } else {
            _, _ = c.mgr.LeaveAsGuest(ctx, id, c.uid)
        }
    }
    c.release()
}
