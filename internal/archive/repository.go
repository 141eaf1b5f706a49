package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/kapu/hitblow-duel/internal/room"
)

// Repository archives finished matches to Postgres. Purely historical: the
// live game never reads it back, and a failed archive never affects play.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts one finished match. winner is the role derived from the
// final snapshot; method records how the match ended ("solved", "forfeit").
// Upserting keeps the write idempotent when both clients archive the same
// outcome.
func (r *Repository) SaveResult(ctx context.Context, rm *room.Room, winner room.Role, method string) error {
	if r == nil || r.db == nil || rm == nil {
		return nil
	}

	winnerUID := ""
	if p := rm.PlayerByRole(winner); p != nil {
		winnerUID = p.UID
	}
	guestUID := ""
	guestGuesses := []string{}
	if rm.Guest != nil {
		guestUID = rm.Guest.UID
		guestGuesses = rm.Guest.Guesses
	}
	hostRaw, _ := json.Marshal(rm.Host.Guesses)
	guestRaw, _ := json.Marshal(guestGuesses)
	duration := rm.UpdatedAt.Sub(rm.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO hitblow_matches (
	    room_id, host_uid, guest_uid, digits, allow_duplicate, max_turns,
	    winner_role, winner_uid, end_method, host_guesses, guest_guesses,
	    started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
	  ) ON CONFLICT (room_id) DO UPDATE SET
	    host_uid=EXCLUDED.host_uid,
	    guest_uid=EXCLUDED.guest_uid,
	    digits=EXCLUDED.digits,
	    allow_duplicate=EXCLUDED.allow_duplicate,
	    max_turns=EXCLUDED.max_turns,
	    winner_role=EXCLUDED.winner_role,
	    winner_uid=EXCLUDED.winner_uid,
	    end_method=EXCLUDED.end_method,
	    host_guesses=EXCLUDED.host_guesses,
	    guest_guesses=EXCLUDED.guest_guesses,
	    started_at=EXCLUDED.started_at,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		rm.ID,
		rm.Host.UID, guestUID,
		rm.Config.Digits, rm.Config.AllowDuplicate, rm.Config.MaxTurns,
		string(winner), winnerUID, strings.TrimSpace(method),
		string(hostRaw), string(guestRaw),
		rm.CreatedAt, rm.UpdatedAt, duration,
	)
	return err
}
