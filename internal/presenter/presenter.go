package presenter

import (
	"fmt"
	"strings"

	"github.com/kapu/hitblow-duel/internal/game"
	"github.com/kapu/hitblow-duel/internal/presence"
	"github.com/kapu/hitblow-duel/internal/room"
	"github.com/kapu/hitblow-duel/internal/session"
)

// Formatter renders room snapshots into terminal-friendly text blocks. All
// hit/blow scoring happens here on the local snapshot; nothing is read back
// from the store.
type Formatter struct {
	tracker *presence.Tracker
}

func NewFormatter(tracker *presence.Tracker) *Formatter {
	return &Formatter{tracker: tracker}
}

// Board renders both guess columns from the perspective of me. The
// opponent's secret stays hidden; only scores are shown.
func (f *Formatter) Board(r *room.Room, me room.Role) string {
	if r == nil {
		return "(room gone)"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("room %s — %s\n", r.ID, strings.ToLower(string(r.Status))))

	mine := r.PlayerByRole(me)
	opp := r.Opponent(me)
	sb.WriteString("you:\n")
	f.writeColumn(&sb, mine, opp, r.Config)
	sb.WriteString("opponent:\n")
	f.writeColumn(&sb, opp, mine, r.Config)

	if r.Status == room.StatusPlaying {
		if w, over := session.Winner(r); over {
			if w == me {
				sb.WriteString("result: you win\n")
			} else {
				sb.WriteString("result: you lose\n")
			}
		} else if r.CurrentTurn == me {
			sb.WriteString("turn: yours\n")
		} else {
			sb.WriteString("turn: opponent\n")
		}
	}
	if opp != nil && f.tracker != nil {
		if f.tracker.IsOnline(opp.LastActiveAt) {
			sb.WriteString("presence: opponent online\n")
		} else {
			sb.WriteString("presence: opponent offline\n")
		}
	}
	return sb.String()
}

// writeColumn scores guesser's guesses against holder's secret. Guesses are
// listed without scores while the holder's secret is unknown (pre-game).
func (f *Formatter) writeColumn(sb *strings.Builder, guesser, holder *room.Player, cfg game.Config) {
	if guesser == nil {
		sb.WriteString("  (empty seat)\n")
		return
	}
	if len(guesser.Guesses) == 0 {
		sb.WriteString("  (no guesses)\n")
		return
	}
	for i, g := range guesser.Guesses {
		if holder == nil || holder.Secret == "" {
			sb.WriteString(fmt.Sprintf("  %2d. %s\n", i+1, g))
			continue
		}
		res := game.Evaluate(holder.Secret, g)
		sb.WriteString(fmt.Sprintf("  %2d. %s  %dH %dB\n", i+1, g, res.Hit, res.Blow))
	}
}

// Lobby renders the waiting-room listing.
func (f *Formatter) Lobby(rooms []*room.Room) string {
	if len(rooms) == 0 {
		return "no open rooms\n"
	}
	var sb strings.Builder
	for _, r := range rooms {
		dup := ""
		if r.Config.AllowDuplicate {
			dup = ", duplicates"
		}
		sb.WriteString(fmt.Sprintf("%s  %d digits%s  created %s\n",
			r.ID, r.Config.Digits, dup, r.CreatedAt.Format("15:04:05")))
	}
	return sb.String()
}
