package game

import "errors"

// Config fixes the shape of a match. Immutable once a room is created.
type Config struct {
	Digits         int  `json:"digits"`
	AllowDuplicate bool `json:"allow_duplicate"`
	// MaxTurns caps guesses per player when > 0. Enforcement is the
	// caller's responsibility, not the state machine's.
	MaxTurns int `json:"max_turns,omitempty"`
}

// Result is the outcome of scoring one guess against a secret.
type Result struct {
	Hit  int `json:"hit"`
	Blow int `json:"blow"`
}

// ErrInvalidConfig covers impossible digit/duplicate combinations.
var ErrInvalidConfig = errors.New("invalid game configuration")

// Reason classifies why a guess or secret was rejected.
type Reason string

const (
	WrongLength         Reason = "wrong_length"
	NonDigitCharacter   Reason = "non_digit_character"
	DuplicateNotAllowed Reason = "duplicate_not_allowed"
)

// ValidationError reports the first failing format check.
type ValidationError struct {
	Reason Reason
}

func (e *ValidationError) Error() string { return "invalid guess: " + string(e.Reason) }

// ValidateConfig rejects configurations no secret can satisfy.
func ValidateConfig(cfg Config) error {
	if cfg.Digits < 1 {
		return ErrInvalidConfig
	}
	if !cfg.AllowDuplicate && cfg.Digits > 10 {
		// only ten distinct digits exist
		return ErrInvalidConfig
	}
	return nil
}
