package room

import "errors"

// Failure taxonomy shared by the lifecycle manager and the state machine.
// All are sentinels so callers can branch with errors.Is.
var (
	ErrNotFound         = errors.New("room not found")
	ErrAlreadyFull      = errors.New("room already has a guest")
	ErrNotJoinable      = errors.New("room is not joinable")
	ErrAlreadyStarted   = errors.New("room already started")
	ErrNotReady         = errors.New("both players must be ready")
	ErrSecretsMissing   = errors.New("both players must set a secret")
	ErrSecretAlreadySet = errors.New("secret already set")
	ErrPlayerNotFound   = errors.New("player not in room")
	ErrNotPlaying       = errors.New("room is not in play")
	ErrNotYourTurn      = errors.New("not your turn")
)
