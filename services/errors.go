package services

import "errors"

// Expected, caller-recoverable battle conditions. Handlers map these to HTTP
// statuses; nothing in this package panics or uses errors for control flow.
var (
	// ErrBattleConflict: another non-terminal battle already exists.
	ErrBattleConflict = errors.New("another battle is already running")
	// ErrBattleNotFound: id is unknown, or not the live battle for mutating calls.
	ErrBattleNotFound = errors.New("battle not found")
	// ErrRegistrationClosed: the battle is not accepting joins anymore.
	ErrRegistrationClosed = errors.New("battle registration is closed")
	// ErrAlreadyJoined: user already holds a participant slot in this battle.
	ErrAlreadyJoined = errors.New("already joined this battle")
	// ErrCooldownActive: user joined any battle within the cooldown window.
	ErrCooldownActive = errors.New("join cooldown active")
	// ErrInvalidArgument: caller-supplied parameters are out of range.
	ErrInvalidArgument = errors.New("invalid battle parameters")
)
