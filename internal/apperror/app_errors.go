package apperror

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyFull      = errors.New("match is already full")
	ErrSelfJoin         = errors.New("cannot join your own match")
	ErrMatchNotActive   = errors.New("match is not active")
	ErrNotAPlayer       = errors.New("not a player in this match")
	ErrNotYourTurn      = errors.New("it's not your turn")
	ErrInvalidPosition  = errors.New("invalid position")
	ErrPositionOccupied = errors.New("position is already occupied")

	ErrMatchCodeTaken     = errors.New("match code is already taken")
	ErrConcurrentUpdate   = errors.New("match was updated concurrently")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
)
