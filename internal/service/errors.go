package service

import "errors"

var (
	ErrInvalidName    = errors.New("name must be between 1 and 20 characters")
	ErrInvalidPoints  = errors.New("points must be positive")
	ErrNoActiveBuzzer = errors.New("no player holds the buzzer")
	ErrPINExhausted   = errors.New("failed to generate unique session PIN")
)
