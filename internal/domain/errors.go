package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrContextDone   = errors.New("context cancelled")
	ErrLockHeld      = errors.New("lock already held")

	// Reward computation faults. None of these has a safe default; the
	// current step's reward must be aborted when one is returned.
	ErrInvalidTrade    = errors.New("invalid trade")
	ErrDegenerateVWAP  = errors.New("degenerate position vwap")
	ErrStepMismatch    = errors.New("trade step does not match current step")
	ErrNonFiniteReward = errors.New("non-finite reward")

	// Environment lifecycle faults.
	ErrEpisodeDone   = errors.New("episode already done")
	ErrInvalidAction = errors.New("invalid action")
	ErrInsufficient  = errors.New("insufficient balance")
)
