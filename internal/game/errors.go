package game

import "errors"

// Rejection reasons for remote operations. A rejected operation leaves the
// session untouched.
var (
	ErrNotPartyOwner         = errors.New("not party owner")
	ErrNotEnoughPlayers      = errors.New("not enough players")
	ErrMatchInProgress       = errors.New("match in progress")
	ErrUnknownTemplate       = errors.New("unknown template")
	ErrInsufficientResources = errors.New("insufficient resources")
	ErrInvalidPlacement      = errors.New("invalid placement")
	ErrNoBase                = errors.New("no base")
	ErrUnknownEntity         = errors.New("unknown entity")
	ErrNotOwner              = errors.New("not owner")
)
