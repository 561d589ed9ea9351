package relay

import "errors"

var (
	ErrUnknownFeed  = errors.New("unknown event feed")
	ErrInvalidEvent = errors.New("invalid chain event")
)
