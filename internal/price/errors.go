package price

import "errors"

var (
	ErrSourceUnavailable   = errors.New("price source unavailable")
	ErrAllSourcesExhausted = errors.New("all price sources exhausted")
)
