package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnknownVenue      = errors.New("unknown venue")
	ErrUnparseableSymbol = errors.New("unparseable symbol")
	ErrWSDisconnect      = errors.New("websocket disconnected")
	ErrCrossedBook       = errors.New("crossed book")
	ErrStaleUpdate       = errors.New("stale update")
	ErrEmptyVenueSet     = errors.New("config selects no venues")
)
