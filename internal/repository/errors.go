package repository

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrCapacityExceeded = errors.New("ticket type capacity exceeded")
	ErrProtected        = errors.New("row is referenced by dependent rows")
)
