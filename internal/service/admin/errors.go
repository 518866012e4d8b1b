package admin

import (
	"errors"
)

var (
	ErrEventNotFound       = errors.New("event not found")
	ErrEventProtected      = errors.New("event has ticket types")
	ErrTicketTypeNotFound  = errors.New("ticket type not found")
	ErrTicketTypeProtected = errors.New("ticket type has tickets")
)
