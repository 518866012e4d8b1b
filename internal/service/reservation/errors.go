package reservation

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart = errors.New("cart is empty")
)

// UnknownTicketTypeError rejects a cart referencing a ticket type id that
// does not resolve. Nothing is persisted.
type UnknownTicketTypeError struct {
	TicketTypeID int64
}

func (e *UnknownTicketTypeError) Error() string {
	return fmt.Sprintf("unknown ticket type: %d", e.TicketTypeID)
}

// InsufficientInventoryError rejects a cart whose demand for a ticket type
// exceeds its remaining capacity. Nothing is persisted.
type InsufficientInventoryError struct {
	TicketTypeID int64
	Requested    int
	Available    int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf(
		"insufficient inventory for ticket type %d: requested %d, available %d",
		e.TicketTypeID, e.Requested, e.Available,
	)
}
