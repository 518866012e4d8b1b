package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TicketStatus string

const (
	TicketReserved TicketStatus = "R"
)

type Event struct {
	ID        int64
	Name      string
	DateEvent time.Time
	CreatedAt time.Time
}

type TicketType struct {
	ID        int64
	EventID   int64
	Category  string
	Price     decimal.Decimal
	Qty       int
	CreatedAt time.Time
}

// TicketTypeAvailability carries a ticket type together with its derived
// remaining capacity (qty minus the number of tickets ever created for it).
type TicketTypeAvailability struct {
	TicketType
	Available int
}

type Order struct {
	ID        int64
	CreatedAt time.Time
	ExpiredAt time.Time
	Total     decimal.Decimal
	Paid      bool
	PaidDate  *time.Time
}

type Ticket struct {
	ID      int64
	TypeID  int64
	Status  TicketStatus
	OrderID int64
}

// CartLine is one validated cart entry. The same ticket type may appear on
// several lines; their effects compose.
type CartLine struct {
	TicketTypeID int64
	Quantity     int
}

type OrderWithTickets struct {
	Order   Order
	Tickets []Ticket
}

type EventWithTicketTypes struct {
	Event       Event
	TicketTypes []TicketTypeAvailability
}
