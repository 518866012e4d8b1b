package httpgin

import (
	"time"

	"github.com/besttickets/tickets-go/internal/domain"
)

type CreateEventRequest struct {
	Name      string `json:"name" binding:"required,min=5,max=300"`
	DateEvent string `json:"date_event" binding:"required"`
}

type CreateTicketTypeRequest struct {
	Category string `json:"category" binding:"required,max=50"`
	Price    string `json:"price" binding:"required"`
	Qty      int    `json:"qty" binding:"required,gt=0"`
}

type UpdateTicketTypeRequest struct {
	Category string `json:"category" binding:"required,max=50"`
	Price    string `json:"price" binding:"required"`
}

// CartLineRequest deliberately leaves quantity unconstrained at the binding
// layer; the reservation engine owns rejection of zero and negative values.
type CartLineRequest struct {
	TicketTypeID int64 `json:"ticket_type_id" binding:"required"`
	Quantity     int   `json:"quantity"`
}

type ErrorResponse struct {
	Error        string `json:"error"`
	TicketTypeID int64  `json:"ticket_type_id,omitempty"`
	Requested    int    `json:"requested,omitempty"`
	Available    int    `json:"available,omitempty"`
}

type EventResponse struct {
	ID          int64                `json:"id"`
	Name        string               `json:"name"`
	DateEvent   time.Time            `json:"date_event"`
	CreatedAt   time.Time            `json:"created_at"`
	TicketTypes []TicketTypeResponse `json:"ticket_types,omitempty"`
}

type TicketTypeResponse struct {
	ID               int64     `json:"id"`
	EventID          int64     `json:"event_id"`
	Category         string    `json:"category"`
	Price            string    `json:"price"`
	Qty              int       `json:"qty"`
	TicketsAvailable int       `json:"tickets_available"`
	CreatedAt        time.Time `json:"created_at"`
}

type TicketResponse struct {
	ID      int64  `json:"id"`
	TypeID  int64  `json:"type_id"`
	Status  string `json:"status"`
	OrderID int64  `json:"order_id"`
}

type OrderResponse struct {
	ID        int64            `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	ExpiredAt time.Time        `json:"expired_at"`
	Total     string           `json:"total"`
	Paid      bool             `json:"paid"`
	PaidDate  *time.Time       `json:"paid_date"`
	Tickets   []TicketResponse `json:"tickets,omitempty"`
}

type CreatedResponse struct {
	ID int64 `json:"id"`
}

func toEventResponse(e *domain.EventWithTicketTypes) EventResponse {
	resp := EventResponse{
		ID:        e.Event.ID,
		Name:      e.Event.Name,
		DateEvent: e.Event.DateEvent,
		CreatedAt: e.Event.CreatedAt,
	}

	for _, tt := range e.TicketTypes {
		resp.TicketTypes = append(resp.TicketTypes, toTicketTypeResponse(tt))
	}

	return resp
}

func toTicketTypeResponse(tt domain.TicketTypeAvailability) TicketTypeResponse {
	return TicketTypeResponse{
		ID:               tt.ID,
		EventID:          tt.EventID,
		Category:         tt.Category,
		Price:            tt.Price.String(),
		Qty:              tt.Qty,
		TicketsAvailable: tt.Available,
		CreatedAt:        tt.CreatedAt,
	}
}

func toOrderResponse(o domain.Order, tickets []domain.Ticket) OrderResponse {
	resp := OrderResponse{
		ID:        o.ID,
		CreatedAt: o.CreatedAt,
		ExpiredAt: o.ExpiredAt,
		Total:     o.Total.StringFixed(2),
		Paid:      o.Paid,
		PaidDate:  o.PaidDate,
	}

	for _, t := range tickets {
		resp.Tickets = append(resp.Tickets, TicketResponse{
			ID:      t.ID,
			TypeID:  t.TypeID,
			Status:  string(t.Status),
			OrderID: t.OrderID,
		})
	}

	return resp
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
