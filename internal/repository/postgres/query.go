package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/besttickets/tickets-go/internal/domain"
)

type QueryRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *QueryRepo) With(db DB) *QueryRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *QueryRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// GetEvent retrieves an event by its ID.
//
// Returns:
//   - *domain.Event: the event when found.
//   - error: repository.ErrNotFound if the event is not found.
func (r *QueryRepo) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "postgres.QueryRepo.GetEvent"

	db := r.handle()

	var e domain.Event
	err := db.QueryRow(ctx,
		`SELECT id, name, date_event, created_at
       	 FROM events WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.Name, &e.DateEvent, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &e, nil
}

// ListEvents lists events ordered by occurrence date.
func (r *QueryRepo) ListEvents(ctx context.Context, limit, offset int) ([]domain.Event, error) {
	const op = "postgres.QueryRepo.ListEvents"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, name, date_event, created_at
		 FROM events
		 ORDER BY date_event
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.Name, &e.DateEvent, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}

		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// ListTicketTypes lists the ticket types of an event with their derived
// remaining capacity.
func (r *QueryRepo) ListTicketTypes(ctx context.Context, eventID int64) ([]domain.TicketTypeAvailability, error) {
	const op = "postgres.QueryRepo.ListTicketTypes"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT tt.id, tt.event_id, tt.category, tt.price, tt.qty, tt.created_at,
		        tt.qty - count(t.id)
		 FROM ticket_types tt
		 LEFT JOIN tickets t ON t.type_id = tt.id
		 WHERE tt.event_id = $1
		 GROUP BY tt.id
		 ORDER BY tt.id`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.TicketTypeAvailability
	for rows.Next() {
		var tta domain.TicketTypeAvailability
		if err := rows.Scan(
			&tta.ID,
			&tta.EventID,
			&tta.Category,
			&tta.Price,
			&tta.Qty,
			&tta.CreatedAt,
			&tta.Available,
		); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}

		out = append(out, tta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// GetTicketType retrieves one ticket type with its derived remaining
// capacity.
//
// Returns:
//   - *domain.TicketTypeAvailability: the ticket type when found.
//   - error: repository.ErrNotFound if the ticket type is not found.
func (r *QueryRepo) GetTicketType(ctx context.Context, id int64) (*domain.TicketTypeAvailability, error) {
	const op = "postgres.QueryRepo.GetTicketType"

	db := r.handle()

	var tta domain.TicketTypeAvailability
	err := db.QueryRow(ctx,
		`SELECT tt.id, tt.event_id, tt.category, tt.price, tt.qty, tt.created_at,
		        tt.qty - count(t.id)
		 FROM ticket_types tt
		 LEFT JOIN tickets t ON t.type_id = tt.id
		 WHERE tt.id = $1
		 GROUP BY tt.id`,
		id,
	).Scan(
		&tta.ID,
		&tta.EventID,
		&tta.Category,
		&tta.Price,
		&tta.Qty,
		&tta.CreatedAt,
		&tta.Available,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &tta, nil
}

// GetOrderWithTickets retrieves an order with its materialized tickets.
//
// Returns:
//   - *domain.OrderWithTickets: the order with its tickets when found.
//   - error: repository.ErrNotFound if the order is not found.
func (r *QueryRepo) GetOrderWithTickets(ctx context.Context, orderID int64) (*domain.OrderWithTickets, error) {
	const op = "postgres.QueryRepo.GetOrderWithTickets"

	db := r.handle()

	var out domain.OrderWithTickets

	err := db.QueryRow(ctx,
		`SELECT id, created_at, expired_at, total, paid, paid_date
         FROM orders
         WHERE id = $1`,
		orderID,
	).Scan(
		&out.Order.ID,
		&out.Order.CreatedAt,
		&out.Order.ExpiredAt,
		&out.Order.Total,
		&out.Order.Paid,
		&out.Order.PaidDate,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	rows, err := db.Query(ctx,
		`SELECT id, type_id, status, order_id
         FROM tickets
      	 WHERE order_id = $1
       	 ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	for rows.Next() {
		var t domain.Ticket

		if err := rows.Scan(&t.ID, &t.TypeID, &t.Status, &t.OrderID); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}

		out.Tickets = append(out.Tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &out, nil
}
