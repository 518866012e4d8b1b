package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/besttickets/tickets-go/internal/repository"
)

type CatalogRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *CatalogRepo) With(db DB) *CatalogRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *CatalogRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *CatalogRepo) CreateEvent(
	ctx context.Context,
	name string,
	dateEvent time.Time,
) (int64, error) {
	const op = "postgres.CatalogRepo.CreateEvent"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO events(name, date_event, created_at)
       	 VALUES ($1, $2, now())
     	 RETURNING id`,
		name, dateEvent,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return id, nil
}

func (r *CatalogRepo) UpdateEvent(
	ctx context.Context,
	id int64,
	name string,
	dateEvent time.Time,
) error {
	const op = "postgres.CatalogRepo.UpdateEvent"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE events SET name = $2, date_event = $3 WHERE id = $1`,
		id, name, dateEvent,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// DeleteEvent removes an event. The RESTRICT constraint on ticket_types makes
// this fail with repository.ErrProtected while any ticket type references it.
func (r *CatalogRepo) DeleteEvent(ctx context.Context, id int64) error {
	const op = "postgres.CatalogRepo.DeleteEvent"

	db := r.handle()

	tag, err := db.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *CatalogRepo) CreateTicketType(
	ctx context.Context,
	eventID int64,
	category string,
	price decimal.Decimal,
	qty int,
) (int64, error) {
	const op = "postgres.CatalogRepo.CreateTicketType"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO ticket_types(event_id, category, price, qty, created_at)
       	 VALUES ($1, $2, $3, $4, now())
     	 RETURNING id`,
		eventID, category, price, qty,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return id, nil
}

// UpdateTicketType changes the label and price only. Quantity is fixed at
// creation; letting it shrink below the sold count would break the capacity
// invariant.
func (r *CatalogRepo) UpdateTicketType(
	ctx context.Context,
	id int64,
	category string,
	price decimal.Decimal,
) error {
	const op = "postgres.CatalogRepo.UpdateTicketType"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE ticket_types SET category = $2, price = $3 WHERE id = $1`,
		id, category, price,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// DeleteTicketType removes a ticket type. Fails with repository.ErrProtected
// while any ticket references it.
func (r *CatalogRepo) DeleteTicketType(ctx context.Context, id int64) error {
	const op = "postgres.CatalogRepo.DeleteTicketType"

	db := r.handle()

	tag, err := db.Exec(ctx, `DELETE FROM ticket_types WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}
