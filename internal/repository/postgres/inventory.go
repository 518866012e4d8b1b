package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/besttickets/tickets-go/internal/domain"
	"github.com/besttickets/tickets-go/internal/repository"
)

// InventoryRepo is the capacity-safe write path. Every mutating method must
// run inside WithTx; the ticket insert is the only statement that consumes
// inventory and it re-checks capacity on its own.
type InventoryRepo struct {
	pool *pgxpool.Pool
}

type txKey struct{}

// WithTx runs fn inside a transaction carried in the context. Nested calls
// join the already-open transaction.
func (r *InventoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(DB); ok {
		return fn(ctx)
	}

	store := &Store{pool: r.pool}

	return store.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (r *InventoryRepo) handle(ctx context.Context) DB {
	if tx, ok := ctx.Value(txKey{}).(DB); ok {
		return tx
	}
	return r.pool
}

// GetTicketType retrieves a ticket type without locking it.
//
// Returns:
//   - *domain.TicketType: the ticket type when found.
//   - error: repository.ErrNotFound if the ticket type does not exist.
func (r *InventoryRepo) GetTicketType(ctx context.Context, id int64) (*domain.TicketType, error) {
	const op = "postgres.InventoryRepo.GetTicketType"

	return r.scanTicketType(ctx, op,
		`SELECT id, event_id, category, price, qty, created_at
       	 FROM ticket_types WHERE id = $1`,
		id,
	)
}

// LockTicketType retrieves a ticket type and takes an exclusive row lock on
// it, held until the surrounding transaction ends. Reservations touching the
// same type serialize on this lock; disjoint types do not contend.
//
// Returns:
//   - *domain.TicketType: the locked ticket type.
//   - error: repository.ErrNotFound if the ticket type does not exist.
func (r *InventoryRepo) LockTicketType(ctx context.Context, id int64) (*domain.TicketType, error) {
	const op = "postgres.InventoryRepo.LockTicketType"

	return r.scanTicketType(ctx, op,
		`SELECT id, event_id, category, price, qty, created_at
       	 FROM ticket_types WHERE id = $1
     	 FOR UPDATE`,
		id,
	)
}

// CountTickets reports how many tickets have ever been created for a type.
// Inside a transaction it observes the transaction's own earlier inserts.
func (r *InventoryRepo) CountTickets(ctx context.Context, typeID int64) (int, error) {
	const op = "postgres.InventoryRepo.CountTickets"

	db := r.handle(ctx)

	var n int
	err := db.QueryRow(ctx,
		`SELECT count(*) FROM tickets WHERE type_id = $1`,
		typeID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return n, nil
}

// CreateOrder inserts an order with a zero total, unpaid, expiring fifteen
// minutes after creation. The expiry is stamped once here and never
// recomputed.
func (r *InventoryRepo) CreateOrder(ctx context.Context) (*domain.Order, error) {
	const op = "postgres.InventoryRepo.CreateOrder"

	db := r.handle(ctx)

	var o domain.Order
	err := db.QueryRow(ctx,
		`INSERT INTO orders(created_at, expired_at, total, paid)
       	 VALUES (now(), now() + interval '15 minutes', 0, FALSE)
     	 RETURNING id, created_at, expired_at, total, paid`,
	).Scan(&o.ID, &o.CreatedAt, &o.ExpiredAt, &o.Total, &o.Paid)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &o, nil
}

// CreateTickets inserts n reserved tickets for the type/order pair. Each
// insert is guarded by the capacity predicate, so a concurrent commit between
// the caller's check and this write surfaces as ErrCapacityExceeded instead
// of an oversell.
//
// Returns:
//   - []int64: ids of the created tickets.
//   - error: repository.ErrCapacityExceeded when the type has no room left.
func (r *InventoryRepo) CreateTickets(ctx context.Context, typeID, orderID int64, n int) ([]int64, error) {
	const op = "postgres.InventoryRepo.CreateTickets"

	db := r.handle(ctx)

	batch := &pgx.Batch{}
	for i := 0; i < n; i++ {
		batch.Queue(
			`INSERT INTO tickets(type_id, status, order_id)
         	 SELECT $1, $2, $3
      		 WHERE (SELECT count(*) FROM tickets WHERE type_id = $1)
           		 < (SELECT qty FROM ticket_types WHERE id = $1)
     		 RETURNING id`,
			typeID, domain.TicketReserved, orderID,
		)
	}

	br := db.SendBatch(ctx, batch)
	defer br.Close()

	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		var id int64
		if err := br.QueryRow().Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("%s:%w", op, repository.ErrCapacityExceeded)
			}
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// UpdateOrderTotal sets the accumulated total on an order. Called exactly
// once per reservation, inside the same transaction that created the order.
func (r *InventoryRepo) UpdateOrderTotal(ctx context.Context, orderID int64, total decimal.Decimal) error {
	const op = "postgres.InventoryRepo.UpdateOrderTotal"

	db := r.handle(ctx)

	tag, err := db.Exec(ctx,
		`UPDATE orders SET total = $2 WHERE id = $1`,
		orderID, total,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *InventoryRepo) scanTicketType(ctx context.Context, op, sql string, id int64) (*domain.TicketType, error) {
	db := r.handle(ctx)

	var tt domain.TicketType
	err := db.QueryRow(ctx, sql, id).Scan(
		&tt.ID,
		&tt.EventID,
		&tt.Category,
		&tt.Price,
		&tt.Qty,
		&tt.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &tt, nil
}
