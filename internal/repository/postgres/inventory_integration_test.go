package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/besttickets/tickets-go/internal/repository"
	"github.com/besttickets/tickets-go/internal/testutil"
)

func TestInventoryRepoReserveFlow(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	eventID := testutil.InsertEvent(t, ctx, pool, "Integration Concert")
	typeID := testutil.InsertTicketType(t, ctx, pool, eventID, "General", decimal.RequireFromString("12.50"), 5)

	inv := NewStore(pool).Inventory()

	var orderID int64
	err := inv.WithTx(ctx, func(ctx context.Context) error {
		tt, err := inv.LockTicketType(ctx, typeID)
		require.NoError(t, err)
		assert.Equal(t, eventID, tt.EventID)
		assert.Equal(t, 5, tt.Qty)
		assert.True(t, tt.Price.Equal(decimal.RequireFromString("12.50")))

		n, err := inv.CountTickets(ctx, typeID)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		o, err := inv.CreateOrder(ctx)
		require.NoError(t, err)
		assert.False(t, o.Paid)
		assert.True(t, o.ExpiredAt.Equal(o.CreatedAt.Add(15*time.Minute)),
			"expiry must be created_at + 15m")
		orderID = o.ID

		ids, err := inv.CreateTickets(ctx, typeID, o.ID, 2)
		require.NoError(t, err)
		assert.Len(t, ids, 2)

		// The transaction observes its own inserts.
		n, err = inv.CountTickets(ctx, typeID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		return inv.UpdateOrderTotal(ctx, o.ID, decimal.RequireFromString("25.00"))
	})
	require.NoError(t, err)

	assert.Equal(t, 2, testutil.CountTickets(t, ctx, pool, typeID))

	var total decimal.Decimal
	require.NoError(t, pool.QueryRow(ctx, `SELECT total FROM orders WHERE id = $1`, orderID).Scan(&total))
	assert.True(t, total.Equal(decimal.RequireFromString("25.00")), "got %s", total)
}

func TestInventoryRepoRollsBackOnError(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	eventID := testutil.InsertEvent(t, ctx, pool, "Rollback Show")
	typeID := testutil.InsertTicketType(t, ctx, pool, eventID, "General", decimal.RequireFromString("10.00"), 5)

	inv := NewStore(pool).Inventory()

	err := inv.WithTx(ctx, func(ctx context.Context) error {
		o, err := inv.CreateOrder(ctx)
		require.NoError(t, err)
		_, err = inv.CreateTickets(ctx, typeID, o.ID, 3)
		require.NoError(t, err)
		// Force the whole transaction back.
		_, err = inv.CreateTickets(ctx, typeID, o.ID, 3)
		return err
	})
	require.ErrorIs(t, err, repository.ErrCapacityExceeded)

	assert.Equal(t, 0, testutil.CountTickets(t, ctx, pool, typeID))

	var orders int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM orders`).Scan(&orders))
	assert.Equal(t, 0, orders)
}

func TestInventoryRepoGuardedInsertStopsAtCapacity(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	eventID := testutil.InsertEvent(t, ctx, pool, "Tiny Venue")
	typeID := testutil.InsertTicketType(t, ctx, pool, eventID, "General", decimal.RequireFromString("10.00"), 2)

	inv := NewStore(pool).Inventory()

	err := inv.WithTx(ctx, func(ctx context.Context) error {
		o, err := inv.CreateOrder(ctx)
		if err != nil {
			return err
		}
		_, err = inv.CreateTickets(ctx, typeID, o.ID, 3)
		return err
	})
	require.ErrorIs(t, err, repository.ErrCapacityExceeded)
	assert.Equal(t, 0, testutil.CountTickets(t, ctx, pool, typeID))
}

func TestInventoryRepoConcurrentLockSerializes(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	eventID := testutil.InsertEvent(t, ctx, pool, "Last Tickets")
	typeID := testutil.InsertTicketType(t, ctx, pool, eventID, "General", decimal.RequireFromString("10.00"), 3)

	inv := NewStore(pool).Inventory()

	reserveTwo := func() error {
		return inv.WithTx(ctx, func(ctx context.Context) error {
			tt, err := inv.LockTicketType(ctx, typeID)
			if err != nil {
				return err
			}
			n, err := inv.CountTickets(ctx, typeID)
			if err != nil {
				return err
			}
			if tt.Qty-n < 2 {
				return repository.ErrCapacityExceeded
			}
			o, err := inv.CreateOrder(ctx)
			if err != nil {
				return err
			}
			_, err = inv.CreateTickets(ctx, typeID, o.ID, 2)
			return err
		})
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = reserveTwo()
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, repository.ErrCapacityExceeded)
		}
	}
	assert.Equal(t, 1, succeeded, "row lock must let exactly one buyer take the last units")
	assert.Equal(t, 2, testutil.CountTickets(t, ctx, pool, typeID))
}

func TestCatalogRepoProtectedDeletes(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	store := NewStore(pool)
	catalog := store.Catalog()
	inv := store.Inventory()

	eventID, err := catalog.CreateEvent(ctx, "Protected Event", time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	typeID, err := catalog.CreateTicketType(ctx, eventID, "VIP", decimal.RequireFromString("99.00"), 4)
	require.NoError(t, err)

	err = catalog.DeleteEvent(ctx, eventID)
	assert.ErrorIs(t, err, repository.ErrProtected, "event with ticket types must not delete")

	err = inv.WithTx(ctx, func(ctx context.Context) error {
		o, err := inv.CreateOrder(ctx)
		if err != nil {
			return err
		}
		_, err = inv.CreateTickets(ctx, typeID, o.ID, 1)
		return err
	})
	require.NoError(t, err)

	err = catalog.DeleteTicketType(ctx, typeID)
	assert.ErrorIs(t, err, repository.ErrProtected, "ticket type with tickets must not delete")
}
