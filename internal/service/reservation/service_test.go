package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/besttickets/tickets-go/internal/domain"
	"github.com/besttickets/tickets-go/internal/repository"
)

// fakeInventory is an in-memory Inventory. WithTx holds the mutex for the
// whole callback, which serializes transactions the same way the row lock
// does in Postgres, and restores a snapshot on error so rollbacks are real.
type fakeInventory struct {
	mu     sync.Mutex
	types  map[int64]domain.TicketType
	counts map[int64]int
	orders map[int64]*domain.Order

	nextOrderID int64

	failCreateOrder bool
	failUpdateTotal bool
}

func newFakeInventory(types ...domain.TicketType) *fakeInventory {
	inv := &fakeInventory{
		types:  make(map[int64]domain.TicketType),
		counts: make(map[int64]int),
		orders: make(map[int64]*domain.Order),
	}
	for _, tt := range types {
		inv.types[tt.ID] = tt
	}
	return inv
}

func (f *fakeInventory) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	countsBefore := make(map[int64]int, len(f.counts))
	for k, v := range f.counts {
		countsBefore[k] = v
	}
	ordersBefore := make(map[int64]*domain.Order, len(f.orders))
	for k, v := range f.orders {
		cp := *v
		ordersBefore[k] = &cp
	}
	nextBefore := f.nextOrderID

	if err := fn(ctx); err != nil {
		f.counts = countsBefore
		f.orders = ordersBefore
		f.nextOrderID = nextBefore
		return err
	}
	return nil
}

func (f *fakeInventory) LockTicketType(ctx context.Context, id int64) (*domain.TicketType, error) {
	tt, ok := f.types[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := tt
	return &cp, nil
}

func (f *fakeInventory) CountTickets(ctx context.Context, typeID int64) (int, error) {
	return f.counts[typeID], nil
}

func (f *fakeInventory) CreateOrder(ctx context.Context) (*domain.Order, error) {
	if f.failCreateOrder {
		return nil, errors.New("connection reset by peer")
	}
	f.nextOrderID++
	now := time.Now()
	o := &domain.Order{
		ID:        f.nextOrderID,
		CreatedAt: now,
		ExpiredAt: now.Add(15 * time.Minute),
		Total:     decimal.Zero,
	}
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeInventory) CreateTickets(ctx context.Context, typeID, orderID int64, n int) ([]int64, error) {
	tt, ok := f.types[typeID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		if f.counts[typeID] >= tt.Qty {
			return nil, repository.ErrCapacityExceeded
		}
		f.counts[typeID]++
		ids = append(ids, int64(f.counts[typeID]))
	}
	return ids, nil
}

func (f *fakeInventory) UpdateOrderTotal(ctx context.Context, orderID int64, total decimal.Decimal) error {
	if f.failUpdateTotal {
		return errors.New("connection reset by peer")
	}
	o, ok := f.orders[orderID]
	if !ok {
		return repository.ErrNotFound
	}
	o.Total = total
	return nil
}

func (f *fakeInventory) ticketCount(typeID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[typeID]
}

func (f *fakeInventory) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func newTestService(inv *fakeInventory) *Service {
	return New(inv, nil, nil, nil, nil, Config{})
}

func generalType(id int64, price string, qty int) domain.TicketType {
	return domain.TicketType{
		ID:       id,
		EventID:  1,
		Category: "General",
		Price:    decimal.RequireFromString(price),
		Qty:      qty,
	}
}

func TestReserveEmptyCart(t *testing.T) {
	s := newTestService(newFakeInventory())

	_, err := s.Reserve(context.Background(), nil, "")
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestReserveUnknownTicketType(t *testing.T) {
	inv := newFakeInventory(generalType(1, "10.00", 5))
	s := newTestService(inv)

	_, err := s.Reserve(context.Background(), []domain.CartLine{
		{TicketTypeID: 1, Quantity: 2},
		{TicketTypeID: 42, Quantity: 1},
	}, "")

	var unknown *UnknownTicketTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, int64(42), unknown.TicketTypeID)

	assert.Equal(t, 0, inv.ticketCount(1), "rejected cart must not consume inventory")
	assert.Equal(t, 0, inv.orderCount(), "rejected cart must not create an order")
}

func TestReserveInsufficientInventory(t *testing.T) {
	inv := newFakeInventory(generalType(1, "10.00", 3))
	s := newTestService(inv)

	_, err := s.Reserve(context.Background(), []domain.CartLine{
		{TicketTypeID: 1, Quantity: 5},
	}, "")

	var insufficient *InsufficientInventoryError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(1), insufficient.TicketTypeID)
	assert.Equal(t, 5, insufficient.Requested)
	assert.Equal(t, 3, insufficient.Available)

	assert.Equal(t, 0, inv.ticketCount(1))
	assert.Equal(t, 0, inv.orderCount())
}

func TestReserveRejectsNonPositiveQuantity(t *testing.T) {
	inv := newFakeInventory(generalType(1, "10.00", 3))
	s := newTestService(inv)

	for _, qty := range []int{0, -1} {
		_, err := s.Reserve(context.Background(), []domain.CartLine{
			{TicketTypeID: 1, Quantity: qty},
		}, "")

		var insufficient *InsufficientInventoryError
		require.ErrorAs(t, err, &insufficient)
		assert.Equal(t, int64(1), insufficient.TicketTypeID)
	}
	assert.Equal(t, 0, inv.orderCount())
}

func TestReserveMultiLineAtomicity(t *testing.T) {
	inv := newFakeInventory(
		generalType(1, "10.00", 10),
		generalType(2, "25.00", 1),
	)
	s := newTestService(inv)

	_, err := s.Reserve(context.Background(), []domain.CartLine{
		{TicketTypeID: 1, Quantity: 4},
		{TicketTypeID: 2, Quantity: 3},
	}, "")

	var insufficient *InsufficientInventoryError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(2), insufficient.TicketTypeID)

	assert.Equal(t, 0, inv.ticketCount(1), "no partial reservation may survive")
	assert.Equal(t, 0, inv.ticketCount(2))
	assert.Equal(t, 0, inv.orderCount())
}

func TestReserveComputesExactTotal(t *testing.T) {
	inv := newFakeInventory(
		generalType(1, "12.34", 10),
		generalType(2, "0.10", 10),
	)
	s := newTestService(inv)

	order, err := s.Reserve(context.Background(), []domain.CartLine{
		{TicketTypeID: 1, Quantity: 3},
		{TicketTypeID: 2, Quantity: 7},
	}, "")
	require.NoError(t, err)

	// 3*12.34 + 7*0.10 = 37.72, exactly.
	assert.True(t, order.Total.Equal(decimal.RequireFromString("37.72")),
		"got total %s", order.Total)
	assert.Equal(t, 3, inv.ticketCount(1))
	assert.Equal(t, 7, inv.ticketCount(2))
}

func TestReserveStampsExpiry(t *testing.T) {
	inv := newFakeInventory(generalType(1, "10.00", 5))
	s := newTestService(inv)

	order, err := s.Reserve(context.Background(), []domain.CartLine{
		{TicketTypeID: 1, Quantity: 1},
	}, "")
	require.NoError(t, err)

	assert.True(t, order.ExpiredAt.Equal(order.CreatedAt.Add(15*time.Minute)),
		"expiry must be created_at + 15m, got created=%s expired=%s", order.CreatedAt, order.ExpiredAt)
}

func TestReserveDuplicateLinesCompose(t *testing.T) {
	inv := newFakeInventory(generalType(1, "10.00", 10))
	s := newTestService(inv)

	order, err := s.Reserve(context.Background(), []domain.CartLine{
		{TicketTypeID: 1, Quantity: 4},
		{TicketTypeID: 1, Quantity: 4},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, 8, inv.ticketCount(1))
	assert.True(t, order.Total.Equal(decimal.RequireFromString("80.00")))

	_, err = s.Reserve(context.Background(), []domain.CartLine{
		{TicketTypeID: 1, Quantity: 1},
		{TicketTypeID: 1, Quantity: 2},
	}, "")
	var insufficient *InsufficientInventoryError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 2, insufficient.Available)
	assert.Equal(t, 8, inv.ticketCount(1), "failed composite cart must not consume inventory")
}

func TestReserveSequentialExhaustion(t *testing.T) {
	inv := newFakeInventory(generalType(1, "10.00", 10))
	s := newTestService(inv)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := s.Reserve(ctx, []domain.CartLine{{TicketTypeID: 1, Quantity: 4}}, "")
		require.NoError(t, err)
	}

	_, err := s.Reserve(ctx, []domain.CartLine{{TicketTypeID: 1, Quantity: 3}}, "")
	var insufficient *InsufficientInventoryError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 3, insufficient.Requested)
	assert.Equal(t, 2, insufficient.Available)

	_, err = s.Reserve(ctx, []domain.CartLine{{TicketTypeID: 1, Quantity: 2}}, "")
	require.NoError(t, err)
	assert.Equal(t, 10, inv.ticketCount(1))
}

func TestReserveConcurrentLastUnits(t *testing.T) {
	inv := newFakeInventory(generalType(1, "10.00", 3))
	s := newTestService(inv)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Reserve(context.Background(), []domain.CartLine{
				{TicketTypeID: 1, Quantity: 2},
			}, "")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var insufficient *InsufficientInventoryError
		assert.ErrorAs(t, err, &insufficient)
	}
	assert.Equal(t, 1, succeeded, "exactly one buyer gets the last units")
	assert.Equal(t, 2, inv.ticketCount(1))
}

func TestReserveConcurrentNeverOversells(t *testing.T) {
	const (
		capacity = 10
		buyers   = 50
	)
	inv := newFakeInventory(generalType(1, "10.00", capacity))
	s := newTestService(inv)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Reserve(context.Background(), []domain.CartLine{
				{TicketTypeID: 1, Quantity: 1},
			}, "")
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, capacity, succeeded)
	assert.Equal(t, capacity, inv.ticketCount(1), "tickets sold must never exceed capacity")
}

func TestReserveStoreFailurePropagates(t *testing.T) {
	inv := newFakeInventory(generalType(1, "10.00", 5))
	inv.failUpdateTotal = true
	s := newTestService(inv)

	_, err := s.Reserve(context.Background(), []domain.CartLine{
		{TicketTypeID: 1, Quantity: 2},
	}, "")
	require.Error(t, err)

	var unknown *UnknownTicketTypeError
	var insufficient *InsufficientInventoryError
	assert.False(t, errors.As(err, &unknown))
	assert.False(t, errors.As(err, &insufficient))

	assert.Equal(t, 0, inv.ticketCount(1), "failed transaction must roll back")
	assert.Equal(t, 0, inv.orderCount())
}

func TestReserveIsNotIdempotent(t *testing.T) {
	inv := newFakeInventory(generalType(1, "10.00", 10))
	s := newTestService(inv)
	cart := []domain.CartLine{{TicketTypeID: 1, Quantity: 2}}

	first, err := s.Reserve(context.Background(), cart, "")
	require.NoError(t, err)
	second, err := s.Reserve(context.Background(), cart, "")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID, "identical carts make independent orders")
	assert.Equal(t, 4, inv.ticketCount(1))
}
