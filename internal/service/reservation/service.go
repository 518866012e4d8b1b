package reservation

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/besttickets/tickets-go/internal/domain"
	"github.com/besttickets/tickets-go/internal/monitoring"
	"github.com/besttickets/tickets-go/internal/repository"
	postgresrepo "github.com/besttickets/tickets-go/internal/repository/postgres"
	redisrepo "github.com/besttickets/tickets-go/internal/repository/redis"
)

// Inventory is the transactional store the engine reserves against. The
// postgres implementation carries the open transaction in the context; a
// nested call from inside WithTx joins it.
type Inventory interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	LockTicketType(ctx context.Context, id int64) (*domain.TicketType, error)
	CountTickets(ctx context.Context, typeID int64) (int, error)
	CreateOrder(ctx context.Context) (*domain.Order, error)
	CreateTickets(ctx context.Context, typeID, orderID int64, n int) ([]int64, error)
	UpdateOrderTotal(ctx context.Context, orderID int64, total decimal.Decimal) error
}

type Config struct {
	// MaxConflictRetries bounds internal retries on detected serialization
	// conflicts. Capacity rejections are never retried.
	MaxConflictRetries int
}

type Service struct {
	inv     Inventory
	cache   *redisrepo.Cache
	pubsub  *redisrepo.EventsPubSub
	limiter *redisrepo.SlidingWindowLimiter
	metrics *monitoring.Metrics
	cfg     Config
}

func New(
	inv Inventory,
	cache *redisrepo.Cache,
	pubsub *redisrepo.EventsPubSub,
	limiter *redisrepo.SlidingWindowLimiter,
	metrics *monitoring.Metrics,
	cfg Config,
) *Service {
	if cfg.MaxConflictRetries <= 0 {
		cfg.MaxConflictRetries = 3
	}

	return &Service{
		inv:     inv,
		cache:   cache,
		pubsub:  pubsub,
		limiter: limiter,
		metrics: metrics,
		cfg:     cfg,
	}
}

// Reserve turns a validated cart into an order with one ticket row per
// purchased unit, atomically. Either the whole cart is reserved or nothing
// is persisted.
//
// Cart lines are processed independently; duplicate ticket types compose.
// The distinct ticket types are locked in ascending id order so overlapping
// carts cannot deadlock, counts are read under the lock, and every ticket
// insert re-checks capacity at write time. Two calls with the same cart make
// two orders; there is no deduplication here.
//
// Parameters:
//   - ctx: request-scoped context.
//   - cart: ordered cart lines (ticket type id, quantity >= 1).
//   - rlKey: rate-limit bucket key; empty disables rate limiting.
//
// Returns:
//   - *domain.Order: the created order with its computed total.
//   - error: *UnknownTicketTypeError if a line references a missing type.
//   - error: *InsufficientInventoryError if demand exceeds remaining capacity.
func (s *Service) Reserve(ctx context.Context, cart []domain.CartLine, rlKey string) (*domain.Order, error) {
	const op = "service.reservation.Reserve"

	stop := s.metrics.ObserveReservation()
	defer stop()

	if len(cart) == 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrEmptyCart)
	}

	for _, line := range cart {
		if line.Quantity < 1 {
			s.metrics.ReservationRejected("insufficient_inventory")
			return nil, fmt.Errorf("%s:%w", op, &InsufficientInventoryError{
				TicketTypeID: line.TicketTypeID,
				Requested:    line.Quantity,
			})
		}
	}

	if s.limiter != nil && rlKey != "" {
		ok, _, retry, err := s.limiter.Allow(ctx, rlKey)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		if !ok {
			return nil, fmt.Errorf("%s: rate limited, retry in %s", op, retry)
		}
	}

	var (
		order    *domain.Order
		eventIDs []int64
		err      error
	)

	for attempt := 0; attempt < s.cfg.MaxConflictRetries; attempt++ {
		order, eventIDs, err = s.reserveOnce(ctx, cart)
		if err == nil || !postgresrepo.IsRetryable(err) {
			break
		}
	}
	if err != nil {
		if isRejection(err) {
			s.metrics.ReservationRejected(rejectionReason(err))
		} else {
			s.metrics.ReservationFailed()
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	units := 0
	for _, line := range cart {
		units += line.Quantity
	}
	s.metrics.ReservationCommitted(units)

	for _, eventID := range eventIDs {
		if s.cache != nil {
			_ = s.cache.InvalidateEvent(ctx, eventID)
		}
		if s.pubsub != nil {
			_ = s.pubsub.PublishEventChanged(ctx, eventID)
		}
	}

	return order, nil
}

func (s *Service) reserveOnce(ctx context.Context, cart []domain.CartLine) (*domain.Order, []int64, error) {
	var (
		order    *domain.Order
		eventIDs []int64
	)

	err := s.inv.WithTx(ctx, func(ctx context.Context) error {
		types := make(map[int64]*domain.TicketType)
		for _, id := range distinctTypeIDs(cart) {
			tt, err := s.inv.LockTicketType(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return &UnknownTicketTypeError{TicketTypeID: id}
				}
				return err
			}
			types[id] = tt
		}

		counts := make(map[int64]int, len(types))
		for id := range types {
			n, err := s.inv.CountTickets(ctx, id)
			if err != nil {
				return err
			}
			counts[id] = n
		}

		// Validate every line against the running in-tx count so duplicate
		// lines for the same type compose instead of double-counting.
		for _, line := range cart {
			tt := types[line.TicketTypeID]
			available := tt.Qty - counts[line.TicketTypeID]
			if line.Quantity > available {
				return &InsufficientInventoryError{
					TicketTypeID: line.TicketTypeID,
					Requested:    line.Quantity,
					Available:    available,
				}
			}
			counts[line.TicketTypeID] += line.Quantity
		}

		o, err := s.inv.CreateOrder(ctx)
		if err != nil {
			return err
		}

		total := decimal.Zero
		for _, line := range cart {
			tt := types[line.TicketTypeID]

			if _, err := s.inv.CreateTickets(ctx, line.TicketTypeID, o.ID, line.Quantity); err != nil {
				if errors.Is(err, repository.ErrCapacityExceeded) {
					return &InsufficientInventoryError{
						TicketTypeID: line.TicketTypeID,
						Requested:    line.Quantity,
						Available:    tt.Qty - counts[line.TicketTypeID],
					}
				}
				return err
			}

			total = total.Add(tt.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}

		if err := s.inv.UpdateOrderTotal(ctx, o.ID, total); err != nil {
			return err
		}

		o.Total = total
		order = o

		seen := make(map[int64]bool, len(types))
		for _, tt := range types {
			if !seen[tt.EventID] {
				seen[tt.EventID] = true
				eventIDs = append(eventIDs, tt.EventID)
			}
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return order, eventIDs, nil
}

func distinctTypeIDs(cart []domain.CartLine) []int64 {
	seen := make(map[int64]bool, len(cart))
	ids := make([]int64, 0, len(cart))

	for _, line := range cart {
		if !seen[line.TicketTypeID] {
			seen[line.TicketTypeID] = true
			ids = append(ids, line.TicketTypeID)
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

func isRejection(err error) bool {
	var unknown *UnknownTicketTypeError
	var insufficient *InsufficientInventoryError

	return errors.As(err, &unknown) || errors.As(err, &insufficient)
}

func rejectionReason(err error) string {
	var unknown *UnknownTicketTypeError
	if errors.As(err, &unknown) {
		return "unknown_ticket_type"
	}
	return "insufficient_inventory"
}
