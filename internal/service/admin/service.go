package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/besttickets/tickets-go/internal/repository"
	postgresrepo "github.com/besttickets/tickets-go/internal/repository/postgres"
	redisrepo "github.com/besttickets/tickets-go/internal/repository/redis"
	"github.com/besttickets/tickets-go/internal/uow"
)

type Service struct {
	store  *postgresrepo.Store
	cache  *redisrepo.Cache
	pubsub *redisrepo.EventsPubSub
	uow    *uow.UoW
}

func New(store *postgresrepo.Store, cache *redisrepo.Cache, pubsub *redisrepo.EventsPubSub) *Service {
	return &Service{
		store:  store,
		cache:  cache,
		pubsub: pubsub,
		uow:    uow.NewUoW(store),
	}
}

// CreateEvent creates an event record and returns its ID.
func (s *Service) CreateEvent(ctx context.Context, name string, dateEvent time.Time) (int64, error) {
	const op = "service.admin.CreateEvent"

	var id int64
	err := s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		var err error
		id, err = s.store.Catalog().With(tx).CreateEvent(ctx, name, dateEvent)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	})

	return id, err
}

// UpdateEvent changes an event's name and occurrence date.
//
// Returns:
//   - error: admin.ErrEventNotFound if the event does not exist.
func (s *Service) UpdateEvent(ctx context.Context, id int64, name string, dateEvent time.Time) error {
	const op = "service.admin.UpdateEvent"

	return s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		if err := s.store.Catalog().With(tx).UpdateEvent(ctx, id, name, dateEvent); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s: %w", op, ErrEventNotFound)
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateEvent(ctx, id)
			_ = s.pubsub.PublishEventChanged(ctx, id)
		})
		return nil
	})
}

// DeleteEvent removes an event. Deletion is refused, not cascaded, while any
// ticket type still references the event.
//
// Returns:
//   - error: admin.ErrEventNotFound if the event does not exist.
//   - error: admin.ErrEventProtected if ticket types reference it.
func (s *Service) DeleteEvent(ctx context.Context, id int64) error {
	const op = "service.admin.DeleteEvent"

	return s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		if err := s.store.Catalog().With(tx).DeleteEvent(ctx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s: %w", op, ErrEventNotFound)
			}
			if errors.Is(err, repository.ErrProtected) {
				return fmt.Errorf("%s: %w", op, ErrEventProtected)
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateEvent(ctx, id)
			_ = s.pubsub.PublishEventChanged(ctx, id)
		})
		return nil
	})
}

// CreateTicketType adds a ticket type to an event. Quantity is the type's
// capacity, fixed for its lifetime.
//
// Returns:
//   - error: admin.ErrEventNotFound if the event does not exist.
func (s *Service) CreateTicketType(
	ctx context.Context,
	eventID int64,
	category string,
	price decimal.Decimal,
	qty int,
) (int64, error) {
	const op = "service.admin.CreateTicketType"

	var id int64
	err := s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		var err error
		id, err = s.store.Catalog().With(tx).CreateTicketType(ctx, eventID, category, price, qty)
		if err != nil {
			// the FK to events is the only constraint this insert can trip
			if errors.Is(err, repository.ErrProtected) {
				return fmt.Errorf("%s: %w", op, ErrEventNotFound)
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateEvent(ctx, eventID)
			_ = s.pubsub.PublishEventChanged(ctx, eventID)
		})
		return nil
	})

	return id, err
}

// UpdateTicketType changes a ticket type's label and price.
//
// Returns:
//   - error: admin.ErrTicketTypeNotFound if the ticket type does not exist.
func (s *Service) UpdateTicketType(
	ctx context.Context,
	id int64,
	category string,
	price decimal.Decimal,
) error {
	const op = "service.admin.UpdateTicketType"

	return s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		if err := s.store.Catalog().With(tx).UpdateTicketType(ctx, id, category, price); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s: %w", op, ErrTicketTypeNotFound)
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateTicketType(ctx, id)
		})
		return nil
	})
}

// DeleteTicketType removes a ticket type. Deletion is refused, not cascaded,
// while any ticket still references the type.
//
// Returns:
//   - error: admin.ErrTicketTypeNotFound if the ticket type does not exist.
//   - error: admin.ErrTicketTypeProtected if tickets reference it.
func (s *Service) DeleteTicketType(ctx context.Context, id int64) error {
	const op = "service.admin.DeleteTicketType"

	return s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		if err := s.store.Catalog().With(tx).DeleteTicketType(ctx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s: %w", op, ErrTicketTypeNotFound)
			}
			if errors.Is(err, repository.ErrProtected) {
				return fmt.Errorf("%s: %w", op, ErrTicketTypeProtected)
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateTicketType(ctx, id)
		})
		return nil
	})
}
