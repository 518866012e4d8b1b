package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/besttickets/tickets-go/internal/domain"
	"github.com/besttickets/tickets-go/internal/repository"
	postgresrepo "github.com/besttickets/tickets-go/internal/repository/postgres"
	redisrepo "github.com/besttickets/tickets-go/internal/repository/redis"
)

type Config struct {
	EventSummaryTTL time.Duration
	TicketTypesTTL  time.Duration
	AvailabilityTTL time.Duration
	DefaultPage     int
	MaxPage         int
}

type Service struct {
	store *postgresrepo.Store
	cache *redisrepo.Cache
	cfg   Config
}

func New(store *postgresrepo.Store, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.EventSummaryTTL <= 0 {
		cfg.EventSummaryTTL = 60 * time.Second
	}

	if cfg.TicketTypesTTL <= 0 {
		cfg.TicketTypesTTL = 15 * time.Second
	}

	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = 15 * time.Second
	}

	if cfg.DefaultPage <= 0 {
		cfg.DefaultPage = 100
	}

	if cfg.MaxPage <= 0 {
		cfg.MaxPage = 500
	}

	return &Service{
		store: store,
		cache: cache,
		cfg:   cfg,
	}
}

// GetEvent retrieves an event, optionally with its ticket types embedded.
// The nested projection is a read-side concern; it never changes what the
// reservation path sees.
//
// Parameters:
//   - ctx: request-scoped context.
//   - id: ID of the event to retrieve.
//   - withTicketTypes: when true, the event's ticket types (with derived
//     availability) are embedded in the result.
//
// Returns:
//   - *domain.EventWithTicketTypes: the event, TicketTypes nil unless requested.
//   - error: query.ErrEventNotFound if the event is not found.
func (s *Service) GetEvent(ctx context.Context, id int64, withTicketTypes bool) (*domain.EventWithTicketTypes, error) {
	const op = "service.query.GetEvent"

	key := redisrepo.KeyEventSummary(id)

	event, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.EventSummaryTTL,
		func(ctx context.Context) (domain.Event, error) {
			e, err := s.store.Query().GetEvent(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.Event{}, ErrEventNotFound
				}

				return domain.Event{}, err
			}

			return *e, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := &domain.EventWithTicketTypes{Event: event}

	if withTicketTypes {
		types, err := s.listTicketTypesCached(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		out.TicketTypes = types
	}

	return out, nil
}

// ListEvents lists events, optionally embedding each event's ticket types.
func (s *Service) ListEvents(
	ctx context.Context,
	withTicketTypes bool,
	limit, offset int,
) ([]domain.EventWithTicketTypes, error) {
	const op = "service.query.ListEvents"

	if limit <= 0 {
		limit = s.cfg.DefaultPage
	}

	if limit > s.cfg.MaxPage {
		limit = s.cfg.MaxPage
	}

	events, err := s.store.Query().ListEvents(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]domain.EventWithTicketTypes, 0, len(events))
	for _, e := range events {
		ewt := domain.EventWithTicketTypes{Event: e}

		if withTicketTypes {
			types, err := s.listTicketTypesCached(ctx, e.ID)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}

			ewt.TicketTypes = types
		}

		out = append(out, ewt)
	}

	return out, nil
}

// ListTicketTypes lists the ticket types of an event with their derived
// availability.
//
// Returns:
//   - []domain.TicketTypeAvailability: the event's ticket types.
//   - error: query.ErrEventNotFound if the event is not found.
func (s *Service) ListTicketTypes(ctx context.Context, eventID int64) ([]domain.TicketTypeAvailability, error) {
	const op = "service.query.ListTicketTypes"

	if _, err := s.GetEvent(ctx, eventID, false); err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrEventNotFound)
	}

	types, err := s.listTicketTypesCached(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return types, nil
}

// GetTicketType retrieves one ticket type with its derived availability.
//
// Returns:
//   - *domain.TicketTypeAvailability: the ticket type when found.
//   - error: query.ErrTicketTypeNotFound if the ticket type is not found.
func (s *Service) GetTicketType(ctx context.Context, id int64) (*domain.TicketTypeAvailability, error) {
	const op = "service.query.GetTicketType"

	key := redisrepo.KeyTicketTypeAvailability(id)

	tta, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.AvailabilityTTL,
		func(ctx context.Context) (domain.TicketTypeAvailability, error) {
			t, err := s.store.Query().GetTicketType(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.TicketTypeAvailability{}, ErrTicketTypeNotFound
				}

				return domain.TicketTypeAvailability{}, err
			}

			return *t, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &tta, nil
}

// GetOrderWithTickets retrieves an order along with its materialized tickets.
//
// Returns:
//   - *domain.OrderWithTickets: the order with its tickets, or nil if not found.
//   - error: query.ErrOrderNotFound if the order is not found.
func (s *Service) GetOrderWithTickets(ctx context.Context, orderID int64) (*domain.OrderWithTickets, error) {
	const op = "service.query.GetOrderWithTickets"

	order, err := s.store.Query().GetOrderWithTickets(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrOrderNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return order, nil
}

func (s *Service) listTicketTypesCached(ctx context.Context, eventID int64) ([]domain.TicketTypeAvailability, error) {
	key := redisrepo.KeyEventTicketTypes(eventID)

	return redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.TicketTypesTTL,
		func(ctx context.Context) ([]domain.TicketTypeAvailability, error) {
			return s.store.Query().ListTicketTypes(ctx, eventID)
		},
	)
}
