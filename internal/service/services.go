package service

import (
	"github.com/besttickets/tickets-go/internal/monitoring"
	postgres "github.com/besttickets/tickets-go/internal/repository/postgres"
	redis "github.com/besttickets/tickets-go/internal/repository/redis"
	"github.com/besttickets/tickets-go/internal/service/admin"
	"github.com/besttickets/tickets-go/internal/service/orders"
	"github.com/besttickets/tickets-go/internal/service/query"
	"github.com/besttickets/tickets-go/internal/service/reservation"
)

type Services struct {
	Reservation *reservation.Service
	Query       *query.Service
	Admin       *admin.Service
	Orders      *orders.Service
}

type Config struct {
	Reservation reservation.Config
	Query       query.Config
}

func NewServices(
	store *postgres.Store,
	cache *redis.Cache,
	pubsub *redis.EventsPubSub,
	limiter *redis.SlidingWindowLimiter,
	metrics *monitoring.Metrics,
	cfg Config,
) *Services {
	return &Services{
		Reservation: reservation.New(store.Inventory(), cache, pubsub, limiter, metrics, cfg.Reservation),
		Query:       query.New(store, cache, cfg.Query),
		Admin:       admin.New(store, cache, pubsub),
		Orders:      orders.New(store),
	}
}
