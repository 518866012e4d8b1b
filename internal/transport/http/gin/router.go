package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	redisrepo "github.com/besttickets/tickets-go/internal/repository/redis"
	"github.com/besttickets/tickets-go/internal/service"
	"github.com/besttickets/tickets-go/internal/service/admin"
	"github.com/besttickets/tickets-go/internal/service/orders"
	"github.com/besttickets/tickets-go/internal/service/query"
	"github.com/besttickets/tickets-go/internal/service/reservation"
	"github.com/besttickets/tickets-go/internal/domain"
)

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/events", handleListEvents(svcs))
	r.POST("/events", handleCreateEvent(svcs))
	r.GET("/events/:id", handleGetEvent(svcs))
	r.PUT("/events/:id", handleUpdateEvent(svcs))
	r.DELETE("/events/:id", handleDeleteEvent(svcs))

	r.GET("/events/:id/tickets", handleListTicketTypes(svcs))
	r.POST("/events/:id/tickets", handleCreateTicketType(svcs))

	r.GET("/tickets/:id", handleGetTicketType(svcs))
	r.PUT("/tickets/:id", handleUpdateTicketType(svcs))
	r.DELETE("/tickets/:id", handleDeleteTicketType(svcs))

	r.POST("/orders", handleCreateOrder(svcs, idem))
	r.GET("/orders/:id", handleGetOrder(svcs))

	return r
}

func handleListEvents(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, withTickets := c.GetQuery("tickets")
		limit := parseIntDefault(c.Query("limit"), 100)
		offset := parseIntDefault(c.Query("offset"), 0)

		events, err := svcs.Query.ListEvents(c.Request.Context(), withTickets, limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}

		out := make([]EventResponse, 0, len(events))
		for i := range events {
			out = append(out, toEventResponse(&events[i]))
		}
		writeJSONWithCache(c, http.StatusOK, out, "public, max-age=15")
	}
}

func handleCreateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		dateEvent, err := parseRFC3339(req.DateEvent)
		if err != nil {
			badRequest(c, "invalid date_event (RFC3339)")
			return
		}
		id, err := svcs.Admin.CreateEvent(c.Request.Context(), req.Name, dateEvent)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreatedResponse{ID: id})
	}
}

func handleGetEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		_, withTickets := c.GetQuery("tickets")

		e, err := svcs.Query.GetEvent(c.Request.Context(), eventID, withTickets)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, toEventResponse(e), "public, max-age=60")
	}
}

func handleUpdateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req CreateEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		dateEvent, err := parseRFC3339(req.DateEvent)
		if err != nil {
			badRequest(c, "invalid date_event (RFC3339)")
			return
		}
		if err := svcs.Admin.UpdateEvent(c.Request.Context(), eventID, req.Name, dateEvent); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleDeleteEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		if err := svcs.Admin.DeleteEvent(c.Request.Context(), eventID); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleListTicketTypes(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		types, err := svcs.Query.ListTicketTypes(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}

		out := make([]TicketTypeResponse, 0, len(types))
		for _, tt := range types {
			out = append(out, toTicketTypeResponse(tt))
		}
		writeJSONWithCache(c, http.StatusOK, out, "public, max-age=15")
	}
}

func handleCreateTicketType(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		// the event id always comes from the URL, never from the body
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req CreateTicketTypeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		price, err := decimal.NewFromString(req.Price)
		if err != nil || price.IsNegative() {
			badRequest(c, "invalid price")
			return
		}
		id, err := svcs.Admin.CreateTicketType(c.Request.Context(), eventID, req.Category, price, req.Qty)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreatedResponse{ID: id})
	}
}

func handleGetTicketType(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		typeID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		tt, err := svcs.Query.GetTicketType(c.Request.Context(), typeID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, toTicketTypeResponse(*tt), "public, max-age=15")
	}
}

func handleUpdateTicketType(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		typeID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req UpdateTicketTypeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		price, err := decimal.NewFromString(req.Price)
		if err != nil || price.IsNegative() {
			badRequest(c, "invalid price")
			return
		}
		if err := svcs.Admin.UpdateTicketType(c.Request.Context(), typeID, req.Category, price); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleDeleteTicketType(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		typeID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		if err := svcs.Admin.DeleteTicketType(c.Request.Context(), typeID); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleCreateOrder(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req []CartLineRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemOrder(idemKey)

			if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, 60*time.Second)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		cart := make([]domain.CartLine, 0, len(req))
		for _, line := range req {
			cart = append(cart, domain.CartLine{
				TicketTypeID: line.TicketTypeID,
				Quantity:     line.Quantity,
			})
		}

		rlKey := "ip:" + c.ClientIP()

		order, err := svcs.Reservation.Reserve(c.Request.Context(), cart, rlKey)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			if isRateLimitedErr(err) {
				c.Header("Retry-After", "60")
				c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: err.Error()})
				return
			}
			respondErr(c, err)
			return
		}

		resp := toOrderResponse(*order, nil)

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

func handleGetOrder(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		o, err := svcs.Orders.GetOrderWithTickets(c.Request.Context(), orderID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toOrderResponse(o.Order, o.Tickets))
	}
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func isRateLimitedErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "rate limited")
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var unknownType *reservation.UnknownTicketTypeError
	var insufficient *reservation.InsufficientInventoryError

	switch {
	// reservation engine
	case errors.As(err, &unknownType):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:        "unknown ticket type",
			TicketTypeID: unknownType.TicketTypeID,
		})
		return
	case errors.As(err, &insufficient):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:        "insufficient inventory",
			TicketTypeID: insufficient.TicketTypeID,
			Requested:    insufficient.Requested,
			Available:    insufficient.Available,
		})
		return
	case errors.Is(err, reservation.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cart is empty"})
		return
	// admin service
	case errors.Is(err, admin.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
		return
	case errors.Is(err, admin.ErrEventProtected):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "event has ticket types"})
		return
	case errors.Is(err, admin.ErrTicketTypeNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "ticket type not found"})
		return
	case errors.Is(err, admin.ErrTicketTypeProtected):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "ticket type has tickets"})
		return
	// orders service
	case errors.Is(err, orders.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "order not found"})
		return
	// query service
	case errors.Is(err, query.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
		return
	case errors.Is(err, query.ErrTicketTypeNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "ticket type not found"})
		return
	case errors.Is(err, query.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "order not found"})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
