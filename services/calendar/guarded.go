package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"schedulebot/models"
	"schedulebot/utils"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// GuardedGateway bounds every call to the wrapped gateway with a timeout and a
// circuit breaker, records metrics and turns failures into *GatewayError.
type GuardedGateway struct {
	next    Gateway
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  *zap.Logger
}

func NewGuardedGateway(next Gateway, timeout time.Duration, maxFailures uint32, logger *zap.Logger) *GuardedGateway {
	settings := gobreaker.Settings{
		Name:        "calendar",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrEventNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Calendar breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &GuardedGateway{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
		timeout: timeout,
		logger:  logger,
	}
}

func (g *GuardedGateway) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	started := time.Now()
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	utils.CalendarLatency.WithLabelValues(op).Observe(float64(time.Since(started).Milliseconds()))

	switch {
	case err == nil:
		utils.CalendarCallsTotal.WithLabelValues(op, "ok").Inc()
		return nil
	case errors.Is(err, ErrEventNotFound):
		utils.CalendarCallsTotal.WithLabelValues(op, "not_found").Inc()
		return &GatewayError{Op: op, Err: ErrEventNotFound}
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		utils.CalendarCallsTotal.WithLabelValues(op, "rejected").Inc()
	default:
		utils.CalendarCallsTotal.WithLabelValues(op, "error").Inc()
		g.logger.Error("Calendar call failed", zap.String("op", op), zap.Error(err))
	}
	return &GatewayError{Op: op, Err: fmt.Errorf("%w: %w", ErrUnavailable, err)}
}

func (g *GuardedGateway) QueryBusy(ctx context.Context, start, end time.Time) ([]models.Interval, error) {
	var busy []models.Interval
	err := g.call(ctx, OpQueryBusy, func(ctx context.Context) error {
		var err error
		busy, err = g.next.QueryBusy(ctx, start, end)
		return err
	})
	return busy, err
}

func (g *GuardedGateway) CreateEvent(ctx context.Context, slot models.Slot, details EventDetails) (string, error) {
	var id string
	err := g.call(ctx, OpCreateEvent, func(ctx context.Context) error {
		var err error
		id, err = g.next.CreateEvent(ctx, slot, details)
		return err
	})
	return id, err
}

func (g *GuardedGateway) PatchEvent(ctx context.Context, eventID string, patch EventPatch) error {
	return g.call(ctx, OpPatchEvent, func(ctx context.Context) error {
		return g.next.PatchEvent(ctx, eventID, patch)
	})
}

func (g *GuardedGateway) DeleteEvent(ctx context.Context, eventID string) error {
	return g.call(ctx, OpDeleteEvent, func(ctx context.Context) error {
		return g.next.DeleteEvent(ctx, eventID)
	})
}
