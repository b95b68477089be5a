package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"schedulebot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type slowGateway struct {
	*MemoryGateway
	delay time.Duration
}

func (s slowGateway) QueryBusy(ctx context.Context, start, end time.Time) ([]models.Interval, error) {
	select {
	case <-time.After(s.delay):
		return s.MemoryGateway.QueryBusy(ctx, start, end)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestGuardedGatewayWrapsFailures(t *testing.T) {
	mem := NewMemoryGateway()
	mem.FailWith(OpQueryBusy, errors.New("503 backend error"))
	g := NewGuardedGateway(mem, time.Second, 5, zap.NewNop())

	_, err := g.QueryBusy(context.Background(), time.Now(), time.Now().Add(time.Hour))
	require.Error(t, err)

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, OpQueryBusy, gwErr.Op)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGuardedGatewayTimesOut(t *testing.T) {
	g := NewGuardedGateway(slowGateway{MemoryGateway: NewMemoryGateway(), delay: time.Second}, 20*time.Millisecond, 5, zap.NewNop())

	_, err := g.QueryBusy(context.Background(), time.Now(), time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGuardedGatewayOpensBreaker(t *testing.T) {
	mem := NewMemoryGateway()
	mem.FailWith(OpCreateEvent, errors.New("boom"))
	g := NewGuardedGateway(mem, time.Second, 2, zap.NewNop())
	slot := models.NewSlot(time.Now().Add(24*time.Hour), time.Hour)

	for i := 0; i < 2; i++ {
		_, err := g.CreateEvent(context.Background(), slot, EventDetails{})
		require.Error(t, err)
	}

	// The breaker is open now, so even a healthy backend is not called.
	mem.FailWith(OpCreateEvent, nil)
	_, err := g.CreateEvent(context.Background(), slot, EventDetails{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Empty(t, mem.Events())
}

func TestGuardedGatewayNotFoundKeepsBreakerClosed(t *testing.T) {
	g := NewGuardedGateway(NewMemoryGateway(), time.Second, 1, zap.NewNop())

	for i := 0; i < 3; i++ {
		err := g.DeleteEvent(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrEventNotFound)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}
}

func TestMemoryGatewayBusyIncludesEvents(t *testing.T) {
	mem := NewMemoryGateway()
	start := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	id, err := mem.CreateEvent(context.Background(), models.NewSlot(start, time.Hour), EventDetails{Summary: "x"})
	require.NoError(t, err)
	mem.AddBusy(start.Add(2*time.Hour), start.Add(3*time.Hour))

	busy, err := mem.QueryBusy(context.Background(), start.Add(-time.Hour), start.Add(4*time.Hour))
	require.NoError(t, err)
	assert.Len(t, busy, 2)

	// Touching windows do not count as busy.
	busy, err = mem.QueryBusy(context.Background(), start.Add(time.Hour), start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, busy)

	require.NoError(t, mem.DeleteEvent(context.Background(), id))
	assert.ErrorIs(t, mem.DeleteEvent(context.Background(), id), ErrEventNotFound)
}
