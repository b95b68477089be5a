package dialog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sessionRepo "schedulebot/database/repository/session"
	"schedulebot/models"
	"schedulebot/services/availability"
	"schedulebot/services/booking"
	"schedulebot/services/calendar"
	"schedulebot/services/rotation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const user = "whatsapp:+34600000001"

type harness struct {
	t       *testing.T
	loc     *time.Location
	gateway *calendar.MemoryGateway
	store   *sessionRepo.MemorySessionStore
	machine *Machine
}

func tr(sh, eh int) models.TimeRange {
	return models.TimeRange{Start: models.ClockTime{Hour: sh}, End: models.ClockTime{Hour: eh}}
}

// newHarness wires the real engine and booking service over an in-memory
// calendar, with the clock frozen on Monday 19 October 2026 at 09:10.
func newHarness(t *testing.T) *harness {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)
	now := time.Date(2026, 10, 19, 9, 10, 0, 0, loc)
	clock := func() time.Time { return now }

	hours := calendar.NewBusinessCalendar(map[time.Weekday][]models.TimeRange{
		time.Monday:    {tr(8, 12)},
		time.Tuesday:   {tr(14, 17)},
		time.Wednesday: {tr(8, 12), tr(14, 17)},
		time.Thursday:  {tr(8, 12)},
	}, models.ClockTime{Hour: 12}, loc)
	gw := calendar.NewMemoryGateway()
	engine := availability.NewEngine(hours, gw, rotation.NewInProcessMemory(10*time.Minute).WithClock(clock), availability.Settings{
		SlotDuration:     time.Hour,
		Grid:             30 * time.Minute,
		MaxLookaheadDays: 14,
		OfferSize:        3,
	}, zap.NewNop()).WithClock(clock)
	bookings := booking.NewService(engine, gw, nil, nil, "Reformas Ebenezer", zap.NewNop())
	store := sessionRepo.NewMemorySessionStore()

	m := NewMachine(store, engine, bookings, Options{
		BusinessName:       "Reformas Ebenezer",
		CalculatorURL:      "https://example.com/calc",
		ResetWords:         []string{"0", "menu", "menú", "principal", "menu principal", "menú principal"},
		BookingHorizonDays: 90,
		LookaheadDays:      14,
	}, zap.NewNop()).WithClock(clock)

	return &harness{t: t, loc: loc, gateway: gw, store: store, machine: m}
}

func (h *harness) send(text string) models.Reply {
	h.t.Helper()
	reply, err := h.machine.Handle(context.Background(), models.InboundMessage{UserKey: user, Text: text})
	require.NoError(h.t, err)
	require.NotEmpty(h.t, reply.Messages, "every input gets an answer")
	return reply
}

func (h *harness) session() *models.Session {
	h.t.Helper()
	s, err := h.store.Load(context.Background(), user)
	require.NoError(h.t, err)
	return s
}

func (h *harness) put(state models.DialogState, data models.PartialBooking) {
	h.t.Helper()
	require.NoError(h.t, h.store.Save(context.Background(), user, &models.Session{UserKey: user, State: state, Data: data}))
}

func (h *harness) key(day, hour int) string {
	return time.Date(2026, 10, day, hour, 0, 0, 0, h.loc).Format(time.RFC3339)
}

func joined(r models.Reply) string {
	return strings.Join(r.Messages, "\n")
}

// toConfirmation walks the happy path up to WAITING_CONFIRMATION.
func (h *harness) toConfirmation() {
	h.t.Helper()
	h.send("1")
	h.send("2")
	h.send("Ana García")
	h.send("ana@example.com")
	h.send("Calle Mayor 1, Madrid")
	reply := h.send("New bathroom tiles")
	require.Equal(h.t, models.StateWaitingConfirmation, reply.State)
}

func TestScenarioOfferThreeSlots(t *testing.T) {
	h := newHarness(t)
	reply := h.send("1")

	assert.Equal(t, models.StateDatePick, reply.State)
	text := joined(reply)
	assert.Contains(t, text, "1) Tuesday 20 October 2026 at 14:00")
	assert.Contains(t, text, "2) Tuesday 20 October 2026 at 15:00")
	assert.Contains(t, text, "3) Tuesday 20 October 2026 at 16:00")
	assert.NotContains(t, text, "4)")
	assert.Contains(t, text, menuOptionOther)
	assert.Contains(t, text, menuOptionMainMenu)

	s := h.session()
	assert.Equal(t, models.StateDatePick, s.State)
	assert.Len(t, s.Data.OfferedSlots, 3)
}

func TestScenarioRepeatedOfferRotates(t *testing.T) {
	h := newHarness(t)
	first := h.send("1")
	h.send("5")
	second := h.send("1")

	assert.Contains(t, joined(first), "Tuesday 20 October 2026 at 14:00")
	assert.NotContains(t, joined(second), "Tuesday 20 October 2026 at 14:00")
	assert.Contains(t, joined(second), "Wednesday 21 October 2026 at 08:00")
}

func TestScenarioPickSecondSlot(t *testing.T) {
	h := newHarness(t)
	h.send("1")
	reply := h.send("2")

	assert.Equal(t, models.StateWaitingName, reply.State)
	assert.Contains(t, joined(reply), "Tuesday 20 October 2026 at 15:00")
	s := h.session()
	assert.Equal(t, h.key(20, 15), s.Data.ChosenSlot)
	assert.Empty(t, s.Data.OfferedSlots, "other offered slots are discarded")
}

func TestScenarioInvalidEmail(t *testing.T) {
	h := newHarness(t)
	h.put(models.StateWaitingEmail, models.PartialBooking{ChosenSlot: h.key(20, 15), Name: "Ana García"})

	reply := h.send("not-an-email")
	assert.Equal(t, models.StateWaitingEmail, reply.State)
	assert.Equal(t, []string{msgBadEmail, h.machine.prompts.EmailPrompt()}, reply.Messages)
	s := h.session()
	assert.Equal(t, models.StateWaitingEmail, s.State)
	assert.Empty(t, s.Data.Email)
	assert.Equal(t, "Ana García", s.Data.Name)
}

func TestScenarioSlotTakenAtConfirmation(t *testing.T) {
	h := newHarness(t)
	h.toConfirmation()
	chosen := h.session().Data.ChosenSlot

	start, err := time.Parse(time.RFC3339, chosen)
	require.NoError(t, err)
	h.gateway.AddBusy(start, start.Add(time.Hour))

	reply := h.send("1")
	assert.Equal(t, models.StateIdle, reply.State)
	assert.Contains(t, joined(reply), msgSlotTaken)
	assert.Empty(t, h.gateway.Events())
	s := h.session()
	assert.Equal(t, models.StateIdle, s.State)
	assert.Equal(t, models.PartialBooking{}, s.Data)
}

func TestScenarioResetFromAnyState(t *testing.T) {
	for _, state := range models.AllStates {
		if state == models.StateIdle {
			continue
		}
		t.Run(string(state), func(t *testing.T) {
			h := newHarness(t)
			h.put(state, models.PartialBooking{ChosenSlot: h.key(20, 15), Name: "Ana García", OfferedSlots: []string{h.key(20, 14)}})

			reply := h.send("  Menú   Principal ")
			assert.Equal(t, models.StateIdle, reply.State)
			assert.Equal(t, []string{h.machine.prompts.Menu()}, reply.Messages)
			s := h.session()
			assert.Equal(t, models.StateIdle, s.State)
			assert.Equal(t, models.PartialBooking{}, s.Data)
		})
	}
}

func TestConfirmCreatesBooking(t *testing.T) {
	h := newHarness(t)
	h.toConfirmation()

	reply := h.send("1")
	assert.Equal(t, models.StateIdle, reply.State)
	assert.Contains(t, joined(reply), "Your appointment is booked for Tuesday 20 October 2026 at 15:00")

	events := h.gateway.Events()
	require.Len(t, events, 1)
	assert.Equal(t, h.key(20, 15), events[0].Slot.Key())
	assert.Equal(t, models.PartialBooking{}, h.session().Data)
}

func TestConfirmationSummaryAndEdit(t *testing.T) {
	h := newHarness(t)
	h.send("1")
	h.send("3")
	h.send("Ana García")
	h.send("ANA@Example.com")
	h.send("Calle Mayor 1")
	reply := h.send("Kitchen")

	summary := joined(reply)
	for _, want := range []string{"Tuesday 20 October 2026 at 16:00", "Ana García", "ana@example.com", "Calle Mayor 1", "Kitchen"} {
		assert.Contains(t, summary, want)
	}

	reply = h.send("2")
	assert.Equal(t, models.StateWaitingName, reply.State)
	assert.Equal(t, models.PartialBooking{ChosenSlot: h.key(20, 16)}, h.session().Data)

	h.send("Ana G")
	h.send("ana@example.com")
	h.send("Calle Mayor 2")
	h.send("Kitchen")
	reply = h.send("3")
	assert.Equal(t, models.StateIdle, reply.State)
	assert.Contains(t, joined(reply), msgCancelled)
	assert.Empty(t, h.gateway.Events())
}

func TestIdleInvalidInput(t *testing.T) {
	h := newHarness(t)

	first := h.send("hello")
	assert.Equal(t, []string{h.machine.prompts.Menu()}, first.Messages)

	second := h.send("9")
	assert.Equal(t, []string{msgInvalidOption, h.machine.prompts.Menu()}, second.Messages)
	assert.Equal(t, models.StateIdle, h.session().State)

	// A valid choice clears the counter.
	h.send("2")
	third := h.send("what?")
	assert.Equal(t, []string{h.machine.prompts.Menu()}, third.Messages)
}

func TestIdleInfoAndCalculator(t *testing.T) {
	h := newHarness(t)

	reply := h.send("2")
	assert.Equal(t, models.StateIdle, reply.State)
	assert.Contains(t, joined(reply), "Reformas Ebenezer")

	reply = h.send("3")
	assert.Equal(t, models.StateIdle, reply.State)
	assert.Contains(t, joined(reply), "https://example.com/calc")
}

func TestInvalidInputKeepsState(t *testing.T) {
	cases := []struct {
		state models.DialogState
		text  string
	}{
		{models.StateDatePick, "6"},
		{models.StateDatePick, "tomorrow"},
		{models.StateDateFreeform, "next tuesday"},
		{models.StateDateFreeform, "31-02-2027"},
		{models.StateDateFreeform, "21-10-2026 evening"},
		{models.StateDateFreeform, "18-10-2026"},
		{models.StateDateFreeform, "18-01-2027"},
		{models.StateWaitingName, "Al"},
		{models.StateWaitingName, strings.Repeat("a", 61)},
		{models.StateWaitingEmail, "ana@example"},
		{models.StateWaitingAddress, strings.Repeat("x", 121)},
		{models.StateWaitingDescription, strings.Repeat("x", 301)},
		{models.StateWaitingConfirmation, "yes"},
	}
	for _, tc := range cases {
		t.Run(string(tc.state)+"/"+tc.text, func(t *testing.T) {
			h := newHarness(t)
			data := models.PartialBooking{
				OfferedSlots: []string{h.key(20, 14), h.key(20, 15), h.key(20, 16)},
				ChosenSlot:   h.key(20, 15),
				Name:         "Ana García",
				Email:        "ana@example.com",
				Address:      "Calle Mayor 1",
				Description:  "Kitchen",
			}
			h.put(tc.state, data)

			reply := h.send(tc.text)
			assert.Equal(t, tc.state, reply.State)
			s := h.session()
			assert.Equal(t, tc.state, s.State)
			assert.Equal(t, data, s.Data)

			// The state's prompt is shown again after the rejection.
			assert.Equal(t, h.machine.render(tc.state, data), reply.Messages[len(reply.Messages)-1:])
			assert.Empty(t, h.gateway.Queries(), "rejected input never reaches the calendar")
		})
	}
}

func TestDatePickWithTooFewSlots(t *testing.T) {
	h := newHarness(t)
	h.put(models.StateDatePick, models.PartialBooking{OfferedSlots: []string{h.key(20, 14), h.key(20, 15)}})

	reply := h.send("1")
	assert.Equal(t, models.StateIdle, reply.State)
	assert.Equal(t, msgNotEnoughSlots, reply.Messages[0])
	assert.Equal(t, models.PartialBooking{}, h.session().Data)
}

func TestDatePickOtherDate(t *testing.T) {
	h := newHarness(t)
	h.send("1")

	reply := h.send("4")
	assert.Equal(t, models.StateDateFreeform, reply.State)
	assert.Equal(t, []string{h.machine.prompts.DatePrompt()}, reply.Messages)

	reply = h.send("21/10/2026 afternoon")
	assert.Equal(t, models.StateDatePick, reply.State)
	text := joined(reply)
	assert.Contains(t, text, "1) Wednesday 21 October 2026 at 14:00")
	assert.Contains(t, text, "3) Wednesday 21 October 2026 at 16:00")
	assert.NotContains(t, text, "08:00")
}

func TestFreeformTodayIsAccepted(t *testing.T) {
	h := newHarness(t)
	h.put(models.StateDateFreeform, models.PartialBooking{})

	reply := h.send("19-10-2026")
	assert.Equal(t, models.StateDatePick, reply.State)
	assert.Contains(t, joined(reply), "1) Monday 19 October 2026 at 09:30")
}

func TestCalendarFailureResetsToIdle(t *testing.T) {
	h := newHarness(t)
	h.gateway.FailWith(calendar.OpQueryBusy, errors.New("timeout"))

	reply := h.send("1")
	assert.Equal(t, models.StateIdle, reply.State)
	assert.Equal(t, []string{msgUnavailable}, reply.Messages)
	assert.Equal(t, models.StateIdle, h.session().State)
}

func TestCalendarFailureAtConfirmation(t *testing.T) {
	h := newHarness(t)
	h.toConfirmation()
	h.gateway.FailWith(calendar.OpCreateEvent, errors.New("500"))

	reply := h.send("1")
	assert.Equal(t, models.StateIdle, reply.State)
	assert.Equal(t, []string{msgUnavailable}, reply.Messages)
	assert.Equal(t, models.PartialBooking{}, h.session().Data)
}

type failingStore struct{ sessionRepo.SessionStore }

func (failingStore) Load(context.Context, string) (*models.Session, error) {
	return nil, errors.New("redis: connection refused")
}

func TestStoreFailure(t *testing.T) {
	h := newHarness(t)
	h.machine.store = failingStore{}

	reply, err := h.machine.Handle(context.Background(), models.InboundMessage{UserKey: user, Text: "1"})
	assert.Error(t, err)
	assert.Equal(t, []string{msgUnavailable}, reply.Messages)
	assert.Empty(t, h.gateway.Queries())
}

// overlapStore records how many turns hold a session between Load and Save.
type overlapStore struct {
	sessionRepo.SessionStore
	active, peak int32
}

func (s *overlapStore) Load(ctx context.Context, userKey string) (*models.Session, error) {
	n := atomic.AddInt32(&s.active, 1)
	for {
		p := atomic.LoadInt32(&s.peak)
		if n <= p || atomic.CompareAndSwapInt32(&s.peak, p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	return s.SessionStore.Load(ctx, userKey)
}

func (s *overlapStore) Save(ctx context.Context, userKey string, session *models.Session) error {
	defer atomic.AddInt32(&s.active, -1)
	return s.SessionStore.Save(ctx, userKey, session)
}

func TestConcurrentMessagesForOneUserAreSerialised(t *testing.T) {
	h := newHarness(t)
	store := &overlapStore{SessionStore: h.store}
	h.machine.store = store

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for _, text := range []string{"1", "0", "1", "0"} {
		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			_, err := h.machine.Handle(context.Background(), models.InboundMessage{UserKey: user, Text: text})
			errs <- err
		}(text)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&store.peak))
	assert.Equal(t, 0, h.machine.locks.Len())
}

func TestCancelledRequestStopsWaitingForSession(t *testing.T) {
	h := newHarness(t)
	unlock := h.machine.locks.Lock(user)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	reply, err := h.machine.Handle(ctx, models.InboundMessage{UserKey: user, Text: "1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{msgUnavailable}, reply.Messages)
	assert.Empty(t, h.gateway.Queries())
}
