package dialog

import (
	"context"
	"fmt"
	"strings"
	"time"

	sessionRepo "schedulebot/database/repository/session"
	"schedulebot/models"
	"schedulebot/utils"

	"go.uber.org/zap"
)

// SlotOfferer supplies the appointment suggestions shown to users.
type SlotOfferer interface {
	OfferSlots(ctx context.Context, userKey string, from time.Time, period models.Period) ([]models.Slot, error)
	SlotDuration() time.Duration
	Location() *time.Location
}

// BookingSubmitter turns a confirmed request into a reservation.
type BookingSubmitter interface {
	Submit(ctx context.Context, req models.BookingRequest) (*models.Booking, error)
}

type Options struct {
	BusinessName       string
	CalculatorURL      string
	ResetWords         []string
	BookingHorizonDays int
	LookaheadDays      int
}

// Machine drives the booking conversation. Messages from the same user are
// handled one at a time; different users proceed in parallel.
type Machine struct {
	store       sessionRepo.SessionStore
	slots       SlotOfferer
	bookings    BookingSubmitter
	locks       *utils.KeyedMutex
	prompts     Prompts
	resetWords  map[string]struct{}
	horizonDays int
	table       map[models.DialogState]stateSpec
	now         func() time.Time
	logger      *zap.Logger
}

func NewMachine(store sessionRepo.SessionStore, slots SlotOfferer, bookings BookingSubmitter, opts Options, logger *zap.Logger) *Machine {
	words := make(map[string]struct{}, len(opts.ResetWords))
	for _, w := range opts.ResetWords {
		words[normalize(w)] = struct{}{}
	}
	return &Machine{
		store:    store,
		slots:    slots,
		bookings: bookings,
		locks:    utils.NewKeyedMutex(),
		prompts: Prompts{
			BusinessName:  opts.BusinessName,
			CalculatorURL: opts.CalculatorURL,
			HorizonDays:   opts.BookingHorizonDays,
			LookaheadDays: opts.LookaheadDays,
		},
		resetWords:  words,
		horizonDays: opts.BookingHorizonDays,
		table:       buildTable(),
		now:         time.Now,
		logger:      logger,
	}
}

// WithClock replaces the time source, for tests.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

// turn is the working state of one inbound message.
type turn struct {
	userKey string
	text    string
	session *models.Session
	reply   *models.Reply

	// Set by the DATE_FREEFORM parser.
	date   time.Time
	period models.Period
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func (m *Machine) isReset(text string) bool {
	_, ok := m.resetWords[normalize(text)]
	return ok
}

// Handle processes one inbound message and returns the messages to send back.
// The session is saved only once every side effect of the turn has finished.
// A returned error means the session could not be loaded or saved; the reply
// still carries a message for the user.
func (m *Machine) Handle(ctx context.Context, msg models.InboundMessage) (models.Reply, error) {
	reply := models.Reply{}
	unlock, err := m.locks.LockContext(ctx, msg.UserKey)
	if err != nil {
		reply.State = models.StateIdle
		reply.Add(msgUnavailable)
		return reply, fmt.Errorf("wait for session lock: %w", err)
	}
	defer unlock()

	session, err := m.store.Load(ctx, msg.UserKey)
	if err != nil {
		m.logger.Error("Failed to load session", zap.String("user", msg.UserKey), zap.Error(err))
		reply.State = models.StateIdle
		reply.Add(msgUnavailable)
		return reply, fmt.Errorf("load session: %w", err)
	}

	from := session.State
	utils.MessagesTotal.WithLabelValues(string(from)).Inc()
	t := &turn{
		userKey: msg.UserKey,
		text:    strings.TrimSpace(msg.Text),
		session: session,
		reply:   &reply,
	}

	var next models.DialogState
	if m.isReset(t.text) {
		session.Reset()
		next = m.enter(t, models.StateIdle)
	} else {
		next = m.step(ctx, t)
	}
	session.State = next

	if next != from {
		utils.TransitionsTotal.WithLabelValues(string(from), string(next)).Inc()
		m.logger.Debug("Dialog transition", zap.String("user", msg.UserKey), zap.String("state", string(from)), zap.String("next", string(next)))
	}
	reply.State = next

	if err := m.store.Save(ctx, msg.UserKey, session); err != nil {
		m.logger.Error("Failed to save session", zap.String("user", msg.UserKey), zap.Error(err))
		return reply, fmt.Errorf("save session: %w", err)
	}
	return reply, nil
}

func (m *Machine) step(ctx context.Context, t *turn) models.DialogState {
	spec, ok := m.table[t.session.State]
	if !ok {
		m.logger.Warn("Session in unknown state, resetting", zap.String("user", t.userKey), zap.String("state", string(t.session.State)))
		t.session.Reset()
		return m.enter(t, models.StateIdle)
	}

	class, reason := spec.classify(m, t)
	if class == inputInvalid {
		m.logger.Debug("Input rejected", zap.String("user", t.userKey), zap.String("state", string(t.session.State)), zap.NamedError("reason", reason))
		if spec.reject != nil {
			return spec.reject(m, t, reason)
		}
		return rejectDefault(m, t, reason)
	}
	return spec.on[class](ctx, m, t)
}

// enter shows the prompt of state and returns it as the next state.
func (m *Machine) enter(t *turn, state models.DialogState) models.DialogState {
	t.reply.Add(m.render(state, t.session.Data)...)
	return state
}

// render produces the prompt of a state from the session data alone, so the
// same text is shown on entry and after a rejected input.
func (m *Machine) render(state models.DialogState, data models.PartialBooking) []string {
	switch state {
	case models.StateDatePick:
		slots := make([]models.Slot, 0, len(data.OfferedSlots))
		for _, key := range data.OfferedSlots {
			if s, err := m.slot(key); err == nil {
				slots = append(slots, s)
			}
		}
		return []string{m.prompts.SlotMenu(slots)}
	case models.StateDateFreeform:
		return []string{m.prompts.DatePrompt()}
	case models.StateWaitingName:
		return []string{m.prompts.NamePrompt()}
	case models.StateWaitingEmail:
		return []string{m.prompts.EmailPrompt()}
	case models.StateWaitingAddress:
		return []string{m.prompts.AddressPrompt()}
	case models.StateWaitingDescription:
		return []string{m.prompts.DescriptionPrompt()}
	case models.StateWaitingConfirmation:
		when := data.ChosenSlot
		if s, err := m.slot(data.ChosenSlot); err == nil {
			when = s.Describe()
		}
		return []string{m.prompts.Summary(when, data)}
	default:
		return []string{m.prompts.Menu()}
	}
}

// offer fetches suggestions from the given date and moves to DATE_PICK. A
// calendar failure abandons the booking.
func (m *Machine) offer(ctx context.Context, t *turn, from time.Time, period models.Period) models.DialogState {
	slots, err := m.slots.OfferSlots(ctx, t.userKey, from, period)
	if err != nil {
		m.logger.Error("Failed to fetch slots", zap.String("user", t.userKey), zap.Error(err))
		t.session.Reset()
		t.reply.Add(msgUnavailable)
		return models.StateIdle
	}
	keys := make([]string, len(slots))
	for i, s := range slots {
		keys[i] = s.Key()
	}
	t.session.Data = models.PartialBooking{OfferedSlots: keys}
	return m.enter(t, models.StateDatePick)
}

func (m *Machine) slot(key string) (models.Slot, error) {
	return models.ParseSlotKey(key, m.slots.SlotDuration(), m.slots.Location())
}

// today is midnight of the current date in the business zone.
func (m *Machine) today() time.Time {
	y, mo, d := m.now().In(m.slots.Location()).Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, m.slots.Location())
}
