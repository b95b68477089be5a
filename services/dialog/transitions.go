package dialog

import (
	"context"
	"errors"

	"schedulebot/models"
	"schedulebot/services/calendar"

	"go.uber.org/zap"
)

// inputClass is what a state makes of the raw text.
type inputClass string

const (
	inputInvalid inputClass = "invalid"
	// inputText is free text accepted by the state's parser.
	inputText inputClass = "text"
)

// transition performs the side effects of a valid input and returns the next state.
type transition func(ctx context.Context, m *Machine, t *turn) models.DialogState

// stateSpec is one row of the transition table. Menu states list their
// options; free-text states provide a parser. Every accepted input class has
// an entry in on; anything else goes to reject.
type stateSpec struct {
	options []string
	parse   func(m *Machine, t *turn) error
	on      map[inputClass]transition
	reject  func(m *Machine, t *turn, reason error) models.DialogState
}

// inputs lists the input classes the state accepts.
func (s stateSpec) inputs() []inputClass {
	if s.parse != nil {
		return []inputClass{inputText}
	}
	out := make([]inputClass, len(s.options))
	for i, o := range s.options {
		out[i] = inputClass(o)
	}
	return out
}

func (s stateSpec) classify(m *Machine, t *turn) (inputClass, error) {
	if s.parse != nil {
		if err := s.parse(m, t); err != nil {
			return inputInvalid, err
		}
		return inputText, nil
	}
	for _, o := range s.options {
		if t.text == o {
			return inputClass(o), nil
		}
	}
	return inputInvalid, nil
}

func buildTable() map[models.DialogState]stateSpec {
	return map[models.DialogState]stateSpec{
		models.StateIdle: {
			options: []string{"1", "2", "3"},
			on: map[inputClass]transition{
				"1": startBooking,
				"2": showInfo,
				"3": showCalculator,
			},
			reject: rejectIdle,
		},
		models.StateDatePick: {
			options: []string{"1", "2", "3", "4", "5"},
			on: map[inputClass]transition{
				"1": chooseSlot(0),
				"2": chooseSlot(1),
				"3": chooseSlot(2),
				"4": askForDate,
				"5": backToMenu,
			},
		},
		models.StateDateFreeform: {
			parse: parseDate,
			on:    map[inputClass]transition{inputText: offerFromDate},
		},
		models.StateWaitingName: {
			parse: parseField(validateName, func(d *models.PartialBooking, v string) { d.Name = v }),
			on:    map[inputClass]transition{inputText: advance(models.StateWaitingEmail)},
		},
		models.StateWaitingEmail: {
			parse: parseField(validateEmail, func(d *models.PartialBooking, v string) { d.Email = v }),
			on:    map[inputClass]transition{inputText: advance(models.StateWaitingAddress)},
		},
		models.StateWaitingAddress: {
			parse: parseField(validateAddress, func(d *models.PartialBooking, v string) { d.Address = v }),
			on:    map[inputClass]transition{inputText: advance(models.StateWaitingDescription)},
		},
		models.StateWaitingDescription: {
			parse: parseField(validateDescription, func(d *models.PartialBooking, v string) { d.Description = v }),
			on:    map[inputClass]transition{inputText: advance(models.StateWaitingConfirmation)},
		},
		models.StateWaitingConfirmation: {
			options: []string{"1", "2", "3"},
			on: map[inputClass]transition{
				"1": submitBooking,
				"2": editDetails,
				"3": cancelBooking,
			},
		},
	}
}

// rejectDefault keeps the state, explains the problem and shows the state's
// prompt again.
func rejectDefault(m *Machine, t *turn, reason error) models.DialogState {
	state := t.session.State
	if reason != nil {
		t.reply.Add(reason.Error())
	} else {
		t.reply.Add(msgInvalidOption)
	}
	t.reply.Add(m.render(state, t.session.Data)...)
	return state
}

// rejectIdle only shows the menu the first time; later misses get a notice too.
func rejectIdle(m *Machine, t *turn, _ error) models.DialogState {
	t.session.Data.InvalidAttempts++
	if t.session.Data.InvalidAttempts > 1 {
		t.reply.Add(msgInvalidOption)
	}
	t.reply.Add(m.prompts.Menu())
	return models.StateIdle
}

func startBooking(ctx context.Context, m *Machine, t *turn) models.DialogState {
	tomorrow := m.today().AddDate(0, 0, 1)
	return m.offer(ctx, t, tomorrow, models.PeriodAny)
}

func showInfo(_ context.Context, m *Machine, t *turn) models.DialogState {
	t.session.Reset()
	t.reply.Add(m.prompts.Info())
	return models.StateIdle
}

func showCalculator(_ context.Context, m *Machine, t *turn) models.DialogState {
	t.session.Reset()
	t.reply.Add(m.prompts.Calculator())
	return models.StateIdle
}

func chooseSlot(i int) transition {
	return func(_ context.Context, m *Machine, t *turn) models.DialogState {
		offered := t.session.Data.OfferedSlots
		if len(offered) < 3 {
			m.logger.Info("Slot choice without a full offer", zap.String("user", t.userKey), zap.Int("offered", len(offered)))
			t.session.Reset()
			t.reply.Add(msgNotEnoughSlots, m.prompts.Menu())
			return models.StateIdle
		}
		slot, err := m.slot(offered[i])
		if err != nil {
			m.logger.Error("Stored slot is unreadable", zap.String("user", t.userKey), zap.Error(err))
			t.session.Reset()
			t.reply.Add(msgNotEnoughSlots, m.prompts.Menu())
			return models.StateIdle
		}
		t.session.Data = models.PartialBooking{ChosenSlot: slot.Key()}
		t.reply.Add(m.prompts.Chosen(slot))
		return m.enter(t, models.StateWaitingName)
	}
}

func askForDate(_ context.Context, m *Machine, t *turn) models.DialogState {
	t.session.Data = models.PartialBooking{}
	return m.enter(t, models.StateDateFreeform)
}

func backToMenu(_ context.Context, m *Machine, t *turn) models.DialogState {
	t.session.Reset()
	return m.enter(t, models.StateIdle)
}

func parseDate(m *Machine, t *turn) error {
	date, period, err := parseDateRequest(t.text, m.slots.Location())
	if err != nil {
		return err
	}
	if err := checkHorizon(date, m.today(), m.horizonDays, m.prompts); err != nil {
		return err
	}
	t.date, t.period = date, period
	return nil
}

func offerFromDate(ctx context.Context, m *Machine, t *turn) models.DialogState {
	return m.offer(ctx, t, t.date, t.period)
}

// parseField validates free text and stores it into the partial booking.
func parseField(validate func(string) (string, error), set func(*models.PartialBooking, string)) func(*Machine, *turn) error {
	return func(_ *Machine, t *turn) error {
		v, err := validate(t.text)
		if err != nil {
			return err
		}
		set(&t.session.Data, v)
		return nil
	}
}

func advance(next models.DialogState) transition {
	return func(_ context.Context, m *Machine, t *turn) models.DialogState {
		return m.enter(t, next)
	}
}

func submitBooking(ctx context.Context, m *Machine, t *turn) models.DialogState {
	req, err := t.session.Data.Complete(t.userKey, m.slots.SlotDuration(), m.slots.Location())
	t.session.Reset()
	if err != nil {
		m.logger.Error("Confirmation with incomplete booking", zap.String("user", t.userKey), zap.Error(err))
		t.reply.Add(msgBookingFailed, m.prompts.Menu())
		return models.StateIdle
	}

	booking, err := m.bookings.Submit(ctx, req)
	switch {
	case err == nil:
		t.reply.Add(m.prompts.Confirmed(booking))
	case errors.Is(err, calendar.ErrSlotTaken):
		m.logger.Info("Slot taken before confirmation", zap.String("user", t.userKey), zap.String("slot", req.Slot.Key()))
		t.reply.Add(msgSlotTaken, m.prompts.Menu())
	default:
		m.logger.Error("Booking submission failed", zap.String("user", t.userKey), zap.Error(err))
		t.reply.Add(msgUnavailable)
	}
	return models.StateIdle
}

func editDetails(_ context.Context, m *Machine, t *turn) models.DialogState {
	t.session.Data = models.PartialBooking{ChosenSlot: t.session.Data.ChosenSlot}
	t.reply.Add(msgEditDetails)
	return m.enter(t, models.StateWaitingName)
}

func cancelBooking(_ context.Context, m *Machine, t *turn) models.DialogState {
	t.session.Reset()
	t.reply.Add(msgCancelled)
	return m.enter(t, models.StateIdle)
}
