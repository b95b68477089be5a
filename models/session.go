package models

import (
	"errors"
	"strings"
	"time"
)

// DialogState is the conversation step a user is in.
type DialogState string

const (
	StateIdle                DialogState = "IDLE"
	StateDatePick            DialogState = "DATE_PICK"
	StateDateFreeform        DialogState = "DATE_FREEFORM"
	StateWaitingName         DialogState = "WAITING_NAME"
	StateWaitingEmail        DialogState = "WAITING_EMAIL"
	StateWaitingAddress      DialogState = "WAITING_ADDRESS"
	StateWaitingDescription  DialogState = "WAITING_DESCRIPTION"
	StateWaitingConfirmation DialogState = "WAITING_CONFIRMATION"
)

// AllStates lists every dialog state in flow order.
var AllStates = []DialogState{
	StateIdle,
	StateDatePick,
	StateDateFreeform,
	StateWaitingName,
	StateWaitingEmail,
	StateWaitingAddress,
	StateWaitingDescription,
	StateWaitingConfirmation,
}

func (s DialogState) Valid() bool {
	for _, st := range AllStates {
		if st == s {
			return true
		}
	}
	return false
}

// Keys used when PartialBooking crosses the persistence boundary.
const (
	DataKeySlots           = "slots"
	DataKeyChosenSlot      = "chosen_slot"
	DataKeyName            = "name"
	DataKeyEmail           = "email"
	DataKeyAddress         = "address"
	DataKeyDescription     = "description"
	DataKeyInvalidAttempts = "invalid_attempts"
)

var ErrIncompleteBooking = errors.New("booking data is incomplete")

// PartialBooking accumulates what the user has told us so far.
type PartialBooking struct {
	OfferedSlots    []string
	ChosenSlot      string
	Name            string
	Email           string
	Address         string
	Description     string
	InvalidAttempts int
}

// ToMap flattens the booking into the generic form the session stores persist.
// Empty fields are omitted.
func (p PartialBooking) ToMap() map[string]any {
	m := make(map[string]any)
	if len(p.OfferedSlots) > 0 {
		slots := make([]any, len(p.OfferedSlots))
		for i, s := range p.OfferedSlots {
			slots[i] = s
		}
		m[DataKeySlots] = slots
	}
	putString(m, DataKeyChosenSlot, p.ChosenSlot)
	putString(m, DataKeyName, p.Name)
	putString(m, DataKeyEmail, p.Email)
	putString(m, DataKeyAddress, p.Address)
	putString(m, DataKeyDescription, p.Description)
	if p.InvalidAttempts > 0 {
		m[DataKeyInvalidAttempts] = p.InvalidAttempts
	}
	return m
}

func putString(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

// PartialBookingFromMap is the inverse of ToMap. It tolerates the loose types
// produced by JSON decoding and ignores keys it does not know.
func PartialBookingFromMap(m map[string]any) PartialBooking {
	var p PartialBooking
	switch slots := m[DataKeySlots].(type) {
	case []string:
		p.OfferedSlots = append(p.OfferedSlots, slots...)
	case []any:
		for _, s := range slots {
			if str, ok := s.(string); ok {
				p.OfferedSlots = append(p.OfferedSlots, str)
			}
		}
	}
	p.ChosenSlot, _ = m[DataKeyChosenSlot].(string)
	p.Name, _ = m[DataKeyName].(string)
	p.Email, _ = m[DataKeyEmail].(string)
	p.Address, _ = m[DataKeyAddress].(string)
	p.Description, _ = m[DataKeyDescription].(string)
	switch n := m[DataKeyInvalidAttempts].(type) {
	case int:
		p.InvalidAttempts = n
	case int64:
		p.InvalidAttempts = int(n)
	case float64:
		p.InvalidAttempts = int(n)
	}
	return p
}

// Complete turns the partial booking into a request, failing when any field is missing.
func (p PartialBooking) Complete(userKey string, d time.Duration, loc *time.Location) (BookingRequest, error) {
	if p.ChosenSlot == "" || p.Name == "" || p.Email == "" || p.Address == "" || p.Description == "" {
		return BookingRequest{}, ErrIncompleteBooking
	}
	slot, err := ParseSlotKey(p.ChosenSlot, d, loc)
	if err != nil {
		return BookingRequest{}, err
	}
	return BookingRequest{
		UserKey:     userKey,
		Slot:        slot,
		Name:        p.Name,
		Email:       p.Email,
		Address:     p.Address,
		Description: p.Description,
	}, nil
}

// Session is the persisted conversation record of one user.
type Session struct {
	UserKey   string
	State     DialogState
	Data      PartialBooking
	UpdatedAt time.Time
}

// NewSession returns the session a user without stored history starts from.
func NewSession(userKey string) *Session {
	return &Session{UserKey: userKey, State: StateIdle}
}

// Reset returns the session to IDLE and drops any partial booking.
func (s *Session) Reset() {
	s.State = StateIdle
	s.Data = PartialBooking{}
}

// UserKeyFromAddress normalises a channel address such as "whatsapp:+34600000000".
func UserKeyFromAddress(addr string) string {
	return strings.TrimSpace(addr)
}
