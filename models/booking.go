package models

import "time"

// BookingRequest is a fully collected booking awaiting submission.
type BookingRequest struct {
	UserKey     string
	Slot        Slot
	Name        string
	Email       string
	Address     string
	Description string
}

// Booking is the record kept after the calendar event has been created.
type Booking struct {
	ID          string    `bson:"_id" json:"id"`
	EventID     string    `bson:"event_id" json:"eventId"`
	UserKey     string    `bson:"user_key" json:"userKey"`
	Start       time.Time `bson:"start" json:"start"`
	End         time.Time `bson:"end" json:"end"`
	Timezone    string    `bson:"timezone" json:"timezone"`
	Name        string    `bson:"name" json:"name"`
	Email       string    `bson:"email" json:"email"`
	Address     string    `bson:"address" json:"address"`
	Description string    `bson:"description" json:"description"`
	Source      string    `bson:"source" json:"source"` // "whatsapp" or "tools"
	CreatedAt   time.Time `bson:"created_at" json:"createdAt"`
}

const (
	BookingSourceChat  = "whatsapp"
	BookingSourceTools = "tools"
)

// ReminderPayload is the body of a queued reminder task.
type ReminderPayload struct {
	BookingID string `json:"bookingId"`
	To        string `json:"to"`
	Body      string `json:"body"`
}
