package bookingRepo

import (
	"context"
	"errors"

	"schedulebot/models"

	"go.mongodb.org/mongo-driver/mongo"
)

var ErrBookingNotFound = errors.New("booking not found")

type BookingRepository interface {
	Create(ctx context.Context, booking *models.Booking) (string, error)
	GetByEventID(ctx context.Context, eventID string) (*models.Booking, error)
	UpdateByEventID(ctx context.Context, eventID string, booking *models.Booking) error
	DeleteByEventID(ctx context.Context, eventID string) error
}

type mongoBookingRepo struct {
	coll *mongo.Collection
}

// NewMongoBookingRepo returns a BookingRepository backed by the bookings collection.
func NewMongoBookingRepo(db *mongo.Database) BookingRepository {
	return &mongoBookingRepo{coll: db.Collection("bookings")}
}
