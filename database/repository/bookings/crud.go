package bookingRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"schedulebot/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the lookup indexes used by the queries below.
func EnsureIndexes(ctx context.Context, repo BookingRepository) error {
	r, ok := repo.(*mongoBookingRepo)
	if !ok {
		return nil
	}
	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "event_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "start", Value: 1}}},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create booking indexes: %w", err)
	}
	return nil
}

// Create inserts a booking and returns its ID.
func (r *mongoBookingRepo) Create(ctx context.Context, booking *models.Booking) (string, error) {
	if booking.ID == "" {
		booking.ID = uuid.New().String()
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now()
	}
	if _, err := r.coll.InsertOne(ctx, booking); err != nil {
		return "", err
	}
	return booking.ID, nil
}

func (r *mongoBookingRepo) GetByEventID(ctx context.Context, eventID string) (*models.Booking, error) {
	var booking models.Booking
	err := r.coll.FindOne(ctx, bson.M{"event_id": eventID}).Decode(&booking)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *mongoBookingRepo) UpdateByEventID(ctx context.Context, eventID string, booking *models.Booking) error {
	update := bson.M{"$set": bson.M{
		"start":       booking.Start,
		"end":         booking.End,
		"timezone":    booking.Timezone,
		"name":        booking.Name,
		"email":       booking.Email,
		"address":     booking.Address,
		"description": booking.Description,
	}}
	res, err := r.coll.UpdateOne(ctx, bson.M{"event_id": eventID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrBookingNotFound
	}
	return nil
}

func (r *mongoBookingRepo) DeleteByEventID(ctx context.Context, eventID string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"event_id": eventID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrBookingNotFound
	}
	return nil
}
