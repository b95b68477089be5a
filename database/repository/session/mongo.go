package sessionRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"schedulebot/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoSessionStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoSessionStore stores sessions in the conversation_state collection,
// keyed by user.
func NewMongoSessionStore(db *mongo.Database) SessionStore {
	return &mongoSessionStore{coll: db.Collection("conversation_state"), now: time.Now}
}

func (s *mongoSessionStore) Load(ctx context.Context, userKey string) (*models.Session, error) {
	var r sessionRecord
	err := s.coll.FindOne(ctx, bson.M{"_id": userKey}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.NewSession(userKey), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return fromRecord(r), nil
}

func (s *mongoSessionStore) Save(ctx context.Context, userKey string, session *models.Session) error {
	r, err := toRecord(userKey, session, s.now())
	if err != nil {
		return err
	}
	_, err = s.coll.ReplaceOne(ctx, bson.M{"_id": userKey}, r, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
