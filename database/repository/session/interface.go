package sessionRepo

import (
	"context"
	"encoding/json"
	"time"

	"schedulebot/models"
)

// SessionStore persists one dialog session per user.
type SessionStore interface {
	// Load returns the stored session, or a fresh IDLE session when none exists.
	Load(ctx context.Context, userKey string) (*models.Session, error)
	Save(ctx context.Context, userKey string, session *models.Session) error
}

// sessionRecord is the stored form shared by every backend. The partial
// booking travels as a JSON document so backends never see its fields.
type sessionRecord struct {
	UserKey   string    `bson:"_id" json:"user"`
	State     string    `bson:"state" json:"state"`
	DataJSON  string    `bson:"data_json" json:"data_json"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

func toRecord(userKey string, s *models.Session, now time.Time) (sessionRecord, error) {
	data, err := json.Marshal(s.Data.ToMap())
	if err != nil {
		return sessionRecord{}, err
	}
	return sessionRecord{
		UserKey:   userKey,
		State:     string(s.State),
		DataJSON:  string(data),
		UpdatedAt: now,
	}, nil
}

// fromRecord rebuilds a session. Records with an unknown state or unreadable
// data fall back to a fresh session.
func fromRecord(r sessionRecord) *models.Session {
	state := models.DialogState(r.State)
	if !state.Valid() {
		return models.NewSession(r.UserKey)
	}
	data := map[string]any{}
	if r.DataJSON != "" {
		if err := json.Unmarshal([]byte(r.DataJSON), &data); err != nil {
			return models.NewSession(r.UserKey)
		}
	}
	return &models.Session{
		UserKey:   r.UserKey,
		State:     state,
		Data:      models.PartialBookingFromMap(data),
		UpdatedAt: r.UpdatedAt,
	}
}
