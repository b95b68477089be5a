package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"schedulebot/models"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GoogleCredentials are the service-account fields usually shipped as env vars.
type GoogleCredentials struct {
	ProjectID    string
	PrivateKeyID string
	PrivateKey   string
	ClientEmail  string
	ClientID     string
}

// JSON renders the credentials as a service-account key file.
func (c GoogleCredentials) JSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"type":           "service_account",
		"project_id":     c.ProjectID,
		"private_key_id": c.PrivateKeyID,
		// Env files usually carry the PEM with escaped newlines.
		"private_key":  strings.ReplaceAll(c.PrivateKey, `\n`, "\n"),
		"client_email": c.ClientEmail,
		"client_id":    c.ClientID,
		"auth_uri":     "https://accounts.google.com/o/oauth2/auth",
		"token_uri":    "https://oauth2.googleapis.com/token",
	})
}

// GoogleGateway books into a Google Calendar through a service account.
type GoogleGateway struct {
	svc        *gcal.Service
	calendarID string
	loc        *time.Location
}

func NewGoogleGateway(ctx context.Context, calendarID string, creds GoogleCredentials, loc *time.Location) (*GoogleGateway, error) {
	raw, err := creds.JSON()
	if err != nil {
		return nil, fmt.Errorf("encode google credentials: %w", err)
	}
	svc, err := gcal.NewService(ctx,
		option.WithCredentialsJSON(raw),
		option.WithScopes(gcal.CalendarScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return &GoogleGateway{svc: svc, calendarID: calendarID, loc: loc}, nil
}

func (g *GoogleGateway) QueryBusy(ctx context.Context, start, end time.Time) ([]models.Interval, error) {
	req := &gcal.FreeBusyRequest{
		TimeMin:  start.Format(time.RFC3339),
		TimeMax:  end.Format(time.RFC3339),
		TimeZone: g.loc.String(),
		Items:    []*gcal.FreeBusyRequestItem{{Id: g.calendarID}},
	}
	resp, err := g.svc.Freebusy.Query(req).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	cal, ok := resp.Calendars[g.calendarID]
	if !ok {
		return nil, fmt.Errorf("freebusy response has no entry for calendar %q", g.calendarID)
	}
	if len(cal.Errors) > 0 {
		return nil, fmt.Errorf("freebusy %s: %s", g.calendarID, cal.Errors[0].Reason)
	}

	busy := make([]models.Interval, 0, len(cal.Busy))
	for _, p := range cal.Busy {
		s, err := time.Parse(time.RFC3339, p.Start)
		if err != nil {
			return nil, fmt.Errorf("parse busy start %q: %w", p.Start, err)
		}
		e, err := time.Parse(time.RFC3339, p.End)
		if err != nil {
			return nil, fmt.Errorf("parse busy end %q: %w", p.End, err)
		}
		busy = append(busy, models.Interval{Start: s.In(g.loc), End: e.In(g.loc)})
	}
	return busy, nil
}

func (g *GoogleGateway) eventTime(t time.Time) *gcal.EventDateTime {
	return &gcal.EventDateTime{DateTime: t.Format(time.RFC3339), TimeZone: g.loc.String()}
}

func (g *GoogleGateway) CreateEvent(ctx context.Context, slot models.Slot, details EventDetails) (string, error) {
	ev := &gcal.Event{
		Summary:     details.Summary,
		Description: details.Description,
		Start:       g.eventTime(slot.Start),
		End:         g.eventTime(slot.End),
	}
	created, err := g.svc.Events.Insert(g.calendarID, ev).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return created.Id, nil
}

func (g *GoogleGateway) PatchEvent(ctx context.Context, eventID string, patch EventPatch) error {
	ev := &gcal.Event{}
	if patch.Summary != nil {
		ev.Summary = *patch.Summary
	}
	if patch.Description != nil {
		ev.Description = *patch.Description
	}
	if patch.Slot != nil {
		ev.Start = g.eventTime(patch.Slot.Start)
		ev.End = g.eventTime(patch.Slot.End)
	}
	_, err := g.svc.Events.Patch(g.calendarID, eventID, ev).Context(ctx).Do()
	return notFound(err)
}

func (g *GoogleGateway) DeleteEvent(ctx context.Context, eventID string) error {
	return notFound(g.svc.Events.Delete(g.calendarID, eventID).Context(ctx).Do())
}

func notFound(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone) {
		return ErrEventNotFound
	}
	return err
}
