package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

// Sender delivers a text message to a channel address such as "whatsapp:+34600000000".
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// TwilioSender sends messages through the Twilio REST API.
type TwilioSender struct {
	client *twilio.RestClient
	from   string
	logger *zap.Logger
}

func NewTwilioSender(accountSID, authToken, from string, logger *zap.Logger) (*TwilioSender, error) {
	if accountSID == "" || authToken == "" || from == "" {
		return nil, errors.New("notification service initialization error: twilio credentials or sender number missing")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{client: client, from: from, logger: logger}, nil
}

func (s *TwilioSender) Send(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio send to %s: %w", to, err)
	}
	if resp.Sid != nil {
		s.logger.Info("Message sent", zap.String("to", to), zap.String("sid", *resp.Sid))
	}
	return nil
}

// LogSender only logs messages. It stands in when Twilio is not configured.
type LogSender struct {
	Logger *zap.Logger
}

func (s LogSender) Send(_ context.Context, to, body string) error {
	s.Logger.Info("Outbound message (not sent)", zap.String("to", to), zap.String("body", body))
	return nil
}
