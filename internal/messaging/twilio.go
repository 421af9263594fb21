// Package messaging sends WhatsApp messages through Twilio and verifies its webhooks.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/reelbot/internal/resilience"
	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	twapi "github.com/twilio/twilio-go/rest/api/v2010"
)

const whatsappPrefix = "whatsapp:"

// ErrDisabled is returned by Disabled.Send.
var ErrDisabled = errors.New("messaging disabled")

// Sender delivers chat messages to a user. mediaURL may be empty.
type Sender interface {
	Send(ctx context.Context, to, body, mediaURL string) error
}

// messageCreator is the subset of the Twilio REST API used here.
type messageCreator interface {
	CreateMessage(params *twapi.CreateMessageParams) (*twapi.ApiV2010Message, error)
}

// Twilio sends WhatsApp messages from a fixed number.
type Twilio struct {
	api  messageCreator
	from string
	exec *resilience.Executor[struct{}]
}

// NewTwilio creates a WhatsApp sender.
func NewTwilio(accountSID, authToken, fromNumber string) *Twilio {
	rc := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return newTwilio(rc.Api, fromNumber)
}

func newTwilio(api messageCreator, from string) *Twilio {
	return &Twilio{
		api:  api,
		from: Address(from),
		exec: resilience.New[struct{}](resilience.Config{
			MaxRetries:  2,
			BaseDelay:   time.Second,
			MaxDelay:    5 * time.Second,
			ShouldRetry: isRetryable,
		}),
	}
}

// Send implements Sender.
func (t *Twilio) Send(ctx context.Context, to, body, mediaURL string) error {
	params := &twapi.CreateMessageParams{}
	params.SetFrom(t.from)
	params.SetTo(Address(to))
	if body != "" {
		params.SetBody(body)
	}
	if mediaURL != "" {
		params.SetMediaUrl([]string{mediaURL})
	}

	_, err := t.exec.Run(ctx, func(ctx context.Context) (struct{}, error) {
		if err := ctx.Err(); err != nil {
			return struct{}{}, err
		}
		_, err := t.api.CreateMessage(params)
		return struct{}{}, err
	})
	if err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}
	slog.Debug("Message accepted by Twilio", "user_id", UserID(to), "media", mediaURL != "")
	return nil
}

// isRetryable skips retries for 4xx rejections.
func isRetryable(err error) bool {
	var restErr *twclient.TwilioRestError
	if errors.As(err, &restErr) {
		return restErr.Status >= 500 || restErr.Status == 429
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Address returns number in "whatsapp:+..." form.
func Address(number string) string {
	number = strings.TrimSpace(number)
	if strings.HasPrefix(number, whatsappPrefix) {
		return number
	}
	return whatsappPrefix + number
}

// UserID strips the channel prefix from a Twilio address.
func UserID(address string) string {
	return strings.TrimPrefix(strings.TrimSpace(address), whatsappPrefix)
}

// Disabled is used when Twilio credentials are absent. Messages are logged and dropped.
type Disabled struct{}

// Send implements Sender.
func (Disabled) Send(_ context.Context, to, body, mediaURL string) error {
	slog.Warn("Dropping chat message, Twilio not configured", "user_id", UserID(to), "body", body, "media_url", mediaURL)
	return ErrDisabled
}
