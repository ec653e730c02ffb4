package mfa

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// LogSender writes codes to the log instead of delivering them. Codes are
// only included when RevealCodes is set.
type LogSender struct {
	RevealCodes bool
}

func (s LogSender) Send(_ context.Context, msg Message) error {
	ev := log.Info().
		Str("channel", msg.Channel).
		Str("destination", MaskDestination(msg.Destination)).
		Str("purpose", msg.Purpose).
		Time("expires_at", msg.ExpiresAt)
	if s.RevealCodes {
		ev = ev.Str("code", msg.Code)
	}
	ev.Msg("One-time code issued")
	return nil
}

var _ Sender = (*HTTPSender)(nil)

// HTTPSender posts each code as JSON to a delivery service (a mail or SMS
// relay). Any non-2xx answer is an error, so the challenge is dropped.
type HTTPSender struct {
	url    string
	token  string
	client *http.Client
}

type deliveryRequest struct {
	Channel     string    `json:"channel"`
	Destination string    `json:"destination"`
	Purpose     string    `json:"purpose"`
	Code        string    `json:"code"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// NewHTTPSender returns a sender for endpoint. token, when set, is sent as a
// bearer credential. A nil client gets a 5 second timeout.
func NewHTTPSender(endpoint, token string, client *http.Client) (*HTTPSender, error) {
	if endpoint == "" {
		return nil, errors.New("[mfa.NewHTTPSender] endpoint is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPSender{url: endpoint, token: token, client: client}, nil
}

func (s *HTTPSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(deliveryRequest{
		Channel:     msg.Channel,
		Destination: msg.Destination,
		Purpose:     msg.Purpose,
		Code:        msg.Code,
		ExpiresAt:   msg.ExpiresAt,
	})
	if err != nil {
		return errors.Wrap(err, "[HTTPSender.Send] encode message")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "[HTTPSender.Send] build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "[HTTPSender.Send] post code")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("[HTTPSender.Send] delivery service answered %d", resp.StatusCode)
	}
	log.Debug().
		Str("channel", msg.Channel).
		Str("destination", MaskDestination(msg.Destination)).
		Msg("One-time code handed to delivery service")
	return nil
}

// MaskDestination keeps the first character and the domain of an email
// address, or the last four characters of anything else.
func MaskDestination(d string) string {
	if at := strings.IndexByte(d, '@'); at > 0 {
		return d[:1] + strings.Repeat("*", at-1) + d[at:]
	}
	if len(d) <= 4 {
		return strings.Repeat("*", len(d))
	}
	return strings.Repeat("*", len(d)-4) + d[len(d)-4:]
}
