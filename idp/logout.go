package idp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Revoke revokes a token (RFC 7009). It is skipped when no revocation
// endpoint is configured.
func (c *Client) Revoke(ctx context.Context, token, hint string) error {
	if c.cfg.Endpoints.Revocation == "" || token == "" {
		return nil
	}
	form := url.Values{
		"token":           {token},
		"token_type_hint": {hint},
	}
	return c.postForm(ctx, "revoke", c.cfg.Endpoints.Revocation, form)
}

// EndSession terminates the provider side session of refreshToken.
func (c *Client) EndSession(ctx context.Context, refreshToken string) error {
	if c.cfg.Endpoints.Logout == "" || refreshToken == "" {
		return nil
	}
	form := url.Values{"refresh_token": {refreshToken}}
	err := c.postForm(ctx, "end_session", c.cfg.Endpoints.Logout, form)
	if sessionAlreadyEnded(err) {
		log.Debug().Msg("Provider session already ended")
		return nil
	}
	return err
}

// sessionAlreadyEnded matches the invalid_grant answer a provider gives for a
// refresh token whose session is gone.
func sessionAlreadyEnded(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusBadRequest && strings.Contains(se.Body, "invalid_grant")
}

func (c *Client) postForm(ctx context.Context, op, endpoint string, form url.Values) (err error) {
	start := time.Now()
	defer func() { c.observe(op, start, err) }()
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	form.Set("client_id", c.cfg.ClientID)
	if c.cfg.ClientSecret != "" {
		form.Set("client_secret", c.cfg.ClientSecret)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Err(err).Str("operation", op).Msg("Identity provider call failed")
		return transportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	log.Warn().Str("operation", op).Int("status", resp.StatusCode).Msg("Identity provider rejected request")
	return statusError(op, resp.StatusCode, string(body))
}
