package mfa

import (
	"context"
	"encoding/base64"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/pkg/errors"
)

// PasskeyIssued is what a browser needs to run navigator.credentials.get.
type PasskeyIssued struct {
	ChallengeID string `json:"challengeId"`
	Challenge   string `json:"challenge"`
	RPID        string `json:"rpId"`
	TimeoutMs   int64  `json:"timeoutMs"`
}

// IssuePasskey creates a WebAuthn assertion challenge for subject.
func (s *Service) IssuePasskey(ctx context.Context, subject string) (*PasskeyIssued, error) {
	if s.verifier == nil {
		return nil, errors.New("[Service.IssuePasskey] passkeys are not enabled")
	}
	nonce, err := protocol.CreateChallenge()
	if err != nil {
		return nil, errors.Wrap(err, "[Service.IssuePasskey] create challenge")
	}
	now := s.nowTime()
	c := &Challenge{
		ID:        NewID(now),
		Kind:      KindPasskey,
		Factor:    FactorPasskey,
		Subject:   subject,
		Nonce:     base64.RawURLEncoding.EncodeToString(nonce),
		RPID:      s.cfg.RPID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.PasskeyTimeout),
	}
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return &PasskeyIssued{
		ChallengeID: c.ID,
		Challenge:   c.Nonce,
		RPID:        c.RPID,
		TimeoutMs:   s.cfg.PasskeyTimeout.Milliseconds(),
	}, nil
}

// VerifyPasskey checks an assertion against a challenge owned by subject and
// consumes the challenge whatever the outcome.
func (s *Service) VerifyPasskey(ctx context.Context, challengeID, subject, assertion string) (*Challenge, error) {
	c, err := s.Lookup(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if c.Kind != KindPasskey || c.Subject != subject || s.verifier == nil {
		return nil, ErrChallengeNotFound
	}
	if err := s.burn(ctx, challengeID); err != nil {
		return nil, err
	}
	if err := s.verifier.VerifyAssertion(ctx, c, assertion); err != nil {
		return nil, errors.Wrap(ErrInvalidAssertion, err.Error())
	}
	return c, nil
}
