package mfa

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"time"

	"github.com/jrsteele09/go-auth-gateway/internal/kv"
	"github.com/pkg/errors"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// OTPRequest asks for a code to be sent to Destination.
type OTPRequest struct {
	Subject     string
	Factor      string
	Purpose     string
	Channel     string
	Destination string
}

// OTPIssued describes a sent code. Durations are in seconds.
type OTPIssued struct {
	ChallengeID string `json:"challengeId"`
	ExpiresIn   int64  `json:"expiresIn"`
	ResendAfter int64  `json:"resendAfter"`
}

// IssueOTP generates a code, stores only its bcrypt hash and hands the code
// to the Sender. Requests for one destination are limited to one per
// ResendAfter.
func (s *Service) IssueOTP(ctx context.Context, req OTPRequest) (*OTPIssued, error) {
	now := s.nowTime()
	limitKey := req.Channel + ":" + req.Destination
	if !s.limiter(limitKey).AllowN(now, 1) {
		return nil, ErrTooManyRequests
	}

	code, err := generateCode(now)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.IssueOTP] generate code")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.IssueOTP] hash code")
	}

	c := &Challenge{
		ID:          NewID(now),
		Kind:        KindOTP,
		Factor:      req.Factor,
		Subject:     req.Subject,
		Purpose:     req.Purpose,
		Channel:     req.Channel,
		Destination: req.Destination,
		CodeHash:    hash,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.OTPTTL),
	}
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	msg := Message{
		Channel:     req.Channel,
		Destination: req.Destination,
		Purpose:     req.Purpose,
		Code:        code,
		ExpiresAt:   c.ExpiresAt,
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		_, _ = s.store.Delete(ctx, c.ID)
		return nil, errors.Wrap(err, "[Service.IssueOTP] send code")
	}
	return &OTPIssued{
		ChallengeID: c.ID,
		ExpiresIn:   int64(s.cfg.OTPTTL / time.Second),
		ResendAfter: int64(s.cfg.ResendAfter / time.Second),
	}, nil
}

// VerifyOTP checks code against a challenge owned by subject. A correct code
// consumes the challenge. A wrong code counts as an attempt and the
// challenge is removed once MaxAttempts is reached.
func (s *Service) VerifyOTP(ctx context.Context, challengeID, subject, code string) (*Challenge, error) {
	c, err := s.Lookup(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if c.Kind != KindOTP || c.Subject != subject {
		return nil, ErrChallengeNotFound
	}

	if bcrypt.CompareHashAndPassword(c.CodeHash, []byte(code)) == nil {
		if err := s.burn(ctx, challengeID); err != nil {
			return nil, err
		}
		return c, nil
	}

	if err := s.recordFailedAttempt(ctx, challengeID); err != nil {
		return nil, err
	}
	return nil, ErrInvalidOTP
}

// recordFailedAttempt counts a wrong code in one atomic store update, so a
// challenge burned by a concurrent correct code stays burned.
func (s *Service) recordFailedAttempt(ctx context.Context, challengeID string) error {
	attempts := 0
	err := s.store.Update(ctx, challengeID, func(c *Challenge) *Challenge {
		c.Attempts++
		attempts = c.Attempts
		if c.Attempts >= s.cfg.MaxAttempts {
			return nil
		}
		return c
	})
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "[Service.recordFailedAttempt] update challenge")
	}
	if attempts >= s.cfg.MaxAttempts {
		log.Warn().Str("challenge_id", challengeID).Int("attempts", attempts).Msg("OTP challenge burned after too many attempts")
	}
	return nil
}

func (s *Service) limiter(key string) *rate.Limiter {
	if l, ok := s.limiters.Load(key); ok {
		return l.(*rate.Limiter)
	}
	l, _ := s.limiters.LoadOrStore(key, rate.NewLimiter(rate.Every(s.cfg.ResendAfter), 1))
	return l.(*rate.Limiter)
}

// generateCode derives a six digit HOTP code from a fresh random secret.
func generateCode(now time.Time) (string, error) {
	secret := make([]byte, 20)
	if _, err := rand.Read(secret); err != nil {
		return "", err
	}
	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(secret)
	return hotp.GenerateCodeCustom(encoded, uint64(now.Unix()), hotp.ValidateOpts{
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
}
