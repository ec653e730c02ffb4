package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-gateway/idp"
	apperrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/roles"
	"github.com/pkg/errors"
)

const (
	DefaultCorpTokenTTL   = 15 * time.Minute
	DefaultStepUpTokenTTL = 600 * time.Second
	StepUpACR             = "step-up"
	minSigningKeyLength   = 32
)

var corpNamespace = uuid.MustParse("6f1d5d0e-3c1b-4c35-9a52-31c3f2e6a9b4")

// CorpSubject derives a stable subject for a corporate email address.
func CorpSubject(email string) string {
	return uuid.NewSHA1(corpNamespace, []byte(email)).String()
}

// CorpTokenIssuer signs the access tokens of corporate sessions with HS256.
type CorpTokenIssuer struct {
	key     []byte
	issuer  string
	role    string
	ttl     time.Duration
	nowTime func() time.Time
}

func NewCorpTokenIssuer(key []byte, issuer, role string, ttl time.Duration, nowTime func() time.Time) (*CorpTokenIssuer, error) {
	if len(key) < minSigningKeyLength {
		return nil, errors.Errorf("[NewCorpTokenIssuer] signing key must be at least %d bytes", minSigningKeyLength)
	}
	if issuer == "" || role == "" {
		return nil, errors.New("[NewCorpTokenIssuer] issuer and role are required")
	}
	if ttl <= 0 {
		ttl = DefaultCorpTokenTTL
	}
	if nowTime == nil {
		nowTime = time.Now
	}
	return &CorpTokenIssuer{key: key, issuer: issuer, role: role, ttl: ttl, nowTime: nowTime}, nil
}

// Issue returns tokens for a staff member who completed MFA, and the sid
// the session is bound to. The refresh token is opaque.
func (i *CorpTokenIssuer) Issue(subject, email string) (*idp.Tokens, string, error) {
	now := i.nowTime()
	sid := uuid.NewString()
	claims := roles.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
		RealmAccess: &roles.Access{Roles: []string{i.role}},
		Email:       email,
		ACR:         "mfa",
		SessionID:   sid,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return nil, "", errors.Wrap(err, "[CorpTokenIssuer.Issue] sign access token")
	}
	refresh, err := generateRandomString(randomLength)
	if err != nil {
		return nil, "", errors.Wrap(err, "[CorpTokenIssuer.Issue] generate refresh token")
	}
	return &idp.Tokens{
		AccessToken:  signed,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(i.ttl / time.Second),
	}, sid, nil
}

// Verify checks a corporate access token and returns its claims.
func (i *CorpTokenIssuer) Verify(raw string) (*roles.Claims, error) {
	return verifyHS256(raw, i.key, i.issuer, i.nowTime)
}

// VerifyAccessToken lets the issuer sit in a bearer verifier chain next to
// the provider.
func (i *CorpTokenIssuer) VerifyAccessToken(_ context.Context, raw string) (*roles.Claims, error) {
	return i.Verify(raw)
}

// StepUpIssuer signs short lived elevated-assurance tokens.
type StepUpIssuer struct {
	key     []byte
	issuer  string
	ttl     time.Duration
	nowTime func() time.Time
}

func NewStepUpIssuer(key []byte, issuer string, ttl time.Duration, nowTime func() time.Time) (*StepUpIssuer, error) {
	if len(key) < minSigningKeyLength {
		return nil, errors.Errorf("[NewStepUpIssuer] signing key must be at least %d bytes", minSigningKeyLength)
	}
	if issuer == "" {
		return nil, errors.New("[NewStepUpIssuer] issuer is required")
	}
	if ttl <= 0 {
		ttl = DefaultStepUpTokenTTL
	}
	if nowTime == nil {
		nowTime = time.Now
	}
	return &StepUpIssuer{key: key, issuer: issuer, ttl: ttl, nowTime: nowTime}, nil
}

type stepUpClaims struct {
	jwt.RegisteredClaims
	ACR     string   `json:"acr"`
	AMR     []string `json:"amr"`
	Purpose string   `json:"purpose,omitempty"`
}

// Issue signs a step-up token for userID. challengeID becomes the jti.
func (i *StepUpIssuer) Issue(userID, purpose, challengeID string) (string, time.Time, error) {
	now := i.nowTime()
	expiresAt := now.Add(i.ttl)
	claims := stepUpClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        challengeID,
		},
		ACR:     StepUpACR,
		AMR:     []string{"otp"},
		Purpose: purpose,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "[StepUpIssuer.Issue] sign token")
	}
	return signed, expiresAt, nil
}

// Verify checks a step-up token and returns the user id and purpose it was
// issued for.
func (i *StepUpIssuer) Verify(raw string) (userID, purpose string, err error) {
	claims := &stepUpClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, hmacKey(i.key),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.nowTime),
	)
	if err != nil || claims.ACR != StepUpACR {
		return "", "", apperrors.WrapKind(err, apperrors.KindUnauthorized, apperrors.CodeUnauthenticated, "invalid step-up token")
	}
	return claims.Subject, claims.Purpose, nil
}

func verifyHS256(raw string, key []byte, issuer string, nowTime func() time.Time) (*roles.Claims, error) {
	claims := &roles.Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, hmacKey(key),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(nowTime),
	)
	if err != nil {
		return nil, apperrors.WrapKind(err, apperrors.KindUnauthorized, apperrors.CodeUnauthenticated, "invalid access token")
	}
	return claims, nil
}

func hmacKey(key []byte) jwt.Keyfunc {
	return func(*jwt.Token) (any, error) {
		return key, nil
	}
}
