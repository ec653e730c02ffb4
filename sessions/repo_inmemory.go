package sessions

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo keeps each user's sessions in their own bucket so operations
// on one user never block another.
type InMemoryRepo struct {
	buckets sync.Map // userID -> *userBucket
	nowTime func() time.Time
}

type userBucket struct {
	mu       sync.Mutex
	sessions map[string]UserSession
}

type Option func(*InMemoryRepo)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(r *InMemoryRepo) {
		r.nowTime = nowFunc
	}
}

func NewInMemoryRepo(options ...Option) *InMemoryRepo {
	r := &InMemoryRepo{nowTime: time.Now}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *InMemoryRepo) bucket(userID string) *userBucket {
	if b, ok := r.buckets.Load(userID); ok {
		return b.(*userBucket)
	}
	b, _ := r.buckets.LoadOrStore(userID, &userBucket{sessions: make(map[string]UserSession)})
	return b.(*userBucket)
}

func (r *InMemoryRepo) Create(_ context.Context, s NewSession) (UserSession, error) {
	if s.UserID == "" {
		return UserSession{}, errors.New("userID is required")
	}
	now := r.nowTime().UTC()
	session := UserSession{
		SessionID:        idPrefix + uuid.NewString(),
		UserID:           s.UserID,
		Realm:            s.Realm,
		Device:           orDefault(s.Device, DefaultDevice),
		IP:               orDefault(s.IP, DefaultIP),
		CreatedAt:        now,
		LastSeenAt:       now,
		RiskLevel:        s.RiskLevel,
		MFALevel:         s.MFALevel,
		TokenFingerprint: Fingerprint(s.Binding),
	}

	b := r.bucket(s.UserID)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[session.SessionID] = session
	return session, nil
}

func (r *InMemoryRepo) GetByUserID(_ context.Context, userID string) ([]UserSession, error) {
	out := []UserSession{}
	v, ok := r.buckets.Load(userID)
	if !ok {
		return out, nil
	}
	b := v.(*userBucket)

	b.mu.Lock()
	for _, s := range b.sessions {
		out = append(out, s)
	}
	b.mu.Unlock()

	sortNewestFirst(out)
	return out, nil
}

func (r *InMemoryRepo) Revoke(_ context.Context, userID, sessionID string) (bool, error) {
	v, ok := r.buckets.Load(userID)
	if !ok {
		return false, nil
	}
	b := v.(*userBucket)

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.sessions[sessionID]; !ok {
		return false, nil
	}
	delete(b.sessions, sessionID)
	return true, nil
}

func (r *InMemoryRepo) RevokeAll(_ context.Context, userID string) (int, error) {
	v, ok := r.buckets.Load(userID)
	if !ok {
		return 0, nil
	}
	b := v.(*userBucket)

	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.sessions)
	b.sessions = make(map[string]UserSession)
	return n, nil
}

func (r *InMemoryRepo) Touch(_ context.Context, userID, sessionID string, at time.Time) error {
	v, ok := r.buckets.Load(userID)
	if !ok {
		return ErrSessionNotFound
	}
	b := v.(*userBucket)

	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if at.After(s.LastSeenAt) {
		s.LastSeenAt = at.UTC()
		b.sessions[sessionID] = s
	}
	return nil
}

func sortNewestFirst(list []UserSession) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].SessionID < list[j].SessionID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}
