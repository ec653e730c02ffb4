package users

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var _ Directory = (*InMemoryDirectory)(nil)

type InMemoryDirectory struct {
	lock     sync.RWMutex
	profiles map[string]*Profile // userID -> profile
	keys     map[string]string   // realm:providerUserId -> userID
	nowTime  func() time.Time
}

func NewInMemoryDirectory(nowTime func() time.Time) *InMemoryDirectory {
	if nowTime == nil {
		nowTime = time.Now
	}
	return &InMemoryDirectory{
		profiles: make(map[string]*Profile),
		keys:     make(map[string]string),
		nowTime:  nowTime,
	}
}

func (d *InMemoryDirectory) CreateOrGetFromIdentity(_ context.Context, identity Identity) (*Profile, bool, error) {
	if identity.ProviderUserID == "" || identity.Realm == "" {
		return nil, false, errors.New("identity requires a provider user id and realm")
	}
	key := DirectoryKey(identity.Realm, identity.ProviderUserID)
	now := d.nowTime().UTC()

	d.lock.Lock()
	defer d.lock.Unlock()

	if userID, ok := d.keys[key]; ok {
		p := d.profiles[userID]
		if identity.Email != "" {
			p.Email = identity.Email
		}
		p.Roles = append([]string(nil), identity.Roles...)
		p.LastLoginAt = now
		return copyProfile(p), false, nil
	}

	p := &Profile{
		UserID:         UserIDFor(identity.ProviderUserID),
		ProviderUserID: identity.ProviderUserID,
		Realm:          identity.Realm,
		Email:          identity.Email,
		FirstName:      identity.FirstName,
		LastName:       identity.LastName,
		Roles:          append([]string(nil), identity.Roles...),
		Status:         StatusIncomplete,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastLoginAt:    now,
	}
	d.profiles[p.UserID] = p
	d.keys[key] = p.UserID
	return copyProfile(p), true, nil
}

func (d *InMemoryDirectory) GetByUserID(_ context.Context, userID string) (*Profile, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()

	p, ok := d.profiles[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyProfile(p), nil
}

func (d *InMemoryDirectory) Update(_ context.Context, userID string, update ProfileUpdate) (*Profile, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	p, ok := d.profiles[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	if update.FirstName != nil {
		p.FirstName = strings.TrimSpace(*update.FirstName)
	}
	if update.LastName != nil {
		p.LastName = strings.TrimSpace(*update.LastName)
	}
	if update.Mobile != nil {
		p.Mobile = strings.TrimSpace(*update.Mobile)
	}
	p.Status = ComputeStatus(p.FirstName, p.LastName)
	p.UpdatedAt = d.nowTime().UTC()
	return copyProfile(p), nil
}

func (d *InMemoryDirectory) Delete(_ context.Context, userID string) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	p, ok := d.profiles[userID]
	if !ok {
		return nil
	}
	delete(d.keys, DirectoryKey(p.Realm, p.ProviderUserID))
	delete(d.profiles, userID)
	return nil
}

func copyProfile(p *Profile) *Profile {
	cp := *p
	cp.Roles = append([]string(nil), p.Roles...)
	return &cp
}
