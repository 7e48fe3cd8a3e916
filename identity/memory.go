package identity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store used by tests and single-node development.
// It stores copies so callers cannot mutate persisted state by accident.
type MemStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*User
	now   func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{users: make(map[uuid.UUID]*User), now: time.Now}
}

func (s *MemStore) FindByID(_ context.Context, id uuid.UUID) (*User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, false, nil
	}
	return u.Clone(), true, nil
}

func (s *MemStore) FindByExternalID(_ context.Context, externalID string) (*User, bool, error) {
	if externalID == "" {
		return nil, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ExternalID != nil && *u.ExternalID == externalID {
			return u.Clone(), true, nil
		}
	}
	return nil, false, nil
}

func (s *MemStore) FindByEmail(_ context.Context, email string) (*User, bool, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u.Clone(), true, nil
		}
	}
	return nil, false, nil
}

func (s *MemStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.Email = NormalizeEmail(u.Email)
	if s.conflictLocked(u) {
		return ErrDuplicateIdentity
	}
	now := s.now()
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = u.Clone()
	return nil
}

func (s *MemStore) Update(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return ErrNotFound
	}
	u.Email = NormalizeEmail(u.Email)
	if s.conflictLocked(u) {
		return ErrDuplicateIdentity
	}
	u.UpdatedAt = s.now()
	s.users[u.ID] = u.Clone()
	return nil
}

// PurgeExpiredOTPs clears OTP codes whose expiry is before now.
func (s *MemStore) PurgeExpiredOTPs(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.users {
		if u.OTPCode != nil && u.OTPExpiry != nil && u.OTPExpiry.Before(now) {
			u.OTPCode, u.OTPExpiry = nil, nil
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored users.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *MemStore) conflictLocked(u *User) bool {
	for id, other := range s.users {
		if id == u.ID {
			continue
		}
		if u.Email != "" && other.Email == u.Email {
			return true
		}
		if u.ExternalID != nil && other.ExternalID != nil && *other.ExternalID == *u.ExternalID {
			return true
		}
	}
	return false
}
