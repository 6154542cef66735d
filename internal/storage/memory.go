package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Ensure MemoryStorage implements required interfaces
var _ Storage = (*MemoryStorage)(nil)

// MemoryStorage keeps everything in process memory. Suitable for development
// and tests, everything is lost on restart.
type MemoryStorage struct {
	loginMutex    sync.Mutex
	loginRequests map[string]LoginRequest

	usersMutex sync.RWMutex
	users      map[string]*User // map[userID] = User
	malIndex   map[int64]string // map[malID] = userID
	tokens     map[string]ProviderToken

	now func() time.Time
}

// NewMemoryStorage creates a new storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		loginRequests: make(map[string]LoginRequest),
		users:         make(map[string]*User),
		malIndex:      make(map[int64]string),
		tokens:        make(map[string]ProviderToken),
		now:           time.Now,
	}
}

func (s *MemoryStorage) SaveLoginRequest(_ context.Context, req *LoginRequest) error {
	s.loginMutex.Lock()
	defer s.loginMutex.Unlock()
	s.loginRequests[req.State] = *req
	return nil
}

func (s *MemoryStorage) TakeLoginRequest(_ context.Context, state string) (*LoginRequest, error) {
	s.loginMutex.Lock()
	defer s.loginMutex.Unlock()

	req, ok := s.loginRequests[state]
	if !ok {
		return nil, ErrLoginRequestNotFound
	}
	delete(s.loginRequests, state)
	return &req, nil
}

func (s *MemoryStorage) CleanupExpiredLoginRequests(_ context.Context, cutoff time.Time) (int, error) {
	s.loginMutex.Lock()
	defer s.loginMutex.Unlock()

	count := 0
	for state, req := range s.loginRequests {
		if req.CreatedAt.Before(cutoff) {
			delete(s.loginRequests, state)
			count++
		}
	}
	return count, nil
}

func (s *MemoryStorage) UpsertMALUser(_ context.Context, profile MALProfile) (*User, bool, error) {
	s.usersMutex.Lock()
	defer s.usersMutex.Unlock()

	now := s.now()
	if id, ok := s.malIndex[profile.ID]; ok {
		user := s.users[id]
		user.Username = profile.Name
		user.Avatar = profile.Picture
		user.UpdatedAt = now
		copied := *user
		return &copied, false, nil
	}

	user := &User{
		ID:        uuid.NewString(),
		MALID:     profile.ID,
		Username:  profile.Name,
		Avatar:    profile.Picture,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.users[user.ID] = user
	s.malIndex[profile.ID] = user.ID

	copied := *user
	return &copied, true, nil
}

func (s *MemoryStorage) GetUser(_ context.Context, id string) (*User, error) {
	s.usersMutex.RLock()
	defer s.usersMutex.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *MemoryStorage) CompleteOnboarding(_ context.Context, id string) error {
	s.usersMutex.Lock()
	defer s.usersMutex.Unlock()

	user, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.Onboarded = true
	user.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStorage) SetProviderToken(_ context.Context, userID string, token *ProviderToken) error {
	s.usersMutex.Lock()
	defer s.usersMutex.Unlock()

	if _, ok := s.users[userID]; !ok {
		return ErrUserNotFound
	}
	stored := *token
	stored.UpdatedAt = s.now()
	s.tokens[userID] = stored
	return nil
}

func (s *MemoryStorage) GetProviderToken(_ context.Context, userID string) (*ProviderToken, error) {
	s.usersMutex.RLock()
	defer s.usersMutex.RUnlock()

	token, ok := s.tokens[userID]
	if !ok {
		return nil, ErrProviderTokenNotFound
	}
	return &token, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
