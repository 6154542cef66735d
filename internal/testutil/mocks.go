package testutil

import (
	"context"
	"sync"

	"github.com/animeswipe/animeswipe/internal/idp"
	"github.com/animeswipe/animeswipe/internal/probe"
	"github.com/stretchr/testify/mock"
	"golang.org/x/oauth2"
)

type MockSessionProbe struct {
	mock.Mock
}

func (m *MockSessionProbe) CheckSession(ctx context.Context) (probe.Identity, error) {
	args := m.Called(ctx)
	return args.Get(0).(probe.Identity), args.Error(1)
}

type MockProfileProbe struct {
	mock.Mock
}

func (m *MockProfileProbe) CheckProfile(ctx context.Context) (probe.Profile, error) {
	args := m.Called(ctx)
	return args.Get(0).(probe.Profile), args.Error(1)
}

// RecordingNavigator records every Replace call
type RecordingNavigator struct {
	mu     sync.Mutex
	routes []string
}

func (n *RecordingNavigator) Replace(route string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes = append(n.routes, route)
}

// Routes returns a copy of the recorded navigations
func (n *RecordingNavigator) Routes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.routes...)
}

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Type() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockProvider) AuthURL(state, codeVerifier string) string {
	args := m.Called(state, codeVerifier)
	return args.String(0)
}

func (m *MockProvider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error) {
	args := m.Called(ctx, code, codeVerifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oauth2.Token), args.Error(1)
}

func (m *MockProvider) UserInfo(ctx context.Context, token *oauth2.Token) (*idp.UserInfo, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*idp.UserInfo), args.Error(1)
}

type MockEncryptor struct {
	mock.Mock
}

func (m *MockEncryptor) Encrypt(plaintext string) (string, error) {
	args := m.Called(plaintext)
	return args.String(0), args.Error(1)
}

func (m *MockEncryptor) Decrypt(ciphertext string) (string, error) {
	args := m.Called(ciphertext)
	return args.String(0), args.Error(1)
}
