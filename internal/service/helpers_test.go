package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"examprep/backend/internal/repository/memory"
	"examprep/backend/internal/security"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type testEnv struct {
	store   *memory.Store
	tokens  *security.TokenIssuer
	auth    *AuthService
	gate    *AuthGate
	admin   *AdminService
	clock   *testClock
	limiter *fakeLimiter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	hasher, err := security.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	tokens, err := security.NewTokenIssuer("test-secret", 7*24*time.Hour)
	require.NoError(t, err)

	store := memory.NewStore()
	clock := newTestClock()
	limiter := newFakeLimiter()
	log := zerolog.Nop()

	auth := NewAuthService(store, hasher, tokens, limiter, log)
	auth.now = clock.Now
	gate := NewAuthGate(store, tokens, log)
	gate.now = clock.Now
	admin := NewAdminService(store, log)
	admin.now = clock.Now

	return &testEnv{
		store:   store,
		tokens:  tokens,
		auth:    auth,
		gate:    gate,
		admin:   admin,
		clock:   clock,
		limiter: limiter,
	}
}

var (
	browserA = ClientInfo{UserAgent: "Mozilla/5.0 (Windows NT 10.0) Chrome/120.0", IPAddress: "198.51.100.10"}
	browserB = ClientInfo{UserAgent: "Mozilla/5.0 (Macintosh) Safari/17.1", IPAddress: "203.0.113.20"}
	browserC = ClientInfo{UserAgent: "Mozilla/5.0 (Linux; Android 14) Firefox/121.0", IPAddress: "192.0.2.30"}
)

func (e *testEnv) register(t *testing.T, username, email, phone string) AuthResult {
	t.Helper()
	res, err := e.auth.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    email,
		Password: "secret1",
		Phone:    phone,
		Client:   browserA,
	})
	require.NoError(t, err)
	return res
}

func (e *testEnv) login(t *testing.T, email string, client ClientInfo) AuthResult {
	t.Helper()
	res, err := e.auth.Login(context.Background(), LoginInput{
		Email:    email,
		Password: "secret1",
		Client:   client,
	})
	require.NoError(t, err)
	return res
}

func (e *testEnv) activeCount(userID string) int {
	n := 0
	for _, s := range e.store.SessionsOf(userID) {
		if s.IsActive {
			n++
		}
	}
	return n
}

type fakeLimiter struct {
	mu       sync.Mutex
	failures map[string]int
	max      int
}

func newFakeLimiter() *fakeLimiter {
	return &fakeLimiter{failures: map[string]int{}}
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.max == 0 || f.failures[key] < f.max, nil
}

func (f *fakeLimiter) Fail(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[key]++
	return nil
}

func (f *fakeLimiter) Reset(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, key)
	return nil
}

func (f *fakeLimiter) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures[key]
}
