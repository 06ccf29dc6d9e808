package service

import (
	"sync"
	"time"

	"github.com/storefront/storefront-go/internal/clock"
	"github.com/storefront/storefront-go/internal/crypto"
	"github.com/storefront/storefront-go/internal/repository/repotest"
)

// testClock is a settable clock shared by the issuer and the service.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var _ clock.Clock = (*testClock)(nil)

type authFixture struct {
	svc      *AuthService
	accounts *repotest.AccountStore
	issuer   *crypto.TokenIssuer
	clock    *testClock
}

func newAuthFixture() *authFixture {
	clk := newTestClock()
	accounts := repotest.NewAccountStore()
	issuer := crypto.NewTokenIssuer("test-secret", 0, 0, clk)

	svc := NewAuthService(
		accounts,
		issuer,
		crypto.NewPasswordHasher(4),
		crypto.NewTokenHasher(crypto.HashParams{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}),
		clk,
	)

	return &authFixture{svc: svc, accounts: accounts, issuer: issuer, clock: clk}
}
