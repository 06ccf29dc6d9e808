package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/storefront-go/internal/crypto"
	"github.com/storefront/storefront-go/internal/model"
	"github.com/storefront/storefront-go/internal/repository/repotest"
	"github.com/storefront/storefront-go/internal/service"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testServer struct {
	handler http.Handler
	clock   *stepClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithAccounts(t, repotest.NewAccountStore())
}

func newTestServerWithAccounts(t *testing.T, accounts service.AccountStore) *testServer {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clk := &stepClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	issuer := crypto.NewTokenIssuer("test-secret", 0, 0, clk)
	tokenHasher := crypto.NewTokenHasher(crypto.HashParams{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})

	authSvc := service.NewAuthService(accounts, issuer, crypto.NewPasswordHasher(4), tokenHasher, clk)
	productSvc := service.NewProductService(repotest.NewProductStore(), nil, clk)

	h := NewRouter(ctx, RouterConfig{
		Auth:       authSvc,
		Products:   productSvc,
		Tokens:     issuer,
		CORSOrigin: "http://localhost:5173",
		AuthRPS:    1000,
		AuthBurst:  1000,
	})

	return &testServer{handler: h, clock: clk}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), "body: %s", rec.Body.String())
	return v
}

func (s *testServer) login(t *testing.T, email, password string) model.TokenPair {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/login", "", model.LoginRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[model.TokenPair](t, rec)
}

func TestStorefrontScenario(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/register", "", map[string]string{"email": "a@x.com", "password": "secret1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	registered := decodeBody[model.RegisterResponse](t, rec)
	assert.NotEmpty(t, registered.UserID)
	assert.NotEmpty(t, registered.Message)

	pair := s.login(t, "a@x.com", "secret1")
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	s.clock.Advance(time.Second)
	rec = s.do(t, http.MethodPost, "/products", pair.AccessToken, map[string]any{"title": "Older", "price": 3})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	s.clock.Advance(time.Second)
	rec = s.do(t, http.MethodPost, "/products", pair.AccessToken, map[string]any{
		"title":  "Shirt",
		"price":  10,
		"images": []string{"http://x/y.png"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[model.CreateProductResponse](t, rec)
	assert.Equal(t, "product created", created.Message)
	assert.Equal(t, "Shirt", created.Product.Title)
	assert.Equal(t, 10.0, created.Product.Price)
	assert.Equal(t, []string{"http://x/y.png"}, created.Product.Images)
	assert.Equal(t, registered.UserID, created.Product.OwnerID)
	assert.Equal(t, registered.UserID, created.Product.Owner.ID)

	rec = s.do(t, http.MethodGet, "/products", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	products := decodeBody[[]model.Product](t, rec)
	require.Len(t, products, 2)
	assert.Equal(t, created.Product.ID, products[0].ID)
	assert.Equal(t, "Older", products[1].Title)

	rec = s.do(t, http.MethodGet, "/products/"+created.Product.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Shirt", decodeBody[model.Product](t, rec).Title)

	rec = s.do(t, http.MethodGet, "/products/badId", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegister_HTTPErrors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/register", "", map[string]string{"email": "a@x.com", "password": "secret1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{"duplicate email", map[string]string{"email": "a@x.com", "password": "other"}, http.StatusConflict},
		{"missing email", map[string]string{"password": "secret1"}, http.StatusBadRequest},
		{"missing password", map[string]string{"email": "b@x.com"}, http.StatusBadRequest},
		{"password too long", map[string]string{"email": "b@x.com", "password": strings.Repeat("p", 100)}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/register", "", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.NotEmpty(t, decodeBody[map[string]string](t, rec)["error"])
		})
	}
}

func TestMalformedBodies(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/register", "/login", "/refresh"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("{not json"))
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}

	big := `{"email":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(big))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestLogin_SameErrorForUnknownAccount(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/register", "", map[string]string{"email": "a@x.com", "password": "secret1"})

	wrong := s.do(t, http.MethodPost, "/login", "", map[string]string{"email": "a@x.com", "password": "nope"})
	unknown := s.do(t, http.MethodPost, "/login", "", map[string]string{"email": "z@x.com", "password": "secret1"})

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
}

func TestRefreshFlow(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/register", "", map[string]string{"email": "a@x.com", "password": "secret1"})

	first := s.login(t, "a@x.com", "secret1")

	rec := s.do(t, http.MethodPost, "/refresh", "", model.RefreshRequest{RefreshToken: first.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	refreshed := decodeBody[model.RefreshResponse](t, rec)
	assert.NotEmpty(t, refreshed.AccessToken)

	rec = s.do(t, http.MethodPost, "/products", refreshed.AccessToken, map[string]any{"title": "Hat", "price": 2})
	assert.Equal(t, http.StatusCreated, rec.Code)

	second := s.login(t, "a@x.com", "secret1")

	rec = s.do(t, http.MethodPost, "/refresh", "", model.RefreshRequest{RefreshToken: first.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/refresh", "", model.RefreshRequest{RefreshToken: second.RefreshToken})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/refresh", "", model.RefreshRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/refresh", "", model.RefreshRequest{RefreshToken: second.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateProduct_Gate(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/register", "", map[string]string{"email": "a@x.com", "password": "secret1"})
	pair := s.login(t, "a@x.com", "secret1")

	body := map[string]any{"title": "Shirt", "price": 10}

	rec := s.do(t, http.MethodPost, "/products", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/products", "garbage", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/products", pair.RefreshToken, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	s.clock.Advance(14 * time.Minute)
	rec = s.do(t, http.MethodPost, "/products", pair.AccessToken, body)
	assert.Equal(t, http.StatusCreated, rec.Code)

	s.clock.Advance(2 * time.Minute)
	rec = s.do(t, http.MethodPost, "/products", pair.AccessToken, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateProduct_ValidationStatus(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/register", "", map[string]string{"email": "a@x.com", "password": "secret1"})
	pair := s.login(t, "a@x.com", "secret1")

	tests := []struct {
		name    string
		body    any
		wantMsg string
	}{
		{"missing price", map[string]any{"title": "Shirt"}, service.ErrTitleAndPriceRequired.Error()},
		{"negative price", map[string]any{"title": "Shirt", "price": -5}, service.ErrInvalidPrice.Error()},
		{"images not array", map[string]any{"title": "Shirt", "price": 5, "images": "x"}, service.ErrImagesNotArray.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/products", pair.AccessToken, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantMsg, decodeBody[map[string]string](t, rec)["error"])
		})
	}
}

func TestHealthAndCORS(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	req := httptest.NewRequest(http.MethodOptions, "/products", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/products", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimitedCredentialEndpoints(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clk := &stepClock{now: time.Now()}
	issuer := crypto.NewTokenIssuer("test-secret", 0, 0, clk)
	authSvc := service.NewAuthService(repotest.NewAccountStore(), issuer, crypto.NewPasswordHasher(4), crypto.NewTokenHasher(crypto.DefaultHashParams()), clk)

	h := NewRouter(ctx, RouterConfig{
		Auth:      authSvc,
		Products:  service.NewProductService(repotest.NewProductStore(), nil, clk),
		Tokens:    issuer,
		AuthRPS:   0.001,
		AuthBurst: 1,
	})

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"a@x.com","password":"x"}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}

func TestRateLimit_SpoofedForwardingHeaders(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clk := &stepClock{now: time.Now()}
	issuer := crypto.NewTokenIssuer("test-secret", 0, 0, clk)
	authSvc := service.NewAuthService(repotest.NewAccountStore(), issuer, crypto.NewPasswordHasher(4), crypto.NewTokenHasher(crypto.DefaultHashParams()), clk)

	h := NewRouter(ctx, RouterConfig{
		Auth:      authSvc,
		Products:  service.NewProductService(repotest.NewProductStore(), nil, clk),
		Tokens:    issuer,
		AuthRPS:   0.001,
		AuthBurst: 2,
	})

	limited := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"a@x.com","password":"x"}`))
		req.RemoteAddr = "10.0.0.1:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("1.2.3.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("1.2.4.%d", i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}

	assert.Equal(t, 18, limited, "forwarding headers must not open new rate limit buckets")
}

// unreachableAccounts fails every lookup by id, as a lost database would.
type unreachableAccounts struct {
	*repotest.AccountStore
}

func (unreachableAccounts) GetByID(context.Context, string) (*model.Account, error) {
	return nil, errors.New("dial tcp 127.0.0.1:3306: connect: connection refused")
}

func TestRefresh_StoreFailureIsUnauthorized(t *testing.T) {
	s := newTestServerWithAccounts(t, unreachableAccounts{repotest.NewAccountStore()})
	s.do(t, http.MethodPost, "/register", "", map[string]string{"email": "a@x.com", "password": "secret1"})
	pair := s.login(t, "a@x.com", "secret1")

	rec := s.do(t, http.MethodPost, "/refresh", "", model.RefreshRequest{RefreshToken: pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, service.ErrInvalidRefreshToken.Error(), decodeBody[map[string]string](t, rec)["error"])
}

func TestOverlongFieldsAreBadRequests(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/register", "", map[string]string{
		"email":    strings.Repeat("e", service.MaxEmailLength) + "@x.com",
		"password": "secret1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, service.ErrEmailTooLong.Error(), decodeBody[map[string]string](t, rec)["error"])

	s.do(t, http.MethodPost, "/register", "", map[string]string{"email": "a@x.com", "password": "secret1"})
	pair := s.login(t, "a@x.com", "secret1")

	rec = s.do(t, http.MethodPost, "/products", pair.AccessToken, map[string]any{
		"title": strings.Repeat("t", service.MaxTitleLength+1),
		"price": 10,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, service.ErrTitleTooLong.Error(), decodeBody[map[string]string](t, rec)["error"])
}
