package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/storefront/storefront-go/internal/clock"
	"github.com/storefront/storefront-go/internal/crypto"
	"github.com/storefront/storefront-go/internal/model"
	"github.com/storefront/storefront-go/internal/repository"
)

var (
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrEmailRequired        = errors.New("email is required")
	ErrPasswordRequired     = errors.New("password is required")
	ErrPasswordTooLong      = crypto.ErrPasswordTooLong
	ErrEmailTooLong         = fmt.Errorf("email must be at most %d characters", MaxEmailLength)
	ErrEmailTaken           = errors.New("email already taken")
	ErrRefreshTokenRequired = errors.New("refresh token is required")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")
	ErrRefreshTokenExpired  = errors.New("refresh token expired")
)

// MaxEmailLength is the longest email the store column accepts.
const MaxEmailLength = 255

// AccountStore persists accounts and their refresh token ledger entry.
type AccountStore interface {
	Create(ctx context.Context, account *model.Account) error
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	GetByID(ctx context.Context, id string) (*model.Account, error)
	SetRefreshToken(ctx context.Context, id, hash string, expiresAt time.Time) error
}

// Hasher produces salted one-way digests and checks plaintexts against them.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) (bool, error)
}

// AuthService handles registration, login and access token refresh.
type AuthService struct {
	accounts      AccountStore
	tokens        *crypto.TokenIssuer
	passwords     Hasher
	refreshHashes Hasher
	clock         clock.Clock

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new AuthService.
func NewAuthService(accounts AccountStore, tokens *crypto.TokenIssuer, passwords, refreshHashes Hasher, clk clock.Clock) *AuthService {
	if clk == nil {
		clk = clock.Real{}
	}
	return &AuthService{
		accounts:      accounts,
		tokens:        tokens,
		passwords:     passwords,
		refreshHashes: refreshHashes,
		clock:         clk,
	}
}

// Register creates a new account with the default role.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (model.RegisterResponse, error) {
	if req.Email == "" {
		return model.RegisterResponse{}, ErrEmailRequired
	}
	if req.Password == "" {
		return model.RegisterResponse{}, ErrPasswordRequired
	}
	if utf8.RuneCountInString(req.Email) > MaxEmailLength {
		return model.RegisterResponse{}, ErrEmailTooLong
	}
	if len(req.Password) > crypto.MaxPasswordBytes {
		return model.RegisterResponse{}, ErrPasswordTooLong
	}

	_, err := s.accounts.GetByEmail(ctx, req.Email)
	switch {
	case err == nil:
		return model.RegisterResponse{}, ErrEmailTaken
	case !errors.Is(err, repository.ErrUserNotFound):
		return model.RegisterResponse{}, err
	}

	hash, err := s.passwords.Hash(req.Password)
	if err != nil {
		return model.RegisterResponse{}, err
	}

	now := s.clock.Now()
	account := &model.Account{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		Role:         model.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// A concurrent registration may still win the race; the store's unique
	// constraint decides.
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return model.RegisterResponse{}, ErrEmailTaken
		}
		return model.RegisterResponse{}, err
	}

	return model.RegisterResponse{
		Message: "user created",
		UserID:  account.ID,
	}, nil
}

// Login authenticates an account, records a fresh refresh token in its
// ledger entry and returns both tokens. Any earlier refresh token of the
// account stops being accepted.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (model.TokenPair, error) {
	if req.Email == "" {
		return model.TokenPair{}, ErrEmailRequired
	}
	if req.Password == "" {
		return model.TokenPair{}, ErrPasswordRequired
	}

	account, err := s.accounts.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.burnPasswordCheck(req.Password)
			return model.TokenPair{}, ErrInvalidCredentials
		}
		return model.TokenPair{}, err
	}

	match, err := s.passwords.Verify(req.Password, account.PasswordHash)
	if err != nil {
		return model.TokenPair{}, err
	}
	if !match {
		return model.TokenPair{}, ErrInvalidCredentials
	}

	accessToken, err := s.tokens.IssueAccessToken(account.ID, account.Role)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("issuing access token: %w", err)
	}

	refreshToken, err := s.tokens.IssueRefreshToken(account.ID)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("issuing refresh token: %w", err)
	}

	refreshHash, err := s.refreshHashes.Hash(refreshToken)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("hashing refresh token: %w", err)
	}

	expiresAt := s.clock.Now().Add(s.tokens.RefreshTTL())
	if err := s.accounts.SetRefreshToken(ctx, account.ID, refreshHash, expiresAt); err != nil {
		return model.TokenPair{}, fmt.Errorf("storing refresh token: %w", err)
	}

	return model.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself is not rotated.
func (s *AuthService) Refresh(ctx context.Context, req model.RefreshRequest) (model.RefreshResponse, error) {
	if req.RefreshToken == "" {
		return model.RefreshResponse{}, ErrRefreshTokenRequired
	}

	claims, err := s.tokens.VerifyRefreshToken(req.RefreshToken)
	if err != nil {
		return model.RefreshResponse{}, fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err)
	}

	account, err := s.accounts.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.RefreshResponse{}, ErrInvalidRefreshToken
		}
		return model.RefreshResponse{}, err
	}
	if !account.HasRefreshToken() {
		return model.RefreshResponse{}, ErrInvalidRefreshToken
	}

	if s.clock.Now().After(*account.RefreshTokenExpiresAt) {
		return model.RefreshResponse{}, ErrRefreshTokenExpired
	}

	match, err := s.refreshHashes.Verify(req.RefreshToken, *account.RefreshTokenHash)
	if err != nil {
		return model.RefreshResponse{}, fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err)
	}
	if !match {
		return model.RefreshResponse{}, ErrInvalidRefreshToken
	}

	accessToken, err := s.tokens.IssueAccessToken(account.ID, account.Role)
	if err != nil {
		return model.RefreshResponse{}, fmt.Errorf("issuing access token: %w", err)
	}

	return model.RefreshResponse{AccessToken: accessToken}, nil
}

// burnPasswordCheck spends the same hashing work as a real password check so
// unknown emails are not distinguishable by response time.
func (s *AuthService) burnPasswordCheck(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.passwords.Hash(uuid.NewString())
	})
	if s.dummyHash != "" {
		_, _ = s.passwords.Verify(password, s.dummyHash)
	}
}
