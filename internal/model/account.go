package model

import "time"

// Role tags the privileges of an account.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Account represents a user account in the database.
// RefreshTokenHash and RefreshTokenExpiresAt are nil until the first login
// and are always written together.
type Account struct {
	ID                    string
	Email                 string
	PasswordHash          string
	Role                  Role
	RefreshTokenHash      *string
	RefreshTokenExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// HasRefreshToken reports whether the account currently holds a ledger entry.
func (a *Account) HasRefreshToken() bool {
	return a.RefreshTokenHash != nil && *a.RefreshTokenHash != "" && a.RefreshTokenExpiresAt != nil
}

// RegisterRequest represents an account registration request.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterResponse is returned after a successful registration.
type RegisterResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenPair holds the access and refresh tokens issued at login.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RefreshRequest carries a refresh token to be exchanged.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshResponse carries the newly issued access token.
type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
}
