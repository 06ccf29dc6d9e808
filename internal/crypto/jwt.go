package crypto

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/storefront/storefront-go/internal/clock"
	"github.com/storefront/storefront-go/internal/model"
)

const (
	tokenIssuer     = "storefront"
	accessAudience  = "storefront-api"
	refreshAudience = "storefront-refresh"

	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// AccessClaims are carried by short-lived access tokens.
type AccessClaims struct {
	jwt.RegisteredClaims
	UserID string     `json:"user_id"`
	Role   model.Role `json:"role"`
}

// RefreshClaims are carried by refresh tokens. The role is deliberately absent
// and re-read from the account on every refresh.
type RefreshClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// TokenIssuer mints and verifies HS256 access and refresh tokens signed with a
// single server-held secret.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      clock.Clock
}

// NewTokenIssuer creates a TokenIssuer. Zero TTLs select the defaults.
func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration, clk clock.Clock) *TokenIssuer {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		clock:      clk,
	}
}

// RefreshTTL returns the lifetime of refresh tokens minted by the issuer.
func (i *TokenIssuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

// IssueAccessToken creates a signed access token for the given account.
func (i *TokenIssuer) IssueAccessToken(userID string, role model.Role) (string, error) {
	claims := AccessClaims{
		RegisteredClaims: i.registered(accessAudience, i.accessTTL),
		UserID:           userID,
		Role:             role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// IssueRefreshToken creates a signed refresh token for the given account.
func (i *TokenIssuer) IssueRefreshToken(userID string) (string, error) {
	claims := RefreshClaims{
		RegisteredClaims: i.registered(refreshAudience, i.refreshTTL),
		UserID:           userID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// VerifyAccessToken parses and validates an access token.
func (i *TokenIssuer) VerifyAccessToken(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := i.parse(tokenString, claims, accessAudience); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyRefreshToken parses and validates a refresh token.
func (i *TokenIssuer) VerifyRefreshToken(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := i.parse(tokenString, claims, refreshAudience); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (i *TokenIssuer) registered(audience string, ttl time.Duration) jwt.RegisteredClaims {
	now := i.clock.Now()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    tokenIssuer,
		Audience:  jwt.ClaimStrings{audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
}

func (i *TokenIssuer) parse(tokenString string, claims jwt.Claims, audience string) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrInvalidToken
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
