package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/storefront/storefront-go/internal/model"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already exists")
)

const accountColumns = `id, email, password_hash, role, refresh_token_hash, refresh_token_expires_at, created_at, updated_at`

// AccountRepository handles account persistence operations.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account. The unique index on email is the final
// arbiter for concurrent registrations.
func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	query := `INSERT INTO users (id, email, password_hash, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		account.ID, account.Email, account.PasswordHash, string(account.Role), account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("inserting account: %w", err)
	}

	return nil
}

// GetByEmail retrieves an account by its email address.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE email = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

// GetByID retrieves an account by its ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// SetRefreshToken overwrites the account's refresh token hash and expiry.
func (r *AccountRepository) SetRefreshToken(ctx context.Context, id, hash string, expiresAt time.Time) error {
	query := `UPDATE users SET refresh_token_hash = ?, refresh_token_expires_at = ?, updated_at = CURRENT_TIMESTAMP(3) WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, hash, expiresAt, id)
	if err != nil {
		return fmt.Errorf("updating refresh token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *AccountRepository) scanOne(row *sql.Row) (*model.Account, error) {
	var (
		account   model.Account
		role      string
		hash      sql.NullString
		expiresAt sql.NullTime
	)

	err := row.Scan(
		&account.ID, &account.Email, &account.PasswordHash, &role,
		&hash, &expiresAt, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning account: %w", err)
	}

	account.Role = model.Role(role)
	if hash.Valid {
		account.RefreshTokenHash = &hash.String
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		account.RefreshTokenExpiresAt = &t
	}

	return &account, nil
}
