// Package repotest provides in-memory account and product stores with the
// same semantics as the MySQL repositories, for tests of the layers above.
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/storefront/storefront-go/internal/model"
	"github.com/storefront/storefront-go/internal/repository"
)

// AccountStore is an in-process account store with the same semantics
// as repository.AccountRepository, including the unique email constraint.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]model.Account
	byEmail  map[string]string
}

// NewAccountStore creates an empty AccountStore.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		accounts: make(map[string]model.Account),
		byEmail:  make(map[string]string),
	}
}

func (s *AccountStore) Create(_ context.Context, account *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[account.Email]; exists {
		return repository.ErrDuplicateEmail
	}
	s.accounts[account.ID] = cloneAccount(*account)
	s.byEmail[account.Email] = account.ID
	return nil
}

func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	s.mu.RLock()
	id, exists := s.byEmail[email]
	s.mu.RUnlock()
	if !exists {
		return nil, repository.ErrUserNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *AccountStore) GetByID(_ context.Context, id string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, exists := s.accounts[id]
	if !exists {
		return nil, repository.ErrUserNotFound
	}
	account = cloneAccount(account)
	return &account, nil
}

func (s *AccountStore) SetRefreshToken(_ context.Context, id, hash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, exists := s.accounts[id]
	if !exists {
		return repository.ErrUserNotFound
	}
	account.RefreshTokenHash = &hash
	account.RefreshTokenExpiresAt = &expiresAt
	s.accounts[id] = account
	return nil
}

func cloneAccount(a model.Account) model.Account {
	if a.RefreshTokenHash != nil {
		hash := *a.RefreshTokenHash
		a.RefreshTokenHash = &hash
	}
	if a.RefreshTokenExpiresAt != nil {
		expiresAt := *a.RefreshTokenExpiresAt
		a.RefreshTokenExpiresAt = &expiresAt
	}
	return a
}

// ProductStore is an in-process product store ordering listings like
// repository.ProductRepository.
type ProductStore struct {
	mu       sync.RWMutex
	products map[string]model.Product
}

// NewProductStore creates an empty ProductStore.
func NewProductStore() *ProductStore {
	return &ProductStore{products: make(map[string]model.Product)}
}

func (s *ProductStore) Create(_ context.Context, product *model.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; exists {
		return repository.ErrProductConflict
	}
	if product.Images == nil {
		product.Images = []string{}
	}
	product.Owner = model.Owner{ID: product.OwnerID}
	s.products[product.ID] = cloneProduct(*product)
	return nil
}

func (s *ProductStore) List(_ context.Context) ([]model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]model.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, cloneProduct(p))
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].CreatedAt.Equal(products[j].CreatedAt) {
			return products[i].ID > products[j].ID
		}
		return products[i].CreatedAt.After(products[j].CreatedAt)
	})
	return products, nil
}

func (s *ProductStore) GetByID(_ context.Context, id string) (*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.products[id]
	if !exists {
		return nil, repository.ErrProductNotFound
	}
	p = cloneProduct(p)
	return &p, nil
}

func cloneProduct(p model.Product) model.Product {
	p.Images = append([]string{}, p.Images...)
	if p.Description != nil {
		d := *p.Description
		p.Description = &d
	}
	return p
}
