package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/storefront/storefront-go/internal/cache"
	"github.com/storefront/storefront-go/internal/clock"
	"github.com/storefront/storefront-go/internal/model"
	"github.com/storefront/storefront-go/internal/repository"
)

var (
	ErrTitleAndPriceRequired = errors.New("title and price are required")
	ErrInvalidPrice          = errors.New("price must be a positive number")
	ErrImagesNotArray        = errors.New("images must be an array of URLs")
	ErrTitleTooLong          = fmt.Errorf("title must be at most %d characters", MaxTitleLength)
	ErrOwnerRequired         = errors.New("owner is required")
	ErrProductNotFound       = errors.New("product not found")
	ErrProductConflict       = errors.New("product conflicts with existing data")
)

// MaxTitleLength is the longest product title the store column accepts.
const MaxTitleLength = 255

// ProductStore persists products.
type ProductStore interface {
	Create(ctx context.Context, product *model.Product) error
	List(ctx context.Context) ([]model.Product, error)
	GetByID(ctx context.Context, id string) (*model.Product, error)
}

// ProductService handles product business logic.
type ProductService struct {
	repo  ProductStore
	cache cache.ProductCache
	clock clock.Clock
}

// NewProductService creates a new ProductService. A nil cache disables caching.
func NewProductService(repo ProductStore, c cache.ProductCache, clk clock.Clock) *ProductService {
	if c == nil {
		c = cache.Nop{}
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &ProductService{repo: repo, cache: c, clock: clk}
}

// CreateProduct validates req and stores a product owned by ownerID.
func (s *ProductService) CreateProduct(ctx context.Context, ownerID string, req model.CreateProductRequest) (model.Product, error) {
	if ownerID == "" {
		return model.Product{}, ErrOwnerRequired
	}

	title := strings.TrimSpace(req.Title)
	price, err := validatePrice(req.Price)
	if title == "" || errors.Is(err, ErrTitleAndPriceRequired) {
		return model.Product{}, ErrTitleAndPriceRequired
	}
	if err != nil {
		return model.Product{}, err
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return model.Product{}, ErrTitleTooLong
	}

	images, err := cleanImages(req.Images)
	if err != nil {
		return model.Product{}, err
	}

	product := model.Product{
		ID:          uuid.NewString(),
		Title:       title,
		Description: cleanDescription(req.Description),
		Price:       price,
		Images:      images,
		OwnerID:     ownerID,
		CreatedAt:   s.clock.Now(),
	}

	if err := s.repo.Create(ctx, &product); err != nil {
		if errors.Is(err, repository.ErrProductConflict) {
			return model.Product{}, ErrProductConflict
		}
		return model.Product{}, err
	}

	if err := s.cache.InvalidateProducts(ctx); err != nil {
		slog.Warn("product cache invalidation failed", "error", err)
	}

	return product, nil
}

// ListProducts returns every product, newest first.
func (s *ProductService) ListProducts(ctx context.Context) ([]model.Product, error) {
	products, gen, ok, err := s.cache.Products(ctx)
	if err != nil {
		slog.Warn("product cache read failed", "error", err)
	}
	if ok {
		return products, nil
	}
	cacheable := err == nil

	products, err = s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []model.Product{}
	}

	if cacheable {
		if err := s.cache.SetProducts(ctx, gen, products); err != nil {
			slog.Warn("product cache write failed", "error", err)
		}
	}

	return products, nil
}

// GetProduct returns a single product.
func (s *ProductService) GetProduct(ctx context.Context, id string) (model.Product, error) {
	// Identifiers are UUIDs; anything else cannot exist.
	if _, err := uuid.Parse(id); err != nil {
		return model.Product{}, ErrProductNotFound
	}

	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return model.Product{}, ErrProductNotFound
		}
		return model.Product{}, err
	}

	return *product, nil
}

// validatePrice accepts only positive JSON numbers. Missing or falsy values
// count as absent.
func validatePrice(v any) (float64, error) {
	switch p := v.(type) {
	case nil:
		return 0, ErrTitleAndPriceRequired
	case float64:
		if p == 0 {
			return 0, ErrTitleAndPriceRequired
		}
		if p < 0 {
			return 0, ErrInvalidPrice
		}
		return p, nil
	case bool:
		if !p {
			return 0, ErrTitleAndPriceRequired
		}
	case string:
		if p == "" {
			return 0, ErrTitleAndPriceRequired
		}
	}
	return 0, ErrInvalidPrice
}

// cleanImages keeps the non-blank string entries of an images array,
// trimmed and in order.
func cleanImages(v any) ([]string, error) {
	if v == nil {
		return []string{}, nil
	}

	raw, ok := v.([]any)
	if !ok {
		return nil, ErrImagesNotArray
	}

	images := make([]string, 0, len(raw))
	for _, item := range raw {
		url, ok := item.(string)
		if !ok {
			continue
		}
		if url = strings.TrimSpace(url); url != "" {
			images = append(images, url)
		}
	}
	return images, nil
}

func cleanDescription(d *string) *string {
	if d == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*d)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
