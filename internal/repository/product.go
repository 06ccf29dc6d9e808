package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/storefront/storefront-go/internal/model"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrProductConflict = errors.New("product conflicts with existing data")
)

const productColumns = `id, title, description, price, images, owner_id, created_at`

// ProductRepository handles product persistence operations.
type ProductRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new ProductRepository.
func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Create inserts a new product.
func (r *ProductRepository) Create(ctx context.Context, product *model.Product) error {
	images, err := json.Marshal(nonNilImages(product.Images))
	if err != nil {
		return fmt.Errorf("encoding images: %w", err)
	}

	query := `INSERT INTO products (` + productColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		product.ID, product.Title, product.Description, product.Price, images, product.OwnerID, product.CreatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) || isForeignKeyError(err) {
			return ErrProductConflict
		}
		return fmt.Errorf("inserting product: %w", err)
	}

	product.Owner = model.Owner{ID: product.OwnerID}
	return nil
}

// List retrieves all products, newest first.
func (r *ProductRepository) List(ctx context.Context) ([]model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	defer rows.Close()

	products := []model.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}

	return products, rows.Err()
}

// GetByID retrieves a product by its ID.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ?`

	p, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	return p, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner) (*model.Product, error) {
	var (
		p           model.Product
		description sql.NullString
		images      []byte
	)

	if err := s.Scan(&p.ID, &p.Title, &description, &p.Price, &images, &p.OwnerID, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning product: %w", err)
	}

	if description.Valid {
		p.Description = &description.String
	}
	if err := json.Unmarshal(images, &p.Images); err != nil {
		return nil, fmt.Errorf("decoding images of product %s: %w", p.ID, err)
	}
	p.Images = nonNilImages(p.Images)
	p.Owner = model.Owner{ID: p.OwnerID}

	return &p, nil
}

func nonNilImages(images []string) []string {
	if images == nil {
		return []string{}
	}
	return images
}
