package model

import "time"

// Product represents a listed product.
type Product struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Price       float64   `json:"price"`
	Images      []string  `json:"images"`
	OwnerID     string    `json:"ownerId"`
	Owner       Owner     `json:"owner"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Owner is the public view of the account owning a product.
type Owner struct {
	ID string `json:"id"`
}

// CreateProductRequest represents a product creation request.
// Price and Images are decoded loosely so that wrong JSON types surface as
// validation errors instead of decode failures.
type CreateProductRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Price       any     `json:"price"`
	Images      any     `json:"images"`
}

// CreateProductResponse is returned after a product is created.
type CreateProductResponse struct {
	Message string  `json:"message"`
	Product Product `json:"product"`
}
