package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storefront/storefront-go/internal/middleware"
	"github.com/storefront/storefront-go/internal/model"
	"github.com/storefront/storefront-go/internal/service"
)

// ProductHandler handles HTTP requests for the product catalogue.
type ProductHandler struct {
	service *service.ProductService
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(svc *service.ProductService) *ProductHandler {
	return &ProductHandler{service: svc}
}

// HandleCreateProduct handles POST /products requests.
func (h *ProductHandler) HandleCreateProduct(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}

	var req model.CreateProductRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	product, err := h.service.CreateProduct(r.Context(), principal.AccountID, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTitleAndPriceRequired),
			errors.Is(err, service.ErrInvalidPrice),
			errors.Is(err, service.ErrTitleTooLong),
			errors.Is(err, service.ErrImagesNotArray):
			writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
		case errors.Is(err, service.ErrProductConflict):
			writeJSON(w, http.StatusConflict, errorResponse(err.Error()))
		default:
			internalError(w, r, "create product failed", err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, model.CreateProductResponse{
		Message: "product created",
		Product: product,
	})
}

// HandleListProducts handles GET /products requests.
func (h *ProductHandler) HandleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		internalError(w, r, "list products failed", err)
		return
	}

	writeJSON(w, http.StatusOK, products)
}

// HandleGetProduct handles GET /products/{id} requests.
func (h *ProductHandler) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse(err.Error()))
			return
		}
		internalError(w, r, "get product failed", err)
		return
	}

	writeJSON(w, http.StatusOK, product)
}
