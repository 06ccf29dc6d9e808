package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/storefront/storefront-go/internal/crypto"
	"github.com/storefront/storefront-go/internal/middleware"
	"github.com/storefront/storefront-go/internal/service"
)

// RouterConfig carries everything the HTTP surface depends on.
type RouterConfig struct {
	Auth     *service.AuthService
	Products *service.ProductService
	Tokens   *crypto.TokenIssuer

	// CORSOrigin is the single browser origin allowed to call the API.
	CORSOrigin string

	// AuthRPS and AuthBurst bound per-IP traffic to the credential
	// endpoints. Zero values use 5 rps with a burst of 10.
	AuthRPS   float64
	AuthBurst int
}

// NewRouter builds the API router. Background work started for the router,
// such as rate limiter eviction, stops when ctx is cancelled.
func NewRouter(ctx context.Context, cfg RouterConfig) http.Handler {
	if cfg.AuthRPS <= 0 {
		cfg.AuthRPS = 5
	}
	if cfg.AuthBurst <= 0 {
		cfg.AuthBurst = 10
	}

	authHandler := NewAuthHandler(cfg.Auth)
	productHandler := NewProductHandler(cfg.Products)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(ctx, cfg.AuthRPS, cfg.AuthBurst))
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/refresh", authHandler.HandleRefresh)
	})

	r.Get("/products", productHandler.HandleListProducts)
	r.Get("/products/{id}", productHandler.HandleGetProduct)

	r.Group(func(r chi.Router) {
		r.Use(middleware.JWTAuth(cfg.Tokens))
		r.Post("/products", productHandler.HandleCreateProduct)
	})

	return r
}
