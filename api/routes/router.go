package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bijaykarki/meromart-backend/api/controllers"
	"github.com/bijaykarki/meromart-backend/api/middleware"
	"github.com/bijaykarki/meromart-backend/internal/cart"
	"github.com/bijaykarki/meromart-backend/internal/orders"
	"github.com/bijaykarki/meromart-backend/internal/payments"
	"github.com/bijaykarki/meromart-backend/internal/products"
	"github.com/bijaykarki/meromart-backend/internal/promos"
	"github.com/bijaykarki/meromart-backend/internal/vendors"
	"github.com/bijaykarki/meromart-backend/internal/wishlist"
	"github.com/bijaykarki/meromart-backend/pkg/config"
	"github.com/bijaykarki/meromart-backend/pkg/db"
	"github.com/bijaykarki/meromart-backend/pkg/logger"
	"github.com/bijaykarki/meromart-backend/pkg/redis"
)

// Services bundles everything the router hands to its handlers.
type Services struct {
	Orders   orders.Service
	Payments payments.Service
	Cart     cart.Service
	Wishlist wishlist.Service
	Products products.Service
	Promos   promos.Service
	Vendors  vendors.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	database db.Pinger,
	cache redis.Pinger,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Frontend.BaseURL),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, database, cache, logg))
	})

	// Public surface: catalog browsing, vendor onboarding, order tracking
	// and the gateway return/webhook endpoints the customer's browser or
	// the gateway itself hits without a bearer token.
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ListProducts(svcs.Products, logg))
			r.Get("/{productId}", controllers.ProductDetail(svcs.Products, logg))
		})

		r.Post("/vendors/register", controllers.RegisterVendor(svcs.Vendors, logg))

		r.Get("/orders/{orderId}/track", controllers.TrackOrder(svcs.Orders, logg))
		r.Route("/orders/payment", func(r chi.Router) {
			r.Get("/success", controllers.PaymentSuccess(svcs.Payments, logg))
			r.Get("/cancel", controllers.PaymentCancel(svcs.Payments, logg))
		})
		r.Get("/payments/notification", controllers.PaymentNotification(svcs.Payments, logg))

		// Authenticated customer surface.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", controllers.CreateOrder(svcs.Orders, logg))
				r.Get("/", controllers.ListOrders(svcs.Orders, logg))
				r.Get("/{orderId}", controllers.OrderDetail(svcs.Orders, logg))
			})

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.GetCart(svcs.Cart, logg))
				r.Post("/items", controllers.AddCartItem(svcs.Cart, logg))
				r.Patch("/items/{itemId}", controllers.UpdateCartItem(svcs.Cart, logg))
				r.Delete("/items/{itemId}", controllers.RemoveCartItem(svcs.Cart, logg))
			})

			r.Route("/wishlist", func(r chi.Router) {
				r.Get("/", controllers.ListWishlist(svcs.Wishlist, logg))
				r.Post("/", controllers.AddWishlistItem(svcs.Wishlist, logg))
				r.Delete("/{productId}", controllers.RemoveWishlistItem(svcs.Wishlist, logg))
			})
		})

		// Vendor surface: catalog management for approved sellers.
		r.Route("/vendor", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RequireRole("vendor", logg))

			r.Post("/products", controllers.CreateProduct(svcs.Products, logg))
			r.Patch("/products/{productId}", controllers.UpdateProduct(svcs.Products, logg))
			r.Delete("/products/{productId}", controllers.DeleteProduct(svcs.Products, logg))
		})

		// Admin surface.
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RequireRole("admin", logg))

			r.Route("/vendors", func(r chi.Router) {
				r.Get("/", controllers.ListVendors(svcs.Vendors, logg))
				r.Get("/{vendorId}", controllers.VendorDetail(svcs.Vendors, logg))
				r.Post("/{vendorId}/approve", controllers.ApproveVendor(svcs.Vendors, logg))
				r.Post("/{vendorId}/reject", controllers.RejectVendor(svcs.Vendors, logg))
			})

			r.Route("/promos", func(r chi.Router) {
				r.Get("/", controllers.ListPromos(svcs.Promos, logg))
				r.Post("/", controllers.CreatePromo(svcs.Promos, logg))
				r.Patch("/{promoId}", controllers.UpdatePromo(svcs.Promos, logg))
				r.Delete("/{promoId}", controllers.DeletePromo(svcs.Promos, logg))
			})

			r.Route("/orders", func(r chi.Router) {
				r.Patch("/{orderId}/status", controllers.UpdateOrderStatus(svcs.Orders, logg))
				r.Delete("/", controllers.BulkDeleteOrders(svcs.Orders, logg))
			})

			r.Post("/products", controllers.CreateProduct(svcs.Products, logg))
			r.Patch("/products/{productId}", controllers.UpdateProduct(svcs.Products, logg))
			r.Delete("/products/{productId}", controllers.DeleteProduct(svcs.Products, logg))
		})
	})

	return r
}
