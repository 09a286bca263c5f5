package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type RouterOptions struct {
	Logger             *zap.Logger
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	SecureCookies      bool
}

func NewRouter(cart *CartHandler, checkoutHandler *CheckoutHandler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(AccessLog(opts.Logger))
	r.Use(middleware.Timeout(opts.RequestTimeout))
	if opts.MaxRequestBodySize > 0 {
		r.Use(middleware.RequestSize(opts.MaxRequestBodySize))
	}
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(SessionMiddleware(opts.SecureCookies))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cart.GetCart)
			r.Post("/", cart.CreateCart)
			r.Patch("/", cart.UpdateCart)
			r.Get("/totals", cart.GetTotals)
			r.Post("/items", cart.AddItem)
			r.Put("/items/{item_id}", cart.UpdateQuantity)
			r.Delete("/items/{item_id}", cart.RemoveItem)
			r.Put("/items/{item_id}/selected", cart.SelectItem)
			r.Post("/promotions", cart.ApplyPromotions)
			r.Delete("/promotions/{code}", cart.RemovePromotion)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", checkoutHandler.GetCheckout)
			r.Put("/step", checkoutHandler.GoToStep)
			r.Post("/addresses", checkoutHandler.SetAddresses)
			r.Get("/shipping-options", checkoutHandler.ListShippingOptions)
			r.Post("/shipping-method", checkoutHandler.SetShippingMethod)
			r.Get("/payment-providers", checkoutHandler.ListPaymentProviders)
			r.Post("/payment-session", checkoutHandler.InitiatePaymentSession)
			r.Post("/payment-authorization", checkoutHandler.AuthorizePayment)
			r.Post("/complete", checkoutHandler.Complete)
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}
