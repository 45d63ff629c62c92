// Package router wires the HTTP surface: payment and split endpoints
// behind API-key authentication, public status/webhook/health routes,
// and the Prometheus scrape endpoint.
package router

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PeterH4ck/SKYN3T-Control--sub000/handler"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/middle"

	// Import for side-effect registration
	_ "github.com/PeterH4ck/SKYN3T-Control--sub000/provider/khipu"
	_ "github.com/PeterH4ck/SKYN3T-Control--sub000/provider/mercadopago"
	_ "github.com/PeterH4ck/SKYN3T-Control--sub000/provider/webpay"
)

// Handlers bundles everything the route table needs
type Handlers struct {
	Payment *handler.PaymentHandler
	Split   *handler.SplitHandler
	Webhook *handler.WebhookHandler
	Health  *handler.HealthHandler
}

// Routes mounts all endpoints on the router
func Routes(r chi.Router, h Handlers) {
	// Public: health, metrics, webhooks and the status poll used by
	// provider redirect pages
	r.Get("/health", h.Health.Health)
	r.Get("/health/providers", h.Health.ProviderHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/{provider}", h.Webhook.HandleWebhook)
	})

	r.Route("/v1/payments", func(r chi.Router) {
		// Status poll stays public for provider redirect pages
		r.Get("/{paymentID}/status", h.Payment.GetPaymentStatus)

		// Everything else requires the API key
		r.Group(func(r chi.Router) {
			r.Use(middle.AuthMiddleware())

			r.Post("/", h.Payment.CreatePayment)
			r.Get("/", h.Payment.ListPayments)

			r.Route("/split", func(r chi.Router) {
				r.Post("/", h.Split.CreateSplit)
				r.Get("/{splitID}/status", h.Split.GetSplitStatus)
				r.Post("/{splitID}/cancel", h.Split.CancelSplit)
			})

			r.Get("/{paymentID}", h.Payment.GetPayment)
			r.Put("/{paymentID}/capture", h.Payment.CapturePayment)
			r.Delete("/{paymentID}", h.Payment.CancelPayment)
			r.Post("/{paymentID}/refund", h.Payment.RefundPayment)
			r.Post("/{paymentID}/retry", h.Payment.RetryPayment)
		})
	})
}
