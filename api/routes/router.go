package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/wabaledger/api/controllers"
	webhookcontrollers "github.com/angelmondragon/wabaledger/api/controllers/webhooks"
	"github.com/angelmondragon/wabaledger/api/middleware"
	"github.com/angelmondragon/wabaledger/pkg/config"
	"github.com/angelmondragon/wabaledger/pkg/logger"
	"github.com/angelmondragon/wabaledger/pkg/metrics"
)

// RouterParams carries the API's wired dependencies. Nil pingers are skipped
// by the readiness probe; a nil Gatherer disables /metrics.
type RouterParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             controllers.Pinger
	Redis          controllers.Pinger
	Queue          webhookcontrollers.EnvelopeQueue
	FailedWebhooks webhookcontrollers.FailedRecorder
	SendResponses  controllers.SendResponseIngester
	Gatherer       prometheus.Gatherer
	IngressMetrics *metrics.IngressMetrics
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    p.DB,
			"redis": p.Redis,
		}))
	})

	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Get("/whatsapp", webhookcontrollers.WhatsAppVerify(cfg.WhatsApp, logg))
		r.Post("/whatsapp", webhookcontrollers.WhatsAppWebhook(p.Queue, p.FailedWebhooks, cfg.WhatsApp, p.IngressMetrics, logg))
	})

	r.Route("/api/internal/v1", func(r chi.Router) {
		r.Post("/send-responses", controllers.SendResponses(p.SendResponses, logg))
	})

	return r
}
