package api

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"nexus-billing/internal/usecase"
)

// SweepRunner triggers one refund sweep on demand.
type SweepRunner interface {
	RunOnce(ctx context.Context) (*usecase.SweepResult, error)
}

type Options struct {
	RequestTimeout  time.Duration
	PublicRPS       float64
	PublicBurst     int
	WebhookMaxBytes int64
	// Ready reports whether dependencies are reachable; nil means always ready.
	Ready func(ctx context.Context) error
	Dev   bool
}

// Server exposes the billing use cases over HTTP.
type Server struct {
	payments usecase.PaymentUseCase
	refunds  usecase.RefundUseCase
	webhooks usecase.WebhookUseCase
	otp      usecase.OTPUseCase
	sweeper  SweepRunner
	auth     *Authenticator
	validate *validator.Validate
	opts     Options
	log      *zerolog.Logger
}

func NewServer(
	payments usecase.PaymentUseCase,
	refunds usecase.RefundUseCase,
	webhooks usecase.WebhookUseCase,
	otp usecase.OTPUseCase,
	sweeper SweepRunner,
	auth *Authenticator,
	opts Options,
	logger *zerolog.Logger,
) *Server {
	if opts.WebhookMaxBytes <= 0 {
		opts.WebhookMaxBytes = 64 << 10
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	l := logger.With().Str("component", "api").Logger()
	return &Server{
		payments: payments,
		refunds:  refunds,
		webhooks: webhooks,
		otp:      otp,
		sweeper:  sweeper,
		auth:     auth,
		validate: v,
		opts:     opts,
		log:      &l,
	}
}

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP, TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/livez", s.handleLive)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// the gateway posts raw signed bodies here
		r.Post("/webhooks/stripe", s.handleWebhook)
		r.Post("/stripe/webhook", s.handleWebhook)

		r.Group(func(r chi.Router) {
			r.Use(Timeout(s.opts.RequestTimeout))

			r.Group(func(r chi.Router) {
				r.Use(RateLimit("public", s.opts.PublicRPS, s.opts.PublicBurst))
				r.Get("/services", s.handleListServices)
				r.Post("/otp/request", s.handleOTPRequest)
				r.Post("/otp/verify", s.handleOTPVerify)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.auth.Require(RoleUser, RoleAdmin))
				r.Post("/payments/create-checkout-session", s.handleCheckout)
				r.Get("/payments/my-payments", s.handleMyPayments)
				r.Get("/payments/{id}", s.handleMyPayment)
				r.Post("/refunds/request", s.handleRefundRequest)
				r.Get("/refunds/my-refunds", s.handleMyRefunds)
				r.Get("/purchases/mine", s.handleMyPurchases)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.auth.Require(RoleAdmin))

				r.Get("/payments", s.handleAdminPayments)
				r.Get("/payments/analytics/overview", s.handlePaymentAnalytics)
				r.Get("/payments/status/{status}", s.handlePaymentsByStatus)
				r.Get("/payments/{id}", s.handleAdminPayment)
				r.Put("/payments/{id}/status", s.handlePaymentOverride)

				r.Get("/refunds/all", s.handleAdminRefunds)
				r.Get("/refunds/stats", s.handleRefundStats)
				r.Post("/refunds/sweep", s.handleSweep)
				r.Get("/refunds/{id}", s.handleAdminRefund)
				r.Put("/refunds/{id}/status", s.handleRefundDecision)
				r.Post("/refunds/{id}/check", s.handleRefundCheck)
			})
		})
	})
	return r
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.opts.Ready(ctx); err != nil {
			s.log.Warn().Err(err).Msg("readiness check failed")
			writeMessage(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
