package http

import (
	"net/http"

	"github.com/drs-api/internal/application/account"
	"github.com/drs-api/internal/application/auth"
	"github.com/drs-api/internal/application/contact"
	"github.com/drs-api/internal/config"
	"github.com/drs-api/internal/domain"
	"github.com/drs-api/internal/transport/http/handler"
	appmiddleware "github.com/drs-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

var (
	public       = appmiddleware.RoutePolicy{Public: true}
	doctorOnly   = appmiddleware.RoutePolicy{Roles: []string{domain.RoleDoctor}}
	activeAdmin  = appmiddleware.RoutePolicy{RequireActiveAdmin: true}
	currentAdmin = appmiddleware.RoutePolicy{RequireActiveAdmin: true, MatchTokenEmail: true}
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(appmiddleware.RequestLogger(deps.Log, deps.IPs))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(chimiddleware.RequestSize(maxBodyBytes))

	gate := appmiddleware.NewGate(deps.Tokens, deps.Admins, deps.Log, deps.Metrics)
	authRL := appmiddleware.RateLimit(deps.AuthLimiter, deps.IPs, "auth", deps.Log, deps.Metrics)
	contactRL := appmiddleware.RateLimit(deps.ContactLimiter, deps.IPs, "contact", deps.Log, deps.Metrics)

	authSvc := auth.NewService(auth.ServiceDeps{
		Admins:   deps.Admins,
		Doctors:  deps.Doctors,
		Hasher:   deps.Hasher,
		OTP:      deps.OTP,
		Tokens:   deps.Tokens,
		Notifier: deps.Notifier,
		Log:      deps.Log,
		Metrics:  deps.Metrics,
		Now:      deps.Now,
		Options: auth.Options{
			AdminSessionTTL:  cfg.AdminSessionTTL,
			DoctorSessionTTL: cfg.DoctorSessionTTL,
			OTPTTL:           cfg.OTPTTL,
			FrontendURL:      cfg.FrontendURL,
			EmailChangeLink:  cfg.EmailChangeLink,
		},
	})
	accountSvc := account.NewService(deps.Admins, deps.Doctors)
	contactSvc := contact.NewService(deps.Contacts, deps.Notifier, deps.Log)

	healthH := handler.NewHealthHandler()
	adminH := handler.NewAccountHandler(domain.KindAdmin, authSvc, accountSvc)
	doctorH := handler.NewAccountHandler(domain.KindDoctor, authSvc, accountSvc)
	emailH := handler.NewEmailConfirmHandler(authSvc, cfg.FrontendURL)
	contactH := handler.NewContactHandler(contactSvc)

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.With(gate.Guard(public)).Get("/health-check/{action}", healthH.Ping)

		r.Route("/admins", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(gate.Guard(public), authRL)
				r.Post("/verify-signup", adminH.VerifySignup)
				r.Post("/login-request", adminH.LoginRequest)
				r.Post("/login", adminH.Login)
				r.Post("/reset-password-request", adminH.ResetPasswordRequest)
				r.Post("/reset-password", adminH.ResetPassword)
				r.Post("/resend-code", adminH.ResendCode)
			})
			r.With(gate.Guard(currentAdmin), authRL).Post("/signup", adminH.Signup)

			r.Group(func(r chi.Router) {
				r.Use(gate.Guard(activeAdmin))
				r.Get("/", adminH.List)
				r.Get("/me", adminH.Me)
				r.Patch("/me/password", adminH.ChangePassword)
				r.Put("/me/pages", adminH.UpdatePages)
			})
			r.Group(func(r chi.Router) {
				r.Use(gate.Guard(currentAdmin))
				r.Put("/me", adminH.UpdateProfile)
				r.Patch("/{id}/toggle-active", adminH.ToggleActive)
			})
		})

		r.Route("/doctors", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(gate.Guard(public), authRL)
				r.Post("/signup", doctorH.Signup)
				r.Post("/verify-signup", doctorH.VerifySignup)
				r.Post("/login", doctorH.Login)
				r.Post("/reset-password-request", doctorH.ResetPasswordRequest)
				r.Post("/reset-password", doctorH.ResetPassword)
				r.Post("/resend-code", doctorH.ResendCode)
			})

			r.Group(func(r chi.Router) {
				r.Use(gate.Guard(doctorOnly))
				r.Get("/me", doctorH.Me)
				r.Put("/me", doctorH.UpdateProfile)
				r.Patch("/me/password", doctorH.ChangePassword)
			})

			r.With(gate.Guard(activeAdmin)).Get("/", doctorH.List)
			r.With(gate.Guard(currentAdmin)).Patch("/{id}/toggle-active", doctorH.ToggleActive)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Use(gate.Guard(public))
			r.Get("/confirm-email", emailH.Redirect)
			r.With(authRL).Post("/confirm-email", emailH.Confirm)
		})

		r.Route("/contact", func(r chi.Router) {
			r.With(gate.Guard(public), contactRL).Post("/", contactH.Submit)
			r.With(gate.Guard(currentAdmin)).Get("/", contactH.List)
		})
	})

	return r
}
