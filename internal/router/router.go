package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"genstudio/internal/handlers"
	"genstudio/internal/middleware"
	"genstudio/internal/models"
	"genstudio/internal/websocket"
)

// Deps is everything the router mounts.
type Deps struct {
	JWTAuth           *middleware.JWTAuth
	AuthHandler       *handlers.AuthHandler
	UserHandler       *handlers.UserHandler
	ProfileHandler    *handlers.ProfileHandler
	GenerationHandler *handlers.GenerationHandler
	Hub               *websocket.Hub
	Ping              func(ctx context.Context) error
	UploadDir         string
	FrontendURL       string
	AuthRateLimit     int
	Logger            logrus.FieldLogger
}

// New builds the HTTP handler. The returned limiter must be closed on
// shutdown.
func New(d Deps) (http.Handler, *middleware.RateLimiter) {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(middleware.CORS(d.FrontendURL))

	limit := d.AuthRateLimit
	if limit <= 0 {
		limit = 10
	}
	authLimiter := middleware.NewRateLimiter(limit, time.Minute)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if d.Ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.Ping(ctx); err != nil {
				d.Logger.WithError(err).Warn("health check failed")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(d.UploadDir))))

	// ──── Standard Auth Routes ────
	r.Group(func(r chi.Router) {
		r.Use(authLimiter.Middleware)
		r.Post("/register", d.AuthHandler.Register)
		r.Post("/login", d.AuthHandler.Login)
		r.Post("/refresh", d.AuthHandler.Refresh)
		r.Post("/logout", d.AuthHandler.Logout)
	})

	// ──── Users ────
	r.Route("/users/me", func(r chi.Router) {
		r.Use(d.JWTAuth.Middleware)
		r.Get("/", d.UserHandler.GetMe)
		r.Patch("/", d.UserHandler.UpdateMe)
		r.Post("/password", d.UserHandler.ChangePassword)
		r.Post("/avatar", d.UserHandler.UploadAvatar)
	})

	// ──── AI Profiles ────
	r.Route("/profiles/ai/{id}", func(r chi.Router) {
		r.Use(d.JWTAuth.Middleware)
		r.Use(middleware.RequireAccountType(models.AccountAI))
		r.Patch("/", d.ProfileHandler.UpdateAIProfile)
		r.Post("/logo", d.ProfileHandler.UploadLogo)
	})

	r.Route("/ai", func(r chi.Router) {

		// ──── AI Auth Routes ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/register", d.AuthHandler.RegisterAI)
			r.Post("/login", d.AuthHandler.LoginAI)
			r.Post("/verify-email", d.AuthHandler.VerifyEmail)
			r.Post("/resend-otp", d.AuthHandler.ResendOTP)
			r.Post("/refresh", d.AuthHandler.RefreshAI)
			r.Post("/logout", d.AuthHandler.Logout)
		})

		r.Get("/plans", d.GenerationHandler.Plans)

		// ──── Generations ────
		r.Route("/generations", func(r chi.Router) {
			r.Use(d.JWTAuth.Middleware)
			r.Use(middleware.RequireAccountType(models.AccountAI))
			r.Post("/", d.GenerationHandler.Submit)
			r.Get("/", d.GenerationHandler.List)
			r.Post("/uploads", d.GenerationHandler.UploadReference)
			r.Get("/{id}", d.GenerationHandler.Get)
		})

		// ──── WebSocket ────
		r.Get("/ws", d.Hub.HandleWebSocket)
	})

	return r, authLimiter
}
