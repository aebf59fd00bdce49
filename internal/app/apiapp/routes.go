package apiapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/agolubenk/hr-hf-helper-sub001/internal/config"
	authsvc "github.com/agolubenk/hr-hf-helper-sub001/internal/services/auth"
	tgsvc "github.com/agolubenk/hr-hf-helper-sub001/internal/services/telegram"
	"github.com/agolubenk/hr-hf-helper-sub001/internal/transport/http/handlers"
)

type Dependencies struct {
	AuthService     *authsvc.Service
	TelegramService *tgsvc.Service
	Logger          *zap.Logger
	Config          config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	authHandler := handlers.NewAuthHandler(deps.AuthService)
	healthHandler := handlers.NewHealthHandler()
	telegramAuthHandler := handlers.NewTelegramAuthHandler(deps.TelegramService)
	telegramChatsHandler := handlers.NewTelegramChatsHandler(deps.TelegramService)

	authMW := AuthMiddleware(deps.AuthService, deps.Logger)

	r.Get("/healthz", healthHandler.Get)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", authHandler.Login)
		r.Post("/refresh", authHandler.Refresh)
		r.With(authMW).Get("/me", authHandler.Me)
		r.With(authMW).Post("/logout", authHandler.Logout)
		r.With(authMW).Post("/logout_all", authHandler.LogoutAll)
	})

	r.Route("/api/telegram", func(r chi.Router) {
		r.Use(authMW)
		r.Post("/auth/qr", telegramAuthHandler.GenerateQR)
		r.Post("/auth/qr/recreate", telegramAuthHandler.RecreateQR)
		r.Post("/auth/qr/status", telegramAuthHandler.Status)
		r.Post("/auth/verify", telegramAuthHandler.Verify)
		r.Get("/auth/attempts", telegramAuthHandler.History)
		r.Post("/session/reset", telegramAuthHandler.Reset)
		r.Post("/session/disconnect", telegramAuthHandler.Disconnect)
		r.Delete("/session", telegramAuthHandler.Unlink)
		r.Get("/chats", telegramChatsHandler.List)
		r.Get("/chats/{chatID}/messages", telegramChatsHandler.Messages)
	})
}
