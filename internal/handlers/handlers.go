package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"examprep/backend/internal/cache"
	"examprep/backend/internal/config"
	"examprep/backend/internal/middleware"
	"examprep/backend/internal/models"
	"examprep/backend/internal/repository"
	"examprep/backend/internal/security"
	"examprep/backend/internal/service"
)

type HandlerSet struct {
	log   zerolog.Logger
	cfg   *config.AppConfig
	auth  *service.AuthService
	admin *service.AdminService
	gate  *service.AuthGate
	store repository.Store
	cache *redis.Client
}

// NewHandlerSet wires the services over store. A nil redisClient disables
// login throttling.
func NewHandlerSet(log zerolog.Logger, store repository.Store, redisClient *redis.Client, cfg *config.AppConfig) (HandlerSet, error) {
	hasher, err := security.NewPasswordHasher(cfg.Security.BcryptCost)
	if err != nil {
		return HandlerSet{}, fmt.Errorf("password hasher: %w", err)
	}
	tokens, err := security.NewTokenIssuer(cfg.Security.JWTSecret, cfg.Security.TokenTTL)
	if err != nil {
		return HandlerSet{}, fmt.Errorf("token issuer: %w", err)
	}

	var limiter service.LoginLimiter = service.NopLimiter{}
	if redisClient != nil {
		limiter = cache.NewLoginLimiter(redisClient, cfg.Security.LoginMaxAttempts, cfg.Security.LoginWindow)
	}

	return HandlerSet{
		log:   log,
		cfg:   cfg,
		auth:  service.NewAuthService(store, hasher, tokens, limiter, log),
		admin: service.NewAdminService(store, log),
		gate:  service.NewAuthGate(store, tokens, log),
		store: store,
		cache: redisClient,
	}, nil
}

func (h HandlerSet) Routes(router *gin.RouterGroup) {
	router.GET("/health", h.Health)

	auth := router.Group("/auth")
	auth.POST("/register", h.Register)
	auth.POST("/login", h.Login)
	auth.POST("/logout", h.Logout)
	auth.GET("/profile", middleware.Auth(h.gate, h.log), h.Profile)

	admin := router.Group("/admin")
	admin.Use(
		middleware.Auth(h.gate, h.log),
		middleware.RequireRoles(models.UserRoleAdmin),
	)
	admin.GET("/users", h.AdminListUsers)
	admin.GET("/users/search", h.AdminSearchUsers)
	admin.GET("/users/:id", h.AdminGetUser)
	admin.PUT("/users/:id/permissions", h.AdminUpdatePermissions)
	admin.PATCH("/users/:id/status", h.AdminUpdateStatus)
	admin.GET("/users/:id/sessions", h.AdminListSessions)
	admin.POST("/users/:id/logout-all", h.AdminLogoutAll)
	admin.DELETE("/users/:id", h.AdminDeleteUser)
}
