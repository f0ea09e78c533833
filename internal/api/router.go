package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roastery/accounts/internal/handlers"
	"github.com/roastery/accounts/internal/middleware"
	"github.com/roastery/accounts/internal/services"
)

// NewRouter builds the Gin engine, wires middleware and registers the
// account lifecycle routes.
func NewRouter(accounts *services.AccountService, pictures *services.ProfilePictureService) (*gin.Engine, error) {
	if accounts == nil {
		return nil, fmt.Errorf("account service must be provided")
	}
	if pictures == nil {
		return nil, fmt.Errorf("profile picture service must be provided")
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS())

	// Health endpoint (public)
	r.GET("/health", handlers.Health())

	accountHandler := handlers.NewAccountHandler(accounts, pictures)

	r.POST("/register", accountHandler.Register)
	r.GET("/verify/:token", accountHandler.VerifyEmail)
	r.GET("/user-exist", accountHandler.UserExists)
	r.POST("/login", accountHandler.Login)
	r.POST("/forgot-password", accountHandler.ForgotPassword)
	r.POST("/reset-password/:token", accountHandler.ResetPassword)
	r.POST("/upload-profile-pic", accountHandler.UploadProfilePicture)

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
