package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roastery/accounts/internal/services"
	appErrors "github.com/roastery/accounts/pkg/errors"
	"github.com/roastery/accounts/pkg/logger"
	"github.com/roastery/accounts/pkg/metrics"
	"github.com/roastery/accounts/pkg/response"
)

// AccountHandler exposes the account lifecycle endpoints.
type AccountHandler struct {
	accounts *services.AccountService
	pictures *services.ProfilePictureService
	log      *zap.Logger
}

// NewAccountHandler configures an account handler with required services.
func NewAccountHandler(accounts *services.AccountService, pictures *services.ProfilePictureService) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		pictures: pictures,
		log:      logger.WithModule("http.accounts"),
	}
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,max=128"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword" validate:"required"`
}

// POST /register
func (h *AccountHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	_, err := h.accounts.Register(requestContext(c), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			metrics.Registrations.WithLabelValues("duplicate").Inc()
		} else {
			metrics.Registrations.WithLabelValues("error").Inc()
		}
		h.respondError(c, err)
		return
	}

	metrics.Registrations.WithLabelValues("success").Inc()
	response.Message(c, http.StatusCreated, "Registration successful. Please check your email for verification.")
}

// GET /verify/:token
func (h *AccountHandler) VerifyEmail(c *gin.Context) {
	if err := h.accounts.VerifyEmail(requestContext(c), c.Param("token")); err != nil {
		h.respondError(c, err)
		return
	}

	response.Message(c, http.StatusOK, "Email verified successfully")
}

// GET /user-exist
// This probe never errors to the caller; store faults read as "does not exist".
func (h *AccountHandler) UserExists(c *gin.Context) {
	exists := h.accounts.CheckUserExists(requestContext(c), c.Query("email"))
	response.Exists(c, exists)
}

// POST /login
func (h *AccountHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	token, err := h.accounts.Login(requestContext(c), req.Email, req.Password)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		h.respondError(c, err)
		return
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	response.Token(c, "Login successful", token)
}

// POST /forgot-password
func (h *AccountHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.accounts.ForgotPassword(requestContext(c), req.Email); err != nil {
		h.respondError(c, err)
		return
	}

	response.Message(c, http.StatusOK, "Password reset instructions sent to your email")
}

// POST /reset-password/:token
func (h *AccountHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.accounts.ResetPassword(requestContext(c), c.Param("token"), req.NewPassword); err != nil {
		h.respondError(c, err)
		return
	}

	response.Message(c, http.StatusOK, "Password reset successful")
}

// POST /upload-profile-pic
func (h *AccountHandler) UploadProfilePicture(c *gin.Context) {
	userID := c.PostForm("userId")
	if userID == "" {
		response.Error(c, appErrors.NewBadRequest("userId is required"))
		return
	}

	header, err := c.FormFile("profilePic")
	if err != nil {
		response.Error(c, appErrors.NewBadRequest("profilePic file is required"))
		return
	}

	file, err := header.Open()
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer file.Close()

	path, err := h.pictures.Store(requestContext(c), userID, services.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Reader:      file,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	response.Path(c, "Profile picture uploaded", path)
}

// respondError logs unexpected faults for operators and normalises them to a
// generic 500; AppErrors pass through with their own status and message.
func (h *AccountHandler) respondError(c *gin.Context, err error) {
	var appErr *appErrors.AppError
	if !errors.As(err, &appErr) {
		h.log.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	response.Error(c, err)
}
