package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/roastery/accounts/internal/auth"
	"github.com/roastery/accounts/internal/models"
	"github.com/roastery/accounts/pkg/crypto"
	apperrors "github.com/roastery/accounts/pkg/errors"
	"github.com/roastery/accounts/pkg/logger"
	"github.com/roastery/accounts/pkg/mail"
	"github.com/roastery/accounts/pkg/metrics"
)

const (
	defaultResetTokenTTL = time.Hour
	defaultTokenBytes    = 20
)

var (
	// ErrEmailTaken indicates a registration attempt with an email that already exists.
	ErrEmailTaken = apperrors.New("EMAIL_TAKEN", "Email already registered", http.StatusBadRequest)
	// ErrUserNotFound indicates the requested account does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrVerificationTokenInvalid covers unknown and already-consumed verification tokens alike.
	ErrVerificationTokenInvalid = apperrors.New("VERIFICATION_TOKEN_INVALID", "Invalid verification token", http.StatusNotFound)
	// ErrResetTokenInvalid covers unknown, mismatched, and expired reset tokens alike.
	ErrResetTokenInvalid = apperrors.New("RESET_TOKEN_INVALID", "Invalid or expired reset token", http.StatusBadRequest)
)

// AccountOption customises the AccountService.
type AccountOption func(*AccountService)

// WithBaseURL sets the base URL embedded in verification and reset links.
func WithBaseURL(url string) AccountOption {
	return func(s *AccountService) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// WithResetTokenTTL overrides the password-reset window.
func WithResetTokenTTL(d time.Duration) AccountOption {
	return func(s *AccountService) {
		if d > 0 {
			s.resetTTL = d
		}
	}
}

// WithTokenSize adjusts the number of random bytes in generated tokens.
func WithTokenSize(size int) AccountOption {
	return func(s *AccountService) {
		if size > 0 {
			s.tokenBytes = size
		}
	}
}

// WithClock injects a custom time source.
func WithClock(clock func() time.Time) AccountOption {
	return func(s *AccountService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithSynchronousMail delivers notification emails inline instead of on a
// background goroutine. Intended for tests.
func WithSynchronousMail() AccountOption {
	return func(s *AccountService) {
		s.dispatch = func(fn func()) { fn() }
	}
}

// AccountService owns the credential and token lifecycle: registration,
// email verification, login, and password reset. Persistence is delegated
// to the user store and notifications to the mailer; neither collaborator's
// faults leak internals to callers.
type AccountService struct {
	db         *gorm.DB
	mailer     mail.Mailer
	jwt        *auth.JWTService
	baseURL    string
	resetTTL   time.Duration
	tokenBytes int
	now        func() time.Time
	dispatch   func(func())
	log        *zap.Logger
}

// NewAccountService constructs an AccountService with the provided collaborators.
func NewAccountService(db *gorm.DB, mailer mail.Mailer, jwt *auth.JWTService, opts ...AccountOption) (*AccountService, error) {
	if db == nil {
		return nil, errors.New("account service: db is required")
	}
	if jwt == nil {
		return nil, errors.New("account service: jwt service is required")
	}

	service := &AccountService{
		db:         db,
		mailer:     mailer,
		jwt:        jwt,
		resetTTL:   defaultResetTokenTTL,
		tokenBytes: defaultTokenBytes,
		now:        time.Now,
		dispatch:   func(fn func()) { go fn() },
		log:        logger.WithModule("accounts"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// RegisterInput describes the fields accepted when registering an account.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Register provisions a new unverified user with a hashed password and a
// fresh verification token, then dispatches the verification email
// best-effort. Email uniqueness is ultimately enforced by the store's
// unique index; the lookup below is only a fast path.
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	name := strings.TrimSpace(input.Name)
	email := strings.TrimSpace(input.Email)
	if name == "" {
		return nil, apperrors.NewBadRequest("name is required")
	}
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if input.Password == "" {
		return nil, apperrors.NewBadRequest("password is required")
	}

	var existing models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("account service: check existing email: %w", err)
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("account service: hash password: %w", err)
	}

	token, err := crypto.GenerateToken(s.tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("account service: generate verification token: %w", err)
	}

	user := &models.User{
		Name:              name,
		Email:             email,
		PasswordHash:      hashed,
		Verified:          false,
		VerificationToken: &token,
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isDuplicateEmailError(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("account service: create user: %w", err)
	}

	s.sendMail(user.Email, "Email Verification",
		fmt.Sprintf("Please click the following link to verify your email: %s\n", s.verificationLink(token)))

	return user, nil
}

// VerifyEmail consumes a verification token, marking the account verified.
// Tokens are single-use: the column is cleared in the same update, so a
// replay is indistinguishable from an unknown token.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrVerificationTokenInvalid
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("verification_token = ?", token).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrVerificationTokenInvalid
	}
	if err != nil {
		return fmt.Errorf("account service: find verification token: %w", err)
	}

	updates := map[string]any{
		"verified":           true,
		"verification_token": nil,
	}
	if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		return fmt.Errorf("account service: mark verified: %w", err)
	}

	return nil
}

// CheckUserExists reports whether an account with the given email exists.
// Store errors deliberately read as "does not exist"; this probe endpoint
// fails open to false rather than surfacing infrastructure faults.
func (s *AccountService) CheckUserExists(ctx context.Context, email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}

	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error
	if err != nil {
		s.log.Warn("existence check failed", zap.Error(err))
		return false
	}
	return count > 0
}

// Login authenticates an email/password pair and issues a signed session
// token. Unknown email and wrong password map to the same generic error so
// the response does not reveal which field was wrong. Verification status
// is intentionally not checked here.
func (s *AccountService) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", apperrors.ErrInvalidCredentials
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("account service: find user: %w", err)
	}

	if !crypto.VerifyPassword(user.PasswordHash, password) {
		return "", apperrors.ErrInvalidCredentials
	}

	token, err := s.jwt.Sign(user.ID)
	if err != nil {
		return "", fmt.Errorf("account service: sign session token: %w", err)
	}

	return token, nil
}

// ForgotPassword issues a fresh reset token valid for the configured window
// and dispatches the reset email best-effort. Issuing a new token
// overwrites and invalidates any prior one.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrUserNotFound
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("account service: find user: %w", err)
	}

	token, err := crypto.GenerateToken(s.tokenBytes)
	if err != nil {
		return fmt.Errorf("account service: generate reset token: %w", err)
	}

	expires := s.now().Add(s.resetTTL)
	updates := map[string]any{
		"reset_token":         token,
		"reset_token_expires": expires,
	}
	if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		return fmt.Errorf("account service: store reset token: %w", err)
	}

	s.sendMail(user.Email, "Reset Password",
		fmt.Sprintf("To reset your password, click the following link: %s\n", s.resetLink(token)))

	return nil
}

// ResetPassword consumes an unexpired reset token and replaces the stored
// password hash. Whether the token never existed, was wrong, or expired is
// indistinguishable to the caller.
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrResetTokenInvalid
	}
	if newPassword == "" {
		return apperrors.NewBadRequest("new password is required")
	}

	var user models.User
	err := s.db.WithContext(ctx).
		Where("reset_token = ? AND reset_token_expires > ?", token, s.now()).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrResetTokenInvalid
	}
	if err != nil {
		return fmt.Errorf("account service: find reset token: %w", err)
	}

	hashed, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("account service: hash new password: %w", err)
	}

	updates := map[string]any{
		"password_hash":       hashed,
		"reset_token":         nil,
		"reset_token_expires": nil,
	}
	if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		return fmt.Errorf("account service: reset password: %w", err)
	}

	return nil
}

// sendMail dispatches a notification decoupled from the request's result:
// the caller's success is never contingent on delivery, and failures are
// logged rather than propagated.
func (s *AccountService) sendMail(to, subject, body string) {
	if s.mailer == nil {
		return
	}

	s.dispatch(func() {
		err := s.mailer.Send(context.Background(), mail.Message{
			To:      to,
			Subject: subject,
			Body:    body,
		})
		switch {
		case err == nil:
			metrics.MailDeliveries.WithLabelValues("sent").Inc()
			s.log.Info("notification email sent", zap.String("subject", subject))
		case errors.Is(err, mail.ErrSMTPDisabled):
			s.log.Debug("smtp disabled; notification skipped", zap.String("subject", subject))
		default:
			metrics.MailDeliveries.WithLabelValues("failed").Inc()
			s.log.Warn("notification email failed", zap.String("subject", subject), zap.Error(err))
		}
	})
}

func (s *AccountService) verificationLink(token string) string {
	if s.baseURL == "" {
		return token
	}
	return fmt.Sprintf("%s/verify/%s", s.baseURL, token)
}

func (s *AccountService) resetLink(token string) string {
	if s.baseURL == "" {
		return token
	}
	return fmt.Sprintf("%s/reset-password/%s", s.baseURL, token)
}
