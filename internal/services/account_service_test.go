package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/roastery/accounts/internal/auth"
	"github.com/roastery/accounts/internal/database/testutil"
	"github.com/roastery/accounts/internal/models"
	apperrors "github.com/roastery/accounts/pkg/errors"
	"github.com/roastery/accounts/pkg/mail"
)

type captureMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) messages() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.sent...)
}

func newTestAccountService(t *testing.T, db *gorm.DB, mailer mail.Mailer, opts ...AccountOption) *AccountService {
	t.Helper()

	jwtSvc, err := auth.NewJWTService(auth.JWTConfig{Secret: "test-secret"})
	require.NoError(t, err)

	base := []AccountOption{
		WithBaseURL("http://localhost:4000"),
		WithSynchronousMail(),
	}
	svc, err := NewAccountService(db, mailer, jwtSvc, append(base, opts...)...)
	require.NoError(t, err)
	return svc
}

func TestRegisterCreatesUnverifiedUserWithToken(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	mailer := &captureMailer{}
	svc := newTestAccountService(t, db, mailer)

	user, err := svc.Register(context.Background(), RegisterInput{
		Name:     "Alice",
		Email:    "a@x.com",
		Password: "pw1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)
	require.False(t, user.Verified)
	require.NotNil(t, user.VerificationToken)
	require.Len(t, *user.VerificationToken, 40) // 20 random bytes, hex-encoded
	require.NotEqual(t, "pw1", user.PasswordHash)

	other, err := svc.Register(context.Background(), RegisterInput{
		Name:     "Bob",
		Email:    "b@x.com",
		Password: "pw2",
	})
	require.NoError(t, err)
	require.NotEqual(t, *user.VerificationToken, *other.VerificationToken)

	msgs := mailer.messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "a@x.com", msgs[0].To)
	require.Equal(t, "Email Verification", msgs[0].Subject)
	require.Contains(t, msgs[0].Body, "/verify/"+*user.VerificationToken)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc := newTestAccountService(t, db, &captureMailer{})

	_, err := svc.Register(context.Background(), RegisterInput{Name: "Alice", Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), RegisterInput{Name: "Mallory", Email: "a@x.com", Password: "pw2"})
	require.ErrorIs(t, err, ErrEmailTaken)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Where("email = ?", "a@x.com").Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestRegisterSucceedsWhenMailFails(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	mailer := &captureMailer{err: context.DeadlineExceeded}
	svc := newTestAccountService(t, db, mailer)

	_, err := svc.Register(context.Background(), RegisterInput{Name: "Alice", Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)
	require.True(t, svc.CheckUserExists(context.Background(), "a@x.com"))
}

func TestVerifyEmailIsSingleUse(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc := newTestAccountService(t, db, &captureMailer{})

	user, err := svc.Register(context.Background(), RegisterInput{Name: "Alice", Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)
	token := *user.VerificationToken

	require.NoError(t, svc.VerifyEmail(context.Background(), token))

	var stored models.User
	require.NoError(t, db.First(&stored, "id = ?", user.ID).Error)
	require.True(t, stored.Verified)
	require.Nil(t, stored.VerificationToken)

	// Replay after success is indistinguishable from an unknown token.
	err = svc.VerifyEmail(context.Background(), token)
	require.ErrorIs(t, err, ErrVerificationTokenInvalid)
}

func TestVerifyEmailUnknownToken(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc := newTestAccountService(t, db, &captureMailer{})

	err := svc.VerifyEmail(context.Background(), "deadbeef")
	require.ErrorIs(t, err, ErrVerificationTokenInvalid)
}

func TestCheckUserExists(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc := newTestAccountService(t, db, &captureMailer{})

	require.False(t, svc.CheckUserExists(context.Background(), "a@x.com"))

	_, err := svc.Register(context.Background(), RegisterInput{Name: "Alice", Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)
	require.True(t, svc.CheckUserExists(context.Background(), "a@x.com"))

	// Email matching is exact.
	require.False(t, svc.CheckUserExists(context.Background(), "A@X.COM"))
}

func TestCheckUserExistsFailsOpenToFalse(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc := newTestAccountService(t, db, &captureMailer{})

	require.NoError(t, db.Migrator().DropTable(&models.User{}))
	require.False(t, svc.CheckUserExists(context.Background(), "a@x.com"))
}

func TestLoginIssuesToken(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc := newTestAccountService(t, db, &captureMailer{})

	user, err := svc.Register(context.Background(), RegisterInput{Name: "Alice", Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)

	token, err := svc.Login(context.Background(), "a@x.com", "pw1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	jwtSvc, err := auth.NewJWTService(auth.JWTConfig{Secret: "test-secret"})
	require.NoError(t, err)

	claims, err := jwtSvc.Validate(token)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)
	require.Nil(t, claims.ExpiresAt) // tokens carry no expiry; only secret rotation invalidates them
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc := newTestAccountService(t, db, &captureMailer{})

	_, err := svc.Register(context.Background(), RegisterInput{Name: "Alice", Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)

	// Wrong password and unknown email map to the same generic error.
	_, err = svc.Login(context.Background(), "a@x.com", "wrong")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "nobody@x.com", "pw1")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestLoginDoesNotRequireVerification(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc := newTestAccountService(t, db, &captureMailer{})

	_, err := svc.Register(context.Background(), RegisterInput{Name: "Alice", Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)

	token, err := svc.Login(context.Background(), "a@x.com", "pw1")
	require.NoError(t, err)
	require.NotEmpty(t, token)
}

func TestForgotPasswordSetsTokenAndExpiry(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	mailer := &captureMailer{}
	current := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestAccountService(t, db, mailer, WithClock(func() time.Time { return current }))

	user, err := svc.Register(context.Background(), RegisterInput{Name: "Alice", Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)

	require.NoError(t, svc.ForgotPassword(context.Background(), "a@x.com"))

	var stored models.User
	require.NoError(t, db.First(&stored, "id = ?", user.ID).Error)
	require.NotNil(t, stored.ResetToken)
	require.Len(t, *stored.ResetToken, 40)
	require.NotNil(t, stored.ResetTokenExpires)
	require.Equal(t, current.Add(time.Hour).Unix(), stored.ResetTokenExpires.Unix())

	msgs := mailer.messages()
	require.Len(t, msgs, 2) // verification + reset
	require.Equal(t, "Reset Password", msgs[1].Subject)
	require.Contains(t, msgs[1].Body, "/reset-password/"+*stored.ResetToken)
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc := newTestAccountService(t, db, &captureMailer{})

	err := svc.ForgotPassword(context.Background(), "nobody@x.com")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestForgotPasswordOverwritesPriorToken(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc := newTestAccountService(t, db, &captureMailer{})

	user, err := svc.Register(context.Background(), RegisterInput{Name: "Alice", Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)

	require.NoError(t, svc.ForgotPassword(context.Background(), "a@x.com"))
	var first models.User
	require.NoError(t, db.First(&first, "id = ?", user.ID).Error)
	firstToken := *first.ResetToken

	require.NoError(t, svc.ForgotPassword(context.Background(), "a@x.com"))

	// The earlier token is invalidated by the overwrite.
	err = svc.ResetPassword(context.Background(), firstToken, "pw2")
	require.ErrorIs(t, err, ErrResetTokenInvalid)
}

func TestResetPasswordHappyPathAndSingleUse(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc := newTestAccountService(t, db, &captureMailer{})

	user, err := svc.Register(context.Background(), RegisterInput{Name: "Alice", Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)

	require.NoError(t, svc.ForgotPassword(context.Background(), "a@x.com"))
	var stored models.User
	require.NoError(t, db.First(&stored, "id = ?", user.ID).Error)
	token := *stored.ResetToken

	require.NoError(t, svc.ResetPassword(context.Background(), token, "pw2"))

	var afterReset models.User
	require.NoError(t, db.First(&afterReset, "id = ?", user.ID).Error)
	require.Nil(t, afterReset.ResetToken)
	require.Nil(t, afterReset.ResetTokenExpires)

	_, err = svc.Login(context.Background(), "a@x.com", "pw1")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	loginToken, err := svc.Login(context.Background(), "a@x.com", "pw2")
	require.NoError(t, err)
	require.NotEmpty(t, loginToken)

	// Token is single-use.
	err = svc.ResetPassword(context.Background(), token, "pw3")
	require.ErrorIs(t, err, ErrResetTokenInvalid)
}

func TestResetPasswordExpiredToken(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	current := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestAccountService(t, db, &captureMailer{}, WithClock(func() time.Time { return current }))

	user, err := svc.Register(context.Background(), RegisterInput{Name: "Alice", Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)

	require.NoError(t, svc.ForgotPassword(context.Background(), "a@x.com"))
	var stored models.User
	require.NoError(t, db.First(&stored, "id = ?", user.ID).Error)
	token := *stored.ResetToken

	current = current.Add(2 * time.Hour)

	err = svc.ResetPassword(context.Background(), token, "pw2")
	require.ErrorIs(t, err, ErrResetTokenInvalid)

	// The old password still works; nothing was mutated.
	_, err = svc.Login(context.Background(), "a@x.com", "pw1")
	require.NoError(t, err)
}

func TestResetPasswordUnknownToken(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc := newTestAccountService(t, db, &captureMailer{})

	err := svc.ResetPassword(context.Background(), strings.Repeat("ab", 20), "pw2")
	require.ErrorIs(t, err, ErrResetTokenInvalid)
}

// TestAccountLifecycle walks the full register -> verify -> login -> reset flow.
func TestAccountLifecycle(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	mailer := &captureMailer{}
	svc := newTestAccountService(t, db, mailer)

	user, err := svc.Register(context.Background(), RegisterInput{Name: "Alice", Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)

	require.True(t, svc.CheckUserExists(context.Background(), "a@x.com"))

	_, err = svc.Login(context.Background(), "a@x.com", "wrong")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	token, err := svc.Login(context.Background(), "a@x.com", "pw1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	require.NoError(t, svc.VerifyEmail(context.Background(), *user.VerificationToken))

	require.NoError(t, svc.ForgotPassword(context.Background(), "a@x.com"))
	var stored models.User
	require.NoError(t, db.First(&stored, "id = ?", user.ID).Error)

	require.NoError(t, svc.ResetPassword(context.Background(), *stored.ResetToken, "pw2"))

	_, err = svc.Login(context.Background(), "a@x.com", "pw1")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "a@x.com", "pw2")
	require.NoError(t, err)
}
