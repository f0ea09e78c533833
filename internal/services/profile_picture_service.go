package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/roastery/accounts/internal/models"
	apperrors "github.com/roastery/accounts/pkg/errors"
)

// DefaultMaxPictureBytes caps uploaded profile pictures at 1MB.
const DefaultMaxPictureBytes = 1 << 20

var (
	// ErrUnsupportedFileType rejects uploads that are not jpeg/jpg/png/gif images.
	ErrUnsupportedFileType = apperrors.New("UNSUPPORTED_FILE_TYPE", "Only jpeg, jpg, png, and gif images are allowed", http.StatusBadRequest)
	// ErrFileTooLarge rejects uploads above the configured size limit.
	ErrFileTooLarge = apperrors.New("FILE_TOO_LARGE", "Image exceeds the maximum allowed size", http.StatusBadRequest)
)

var allowedImageExtensions = map[string]struct{}{
	".jpeg": {},
	".jpg":  {},
	".png":  {},
	".gif":  {},
}

var allowedImageMIMETypes = map[string]struct{}{
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
	"image/gif":  {},
}

// Upload describes an inbound multipart file.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// ProfilePictureService stores profile images on disk and records the
// resulting path on the owning user.
type ProfilePictureService struct {
	db       *gorm.DB
	dir      string
	maxBytes int64
}

// NewProfilePictureService constructs the service, creating the upload
// directory when missing.
func NewProfilePictureService(db *gorm.DB, dir string, maxBytes int64) (*ProfilePictureService, error) {
	if db == nil {
		return nil, errors.New("profile picture service: db is required")
	}
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = "./uploads"
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPictureBytes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("profile picture service: create upload dir: %w", err)
	}
	return &ProfilePictureService{db: db, dir: dir, maxBytes: maxBytes}, nil
}

// Store validates and persists the uploaded image, then updates the user's
// profile_pic reference. The returned path is relative to the upload dir's
// parent so it can be served or stored as-is.
func (s *ProfilePictureService) Store(ctx context.Context, userID string, upload Upload) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", apperrors.NewBadRequest("user id is required")
	}

	ext := strings.ToLower(filepath.Ext(upload.Filename))
	if _, ok := allowedImageExtensions[ext]; !ok {
		return "", ErrUnsupportedFileType
	}
	contentType := strings.ToLower(strings.TrimSpace(upload.ContentType))
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if _, ok := allowedImageMIMETypes[contentType]; !ok {
		return "", ErrUnsupportedFileType
	}
	if upload.Size > s.maxBytes {
		return "", ErrFileTooLarge
	}

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("profile picture service: load user: %w", err)
	}

	name := uuid.NewString() + ext
	dest := filepath.Join(s.dir, name)

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("profile picture service: create file: %w", err)
	}

	// LimitReader guards against a lying Content-Length on the part header.
	written, err := io.Copy(out, io.LimitReader(upload.Reader, s.maxBytes+1))
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dest)
		return "", fmt.Errorf("profile picture service: write file: %w", err)
	}
	if written > s.maxBytes {
		_ = os.Remove(dest)
		return "", ErrFileTooLarge
	}

	path := filepath.ToSlash(dest)
	if err := s.db.WithContext(ctx).Model(&user).Update("profile_pic", path).Error; err != nil {
		_ = os.Remove(dest)
		return "", fmt.Errorf("profile picture service: record path: %w", err)
	}

	return path, nil
}
