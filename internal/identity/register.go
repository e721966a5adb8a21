package identity

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"idhub/internal/audit"
	"idhub/internal/auth/models"
	dErrors "idhub/pkg/domain-errors"
	"idhub/pkg/email"
	"idhub/pkg/platform/sentinel"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 256
)

// RegisterRequest creates a password account with role user.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (r *RegisterRequest) Normalize() {
	r.Email = strings.TrimSpace(r.Email)
	r.Name = strings.TrimSpace(r.Name)
}

func (r *RegisterRequest) Validate() error {
	if r.Email == "" || r.Password == "" {
		return dErrors.New(dErrors.CodeInvalidRequest, "email and password are required")
	}
	if !email.Valid(r.Email) {
		return dErrors.New(dErrors.CodeInvalidRequest, "email is not a valid address")
	}
	if n := utf8.RuneCountInString(r.Password); n < minPasswordLength || n > maxPasswordLength {
		return dErrors.New(dErrors.CodeInvalidRequest, "password must be between 8 and 256 characters")
	}
	return nil
}

// Register creates a local user. A taken email is a conflict.
func (l *Linker) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	digest, err := l.digests.Digest(req.Password)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to digest password")
	}
	now := l.now()
	user := &models.User{
		ID:             uuid.NewString(),
		Email:          req.Email,
		Name:           req.Name,
		PasswordDigest: digest,
		Role:           models.RoleUser,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := l.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "user already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}

	l.metrics.IncrementUsersCreated()
	l.emit(ctx, audit.Event{Action: audit.EventUserCreated, UserID: user.ID, Subject: string(CapabilityPassword)})
	return user, nil
}
