package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"idhub/internal/audit"
	"idhub/internal/auth/models"
	dErrors "idhub/pkg/domain-errors"
	"idhub/pkg/platform/sentinel"
)

// link finds or provisions the user behind id and records the external
// account. Lookup order is linked account, then email, then create. Any
// storage failure aborts the whole step.
func (l *Linker) link(ctx context.Context, id ProviderIdentity) (*models.User, error) {
	id.normalize()
	if err := id.validate(); err != nil {
		return nil, err
	}

	var (
		user    *models.User
		created bool
		linked  bool
	)
	err := l.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		user, created, err = l.findOrCreate(ctx, id)
		if err != nil {
			return err
		}
		if !created {
			if err := l.refresh(ctx, user, id); err != nil {
				return err
			}
		}
		linked, err = l.upsertAccount(ctx, user.ID, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	if created {
		l.metrics.IncrementUsersCreated()
		l.emit(ctx, audit.Event{Action: audit.EventUserCreated, UserID: user.ID, Subject: id.Provider})
	}
	if linked {
		l.emit(ctx, audit.Event{Action: audit.EventAccountLinked, UserID: user.ID, Subject: id.Provider})
	}
	return user, nil
}

func (l *Linker) findOrCreate(ctx context.Context, id ProviderIdentity) (*models.User, bool, error) {
	account, err := l.users.FindLinkedAccount(ctx, id.Provider, id.AccountID)
	switch {
	case err == nil:
		user, err := l.users.FindByID(ctx, account.UserID)
		if err != nil {
			return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "linked account references a missing user")
		}
		return user, false, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load linked account")
	}

	user, err := l.users.FindByEmail(ctx, id.Email)
	switch {
	case err == nil:
		return user, false, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}

	now := l.now()
	user = &models.User{
		ID:        uuid.NewString(),
		Email:     id.Email,
		Name:      id.Name,
		Image:     id.Image,
		Role:      models.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if id.EmailVerified {
		user.EmailVerifiedAt = &now
	}
	if err := l.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost a race with a concurrent first login for the same email.
			existing, findErr := l.users.FindByEmail(ctx, id.Email)
			if findErr != nil {
				return nil, false, dErrors.Wrap(findErr, dErrors.CodeInternal, "failed to load user")
			}
			return existing, false, nil
		}
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}
	return user, true, nil
}

// refresh syncs provider metadata onto an existing user. Role is untouched.
func (l *Linker) refresh(ctx context.Context, user *models.User, id ProviderIdentity) error {
	changed := false
	if id.Name != "" && id.Name != user.Name {
		user.Name = id.Name
		changed = true
	}
	if id.Image != "" && id.Image != user.Image {
		user.Image = id.Image
		changed = true
	}
	if id.EmailVerified && !user.IsEmailVerified() {
		now := l.now()
		user.EmailVerifiedAt = &now
		changed = true
	}
	if !changed {
		return nil
	}
	user.UpdatedAt = l.now()
	if err := l.users.Update(ctx, user); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update user")
	}
	return nil
}

// upsertAccount records the external account and reports whether it is new.
func (l *Linker) upsertAccount(ctx context.Context, userID string, id ProviderIdentity) (bool, error) {
	_, err := l.users.FindLinkedAccount(ctx, id.Provider, id.AccountID)
	isNew := errors.Is(err, sentinel.ErrNotFound)
	if err != nil && !isNew {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load linked account")
	}
	if err := l.users.UpsertLinkedAccount(ctx, id.account(userID)); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return false, dErrors.New(dErrors.CodeAccessDenied, "external account is linked to another user")
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to link account")
	}
	return isNew, nil
}

func (l *Linker) emit(ctx context.Context, event audit.Event) {
	if l.auditor == nil {
		return
	}
	if err := l.auditor.Emit(ctx, event); err != nil {
		l.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}
