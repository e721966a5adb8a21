package identity

import (
	"context"
	"errors"

	"idhub/internal/audit"
	"idhub/internal/auth/models"
	dErrors "idhub/pkg/domain-errors"
	"idhub/pkg/platform/sentinel"
)

// Accounts lists the external accounts linked to userID.
func (l *Linker) Accounts(ctx context.Context, userID string) ([]*models.LinkedAccount, error) {
	if _, err := l.findUser(ctx, userID); err != nil {
		return nil, err
	}
	accounts, err := l.users.ListLinkedAccounts(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list linked accounts")
	}
	return accounts, nil
}

// Unlink detaches an external account from userID. A user must keep at
// least one way to log in: a password or another linked account.
func (l *Linker) Unlink(ctx context.Context, userID, provider, providerAccountID string) error {
	err := l.tx.RunInTx(ctx, func(ctx context.Context) error {
		user, err := l.findUser(ctx, userID)
		if err != nil {
			return err
		}
		account, err := l.users.FindLinkedAccount(ctx, provider, providerAccountID)
		switch {
		case errors.Is(err, sentinel.ErrNotFound), err == nil && account.UserID != user.ID:
			return dErrors.New(dErrors.CodeNotFound, "account is not linked to this user")
		case err != nil:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load linked account")
		}

		accounts, err := l.users.ListLinkedAccounts(ctx, user.ID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list linked accounts")
		}
		if len(accounts) <= 1 && !user.HasPassword() {
			return dErrors.New(dErrors.CodeConflict, "cannot remove the last login method")
		}

		if err := l.users.DeleteLinkedAccount(ctx, provider, providerAccountID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "account is not linked to this user")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to unlink account")
		}
		return nil
	})
	if err != nil {
		return err
	}
	l.emit(ctx, audit.Event{Action: audit.EventAccountUnlinked, UserID: userID, Subject: provider})
	return nil
}

// SetRole changes the role of userID. Logins never do this.
func (l *Linker) SetRole(ctx context.Context, userID string, role models.Role) (*models.User, error) {
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "role must be user or admin")
	}
	user, err := l.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role == role {
		return user, nil
	}

	previous := user.Role
	user.Role = role
	user.UpdatedAt = l.now()
	if err := l.users.Update(ctx, user); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update user")
	}
	l.logger.InfoContext(ctx, "user role changed", "user_id", user.ID, "from", previous, "to", role)
	l.emit(ctx, audit.Event{
		Action:  audit.EventRoleChanged,
		UserID:  user.ID,
		Subject: string(role),
		Reason:  "was " + string(previous),
	})
	return user, nil
}

func (l *Linker) findUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := l.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user, nil
}
