package identity

import (
	"github.com/google/uuid"

	"idhub/internal/audit"
	"idhub/internal/auth/models"
	dErrors "idhub/pkg/domain-errors"
)

func (s *LinkerSuite) linkProvider(provider, accountID, email string) *models.User {
	u, err := s.linker.Resolve(s.ctx, ProviderAssertion{Identity: ProviderIdentity{
		Provider: provider, AccountID: accountID, Email: email,
	}})
	s.Require().NoError(err)
	return u
}

func (s *LinkerSuite) TestUnlink() {
	s.Run("keeps the last login method of a federated-only user", func() {
		u := s.linkProvider("github", "gh-1", "fed@example.com")

		err := s.linker.Unlink(s.ctx, u.ID, "github", "gh-1")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		accounts, err := s.linker.Accounts(s.ctx, u.ID)
		s.Require().NoError(err)
		s.Len(accounts, 1)
	})

	s.Run("removes one of several accounts", func() {
		u := s.linkProvider("github", "gh-2", "multi@example.com")
		s.linkProvider("google", "g-2", "multi@example.com")

		s.Require().NoError(s.linker.Unlink(s.ctx, u.ID, "github", "gh-2"))

		accounts, err := s.linker.Accounts(s.ctx, u.ID)
		s.Require().NoError(err)
		s.Require().Len(accounts, 1)
		s.Equal("google", accounts[0].Provider)

		var unlinked []audit.Event
		for _, e := range s.sink.ListByUser(u.ID) {
			if e.Action == audit.EventAccountUnlinked {
				unlinked = append(unlinked, e)
			}
		}
		s.Require().Len(unlinked, 1)
		s.Equal("github", unlinked[0].Subject)
	})

	s.Run("password users may drop their only account", func() {
		u := s.seedUser("pw@example.com", models.RoleAdmin, "correct horse")
		s.linkProvider("github", "gh-3", "pw@example.com")

		s.Require().NoError(s.linker.Unlink(s.ctx, u.ID, "github", "gh-3"))
		accounts, err := s.linker.Accounts(s.ctx, u.ID)
		s.Require().NoError(err)
		s.Empty(accounts)
	})

	s.Run("accounts of another user are not found", func() {
		owner := s.linkProvider("github", "gh-4", "owner@example.com")
		s.linkProvider("google", "g-4", "owner@example.com")
		other := s.seedUser("other@example.com", models.RoleUser, "correct horse")

		err := s.linker.Unlink(s.ctx, other.ID, "github", "gh-4")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

		accounts, err := s.linker.Accounts(s.ctx, owner.ID)
		s.Require().NoError(err)
		s.Len(accounts, 2)
	})

	s.Run("unknown user", func() {
		err := s.linker.Unlink(s.ctx, uuid.NewString(), "github", "gh-1")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

		_, err = s.linker.Accounts(s.ctx, uuid.NewString())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *LinkerSuite) TestSetRole() {
	u := s.linkProvider("github", "gh-role", "promote@example.com")
	s.Equal(models.RoleUser, u.Role)

	updated, err := s.linker.SetRole(s.ctx, u.ID, models.RoleAdmin)
	s.Require().NoError(err)
	s.Equal(models.RoleAdmin, updated.Role)

	stored, err := s.users.FindByID(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal(models.RoleAdmin, stored.Role)

	s.Run("a later provider login keeps the new role", func() {
		again := s.linkProvider("github", "gh-role", "promote@example.com")
		s.Equal(models.RoleAdmin, again.Role)
	})

	s.Run("emits a security event", func() {
		var changed []audit.Event
		for _, e := range s.sink.ListByUser(u.ID) {
			if e.Action == audit.EventRoleChanged {
				changed = append(changed, e)
			}
		}
		s.Require().Len(changed, 1)
		s.Equal(audit.CategorySecurity, changed[0].Category)
		s.Equal("admin", changed[0].Subject)
	})

	s.Run("unchanged role is a no-op", func() {
		_, err := s.linker.SetRole(s.ctx, u.ID, models.RoleAdmin)
		s.Require().NoError(err)
	})

	s.Run("rejects unknown roles and users", func() {
		_, err := s.linker.SetRole(s.ctx, u.ID, models.Role("owner"))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidRequest))

		_, err = s.linker.SetRole(s.ctx, uuid.NewString(), models.RoleUser)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
