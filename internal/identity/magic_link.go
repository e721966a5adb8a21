package identity

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"idhub/internal/audit"
	"idhub/internal/auth/models"
	dErrors "idhub/pkg/domain-errors"
	"idhub/pkg/email"
	"idhub/pkg/platform/secrets"
	"idhub/pkg/platform/sentinel"
)

// EmailProvider is the provider name recorded for magic-link logins.
const EmailProvider = "email"

type magicLinkSettings struct {
	store     MagicLinkStore
	mailer    Mailer
	ttl       time.Duration
	verifyURL string
}

// RequestMagicLink issues a single-use login token for address and mails it.
func (l *Linker) RequestMagicLink(ctx context.Context, address string) error {
	if l.magic == nil {
		return dErrors.New(dErrors.CodeAccessDenied, "login method is not enabled")
	}
	address = strings.TrimSpace(address)
	if !email.Valid(address) {
		return dErrors.New(dErrors.CodeInvalidRequest, "email is not a valid address")
	}

	token, err := secrets.Generate()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate magic link")
	}
	now := l.now()
	link := &models.MagicLink{
		Token:     token,
		Email:     address,
		ExpiresAt: now.Add(l.magic.ttl),
		CreatedAt: now,
	}
	if err := l.magic.store.Create(ctx, link); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store magic link")
	}

	msg := MagicLinkMessage{
		To:        address,
		Greeting:  email.DisplayName(address),
		URL:       l.magicLinkURL(token),
		ExpiresAt: link.ExpiresAt,
	}
	if err := l.magic.mailer.SendMagicLink(ctx, msg); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to send magic link")
	}

	l.metrics.IncrementMagicLinksSent()
	l.emit(ctx, audit.Event{Action: audit.EventMagicLinkRequested, Subject: EmailProvider})
	return nil
}

func (l *Linker) magicLinkURL(token string) string {
	u, err := url.Parse(l.magic.verifyURL)
	if err != nil {
		return l.magic.verifyURL + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (l *Linker) resolveMagicLink(ctx context.Context, a Assertion) (*models.User, error) {
	ma := a.(MagicLinkAssertion)
	if ma.Token == "" {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "token is required")
	}
	link, err := l.magic.store.Consume(ctx, ma.Token, l.now())
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrAlreadyUsed) || errors.Is(err, sentinel.ErrExpired) {
			return nil, dErrors.New(dErrors.CodeInvalidCredentials, "magic link is invalid or expired")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to redeem magic link")
	}
	return l.link(ctx, ProviderIdentity{
		Provider:      EmailProvider,
		AccountID:     link.Email,
		Type:          models.AccountTypeEmail,
		Email:         link.Email,
		EmailVerified: true,
	})
}
