package models

import "time"

// MagicLink is a single-use login token bound to an email address.
type MagicLink struct {
	Token     string
	Email     string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

func (m *MagicLink) IsExpired(now time.Time) bool {
	return !now.Before(m.ExpiresAt)
}
