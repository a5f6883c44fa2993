package models

import "time"

// Session is the server-side record backing one portal login.
// Deleting the row is what revokes it.
type Session struct {
	ID              string
	SubjectID       string
	AccessTokenHash string
	IPAddress       string
	UserAgent       string
	CreatedAt       time.Time
	LastAccessedAt  time.Time
	ExpiresAt       time.Time
}

// SessionSummary is the read-only view shown in "active devices" lists.
type SessionSummary struct {
	ID             string
	IPAddress      string
	UserAgent      string
	CreatedAt      time.Time
	LastAccessedAt time.Time
	ExpiresAt      time.Time
}

// Expired reports whether a session expiring at expiresAt is dead at now.
// Stores use the same comparison: expires_at <= now.
func Expired(expiresAt, now time.Time) bool {
	return !expiresAt.After(now)
}

func (s Session) Expired(now time.Time) bool {
	return Expired(s.ExpiresAt, now)
}

func (s Session) Summary() SessionSummary {
	return SessionSummary{
		ID:             s.ID,
		IPAddress:      s.IPAddress,
		UserAgent:      s.UserAgent,
		CreatedAt:      s.CreatedAt,
		LastAccessedAt: s.LastAccessedAt,
		ExpiresAt:      s.ExpiresAt,
	}
}
