// Package session implements the in-memory session record: the blake3
// verifier hash bound to a token, its refresh schedule, and the user it
// authenticates, independent of how sessions are sharded or stored.
package session

import (
	"math/rand/v2"
	"time"

	"github.com/idropr/core/internal/permission"
)

const (
	// BaseRefreshWindow is the nominal interval between session refreshes,
	// jittered ±20% on every (re)schedule to avoid synchronized refresh
	// storms after events like a mass login following a deploy.
	BaseRefreshWindow = 8 * time.Hour

	// MaxSessionAge is how far past a missed refresh a session is still
	// considered live; once now exceeds next_refresh+MaxSessionAge the
	// session is expired outright regardless of refresh activity.
	MaxSessionAge = 10 * 24 * time.Hour

	jitterMin = 0.8
	jitterMax = 1.2
)

// AccountStatus is the state of the underlying user account.
type AccountStatus int

const (
	Disabled AccountStatus = iota
	Enabled
	Suspended
	Banned
)

// UserKind distinguishes the three tagged user variants a session can carry.
type UserKind int

const (
	Business UserKind = iota
	Community
	System
)

// User is the tagged union of the three account kinds a session
// authenticates, each carrying its own identity and permission mask.
type User struct {
	Kind        UserKind
	ID          int64
	Username    string
	Status      AccountStatus
	Permissions permission.Mask
}

// RefreshStatus is the outcome of IsStale.
type RefreshStatus int

const (
	NoRefresh RefreshStatus = iota
	Refresh
)

// ExpiredStatus is the outcome of IsExpired.
type ExpiredStatus int

const (
	NotExpired ExpiredStatus = iota
	Expired
)

// Session is the in-memory record bound to a live token: the hash used to
// verify presented tokens against it, the schedule governing when it must
// be refreshed against the database, and the user it authenticates.
type Session struct {
	Hash        [32]byte
	NextRefresh time.Time
	User        User
}

// New creates a session for user, scheduling its first refresh at
// now + BaseRefreshWindow × jitter, jitter drawn uniformly from [0.8, 1.2).
func New(hash [32]byte, user User, now time.Time) Session {
	return Session{
		Hash:        hash,
		NextRefresh: now.Add(jitteredWindow()),
		User:        user,
	}
}

func jitteredWindow() time.Duration {
	jitter := jitterMin + rand.Float64()*(jitterMax-jitterMin)
	return time.Duration(float64(BaseRefreshWindow) * jitter)
}

// IsStale reports whether the session has passed its refresh point. A
// stale session may still authenticate; the caller is expected to
// subsequently re-derive it against the database and call
// UpdateNextRefresh.
func (s Session) IsStale(now time.Time) RefreshStatus {
	if now.After(s.NextRefresh) {
		return Refresh
	}
	return NoRefresh
}

// IsExpired reports whether the session has gone unrefreshed long enough to
// be denied outright, independent of IsStale: Expired iff
// now > next_refresh + MaxSessionAge.
func (s Session) IsExpired(now time.Time) ExpiredStatus {
	if now.After(s.NextRefresh.Add(MaxSessionAge)) {
		return Expired
	}
	return NotExpired
}

// UpdateNextRefresh reschedules the session's next refresh point with
// fresh jitter, as performed after a successful database-backed refresh.
func (s *Session) UpdateNextRefresh(now time.Time) {
	s.NextRefresh = now.Add(jitteredWindow())
}
