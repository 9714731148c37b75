package session

import (
	"testing"
	"time"

	"github.com/idropr/core/internal/permission"
)

func testUser() User {
	return User{
		Kind:        System,
		ID:          1,
		Username:    "svc",
		Status:      Enabled,
		Permissions: permission.FromRole(permission.User),
	}
}

func TestNewSessionRefreshWindowWithinJitterBounds(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New([32]byte{1}, testUser(), now)

	delta := s.NextRefresh.Sub(now)
	min := time.Duration(float64(BaseRefreshWindow) * jitterMin)
	max := time.Duration(float64(BaseRefreshWindow) * jitterMax)

	if delta < min || delta > max {
		t.Fatalf("NextRefresh delta %v outside jitter bounds [%v, %v]", delta, min, max)
	}
}

func TestIsStaleBeforeWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New([32]byte{1}, testUser(), now)

	if got := s.IsStale(now); got != NoRefresh {
		t.Fatalf("IsStale(immediately) = %v, want NoRefresh", got)
	}
}

func TestIsStaleAfterWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := Session{NextRefresh: now}

	later := now.Add(time.Second)
	if got := s.IsStale(later); got != Refresh {
		t.Fatalf("IsStale(past next_refresh) = %v, want Refresh", got)
	}
}

func TestIsExpiredWithinGracePeriod(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := Session{NextRefresh: now}

	stillLive := now.Add(MaxSessionAge - time.Hour)
	if got := s.IsExpired(stillLive); got != NotExpired {
		t.Fatalf("IsExpired(within grace period) = %v, want NotExpired", got)
	}
}

func TestIsExpiredPastGracePeriod(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := Session{NextRefresh: now}

	tooLate := now.Add(MaxSessionAge + time.Hour)
	if got := s.IsExpired(tooLate); got != Expired {
		t.Fatalf("IsExpired(past grace period) = %v, want Expired", got)
	}
}

func TestStaleSessionIsNotNecessarilyExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := Session{NextRefresh: now}

	justStale := now.Add(time.Minute)
	if got := s.IsStale(justStale); got != Refresh {
		t.Fatalf("IsStale(just past refresh) = %v, want Refresh", got)
	}
	if got := s.IsExpired(justStale); got != NotExpired {
		t.Fatalf("IsExpired(just past refresh) = %v, want NotExpired", got)
	}
}

func TestUpdateNextRefreshAdvancesSchedule(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := Session{NextRefresh: now}

	later := now.Add(time.Hour)
	s.UpdateNextRefresh(later)

	if !s.NextRefresh.After(later) {
		t.Fatalf("UpdateNextRefresh did not push NextRefresh ahead of %v: got %v", later, s.NextRefresh)
	}
	if got := s.IsStale(later); got != NoRefresh {
		t.Fatalf("IsStale immediately after UpdateNextRefresh = %v, want NoRefresh", got)
	}
}
