// Package ratelimit implements a sharded, in-memory token-bucket rate
// limiter keyed by client IP, with blacklist/whitelist overrides and a
// background sweeper that evicts idle buckets.
package ratelimit

import "time"

const (
	daySeconds    = 24 * 60 * 60
	hourSeconds   = 60 * 60
	minuteSeconds = 60
	secondSeconds = 1

	// minBucketTTL is the floor on how long an idle bucket is kept around.
	// The TTL must exceed the refill window or a bucket could be swept and
	// respawned with a full allotment before its window naturally elapses.
	minBucketTTL = 2 * time.Minute
)

// RefillRateKind selects the time unit a RefillRate's amount is spread over.
type RefillRateKind uint8

const (
	PerSecond RefillRateKind = iota
	PerMinute
	PerHour
	PerDay
)

// RefillRate is a token allotment spread evenly over a fixed time unit.
type RefillRate struct {
	Kind   RefillRateKind
	Amount float64
}

// perSecond returns the equivalent number of tokens granted per second.
func (r RefillRate) perSecond() float64 {
	switch r.Kind {
	case PerDay:
		return r.Amount / daySeconds
	case PerHour:
		return r.Amount / hourSeconds
	case PerMinute:
		return r.Amount / minuteSeconds
	default:
		return r.Amount
	}
}

// rawWindowSeconds returns the unit window itself, with no TTL floor: this
// is the boundary refill() uses to decide whether a full window has passed
// since the last refill, so the bucket snaps back to a full allotment rather
// than accruing a proportional top-up.
func (r RefillRate) rawWindowSeconds() float64 {
	switch r.Kind {
	case PerDay:
		return daySeconds
	case PerHour:
		return hourSeconds
	case PerMinute:
		return minuteSeconds
	default:
		return secondSeconds
	}
}

// ttlSeconds returns the sweep TTL: the unit window floored at
// minBucketTTL, so a bucket always outlives the window it is tracking and
// can't be swept and immediately respawned with a fresh allotment.
func (r RefillRate) ttlSeconds() float64 {
	return maxF(minBucketTTL.Seconds(), r.rawWindowSeconds())
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Decision is the outcome of a connection attempt against a bucket.
type Decision int

const (
	Denied Decision = iota
	Approved
)

// TokenBucket tracks a single client's remaining request tokens. tokens is
// signed: it is allowed to run negative, driving how far over-quota a
// client has gone (consulted by the limiter for blacklisting).
type TokenBucket struct {
	capacity    int32
	tokens      int32
	lastConnect time.Time
	lastRefill  time.Time
	refillRate  RefillRate
	ver         uint64
	now         func() time.Time
}

// NewTokenBucket builds a bucket with capacity, an initial token grant, and
// a refill rate. now is injected so tests can control elapsed time; pass
// time.Now in production.
func NewTokenBucket(capacity, initialTokens int32, refillRate RefillRate, now func() time.Time) *TokenBucket {
	ts := now()
	return &TokenBucket{
		capacity:    capacity,
		tokens:      initialTokens,
		lastConnect: ts,
		lastRefill:  ts,
		refillRate:  refillRate,
		now:         now,
	}
}

// Tokens returns the current signed token count.
func (b *TokenBucket) Tokens() int32 { return b.tokens }

// Ver returns the bucket's monotonic mutation counter.
func (b *TokenBucket) Ver() uint64 { return b.ver }

// LastConnect returns the instant of the bucket's last connection attempt,
// the basis for idle-expiry (see REDESIGN note on ExpiresAt/IsExpired).
func (b *TokenBucket) LastConnect() time.Time { return b.lastConnect }

// ExpiresAt returns the instant at which the bucket becomes eligible for
// sweeping if no further connections arrive, measured from lastConnect.
func (b *TokenBucket) ExpiresAt() time.Time {
	return b.lastConnect.Add(time.Duration(b.refillRate.ttlSeconds() * float64(time.Second)))
}

// IsExpired reports whether the bucket has gone idle past its TTL. This,
// and ExpiresAt, are the only places lastConnect drives expiry arithmetic;
// refill() below uses lastRefill exclusively, correcting the upstream
// implementation this was ported from, which drove both idle-expiry and
// refill-interval math off the same timestamp and let refills reset the
// idle clock every time a client merely connected without earning new
// tokens.
func (b *TokenBucket) IsExpired() bool {
	return !b.now().Before(b.ExpiresAt())
}

// refill credits newly-earned tokens since the last refill and returns the
// resulting token count. It is a no-op on an already-expired bucket: an
// idle bucket due for sweeping should not be topped back up first.
func (b *TokenBucket) refill() int32 {
	if b.IsExpired() {
		return 0
	}

	now := b.now()
	elapsedSinceRefill := now.Sub(b.lastRefill).Seconds()

	windowExpired := elapsedSinceRefill >= b.refillRate.rawWindowSeconds()
	if windowExpired {
		b.tokens = b.capacity
		b.lastRefill = now
		return b.tokens
	}

	amount := int32(elapsedSinceRefill * b.refillRate.perSecond())
	if amount > 0 {
		b.tokens += amount
		b.lastRefill = now
	}

	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}

	return b.tokens
}

// Drip charges one token for a connection attempt, refilling first, and
// returns Approved if tokens remained positive before the charge. An
// already-expired bucket is denied without mutation, leaving it eligible
// for the sweeper instead of reviving its idle clock.
func (b *TokenBucket) Drip() Decision {
	if b.IsExpired() {
		return Denied
	}

	tokens := b.refill()
	b.tokens--
	b.lastConnect = b.now()

	if tokens <= 0 {
		return Denied
	}

	if b.ver == ^uint64(0)-1 {
		b.ver = 0
	} else {
		b.ver++
	}

	return Approved
}
