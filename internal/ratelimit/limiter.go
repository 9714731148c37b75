package ratelimit

import (
	"errors"
	"hash/maphash"
	"net/netip"
	"sync"
	"time"
)

const (
	blacklistWindow = 60 * time.Second
	blacklistLimit  = -25

	// shardFactor is the number of shards allocated per configured worker
	// thread, trading a little extra memory for less lock contention under
	// concurrent connection attempts.
	shardFactor = 2

	sweepMinBudget  = 1024
	sweepTimeBudget = 20 * time.Millisecond
)

// ErrInvalidIP is returned when try_connect is given an unparseable address.
var ErrInvalidIP = errors.New("ratelimit: invalid ip address")

// ErrAlreadyBlacklisted is returned by AddToBlacklist when ip already
// carries an unexpired entry: a duplicate add is rejected rather than
// silently overwriting the existing entry's expiry.
var ErrAlreadyBlacklisted = errors.New("ratelimit: ip already blacklisted")

// ListEntry records when a blacklist/whitelist override expires. A zero
// Expires means the entry never expires.
type ListEntry struct {
	Expires time.Time
}

func (e ListEntry) expired(now time.Time) bool {
	return !e.Expires.IsZero() && !now.Before(e.Expires)
}

type shard struct {
	mu      sync.Mutex
	buckets map[netip.Addr]*TokenBucket
	expiry  expiryHeap
}

// Limiter is a sharded token-bucket rate limiter keyed by client IP.
type Limiter struct {
	shards         []*shard
	seed           maphash.Seed
	blacklistMu    sync.RWMutex
	blacklist      map[netip.Addr]ListEntry
	whitelistMu    sync.RWMutex
	whitelist      map[netip.Addr]ListEntry
	bucketCapacity int32
	initialTokens  int32
	refillRate     RefillRate
	now            func() time.Time
}

// Config configures a new Limiter.
type Config struct {
	InitialCapacity int
	BucketCapacity  int32
	InitialTokens   int32
	RefillRate      RefillRate
	Threads         int
	Now             func() time.Time
}

// New builds a Limiter from cfg. Threads <= 0 is treated as 1.
func New(cfg Config) *Limiter {
	threads := cfg.Threads
	if threads <= 0 {
		threads = 1
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	shardCount := shardFactor * threads
	perShardCap := cfg.InitialCapacity / shardCount

	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{buckets: make(map[netip.Addr]*TokenBucket, perShardCap)}
	}

	return &Limiter{
		shards:         shards,
		seed:           maphash.MakeSeed(),
		blacklist:      make(map[netip.Addr]ListEntry),
		whitelist:      make(map[netip.Addr]ListEntry),
		bucketCapacity: cfg.BucketCapacity,
		initialTokens:  cfg.InitialTokens,
		refillRate:     cfg.RefillRate,
		now:            now,
	}
}

// BucketCount returns the number of token buckets currently tracked
// across all shards, for gauge sampling.
func (l *Limiter) BucketCount() int {
	total := 0
	for _, sh := range l.shards {
		sh.mu.Lock()
		total += len(sh.buckets)
		sh.mu.Unlock()
	}
	return total
}

func (l *Limiter) shardFor(ip netip.Addr) *shard {
	var h maphash.Hash
	h.SetSeed(l.seed)
	b := ip.As16()
	_, _ = h.Write(b[:])
	return l.shards[h.Sum64()%uint64(len(l.shards))]
}

// AddToBlacklist denies ip for the given duration (0 means indefinitely).
// An ip that already carries an unexpired entry is left untouched and
// ErrAlreadyBlacklisted is returned: a duplicate add is an error, not a
// silent overwrite of the existing entry's expiry.
func (l *Limiter) AddToBlacklist(ip netip.Addr, ttl time.Duration) error {
	l.blacklistMu.Lock()
	defer l.blacklistMu.Unlock()
	if e, ok := l.blacklist[ip]; ok && !e.expired(l.now()) {
		return ErrAlreadyBlacklisted
	}
	l.blacklist[ip] = toEntry(l.now(), ttl)
	return nil
}

// AddToWhitelist exempts ip from rate limiting for the given duration (0
// means indefinitely).
func (l *Limiter) AddToWhitelist(ip netip.Addr, ttl time.Duration) {
	l.whitelistMu.Lock()
	defer l.whitelistMu.Unlock()
	l.whitelist[ip] = toEntry(l.now(), ttl)
}

func toEntry(now time.Time, ttl time.Duration) ListEntry {
	if ttl <= 0 {
		return ListEntry{}
	}
	return ListEntry{Expires: now.Add(ttl)}
}

// IsBlacklisted reports whether ip currently carries an unexpired
// blacklist entry.
func (l *Limiter) IsBlacklisted(ip netip.Addr) bool {
	l.blacklistMu.RLock()
	defer l.blacklistMu.RUnlock()
	e, ok := l.blacklist[ip]
	return ok && !e.expired(l.now())
}

// IsWhitelisted reports whether ip currently carries an unexpired
// whitelist entry.
func (l *Limiter) IsWhitelisted(ip netip.Addr) bool {
	l.whitelistMu.RLock()
	defer l.whitelistMu.RUnlock()
	e, ok := l.whitelist[ip]
	return ok && !e.expired(l.now())
}

// TryConnect admits or denies a connection attempt from the given address.
// Whitelisted addresses are always approved; blacklisted addresses are
// always denied (both checks bypass the per-shard lock entirely). Otherwise
// the address's bucket is dripped, creating one on first sight, and an
// over-quota client is pushed onto the blacklist.
func (l *Limiter) TryConnect(address string) (Decision, error) {
	ip, err := netip.ParseAddr(address)
	if err != nil {
		return Denied, ErrInvalidIP
	}

	if l.IsWhitelisted(ip) {
		return Approved, nil
	}
	if l.IsBlacklisted(ip) {
		return Denied, nil
	}

	sh := l.shardFor(ip)

	shouldBlacklist := false
	var decision Decision

	sh.mu.Lock()
	bucket, ok := sh.buckets[ip]
	if !ok {
		bucket = NewTokenBucket(l.bucketCapacity, l.initialTokens, l.refillRate, l.now)
		sh.buckets[ip] = bucket
		sh.expiry.push(heapKey{expiresAt: bucket.ExpiresAt(), ver: bucket.Ver(), ip: ip})
		decision = Approved
	} else {
		decision = bucket.Drip()
		if decision == Approved {
			sh.expiry.push(heapKey{expiresAt: bucket.ExpiresAt(), ver: bucket.Ver(), ip: ip})
		}
		if bucket.Tokens() < blacklistLimit {
			shouldBlacklist = true
		}
	}
	sh.mu.Unlock()

	if shouldBlacklist {
		// Concurrent callers can both observe tokens below blacklistLimit for
		// the same ip before either add runs; ErrAlreadyBlacklisted means a
		// racing caller won and the existing entry's expiry stands untouched.
		_ = l.AddToBlacklist(ip, blacklistWindow)
	}

	return decision, nil
}

// Sweep pops each shard's expiry heap down to the present, discarding
// tombstoned entries (ver no longer matches the bucket's current ver, from
// an intervening drip) and evicting any bucket whose entry is both current
// and genuinely idle. Bounded per shard by a count budget
// (max(1024, |map|/20)) and sweepTimeBudget wall-clock time so one sweep
// cannot stall connection handling behind a backlog.
func (l *Limiter) Sweep() {
	for _, sh := range l.shards {
		l.sweepShard(sh)
	}
}

func (l *Limiter) sweepShard(sh *shard) {
	stop := l.now().Add(sweepTimeBudget)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	budget := len(sh.buckets) / 20
	if budget < sweepMinBudget {
		budget = sweepMinBudget
	}

	popped := 0
	for popped < budget && !l.now().After(stop) {
		top, ok := sh.expiry.peek()
		if !ok || top.expiresAt.After(l.now()) {
			break
		}
		entry := sh.expiry.pop()
		popped++

		bucket, present := sh.buckets[entry.ip]
		if !present {
			continue
		}
		if bucket.Ver() == entry.ver && bucket.IsExpired() {
			delete(sh.buckets, entry.ip)
		}
	}
}

// Watch runs Sweep on interval until stop is closed. Call it from its own
// goroutine.
func (l *Limiter) Watch(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
