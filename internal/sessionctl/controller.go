// Package sessionctl implements the sharded in-memory session store: one
// reader/writer lock per shard guarding a key→Session map, keyed by the
// 16-byte token key, plus a process-wide keying material used only to
// compute the database-side token fingerprint on refresh.
package sessionctl

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"hash/maphash"
	"sync"
	"time"

	"github.com/idropr/core/internal/permission"
	"github.com/idropr/core/internal/session"
	"github.com/idropr/core/internal/token"
)

const shardFactor = 2

var (
	// ErrPermissionDenied names a denied permission check. Check does not
	// return it: a missing session, expired session, or verifier mismatch
	// is reported as a Denied CheckResult with a nil error.
	ErrPermissionDenied = errors.New("sessionctl: permission denied")
	// ErrFingerprintMismatch is returned by Refresh when the database's
	// stored fingerprint no longer matches the presented token.
	ErrFingerprintMismatch = errors.New("sessionctl: fingerprint mismatch")
	// ErrSessionNotFound is returned by Refresh when the in-memory session
	// was evicted between the check that requested a refresh and Refresh
	// itself running (e.g. the sweeper raced it out).
	ErrSessionNotFound = errors.New("sessionctl: session not found")
)

type shard struct {
	mu       sync.RWMutex
	sessions map[token.Key]*session.Session
}

// Controller is the sharded session store.
type Controller struct {
	shards  []*shard
	seed    maphash.Seed
	hashKey [32]byte
	now     func() time.Time
}

// New builds a Controller sized for roughly capacity live sessions spread
// across 2×threads shards (threads<=0 is treated as 1), and draws a fresh
// 32-byte process-private hash key for database fingerprinting. now is
// injected for deterministic tests; pass time.Now in production.
func New(capacity, threads int, now func() time.Time) (*Controller, error) {
	if threads <= 0 {
		threads = 1
	}
	if now == nil {
		now = time.Now
	}

	var hashKey [32]byte
	if _, err := rand.Read(hashKey[:]); err != nil {
		return nil, err
	}

	shardCount := shardFactor * threads
	perShardCap := capacity / shardCount

	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{sessions: make(map[token.Key]*session.Session, perShardCap)}
	}

	return &Controller{
		shards:  shards,
		seed:    maphash.MakeSeed(),
		hashKey: hashKey,
		now:     now,
	}, nil
}

func (c *Controller) shardFor(key token.Key) *shard {
	var h maphash.Hash
	h.SetSeed(c.seed)
	_, _ = h.Write(key[:])
	return c.shards[h.Sum64()%uint64(len(c.shards))]
}

// Insert stores sess under ks.Key and returns the base64url wire token a
// caller can hand back to the client.
func (c *Controller) Insert(sess session.Session, ks token.KeySet) string {
	sh := c.shardFor(ks.Key)

	sh.mu.Lock()
	sh.sessions[ks.Key] = &sess
	sh.mu.Unlock()

	return ks.Encode()
}

// Delete removes the session addressed by tokenB64. A missing entry is not
// an error.
func (c *Controller) Delete(tokenB64 string) error {
	key, _, err := token.Decode(tokenB64)
	if err != nil {
		return err
	}

	sh := c.shardFor(key)
	sh.mu.Lock()
	delete(sh.sessions, key)
	sh.mu.Unlock()

	return nil
}

// CheckResult is the outcome of Check: the permission/refresh verdicts plus,
// on Granted, the session's user as the request's AuthContext.
type CheckResult struct {
	Permission    permission.CheckResult
	RefreshStatus session.RefreshStatus
	AuthContext   session.User
}

// Check decodes tokenB64, verifies it against the stored session, and
// reports whether required is granted along with whether the session is
// due for a database-backed refresh. A missing, expired, or
// verifier-mismatched token always resolves to Denied with RefreshStatus
// NoRefresh and a zero AuthContext.
func (c *Controller) Check(tokenB64 string, required permission.Mask) (CheckResult, error) {
	key, secret, err := token.Decode(tokenB64)
	if err != nil {
		return CheckResult{}, err
	}

	sh := c.shardFor(key)

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	sess, ok := sh.sessions[key]
	if !ok {
		return CheckResult{Permission: permission.Denied}, nil
	}

	now := c.now()
	if sess.IsExpired(now) == session.Expired {
		return CheckResult{Permission: permission.Denied}, nil
	}

	if token.Verify(key, secret, sess.Hash) != token.Verified {
		return CheckResult{Permission: permission.Denied}, nil
	}

	result := CheckResult{
		Permission:    permission.Check(sess.User.Permissions, required),
		RefreshStatus: sess.IsStale(now),
	}
	if result.Permission == permission.Granted {
		result.AuthContext = sess.User
	}
	return result, nil
}

// Refresh re-derives the token's database fingerprint and compares it,
// in constant time, against storedFingerprint (the caller's
// already-fetched database row). On a mismatch the in-memory session is
// evicted and ErrFingerprintMismatch is returned. On a match, the
// session's refresh schedule is advanced.
func (c *Controller) Refresh(tokenB64, storedFingerprint string) error {
	key, secret, err := token.Decode(tokenB64)
	if err != nil {
		return err
	}

	fp, err := token.Fingerprint(c.hashKey, key, secret)
	if err != nil {
		return err
	}

	if subtle.ConstantTimeCompare([]byte(fp), []byte(storedFingerprint)) != 1 {
		sh := c.shardFor(key)
		sh.mu.Lock()
		delete(sh.sessions, key)
		sh.mu.Unlock()
		return ErrFingerprintMismatch
	}

	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[key]
	if !ok {
		return ErrSessionNotFound
	}
	sess.UpdateNextRefresh(c.now())

	return nil
}

// HashKey returns the process-private keying material used to compute
// database fingerprints, for callers that must derive one outside Refresh
// (e.g. at login, to compute the row to store).
func (c *Controller) HashKey() [32]byte {
	return c.hashKey
}

// Count returns the total number of live sessions across every shard, for
// metrics and tests.
func (c *Controller) Count() int {
	total := 0
	for _, sh := range c.shards {
		sh.mu.RLock()
		total += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return total
}
