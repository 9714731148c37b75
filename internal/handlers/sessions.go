package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/idropr/core/internal/middleware"
	"github.com/idropr/core/internal/repository"
	"github.com/idropr/core/internal/session"
	"github.com/idropr/core/internal/token"
)

type sessionsPostRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionsPostResponse struct {
	Token string `json:"token"`
}

// findUserForLogin searches for a user by username first, falling back to
// email if no username matches.
func findUserForLogin(ctx context.Context, db repository.DB, username string) (repository.UserRow, error) {
	user, err := db.FindUserByUsername(ctx, username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return repository.UserRow{}, err
	}

	return db.FindUserByEmail(ctx, username)
}

// handleLogin authenticates a username/password pair, creates a session,
// and returns its token. Every authentication failure responds 401: a
// wrong password and a nonexistent user are indistinguishable to the
// caller. A malformed or oversized request body responds 400 or 413.
func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req sessionsPostRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONDecodeError(w, err)
		return
	}

	user, err := findUserForLogin(r.Context(), h.db, req.Username)
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if !middleware.PasswordMatchesHash(user.PasswordHash, req.Password) {
		writeUnauthorized(w)
		return
	}

	ks, err := token.New()
	if err != nil {
		writeUnauthorized(w)
		return
	}

	now := h.now()
	sess := session.New(ks.Hash, user.ToSessionUser(), now)
	tok := h.sessions.Insert(sess, ks)

	fingerprint, err := token.Fingerprint(h.sessions.HashKey(), ks.Key, ks.Secret)
	if err != nil {
		_ = h.sessions.Delete(tok)
		writeUnauthorized(w)
		return
	}
	if err := h.db.UpsertSession(r.Context(), user.ID, fingerprint, now); err != nil {
		_ = h.sessions.Delete(tok)
		writeUnauthorized(w)
		return
	}

	writeJSON(w, http.StatusOK, "ok", sessionsPostResponse{Token: tok})
}

// handleLogout deletes the caller's own session (delete-self on Sessions).
// RouteLock has already verified the bearer token and required mask before
// this handler runs; it re-parses the header only to recover the raw
// token for Controller.Delete, which RouteLock does not thread through.
func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	tok, err := middleware.BearerToken(r)
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.sessions.Delete(tok); err != nil {
		writeUnauthorized(w)
		return
	}

	if user, ok := middleware.UserFromContext(r.Context()); ok {
		_ = h.db.DeleteSession(r.Context(), user.ID)
	}

	writeJSON(w, http.StatusOK, "ok", nil)
}
