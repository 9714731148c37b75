package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/idropr/core/internal/permission"
	"github.com/idropr/core/internal/session"
	"github.com/idropr/core/internal/sessionctl"
)

var errMalformedAuthorizationHeader = errors.New("middleware: malformed authorization header")

type authContextKey string

const authContextKeyUser authContextKey = "auth_context_user"

// AuthContext wraps an authenticated caller. RouteLock does not attach
// this type; it attaches the bare session.User (see UserFromContext).
type AuthContext struct {
	User session.User
}

// UserFromContext retrieves the session.User attached by RouteLock once
// the route-lock gate grants access.
func UserFromContext(ctx context.Context) (session.User, bool) {
	u, ok := ctx.Value(authContextKeyUser).(session.User)
	return u, ok
}

// FingerprintSource resolves the database-side token fingerprint for a
// user, used only when a session check reports RefreshStatus=Refresh.
// Satisfied by internal/repository.DB.
type FingerprintSource interface {
	SessionFingerprint(ctx context.Context, userID int64) (string, error)
}

// BearerToken extracts the raw token from r's Authorization header, for
// handlers that need the token itself (e.g. to delete the session it
// names) after RouteLock has already authorized the request.
func BearerToken(r *http.Request) (string, error) {
	return parseBearerToken(r.Header.Get("Authorization"))
}

// parseBearerToken splits "<scheme> <token>" on the last space: the scheme
// is not validated against a fixed vocabulary, only its shape.
func parseBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMalformedAuthorizationHeader
	}
	idx := strings.LastIndex(header, " ")
	if idx < 0 || idx == len(header)-1 {
		return "", errMalformedAuthorizationHeader
	}
	token := header[idx+1:]
	if token == "" {
		return "", errMalformedAuthorizationHeader
	}
	return token, nil
}

// RouteLock authorizes a request against requiredMask before delivering it
// to next. On Granted it attaches the AuthContext to the request context
// (and, when the session is due for refresh, consults fps and calls
// Controller.Refresh before the handler runs); on Denied or any
// authentication failure it responds 401 without invoking next.
func RouteLock(ctrl *sessionctl.Controller, fps FingerprintSource, requiredMask permission.Mask, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, err := parseBearerToken(r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "missing or malformed authorization header")
				return
			}

			result, err := ctrl.Check(tok, requiredMask)
			if err != nil {
				logger.WarnContext(r.Context(), "session check failed", slog.String("err", err.Error()))
				writeError(w, http.StatusUnauthorized, "invalid session")
				return
			}
			if result.Permission != permission.Granted {
				writeError(w, http.StatusUnauthorized, "invalid session")
				return
			}

			user := result.AuthContext

			if result.RefreshStatus == session.Refresh && fps != nil {
				fp, err := fps.SessionFingerprint(r.Context(), user.ID)
				if err != nil {
					logger.ErrorContext(r.Context(), "fingerprint lookup failed", slog.String("err", err.Error()))
					writeError(w, http.StatusUnauthorized, "invalid session")
					return
				}
				if err := ctrl.Refresh(tok, fp); err != nil {
					logger.WarnContext(r.Context(), "session refresh denied", slog.String("err", err.Error()))
					writeError(w, http.StatusUnauthorized, "invalid session")
					return
				}
			}

			ctx := context.WithValue(r.Context(), authContextKeyUser, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
