package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/sectify/sectify/internal/apierr"
	"github.com/sectify/sectify/internal/kvkeys"
	"github.com/sectify/sectify/internal/tokens"
)

type ctxKey string

const ctxUserID ctxKey = "sectify_user_id"

// requireAccessToken validates a Bearer access token, rejects it while a
// logged-out marker exists for its subject (kvkeys.UserLoggedOut), and
// injects the caller's user ID into the request context. The upload route
// is gated this way; streaming routes authorize through
// internal/authz.CheckTrackAccess instead, since an anonymous caller can
// legitimately reach a public track.
func requireAccessToken(d Deps) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hdr := r.Header.Get("Authorization")
			if !strings.HasPrefix(hdr, "Bearer ") {
				apierr.Write(w, apierr.AuthRequired("missing bearer token"))
				return
			}
			tok := strings.TrimPrefix(hdr, "Bearer ")

			claims, err := d.Tokens.Verify(tok, tokens.PurposeAccess, clientIP(r))
			if err != nil {
				apierr.Write(w, apierr.As(err))
				return
			}

			if n, err := d.KV.Exists(r.Context(), kvkeys.UserLoggedOut(claims.Subject)).Result(); err == nil && n > 0 {
				apierr.Write(w, apierr.AuthRequired("session was revoked"))
				return
			}

			ctx := context.WithValue(r.Context(), ctxUserID, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func userIDFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxUserID).(string)
	return v
}
