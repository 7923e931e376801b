package httpmw

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Kjeonghyun5142/bap-pool/internal/domain"
	"github.com/Kjeonghyun5142/bap-pool/internal/httputil"
	"github.com/Kjeonghyun5142/bap-pool/internal/logger"
	"github.com/Kjeonghyun5142/bap-pool/internal/security"
)

type ctxKey string

const ctxKeyUserID ctxKey = "user_id"

type TokenVerifier interface {
	Verify(token string) (int64, error)
}

type UserChecker interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// Auth requires a valid bearer token whose user still exists and puts the
// user id into the request context.
func Auth(tokens TokenVerifier, users UserChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := security.BearerToken(r)
			if token == "" {
				httputil.Error(w, http.StatusUnauthorized, domain.ErrUnauthenticated.Error(), nil)
				return
			}

			uid, err := tokens.Verify(token)
			if err != nil {
				msg := domain.ErrInvalidToken.Error()
				if errors.Is(err, security.ErrTokenExpired) {
					msg = "authentication token expired"
				}
				httputil.Error(w, http.StatusUnauthorized, msg, nil)
				return
			}

			ok, err := users.Exists(r.Context(), uid)
			if err != nil {
				logger.FromContext(r.Context()).Error("auth: user lookup failed", slog.Int64("user_id", uid), slog.Any("err", err))
				httputil.Error(w, http.StatusInternalServerError, "internal server error", nil)
				return
			}
			if !ok {
				httputil.Error(w, http.StatusUnauthorized, domain.ErrInvalidToken.Error(), nil)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyUserID, uid)
			ctx = logger.WithContext(ctx, logger.FromContext(ctx).With(slog.Int64("user_id", uid)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func UserIDFromCtx(ctx context.Context) int64 {
	if id, ok := ctx.Value(ctxKeyUserID).(int64); ok {
		return id
	}
	return 0
}

// WithUserID is used by tests and internal callers that authenticate elsewhere.
func WithUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, ctxKeyUserID, id)
}
