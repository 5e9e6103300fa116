// Package middlewarectx содержит HTTP middleware: проверку токена идентификации,
// административного ключа, ограничение частоты запросов и метрики.
//
// Authenticate проверяет JWT в заголовке Authorization и кладёт проверенную
// идентичность в контекст запроса. Неверный токен всегда даёт 401; отсутствие
// токена допустимо только для маршрутов с необязательной аутентификацией.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/paywall/internal/http/response"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/models"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

// PrincipalKey ключ проверенной идентичности в контексте.
const PrincipalKey Key = "principal"

// Verifier проверяет токен идентификации.
type Verifier interface {
	Verify(token string) (*models.Principal, error)
}

// PrincipalFrom возвращает проверенную идентичность из контекста.
func PrincipalFrom(ctx context.Context) (*models.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(*models.Principal)
	return p, ok && p != nil && p.SubjectID != ""
}

// AccountID возвращает id аккаунта из контекста или пустую строку.
func AccountID(ctx context.Context) string {
	if p, ok := PrincipalFrom(ctx); ok {
		return p.SubjectID
	}
	return ""
}

// Authenticate возвращает middleware проверки токена. При required=false запрос
// без заголовка Authorization проходит анонимно.
func Authenticate(v Verifier, log *slog.Logger, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.Authenticate"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" && !required {
				next.ServeHTTP(w, r)
				return
			}
			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Warn("missing or invalid authorization header")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid authorization header"))
				return
			}

			principal, err := v.Verify(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				log.Warn("invalid or expired token", sl.Err(err))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired token"))
				return
			}
			ctx := context.WithValue(r.Context(), PrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
