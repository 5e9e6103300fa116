package middlewarectx

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/paywall/internal/http/response"
	"github.com/magabrotheeeer/paywall/internal/lib/password"
)

// AdminKeyHeader заголовок с административным ключом.
const AdminKeyHeader = "X-Admin-Key"

// AdminOnly пропускает запрос, только если ключ из AdminKeyHeader совпадает
// с bcrypt-хэшем из конфигурации.
func AdminOnly(adminKeyHash string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.AdminOnly"

			key := r.Header.Get(AdminKeyHeader)
			if key == "" || adminKeyHash == "" || password.CompareHash(adminKeyHash, key) != nil {
				log.Warn("admin credential rejected",
					slog.String("op", op),
					slog.String("request_id", middleware.GetReqID(r.Context())),
					slog.String("remote_addr", r.RemoteAddr))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
