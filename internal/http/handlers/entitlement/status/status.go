// Package status отдаёт текущее право доступа устройства или аккаунта.
package status

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/paywall/internal/http/middlewarectx"
	"github.com/magabrotheeeer/paywall/internal/http/response"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/models"
)

// Service определяет интерфейс резолвера прав доступа.
type Service interface {
	ResolveFor(ctx context.Context, accountID, fingerprint string) (*models.EntitlementView, error)
}

// Handler обрабатывает запросы статуса.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, s Service) *Handler {
	return &Handler{log: log, service: s}
}

// ServeHTTP godoc
// @Summary Получить статус доступа
// @Description Возвращает производный статус доступа. Аккаунт из токена имеет приоритет над отпечатком устройства.
// @Tags Entitlement
// @Produce  json
// @Param fingerprint query string false "Отпечаток устройства"
// @Success 200 {object} response.Response{data=models.EntitlementView}
// @Failure 401 {object} response.ErrorResponse "Неверный токен"
// @Failure 422 {object} response.ErrorResponse "Не указан ни аккаунт, ни устройство"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка"
// @Router /entitlement [get]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.entitlement.status"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	accountID := middlewarectx.AccountID(r.Context())
	fingerprint := r.URL.Query().Get("fingerprint")

	view, err := h.service.ResolveFor(r.Context(), accountID, fingerprint)
	if err != nil {
		status := response.RenderError(w, r, err)
		log.Log(r.Context(), response.Level(status), "failed to resolve entitlement", sl.Err(err))
		return
	}

	render.JSON(w, r, response.OK(view))
}
