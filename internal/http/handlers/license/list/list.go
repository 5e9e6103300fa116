// Package list отдаёт администратору выборку лицензионных ключей.
package list

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/paywall/internal/http/response"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/models"
)

// Service определяет интерфейс выборки ключей.
type Service interface {
	List(ctx context.Context, filter models.LicenseFilter) ([]*models.LicenseKey, error)
}

// Handler обрабатывает запросы выборки ключей.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, s Service) *Handler {
	return &Handler{log: log, service: s}
}

// ServeHTTP godoc
// @Summary Список лицензионных ключей
// @Description Возвращает ключи без открытого текста и хэшей. Фильтры по тарифу и признаку погашения.
// @Tags Admin
// @Produce  json
// @Param plan query string false "Ключ тарифа"
// @Param redeemed query bool false "Только погашенные или только свободные"
// @Param limit query int false "Размер страницы (по умолчанию 50, не больше 500)"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response{data=[]models.LicenseKey}
// @Failure 400 {object} response.ErrorResponse "Некорректные параметры"
// @Failure 401 {object} response.ErrorResponse "Неверный административный ключ"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка"
// @Router /admin/licenses [get]
// @Security AdminKey
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.license.list"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	q := r.URL.Query()
	filter := models.LicenseFilter{PlanID: q.Get("plan")}

	var err error
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil {
			h.badParam(w, r, log, "limit", err)
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if filter.Offset, err = strconv.Atoi(v); err != nil {
			h.badParam(w, r, log, "offset", err)
			return
		}
	}
	if v := q.Get("redeemed"); v != "" {
		redeemed, err := strconv.ParseBool(v)
		if err != nil {
			h.badParam(w, r, log, "redeemed", err)
			return
		}
		filter.Redeemed = &redeemed
	}

	keys, err := h.service.List(r.Context(), filter)
	if err != nil {
		status := response.RenderError(w, r, err)
		log.Log(r.Context(), response.Level(status), "failed to list license keys", sl.Err(err))
		return
	}

	log.Debug("license keys listed", slog.Int("count", len(keys)))
	render.JSON(w, r, response.OK(keys))
}

func (h *Handler) badParam(w http.ResponseWriter, r *http.Request, log *slog.Logger, name string, err error) {
	log.Warn("invalid query parameter", slog.String("param", name), sl.Err(err))
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, response.Error("invalid query parameter "+name))
}
