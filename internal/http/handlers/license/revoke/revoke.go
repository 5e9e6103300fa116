// Package revoke обрабатывает отзыв лицензионного ключа администратором.
package revoke

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/paywall/internal/http/response"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
)

// Request тело запроса отзыва.
type Request struct {
	Key string `json:"key" validate:"required,max=64"`
}

// Service определяет интерфейс отзыва ключей.
type Service interface {
	Revoke(ctx context.Context, key string) error
}

// Handler обрабатывает запросы отзыва ключей.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, s Service) *Handler {
	return &Handler{
		log:      log,
		service:  s,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Отозвать лицензионный ключ
// @Description Делает ключ непогашаемым. Повторный отзыв успешен.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Param request body Request true "Ключ"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Неверный административный ключ"
// @Failure 404 {object} response.ErrorResponse "Ключ не найден"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /admin/licenses/revoke [post]
// @Security AdminKey
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.license.revoke"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Warn("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	if err := h.service.Revoke(r.Context(), req.Key); err != nil {
		status := response.RenderError(w, r, err)
		log.Log(r.Context(), response.Level(status), "failed to revoke license key", sl.Err(err))
		return
	}

	render.JSON(w, r, response.OKWithMessage("revoked", nil))
}
