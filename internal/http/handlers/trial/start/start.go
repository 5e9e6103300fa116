// Package start обрабатывает запуск пробного периода для устройства.
package start

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
	"github.com/magabrotheeeer/paywall/internal/models"
)

// Request тело запроса запуска пробного периода.
type Request struct {
	Fingerprint string `json:"fingerprint" validate:"required,max=512"`
}

// Service определяет интерфейс менеджера пробных периодов.
type Service interface {
	Start(ctx context.Context, fingerprint string) (*models.TrialView, error)
}

// Handler обрабатывает запросы запуска пробного периода.
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
// @Summary Начать пробный период
// @Description Регистрирует устройство и выдаёт пробный период на 72 часа. Повторный вызов возвращает тот же период.
// @Tags Trial
// @Accept  json
// @Produce  json
// @Param request body Request true "Отпечаток устройства"
// @Success 200 {object} response.Response{data=models.TrialView}
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка"
// @Router /trial [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.trial.start"
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

	view, err := h.service.Start(r.Context(), req.Fingerprint)
	if err != nil {
		status := response.RenderError(w, r, err)
		log.Log(r.Context(), response.Level(status), "failed to start trial", sl.Err(err))
		return
	}

	log.Debug("trial resolved", slog.String("device_id", view.ID), slog.String("status", string(view.Status)))
	render.JSON(w, r, response.OK(view))
}
