// Package generate обрабатывает выпуск пакета лицензионных ключей администратором.
package generate

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/paywall/internal/http/response"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/models"
)

// Request тело запроса выпуска ключей. SingleUse по умолчанию true.
type Request struct {
	Plan      string     `json:"plan" validate:"required"`
	Count     int        `json:"count" validate:"required,min=1,max=500"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	SingleUse *bool      `json:"single_use,omitempty"`
	Issuer    string     `json:"issuer,omitempty" validate:"max=128"`
}

// Service определяет интерфейс выпуска ключей.
type Service interface {
	Generate(ctx context.Context, planID string, count int, opts models.GenerateOptions) (*models.GeneratedKeys, error)
}

// Handler обрабатывает запросы выпуска ключей.
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
// @Summary Выпустить лицензионные ключи
// @Description Генерирует от 1 до 500 ключей для тарифа. Открытый текст ключей возвращается только в этом ответе.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Param request body Request true "Параметры пакета"
// @Success 201 {object} response.Response{data=models.GeneratedKeys}
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Неверный административный ключ"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка"
// @Router /admin/licenses [post]
// @Security AdminKey
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.license.generate"
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

	opts := models.GenerateOptions{
		ExpiresAt: req.ExpiresAt,
		SingleUse: true,
		Issuer:    req.Issuer,
	}
	if req.SingleUse != nil {
		opts.SingleUse = *req.SingleUse
	}

	keys, err := h.service.Generate(r.Context(), req.Plan, req.Count, opts)
	if err != nil {
		status := response.RenderError(w, r, err)
		log.Log(r.Context(), response.Level(status), "failed to generate license keys", sl.Err(err))
		return
	}

	log.Info("license keys generated", slog.String("plan_id", req.Plan), slog.Int("count", len(keys.Keys)))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OK(keys))
}
