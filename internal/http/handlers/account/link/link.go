// Package link обрабатывает привязку устройства к аккаунту.
package link

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/paywall/internal/http/middlewarectx"
	"github.com/magabrotheeeer/paywall/internal/http/response"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/models"
)

// Request тело запроса привязки.
type Request struct {
	Fingerprint string `json:"fingerprint" validate:"required,max=512"`
}

// Service определяет интерфейс сервиса привязки.
type Service interface {
	Link(ctx context.Context, fingerprint, accountID string) (*models.EntitlementView, error)
}

// Handler обрабатывает запросы привязки.
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
// @Summary Привязать устройство к аккаунту
// @Description Переносит пробный период и доступ устройства на аккаунт из токена. Устройство привязывается один раз.
// @Tags Account
// @Accept  json
// @Produce  json
// @Param request body Request true "Отпечаток устройства"
// @Success 200 {object} response.Response{data=models.EntitlementView}
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Устройство не найдено"
// @Failure 409 {object} response.ErrorResponse "Устройство уже привязано"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /link [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.account.link"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	accountID := middlewarectx.AccountID(r.Context())
	if accountID == "" {
		log.Warn("account not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

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

	view, err := h.service.Link(r.Context(), req.Fingerprint, accountID)
	if err != nil {
		status := response.RenderError(w, r, err)
		log.Log(r.Context(), response.Level(status), "failed to link device", sl.Err(err))
		return
	}

	render.JSON(w, r, response.OK(view))
}
