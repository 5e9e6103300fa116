// Package redeem обрабатывает погашение лицензионного ключа.
package redeem

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
	"github.com/magabrotheeeer/paywall/internal/services/license"
)

// Request тело запроса погашения. Fingerprint нужен только анонимному клиенту.
type Request struct {
	Key         string `json:"key" validate:"required,max=64"`
	Fingerprint string `json:"fingerprint,omitempty" validate:"max=512"`
}

// Service определяет интерфейс погашения ключей.
type Service interface {
	Redeem(ctx context.Context, key string, target license.Target) (*models.RedeemResult, error)
}

// Handler обрабатывает запросы погашения ключей.
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
// @Summary Погасить лицензионный ключ
// @Description Привязывает ключ к аккаунту из токена либо к устройству по отпечатку и активирует тариф ключа.
// @Tags License
// @Accept  json
// @Produce  json
// @Param request body Request true "Ключ и отпечаток устройства"
// @Success 200 {object} response.Response{data=models.RedeemResult}
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 404 {object} response.ErrorResponse "Неизвестный ключ или устройство"
// @Failure 409 {object} response.ErrorResponse "Ключ уже погашен или истёк"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка"
// @Router /license/redeem [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.license.redeem"
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

	target := license.Target{Fingerprint: req.Fingerprint}
	if accountID := middlewarectx.AccountID(r.Context()); accountID != "" {
		target = license.Target{AccountID: accountID}
	}

	res, err := h.service.Redeem(r.Context(), req.Key, target)
	if err != nil {
		status := response.RenderError(w, r, err)
		log.Log(r.Context(), response.Level(status), "failed to redeem license key", sl.Err(err))
		return
	}

	log.Info("license key redeemed", slog.String("plan_id", res.PlanID), slog.String("bound_kind", res.BoundTo.Kind))
	render.JSON(w, r, response.OK(res))
}
