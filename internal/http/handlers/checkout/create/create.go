// Package create обрабатывает создание сессии оплаты у платёжного провайдера.
package create

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
	"github.com/magabrotheeeer/paywall/internal/services/checkout"
)

// Request тело запроса создания сессии оплаты.
type Request struct {
	Plan        string `json:"plan" validate:"required"`
	Fingerprint string `json:"fingerprint,omitempty" validate:"max=512"`
	SuccessURL  string `json:"success_url" validate:"required,url"`
	CancelURL   string `json:"cancel_url" validate:"required,url"`
}

// Service определяет интерфейс сервиса оплаты.
type Service interface {
	CreateSession(ctx context.Context, req checkout.Request) (*checkout.Session, error)
}

// Handler обрабатывает запросы создания сессии оплаты.
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
// @Summary Создать сессию оплаты
// @Description Создаёт сессию оплаты подписки. Активный пробный период продолжается в биллинге до своей даты окончания.
// @Tags Checkout
// @Accept  json
// @Produce  json
// @Param request body Request true "Тариф и адреса возврата"
// @Success 200 {object} response.Response{data=checkout.Session}
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 502 {object} response.ErrorResponse "Платёжный провайдер недоступен"
// @Router /checkout [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.checkout.create"
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

	creq := checkout.Request{
		Fingerprint: req.Fingerprint,
		Plan:        req.Plan,
		SuccessURL:  req.SuccessURL,
		CancelURL:   req.CancelURL,
	}
	if p, ok := middlewarectx.PrincipalFrom(r.Context()); ok {
		creq.AccountID = p.SubjectID
		creq.Email = p.Email
		creq.Fingerprint = ""
	}

	session, err := h.service.CreateSession(r.Context(), creq)
	if err != nil {
		status := response.RenderError(w, r, err)
		log.Log(r.Context(), response.Level(status), "failed to create checkout session", sl.Err(err))
		return
	}

	render.JSON(w, r, response.OK(session))
}
