// Package webhook принимает события платёжного провайдера.
package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/paywall/internal/errs"
	"github.com/magabrotheeeer/paywall/internal/http/response"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	pp "github.com/magabrotheeeer/paywall/internal/paymentprovider"
)

// MaxBodyBytes предельный размер тела события.
const MaxBodyBytes = 1 << 20

// Service определяет интерфейс обработчика событий биллинга.
type Service interface {
	Process(ctx context.Context, payload []byte, signature string) error
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, s Service) *Handler {
	return &Handler{log: log, service: s}
}

// ServeHTTP godoc
// @Summary Вебхук платёжного провайдера
// @Description Проверяет подпись Stripe-Signature и применяет событие. Ответ 5xx означает, что провайдер повторит доставку.
// @Tags Billing
// @Accept  json
// @Produce  json
// @Param Stripe-Signature header string true "Подпись события"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Неверная подпись или тело"
// @Failure 500 {object} response.ErrorResponse "Ошибка применения события"
// @Router /billing/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.webhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		log.Warn("failed to read webhook body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	err = h.service.Process(r.Context(), body, r.Header.Get(pp.SignatureHeader))
	switch {
	case err == nil:
		render.JSON(w, r, response.OKWithMessage("received", nil))
	case errors.Is(err, errs.ErrInvalidSignature):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid signature"))
	case errors.Is(err, errs.ErrValidation):
		log.Warn("malformed webhook payload", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid payload"))
	default:
		log.Error("failed to process webhook event", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
	}
}
