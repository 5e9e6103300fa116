// Package list отдаёт каталог тарифов.
package list

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/paywall/internal/http/response"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/models"
)

// Catalog определяет интерфейс каталога тарифов.
type Catalog interface {
	List(ctx context.Context) ([]*models.Plan, error)
}

type Handler struct {
	log     *slog.Logger
	catalog Catalog
}

func New(log *slog.Logger, c Catalog) *Handler {
	return &Handler{log: log, catalog: c}
}

// ServeHTTP godoc
// @Summary Каталог тарифов
// @Tags Plans
// @Produce  json
// @Success 200 {object} response.Response{data=[]models.Plan}
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка"
// @Router /plans [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.plans.list"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	plans, err := h.catalog.List(r.Context())
	if err != nil {
		status := response.RenderError(w, r, err)
		log.Log(r.Context(), response.Level(status), "failed to list plans", sl.Err(err))
		return
	}

	render.JSON(w, r, response.OK(plans))
}
