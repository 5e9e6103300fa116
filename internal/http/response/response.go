// Package response содержит вспомогательные типы и функции для формирования
// унифицированных JSON-ответов HTTP-обработчиков: {"success", "message", "data"}.
// Здесь же единая таблица соответствия ошибок доменного слоя HTTP-статусам.
package response

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/paywall/internal/errs"
)

// Response описывает стандартную структуру JSON-ответа сервера.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse структура ошибки для Swagger-документации.
type ErrorResponse struct {
	Success bool   `json:"success" example:"false"`
	Message string `json:"message" example:"invalid request body"`
}

// OK возвращает успешный Response с данными.
func OK(data any) Response {
	return Response{Success: true, Message: "ok", Data: data}
}

// OKWithMessage возвращает успешный Response с сообщением и данными.
func OKWithMessage(msg string, data any) Response {
	return Response{Success: true, Message: msg, Data: data}
}

// Error возвращает Response с ошибкой и переданным сообщением.
func Error(msg string) Response {
	return Response{Success: false, Message: msg}
}

// ValidationError формирует Response на основе ошибок валидации.
// Каждое нарушение превращается в человекочитаемый текст, объединённый через запятую.
func ValidationError(verrs validator.ValidationErrors) Response {
	var msgs []string

	for _, err := range verrs {
		switch err.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("field %s must be at most %s", err.Field(), err.Param()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("field %s must be at least %s", err.Field(), err.Param()))
		case "url":
			msgs = append(msgs, fmt.Sprintf("field %s must be a valid url", err.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s is not valid", err.Field()))
		}
	}
	return Error(strings.Join(msgs, ", "))
}

// specific — конкретные ошибки, текст которых безопасно отдавать клиенту.
var specific = []struct {
	err    error
	status int
}{
	{errs.ErrInvalidKey, http.StatusNotFound},
	{errs.ErrDeviceNotFound, http.StatusNotFound},
	{errs.ErrAlreadyRedeemed, http.StatusConflict},
	{errs.ErrKeyExpired, http.StatusConflict},
	{errs.ErrAlreadyLinked, http.StatusConflict},
	{errs.ErrAlreadyExists, http.StatusConflict},
	{errs.ErrInvalidToken, http.StatusUnauthorized},
}

// FromError переводит ошибку в HTTP-статус и сообщение для клиента.
// Внутренние подробности наружу не попадают.
func FromError(err error) (int, string) {
	for _, s := range specific {
		if errors.Is(err, s.err) {
			return s.status, s.err.Error()
		}
	}
	switch {
	case errors.Is(err, errs.ErrInvalidSignature):
		return http.StatusBadRequest, "invalid signature"
	case errors.Is(err, errs.ErrValidation):
		return http.StatusUnprocessableEntity, validationMessage(err)
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, errs.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, errs.ErrUpstream):
		return http.StatusBadGateway, "upstream service unavailable"
	}
	return http.StatusInternalServerError, "internal error"
}

// validationMessage оставляет только пояснение после категории ошибки.
func validationMessage(err error) string {
	msg := err.Error()
	prefix := errs.ErrValidation.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return errs.ErrValidation.Error()
}

// RenderError пишет ответ с ошибкой и возвращает выбранный статус.
func RenderError(w http.ResponseWriter, r *http.Request, err error) int {
	status, msg := FromError(err)
	render.Status(r, status)
	render.JSON(w, r, Error(msg))
	return status
}

// Level возвращает уровень логирования для статуса: ошибки клиента не шумят на Error.
func Level(status int) slog.Level {
	if status >= http.StatusInternalServerError {
		return slog.LevelError
	}
	return slog.LevelWarn
}
