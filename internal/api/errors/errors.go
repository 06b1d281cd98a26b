// Пакет errors — ответы с ошибками JSON API.
// Формат тела: {"error": {"code": "...", "message": "..."}}.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rucyang/metadata/internal/service"
)

// Коды ошибок.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeForbidden       = "FORBIDDEN"
	CodeConflict        = "CONFLICT"
	CodeInternalError   = "INTERNAL_ERROR"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// serviceErrors сопоставляет ошибки сервисного слоя с ответами.
var serviceErrors = []struct {
	err    error
	status int
	code   string
}{
	{service.ErrValidation, http.StatusBadRequest, CodeValidationError},
	{service.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{service.ErrForbidden, http.StatusForbidden, CodeForbidden},
	{service.ErrConflict, http.StatusConflict, CodeConflict},
}

// WriteError записывает ответ ошибки.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Code: code, Message: message}})
}

// ValidationError — 400.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// InternalError — 500. Подробности ошибки в ответ не попадают.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// FromService отвечает по ошибке сервисного слоя.
// Возвращает false для ошибок без отдельного кода: их обрабатывает
// вызывающий (логирует и отвечает InternalError).
func FromService(w http.ResponseWriter, err error, message string) bool {
	for _, se := range serviceErrors {
		if errors.Is(err, se.err) {
			WriteError(w, se.status, se.code, message)
			return true
		}
	}
	return false
}
