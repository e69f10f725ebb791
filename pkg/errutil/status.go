package errutil

import "net/http"

type CoreStatus string

const (
	StatusBadRequest        CoreStatus = "BAD_REQUEST"
	StatusValidationFailed  CoreStatus = "VALIDATION_FAILED"
	StatusNotFound          CoreStatus = "NOT_FOUND"
	StatusConflict          CoreStatus = "CONFLICT"
	StatusInsufficientFunds CoreStatus = "INSUFFICIENT_FUNDS"
	StatusInternal          CoreStatus = "INTERNAL"
)

// HTTPStatus maps a CoreStatus to the status code the HTTP layer responds with.
func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusBadRequest, StatusValidationFailed:
		return http.StatusBadRequest
	case StatusNotFound:
		return http.StatusNotFound
	case StatusConflict:
		return http.StatusConflict
	case StatusInsufficientFunds:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
