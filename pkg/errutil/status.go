package errutil

import "net/http"

// CoreStatus is a transport-agnostic error code shared across services.
type CoreStatus string

const (
	StatusUnknown             CoreStatus = "unknown"
	StatusBadRequest          CoreStatus = "bad-request"
	StatusValidationFailed    CoreStatus = "validation-failed"
	StatusNotFound            CoreStatus = "not-found"
	StatusConflict            CoreStatus = "conflict"
	StatusUnprocessableEntity CoreStatus = "unprocessable-entity"
	StatusTimeout             CoreStatus = "timeout"
	StatusTooManyRequests     CoreStatus = "too-many-requests"
	StatusInternal            CoreStatus = "internal"
	StatusUnavailable         CoreStatus = "unavailable"

	// Domain statuses for the engagement engine.
	StatusDuplicateEvent       CoreStatus = "duplicate-event"
	StatusContactNotFound      CoreStatus = "contact-not-found"
	StatusStorage              CoreStatus = "storage-error"
	StatusDeliveryFailure      CoreStatus = "delivery-failure"
	StatusInvalidConfiguration CoreStatus = "invalid-configuration"
)

// HTTPStatus converts the CoreStatus to its closest HTTP status code equivalent.
func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusBadRequest, StatusValidationFailed, StatusInvalidConfiguration:
		return http.StatusBadRequest
	case StatusNotFound, StatusContactNotFound:
		return http.StatusNotFound
	case StatusConflict, StatusDuplicateEvent:
		return http.StatusConflict
	case StatusUnprocessableEntity:
		return http.StatusUnprocessableEntity
	case StatusTimeout:
		return http.StatusGatewayTimeout
	case StatusTooManyRequests:
		return http.StatusTooManyRequests
	case StatusUnavailable:
		return http.StatusServiceUnavailable
	case StatusInternal, StatusStorage, StatusDeliveryFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
