package httpadapter

import (
	"net/http"

	"github.com/kirillkom/sales-coach/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrCallNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrCircuitOpen),
		domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
