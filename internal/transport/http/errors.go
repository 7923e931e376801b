package http

import (
	"errors"
	"net/http"

	"github.com/Kjeonghyun5142/bap-pool/internal/domain"
)

// statusFor maps domain errors to an HTTP status and a client-safe message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrMissingTarget),
		errors.Is(err, domain.ErrSelfChat),
		errors.Is(err, domain.ErrMissingRoomID),
		errors.Is(err, domain.ErrEmptyContent),
		errors.Is(err, domain.ErrContentTooLong):
		return http.StatusBadRequest, rootMessage(err)
	case errors.Is(err, domain.ErrInvalidCursor):
		return http.StatusBadRequest, domain.ErrInvalidCursor.Error()
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, domain.ErrUnauthenticated.Error()
	case errors.Is(err, domain.ErrInvalidToken):
		return http.StatusUnauthorized, domain.ErrInvalidToken.Error()
	case errors.Is(err, domain.ErrNotParticipant):
		return http.StatusForbidden, domain.ErrNotParticipant.Error()
	case errors.Is(err, domain.ErrRoomNotFound):
		return http.StatusNotFound, domain.ErrRoomNotFound.Error()
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, domain.ErrUserNotFound.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func rootMessage(err error) string {
	for _, s := range []error{
		domain.ErrMissingTarget, domain.ErrSelfChat, domain.ErrMissingRoomID,
		domain.ErrEmptyContent, domain.ErrContentTooLong,
	} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return err.Error()
}
