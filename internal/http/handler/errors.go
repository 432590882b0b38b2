package handler

import (
	"errors"
	"net/http"

	"github.com/sandeepkv93/credential-session-service/internal/http/response"
	"github.com/sandeepkv93/credential-session-service/internal/service"
)

var kindStatus = map[service.ErrorKind]struct {
	status  int
	message string
}{
	service.KindInvalidInput:          {http.StatusBadRequest, "invalid input"},
	service.KindDuplicateEmail:        {http.StatusConflict, "email already registered"},
	service.KindInvalidCredentials:    {http.StatusUnauthorized, "invalid credentials"},
	service.KindTokenInvalidOrExpired: {http.StatusUnauthorized, "token is invalid or expired"},
	service.KindDeliveryError:         {http.StatusBadGateway, "could not send email, please try again"},
	service.KindInternal:              {http.StatusInternalServerError, "internal server error"},
}

// writeServiceError renders the error kind only. Causes never reach the
// response body.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := service.KindOf(err)
	m, ok := kindStatus[kind]
	if !ok {
		kind, m = service.KindInternal, kindStatus[service.KindInternal]
	}
	var details any
	var se *service.Error
	if kind == service.KindInvalidInput && errors.As(err, &se) && len(se.Fields) > 0 {
		details = se.Fields
	}
	response.Error(w, r, m.status, string(kind), m.message, details)
}
