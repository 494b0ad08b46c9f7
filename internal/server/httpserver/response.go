package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	validation "github.com/go-ozzo/ozzo-validation"
)

type errorBody struct {
	Error     string            `json:"error"`
	Fields    validation.Errors `json:"fields,omitempty"`
	Remaining *int              `json:"remainingAttempts,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}

// writeServiceError maps an engine error onto a status code. Unknown
// errors are logged and reported as a bare 500.
func (s *HTTPServer) writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		verr   *validationError
		locked *common.AccountLockedError
		creds  *common.InvalidCredentialsError
	)

	switch {
	case errors.As(err, &verr):
		body := errorBody{Error: common.ErrValidation.Error()}
		if fields, ok := verr.err.(validation.Errors); ok {
			body.Fields = fields
		}
		writeJSON(w, http.StatusBadRequest, body)
	case errors.Is(err, common.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrEmailInUse):
		writeError(w, http.StatusConflict, "email already in use")
	case errors.As(err, &locked):
		w.Header().Set("Retry-After", strconv.Itoa(locked.RetryAfterMinutes*60))
		writeError(w, http.StatusLocked, locked.Error())
	case errors.As(err, &creds):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid credentials", Remaining: &creds.Remaining})
	case errors.Is(err, common.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, common.ErrInvalidRefreshToken):
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
	case errors.Is(err, common.ErrInvalidOrExpiredToken):
		writeError(w, http.StatusBadRequest, "invalid or expired token")
	case errors.Is(err, common.ErrVerificationExpired):
		writeError(w, http.StatusGone, "verification expired")
	case errors.Is(err, common.ErrVerificationInvalid):
		writeError(w, http.StatusBadRequest, "verification invalid")
	case errors.Is(err, common.ErrorNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, common.ErrStorageUnavailable):
		s.logger.Error(ctx, "storage unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		s.logger.Error(ctx, "request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
