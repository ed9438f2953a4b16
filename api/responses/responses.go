// Package responses writes the JSON envelopes shared by every endpoint.
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	pkgerrors "github.com/flagit/flagit-backend/pkg/errors"
	"github.com/flagit/flagit-backend/pkg/logger"
)

const (
	requestIDHeader  = "X-Request-Id"
	retryAfterHeader = "Retry-After"
)

// WriteSuccess writes data inside the success envelope with status 200.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessEnvelope{Data: data})
}

// WriteError maps err onto the error envelope. Untyped errors become INTERNAL_ERROR
// so driver text never reaches clients.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	body := ErrorBody{
		Code:      string(typed.Code()),
		Message:   typed.PublicMessage(),
		RequestID: w.Header().Get(requestIDHeader),
	}
	if meta.DetailsAllowed {
		body.Details = typed.Details()
	}
	if seconds := retryAfterSeconds(w, meta); seconds > 0 {
		body.RetryAfterSeconds = seconds
	}

	logFailure(ctx, logg, err, meta.HTTPStatus)
	writeJSON(w, meta.HTTPStatus, ErrorEnvelope{Error: body})
}

// retryAfterSeconds keeps a Retry-After a handler already chose, such as the
// poll limiter's window, and otherwise applies the code's default.
func retryAfterSeconds(w http.ResponseWriter, meta pkgerrors.Metadata) int {
	if existing := w.Header().Get(retryAfterHeader); existing != "" {
		seconds, err := strconv.Atoi(existing)
		if err != nil {
			return 0
		}
		return seconds
	}
	if meta.RetryAfter <= 0 {
		return 0
	}
	seconds := int(meta.RetryAfter.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set(retryAfterHeader, strconv.Itoa(seconds))
	return seconds
}

// logFailure keeps expected client outcomes such as a missing reward at warn
// and reserves error level, with its stack, for 5xx responses.
func logFailure(ctx context.Context, logg *logger.Logger, err error, status int) {
	if logg == nil {
		return
	}
	fields := pkgerrors.Dump(err).LogFields()
	fields["status"] = status
	ctx = logg.WithFields(ctx, fields)
	if status >= http.StatusInternalServerError {
		logg.Error(ctx, "request.error", err)
		return
	}
	logg.Warn(ctx, "request.rejected")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
