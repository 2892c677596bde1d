package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"calorieTracker/internal/logging"
)

const maxJSONBody = 1 << 20

// appHandler is a handler that reports failures by returning an error.
type appHandler func(w http.ResponseWriter, r *http.Request) error

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// makeHandler adapts an appHandler to http.HandlerFunc. It is the single
// place where errors become responses: HTTPErrors keep their code and
// message, anything else is logged and rendered as a 500.
func makeHandler(log logging.Logger, h appHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}
		ctx := r.Context()
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			args := []any{"code", httpErr.Code, "msg", httpErr.Message, "path", r.URL.Path, "method", r.Method}
			if cause := errors.Unwrap(httpErr); cause != nil && cause.Error() != httpErr.Message {
				args = append(args, "cause", cause)
			}
			if httpErr.Code >= http.StatusInternalServerError {
				log.Error(ctx, "server error response", args...)
			} else {
				log.Warn(ctx, "client error response", args...)
			}
			respondJSON(w, httpErr.Code, errorBody{Error: httpErr.Message, Details: httpErr.Details})
			return
		}
		log.Error(ctx, "unhandled internal error", "path", r.URL.Path, "method", r.Method, "error", err)
		respondJSON(w, http.StatusInternalServerError, errorBody{Error: msgInternalServer})
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return ErrBadRequest("Invalid JSON payload")
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dst); err != nil {
		return ErrBadRequestWrap("Invalid JSON payload", err)
	}
	return nil
}

type messageBody struct {
	Message string `json:"message"`
}
