package server

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"

	"github.com/desertthunder/tunelink/internal/shared"
)

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		refreshErr     *shared.TokenRefreshError
		fetchErr       *shared.PlaylistFetchError
		unsupportedErr *shared.UnsupportedPlatformError
	)
	switch {
	case errors.As(err, &refreshErr):
		if refreshErr.Reason == "missing code" {
			return http.StatusBadRequest
		}
		return http.StatusUnauthorized
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway
	case errors.As(err, &unsupportedErr):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrStateMismatch),
		errors.Is(err, shared.ErrAuthFailed),
		errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrInvalidArgument),
		errors.Is(err, shared.ErrMissingArgument),
		errors.Is(err, shared.ErrFriendRequest):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrPlaylistNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response", "error", err)
	}
}

// writeError logs server-side failures and hides their detail from the client.
func writeError(w http.ResponseWriter, logger *log.Logger, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		logger.Error("request failed", "error", err)
		msg = http.StatusText(status)
	} else {
		logger.Debug("request rejected", "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: msg})
}
