package api

import (
	"errors"
	"net/http"

	"github.com/growthbook/notify/event"
	"github.com/growthbook/notify/taxonomy"
	"github.com/growthbook/notify/webhook"
)

// writeServiceError maps service errors to HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *webhook.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, webhook.ErrNotFound):
		writeError(w, http.StatusNotFound, "webhook not found")
	case errors.Is(err, event.ErrNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	case errors.Is(err, taxonomy.ErrUnknownEvent), errors.Is(err, taxonomy.ErrSchemaValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "api request failed",
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
