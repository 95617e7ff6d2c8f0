package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/portview/portfolio-backend/internal/api/response"
	"github.com/portview/portfolio-backend/internal/apperrors"
)

// respondJSON sends a JSON response with the given status code
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("Failed to encode JSON: %v", err)
		}
	}
}

// parseJSON decodes a request body into the given type. Unknown fields are
// rejected so typos in field names fail loudly instead of silently dropping
// the value.
func parseJSON[T any](r *http.Request) (T, error) {
	var v T
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&v); err != nil {
		return v, err
	}
	return v, nil
}

// respondServiceError maps a classified service error to its HTTP status and
// sends the structured error response. The response carries only the stable
// kind and the sentinel text; the wrapped chain can name tables, drivers, or
// key versions, so it is logged server-side and never sent.
func respondServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, apperrors.ErrAggregatorUnavailable):
		status = http.StatusBadGateway
		message = apperrors.ErrAggregatorUnavailable.Error()
	case errors.Is(err, apperrors.ErrAggregatorRejected):
		status = http.StatusBadRequest
		message = apperrors.ErrAggregatorRejected.Error()
	case errors.Is(err, apperrors.ErrInvalidToken):
		status = http.StatusBadRequest
		message = apperrors.ErrInvalidToken.Error()
	case errors.Is(err, apperrors.ErrNoActiveAttempt):
		status = http.StatusConflict
		message = apperrors.ErrNoActiveAttempt.Error()
	case errors.Is(err, apperrors.ErrVault):
		status = http.StatusConflict
		message = apperrors.ErrVault.Error()
	case errors.Is(err, apperrors.ErrItemNotFound):
		status = http.StatusNotFound
		message = apperrors.ErrItemNotFound.Error()
	case errors.Is(err, apperrors.ErrAccountNotFound):
		status = http.StatusNotFound
		message = apperrors.ErrAccountNotFound.Error()
	case errors.Is(err, apperrors.ErrSyncInProgress):
		status = http.StatusConflict
		message = apperrors.ErrSyncInProgress.Error()
	case errors.Is(err, apperrors.ErrDuplicateItem):
		status = http.StatusConflict
		message = apperrors.ErrDuplicateItem.Error()
	}

	if status == http.StatusInternalServerError {
		log.Printf("unclassified service error: %v", err)
	}

	response.RespondErrorKind(w, status, apperrors.Kind(err), message, nil)
}
