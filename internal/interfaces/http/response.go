package httpinterface

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tdex-network/tdex-broker/internal/core/application/multitrade"
	"github.com/tdex-network/tdex-broker/internal/core/application/pubsub"
	"github.com/tdex-network/tdex-broker/internal/core/domain"
	"github.com/tdex-network/tdex-broker/internal/core/ports"
)

var errInvalidBody = errors.New(
	"request body must be valid JSON with Content-Type: application/json",
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nolint
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	writeJSON(w, status, errorResponse{Error: code, Message: err.Error()})
}

func parseJSON(r *http.Request, v interface{}) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return errInvalidBody
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %s", errInvalidBody, err)
	}
	return nil
}

// errorStatus maps the errors of the application services to a status code
// and a short error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrMultiTradeNotFound),
		errors.Is(err, domain.ErrSingleTradeNotFound),
		errors.Is(err, ports.ErrWebhookNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrMultiTradeAlreadyAcknowledged),
		errors.Is(err, domain.ErrMultiTradeNotProcessed),
		errors.Is(err, domain.ErrChallengeAccountMismatch),
		errors.Is(err, domain.ErrUnknownParty),
		errors.Is(err, domain.ErrSingleTradeNotPaused),
		errors.Is(err, domain.ErrSingleTradeProcessed):
		return http.StatusConflict, "conflict"
	case errors.Is(err, multitrade.ErrInvalidPlan),
		errors.Is(err, domain.ErrMissingChallengeSolution),
		errors.Is(err, pubsub.ErrUnknownTopic),
		errors.Is(err, ports.ErrInvalidWebhook),
		errors.Is(err, errInvalidBody):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, pubsub.ErrWebhooksDisabled):
		return http.StatusNotImplemented, "not_implemented"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
