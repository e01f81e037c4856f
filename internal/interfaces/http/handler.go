package httpinterface

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-broker/internal/core/application/multitrade"
	"github.com/tdex-network/tdex-broker/internal/core/application/pubsub"
	"github.com/tdex-network/tdex-broker/internal/core/application/singletrade"
	"github.com/tdex-network/tdex-broker/internal/core/domain"
)

type addWebhookRequest struct {
	Topic    string `json:"topic"`
	Endpoint string `json:"endpoint"`
	Secret   string `json:"secret,omitempty"`
}

type authorizeRequest struct {
	AccountID string `json:"accountId"`
	Code      string `json:"code,omitempty"`
	Secret    string `json:"secret,omitempty"`
}

type handler struct {
	multiTradeSvc  *multitrade.Service
	singleTradeSvc *singletrade.Service
	pubsubSvc      *pubsub.Service
}

func (h *handler) submitPlan(w http.ResponseWriter, r *http.Request) {
	req := multitrade.SubmitPlanRequest{}
	if err := parseJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	id, err := h.multiTradeSvc.SubmitPlan(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (h *handler) listMultiTrades(w http.ResponseWriter, r *http.Request) {
	statuses := make([]domain.MultiTradeStatus, 0)
	for _, v := range r.URL.Query()["status"] {
		for _, s := range strings.Split(v, ",") {
			status := domain.MultiTradeStatus(strings.TrimSpace(s))
			switch status {
			case domain.MultiTradeStatusPending, domain.MultiTradeStatusProcessing,
				domain.MultiTradeStatusFinished, domain.MultiTradeStatusFailed:
				statuses = append(statuses, status)
			default:
				writeError(w, fmt.Errorf("%w: unknown status %q", errInvalidBody, s))
				return
			}
		}
	}

	trades, err := h.multiTradeSvc.List(r.Context(), statuses...)
	if err != nil {
		writeError(w, err)
		return
	}
	if trades == nil {
		trades = make([]domain.MultiTrade, 0)
	}
	writeJSON(w, http.StatusOK, trades)
}

func (h *handler) getMultiTrade(w http.ResponseWriter, r *http.Request) {
	trade, err := h.multiTradeSvc.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

func (h *handler) acknowledge(w http.ResponseWriter, r *http.Request) {
	if err := h.multiTradeSvc.Acknowledge(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) getSingleTrade(w http.ResponseWriter, r *http.Request) {
	trade, err := h.singleTradeSvc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

func (h *handler) authorize(w http.ResponseWriter, r *http.Request) {
	req := authorizeRequest{}
	if err := parseJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.singleTradeSvc.AuthorizeChallenge(
		r.Context(), singletrade.AuthorizeChallengeRequest{
			SingleTradeID: chi.URLParam(r, "id"),
			AccountID:     req.AccountID,
			Code:          req.Code,
			Secret:        req.Secret,
		},
	); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) addWebhook(w http.ResponseWriter, r *http.Request) {
	req := addWebhookRequest{}
	if err := parseJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	id, err := h.pubsubSvc.AddWebhook(r.Context(), req.Topic, req.Endpoint, req.Secret)
	if err != nil {
		if status, _ := errorStatus(err); status == http.StatusInternalServerError {
			// The endpoint is validated by the pubsub store.
			err = fmt.Errorf("%w: %s", errInvalidBody, err)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *handler) listWebhooks(w http.ResponseWriter, r *http.Request) {
	webhooks, err := h.pubsubSvc.ListWebhooks(r.Context(), r.URL.Query().Get("topic"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, webhooks)
}

func (h *handler) removeWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.pubsubSvc.RemoveWebhook(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authorizeFromEvents adapts the challenge solutions received from the
// websocket clients.
func (h *handler) authorizeFromEvents(
	ctx context.Context, singleTradeID, accountID, code, secret string,
) error {
	err := h.singleTradeSvc.AuthorizeChallenge(
		ctx, singletrade.AuthorizeChallengeRequest{
			SingleTradeID: singleTradeID,
			AccountID:     accountID,
			Code:          code,
			Secret:        secret,
		},
	)
	if err != nil && !errors.Is(err, domain.ErrSingleTradeNotFound) {
		log.WithError(err).Debugf(
			"challenge of single trade %s not authorized", singleTradeID,
		)
	}
	return err
}
