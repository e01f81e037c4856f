package platform

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/tdex-network/tdex-broker/internal/core/domain"
	"github.com/tdex-network/tdex-broker/internal/core/ports"
)

type offerPayload struct {
	UserID       string   `json:"userId"`
	UserAssetIDs []string `json:"userAssetIds"`
}

type sendOfferRequest struct {
	Offers []offerPayload `json:"offers"`
}

type sendOfferResponse struct {
	ID string `json:"id"`
}

type acceptOfferResponse struct {
	Status string `json:"status"`
}

type tradeResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	IsActive bool   `json:"isActive"`
}

type tradingPlatform struct {
	client *client
}

// NewTradingPlatform returns the http client of the trading platform API
// served at the given url.
func NewTradingPlatform(
	baseURL string, requestTimeout time.Duration,
) (ports.TradingPlatform, error) {
	c, err := newClient("trading platform", baseURL, requestTimeout)
	if err != nil {
		return nil, err
	}
	return &tradingPlatform{c}, nil
}

func (p *tradingPlatform) SendOffer(
	ctx context.Context, credential string, offers [2]domain.Offer,
	challenge *ports.ChallengeHeaders,
) (string, error) {
	req := sendOfferRequest{Offers: make([]offerPayload, 0, len(offers))}
	for _, offer := range offers {
		req.Offers = append(req.Offers, offerPayload{
			UserID:       offer.AccountID,
			UserAssetIDs: offer.Items(),
		})
	}

	resp := sendOfferResponse{}
	if err := p.client.post(
		ctx, "/v1/trades/send", credential, challengeHeaders(challenge), req, &resp,
	); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("send offer: missing trade id in response")
	}
	return resp.ID, nil
}

func (p *tradingPlatform) AcceptOffer(
	ctx context.Context, credential, tradeID string,
	challenge *ports.ChallengeHeaders,
) (string, error) {
	resp := acceptOfferResponse{}
	if err := p.client.post(
		ctx, tradePath(tradeID, "accept"), credential, challengeHeaders(challenge),
		struct{}{}, &resp,
	); err != nil {
		return "", err
	}
	return resp.Status, nil
}

func (p *tradingPlatform) GetTrade(
	ctx context.Context, credential, tradeID string,
) (*ports.TradeInfo, error) {
	resp := tradeResponse{}
	if err := p.client.get(ctx, tradePath(tradeID, ""), credential, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		resp.ID = tradeID
	}
	return &ports.TradeInfo{
		ID:       resp.ID,
		Status:   resp.Status,
		IsActive: resp.IsActive,
	}, nil
}

func (p *tradingPlatform) DeclineTrade(
	ctx context.Context, credential, tradeID string,
) error {
	return p.client.post(
		ctx, tradePath(tradeID, "decline"), credential, nil, struct{}{}, nil,
	)
}

func tradePath(tradeID, action string) string {
	path := "/v1/trades/" + url.PathEscape(tradeID)
	if action != "" {
		path += "/" + action
	}
	return path
}

func challengeHeaders(challenge *ports.ChallengeHeaders) map[string]string {
	if challenge == nil {
		return nil
	}
	return challenge.Map()
}
