// Package promosigner talks to the off-chain promo signing service.
package promosigner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/slotmarket/pkg/purchase"
)

const (
	signPath           = "/promo/sign"
	defaultTimeout     = 5 * time.Second
	maxErrorBodyLength = 512
)

var ErrSignerRejected = errors.New("promo signer rejected code")

// Client calls POST {base}/promo/sign.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client with a 5-second timeout.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(client *Client) {
		if httpClient != nil {
			client.http = httpClient
		}
	}
}

// New creates a Client for the service rooted at baseURL.
func New(baseURL string, options ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: promo signer url is required", purchase.ErrInvalidServiceConfig)
	}
	client := &Client{
		baseURL: trimmed,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, option := range options {
		if option != nil {
			option(client)
		}
	}
	return client, nil
}

type signRequest struct {
	Address string `json:"address"`
	Code    string `json:"code"`
}

type signResponse struct {
	Signature string `json:"signature"`
	PromoHash string `json:"promoHash"`
}

// Sign implements purchase.PromoSigner. Missing fields are passed through
// empty for the validator to reject.
func (client *Client) Sign(ctx context.Context, wallet purchase.Address, code string) (purchase.SignedPromo, error) {
	payload, err := json.Marshal(signRequest{Address: wallet.String(), Code: code})
	if err != nil {
		return purchase.SignedPromo{}, err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+signPath, bytes.NewReader(payload))
	if err != nil {
		return purchase.SignedPromo{}, err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, err := client.http.Do(request)
	if err != nil {
		return purchase.SignedPromo{}, fmt.Errorf("%w: %v", purchase.ErrGatewayUnavailable, err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return purchase.SignedPromo{}, fmt.Errorf("%w: read response: %v", purchase.ErrGatewayUnavailable, err)
	}
	switch {
	case response.StatusCode >= http.StatusInternalServerError:
		return purchase.SignedPromo{}, fmt.Errorf("%w: signer status %d", purchase.ErrGatewayUnavailable, response.StatusCode)
	case response.StatusCode != http.StatusOK:
		return purchase.SignedPromo{}, fmt.Errorf("%w: status %d: %s", ErrSignerRejected, response.StatusCode, truncate(strings.TrimSpace(string(body))))
	}
	var decoded signResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return purchase.SignedPromo{}, fmt.Errorf("%w: decode response: %v", purchase.ErrMissingSignatureData, err)
	}
	return purchase.SignedPromo{
		Signature: strings.TrimSpace(decoded.Signature),
		PromoHash: strings.TrimSpace(decoded.PromoHash),
	}, nil
}

func truncate(value string) string {
	if len(value) <= maxErrorBodyLength {
		return value
	}
	return value[:maxErrorBodyLength]
}
