// Package gallery fetches slot-contract images from the gallery service.
package gallery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/slotmarket/pkg/purchase"
	"go.uber.org/zap"
)

const (
	// PlaceholderImage is returned whenever the gallery cannot supply images.
	PlaceholderImage = "/images/placeholder.png"
	defaultTimeout   = 5 * time.Second
)

// Client calls GET {base}/collections/{slotContract}/images.
type Client struct {
	baseURL     string
	placeholder string
	http        *http.Client
	logger      *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(client *Client) {
		if httpClient != nil {
			client.http = httpClient
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(client *Client) {
		if logger != nil {
			client.logger = logger
		}
	}
}

// WithPlaceholder overrides PlaceholderImage.
func WithPlaceholder(placeholder string) Option {
	return func(client *Client) {
		if trimmed := strings.TrimSpace(placeholder); trimmed != "" {
			client.placeholder = trimmed
		}
	}
}

// New creates a Client. An empty baseURL yields a client that always
// answers with the placeholder.
func New(baseURL string, options ...Option) *Client {
	client := &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		placeholder: PlaceholderImage,
		http:        &http.Client{Timeout: defaultTimeout},
		logger:      zap.NewNop(),
	}
	for _, option := range options {
		if option != nil {
			option(client)
		}
	}
	return client
}

type imagesResponse struct {
	Images []string `json:"images"`
}

// Images implements purchase.Gallery.
func (client *Client) Images(ctx context.Context, slotContract purchase.Address) []string {
	if client.baseURL == "" || slotContract.IsZero() {
		return client.fallback()
	}
	images, err := client.fetch(ctx, slotContract)
	if err != nil {
		client.logger.Warn("gallery fetch failed", zap.String("slot_contract", slotContract.String()), zap.Error(err))
		return client.fallback()
	}
	if len(images) == 0 {
		return client.fallback()
	}
	return images
}

func (client *Client) fetch(ctx context.Context, slotContract purchase.Address) ([]string, error) {
	endpoint := fmt.Sprintf("%s/collections/%s/images", client.baseURL, slotContract.Hex())
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Accept", "application/json")
	response, err := client.http.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()
	body, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gallery status %d: %s", response.StatusCode, strings.TrimSpace(string(body)))
	}
	var decoded imagesResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode gallery response: %w", err)
	}
	images := make([]string, 0, len(decoded.Images))
	for _, image := range decoded.Images {
		if trimmed := strings.TrimSpace(image); trimmed != "" {
			images = append(images, trimmed)
		}
	}
	return images, nil
}

func (client *Client) fallback() []string {
	return []string{client.placeholder}
}
