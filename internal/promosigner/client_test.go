package promosigner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/slotmarket/pkg/purchase"
)

const (
	walletValue    = "0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb"
	signatureValue = "0xabcdef"
	promoHashValue = "0x1111111111111111111111111111111111111111111111111111111111111111"
)

func newTestClient(test *testing.T, handler http.HandlerFunc) *Client {
	test.Helper()
	server := httptest.NewServer(handler)
	test.Cleanup(server.Close)
	client, err := New(server.URL+"/", WithHTTPClient(server.Client()))
	if err != nil {
		test.Fatalf("client init failed: %v", err)
	}
	return client
}

func TestSignPostsAddressAndCode(test *testing.T) {
	test.Parallel()
	client := newTestClient(test, func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPost || request.URL.Path != signPath {
			test.Errorf("unexpected request %s %s", request.Method, request.URL.Path)
		}
		var payload signRequest
		if err := json.NewDecoder(request.Body).Decode(&payload); err != nil {
			test.Errorf("decode failed: %v", err)
		}
		if payload.Address != walletValue || payload.Code != "SAVE10" {
			test.Errorf("unexpected payload %+v", payload)
		}
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`{"signature":" 0xabcdef ","promoHash":"` + promoHashValue + `"}`))
	})

	signed, err := client.Sign(context.Background(), purchase.MustAddress(walletValue), "SAVE10")
	if err != nil {
		test.Fatalf("sign failed: %v", err)
	}
	if signed.Signature != signatureValue || signed.PromoHash != promoHashValue {
		test.Fatalf("unexpected response %+v", signed)
	}
}

func TestSignPassesThroughMissingFields(test *testing.T) {
	test.Parallel()
	client := newTestClient(test, func(writer http.ResponseWriter, _ *http.Request) {
		_, _ = writer.Write([]byte(`{"signature":"0xabcdef"}`))
	})
	signed, err := client.Sign(context.Background(), purchase.MustAddress(walletValue), "SAVE10")
	if err != nil {
		test.Fatalf("sign failed: %v", err)
	}
	if signed.PromoHash != "" {
		test.Fatalf("expected empty promo hash, got %q", signed.PromoHash)
	}
}

func TestSignMapsFailures(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "rejected code", status: http.StatusBadRequest, body: `{"error":"unknown code"}`, wantErr: ErrSignerRejected},
		{name: "server error", status: http.StatusBadGateway, body: "", wantErr: purchase.ErrGatewayUnavailable},
		{name: "malformed body", status: http.StatusOK, body: "not json", wantErr: purchase.ErrMissingSignatureData},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			client := newTestClient(test, func(writer http.ResponseWriter, _ *http.Request) {
				writer.WriteHeader(testCase.status)
				_, _ = writer.Write([]byte(testCase.body))
			})
			_, err := client.Sign(context.Background(), purchase.MustAddress(walletValue), "SAVE10")
			if !errors.Is(err, testCase.wantErr) {
				test.Fatalf("expected %v, got %v", testCase.wantErr, err)
			}
		})
	}
}

func TestSignHonorsContextCancellation(test *testing.T) {
	test.Parallel()
	release := make(chan struct{})
	client := newTestClient(test, func(writer http.ResponseWriter, request *http.Request) {
		select {
		case <-release:
		case <-request.Context().Done():
		}
	})
	defer close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := client.Sign(ctx, purchase.MustAddress(walletValue), "SAVE10"); !errors.Is(err, purchase.ErrGatewayUnavailable) {
		test.Fatalf("expected unavailable on cancellation, got %v", err)
	}
}

func TestNewRequiresURL(test *testing.T) {
	test.Parallel()
	if _, err := New("  "); !errors.Is(err, purchase.ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig, got %v", err)
	}
}
