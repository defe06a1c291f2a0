package gallery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/MarkoPoloResearchLab/slotmarket/pkg/purchase"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const slotContractValue = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"

func TestImagesReturnsOrderedURLs(test *testing.T) {
	test.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/collections/"+slotContractValue+"/images" {
			test.Errorf("unexpected path %s", request.URL.Path)
		}
		_, _ = writer.Write([]byte(`{"images":["https://cdn/a.png"," ","https://cdn/b.png"]}`))
	}))
	defer server.Close()

	client := New(server.URL, WithHTTPClient(server.Client()))
	images := client.Images(context.Background(), purchase.MustAddress(slotContractValue))
	if !reflect.DeepEqual(images, []string{"https://cdn/a.png", "https://cdn/b.png"}) {
		test.Fatalf("unexpected images %v", images)
	}
}

func TestImagesDegradeToPlaceholder(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "boom"},
		{name: "malformed body", status: http.StatusOK, body: "<html>"},
		{name: "empty list", status: http.StatusOK, body: `{"images":[]}`},
		{name: "not found", status: http.StatusNotFound, body: ""},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
				writer.WriteHeader(testCase.status)
				_, _ = writer.Write([]byte(testCase.body))
			}))
			defer server.Close()
			client := New(server.URL, WithHTTPClient(server.Client()), WithPlaceholder("/fallback.png"))
			images := client.Images(context.Background(), purchase.MustAddress(slotContractValue))
			if !reflect.DeepEqual(images, []string{"/fallback.png"}) {
				test.Fatalf("expected placeholder, got %v", images)
			}
		})
	}
}

func TestImagesWithoutServiceUsePlaceholder(test *testing.T) {
	test.Parallel()
	core, logs := observer.New(zapcore.DebugLevel)
	client := New("", WithLogger(zap.New(core)))
	images := client.Images(context.Background(), purchase.MustAddress(slotContractValue))
	if !reflect.DeepEqual(images, []string{PlaceholderImage}) {
		test.Fatalf("unexpected images %v", images)
	}
	if logs.Len() != 0 {
		test.Fatalf("expected no warnings for an unconfigured gallery")
	}
}

func TestImagesLogsTransportFailure(test *testing.T) {
	test.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()
	core, logs := observer.New(zapcore.DebugLevel)
	client := New(server.URL, WithLogger(zap.New(core)))
	images := client.Images(context.Background(), purchase.MustAddress(slotContractValue))
	if len(images) != 1 || images[0] != PlaceholderImage {
		test.Fatalf("unexpected images %v", images)
	}
	entries := logs.FilterMessage("gallery fetch failed").All()
	if len(entries) != 1 || !strings.EqualFold(entries[0].ContextMap()["slot_contract"].(string), slotContractValue) {
		test.Fatalf("expected one warning, got %d", len(entries))
	}
}
