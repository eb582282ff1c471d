package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// quoteResponse is the expected JSON body from a remote quote API.
type quoteResponse struct {
	Quote  string `json:"quote"`
	Author string `json:"author,omitempty"`
}

// HTTPProvider fetches quotes from a remote JSON endpoint.
type HTTPProvider struct {
	url    string
	client *http.Client
}

// NewHTTPProvider creates a provider for the given endpoint. The per-call
// timeout is enforced by the caller's context, not the client.
func NewHTTPProvider(url string) *HTTPProvider {
	return &HTTPProvider{url: url, client: &http.Client{}}
}

func (p *HTTPProvider) Fetch(ctx context.Context) (string, error) {
	ctx, span := otel.Tracer("quotes").Start(ctx, "quotes.fetch_http")
	defer span.End()
	span.SetAttributes(attribute.String("quote.url", p.url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request failed")
		return "", fmt.Errorf("build quote request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "http call failed")
		return "", fmt.Errorf("quote call to %s: %w", p.url, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusBadRequest {
		err := fmt.Errorf("quote endpoint %s returned status %d", p.url, resp.StatusCode)
		span.RecordError(err)
		span.SetStatus(codes.Error, "bad status code")
		return "", err
	}

	var body quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid response body")
		return "", fmt.Errorf("decode quote response: %w", err)
	}
	if body.Quote == "" {
		return "", fmt.Errorf("quote endpoint %s returned an empty quote", p.url)
	}

	if body.Author != "" {
		return fmt.Sprintf("%s - %s", body.Quote, body.Author), nil
	}
	return body.Quote, nil
}
