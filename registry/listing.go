package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/goliatone/go-endpoints/core"
)

const listingPath = "services"

// listing size ceiling; registries publishing more than this are rejected
// rather than buffered unbounded.
const maxListingBytes = 8 << 20

// remoteEndpoint is the wire shape a registry publishes under /services.
type remoteEndpoint struct {
	ID           string            `json:"id"`
	URL          string            `json:"url"`
	Type         string            `json:"type,omitempty"`
	Auth         core.AuthConfig   `json:"authentication,omitempty"`
	FallbackAuth []core.AuthConfig `json:"fallback_authentication,omitempty"`
}

func (r remoteEndpoint) toEndpoint(registryID string) core.Endpoint {
	endpoint := core.Endpoint{
		ID:         strings.TrimSpace(r.ID),
		URL:        strings.TrimSpace(r.URL),
		Type:       strings.TrimSpace(r.Type),
		Auth:       r.Auth.Clone(),
		RegistryID: registryID,
	}
	if len(r.FallbackAuth) > 0 {
		endpoint.FallbackAuth = make([]core.AuthConfig, len(r.FallbackAuth))
		for idx, fallback := range r.FallbackAuth {
			endpoint.FallbackAuth[idx] = fallback.Clone()
		}
	}
	return endpoint
}

// fetchListing requests <base>/services and decodes the published endpoint
// array. A response that is not HTTP-successful, not JSON-typed, or not a JSON
// array fails with ErrInvalidServiceRegistry; transport errors are returned
// as-is so discovery can distinguish "connection failed" from "not a
// registry".
func (s *Synchronizer) fetchListing(ctx context.Context, base string) ([]remoteEndpoint, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, joinURL(base, listingPath), nil)
	if err != nil {
		return nil, fmt.Errorf("registry: build listing request: %w", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := s.client.Do(request)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, response.Body)
		_ = response.Body.Close()
	}()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned status %d",
			core.ErrInvalidServiceRegistry, request.URL, response.StatusCode)
	}
	if !isJSONContentType(response.Header.Get("Content-Type")) {
		return nil, fmt.Errorf("%w: %s did not declare a JSON content type",
			core.ErrInvalidServiceRegistry, request.URL)
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, maxListingBytes))
	if err != nil {
		return nil, fmt.Errorf("registry: read listing: %w", err)
	}
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "[") {
		return nil, fmt.Errorf("%w: %s did not return a JSON array",
			core.ErrInvalidServiceRegistry, request.URL)
	}

	var endpoints []remoteEndpoint
	if err := json.Unmarshal([]byte(trimmed), &endpoints); err != nil {
		return nil, fmt.Errorf("%w: %s listing is not valid JSON: %v",
			core.ErrInvalidServiceRegistry, request.URL, err)
	}
	return endpoints, nil
}

func isJSONContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func joinURL(base, path string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return base
	}
	return base + "/" + path
}
