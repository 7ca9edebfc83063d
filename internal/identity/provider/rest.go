package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"coliving-platform/backend/internal/identity/domain"
)

const maxResponseBytes = 1 << 20

// postJSON sends body as JSON and returns the status and raw response body. Transport failures
// are reported as domain.ErrProviderUnavailable.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body any) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read response: %v", domain.ErrProviderUnavailable, err)
	}
	return resp.StatusCode, raw, nil
}

func unavailable(status int, raw []byte) error {
	if len(raw) > 200 {
		raw = raw[:200]
	}
	return fmt.Errorf("%w: status %d: %s", domain.ErrProviderUnavailable, status, raw)
}
