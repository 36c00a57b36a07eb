package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RestTimeout bounds every snapshot-priming call; a timeout is a priming
// failure for that symbol only.
const RestTimeout = 5 * time.Second

// RestClient is the HTTP client shared by all venue adapters.
var RestClient = &http.Client{Timeout: RestTimeout}

// GetJSON fetches url and decodes the response body into out.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("venue: new request %s: %w", url, err)
	}
	resp, err := RestClient.Do(req)
	if err != nil {
		return fmt.Errorf("venue: get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("venue: get %s: status %d: %s", url, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("venue: decode %s: %w", url, err)
	}
	return nil
}

// PostJSON issues a POST with no body and decodes the response into out.
// KuCoin's bullet-public bootstrap is the only caller.
func PostJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("venue: new request %s: %w", url, err)
	}
	resp, err := RestClient.Do(req)
	if err != nil {
		return fmt.Errorf("venue: post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("venue: post %s: status %d: %s", url, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("venue: decode %s: %w", url, err)
	}
	return nil
}
