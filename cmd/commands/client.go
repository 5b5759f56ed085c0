package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/weftlabs/weft/internal/config"
)

// apiClient is a thin HTTP client for the gateway API.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(cfg *config.Config) *apiClient {
	return &apiClient{
		base: fmt.Sprintf("http://%s:%d/api", cfg.Gateway.Host, cfg.Gateway.Port),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// do sends a request and decodes the JSON response into out (if non-nil).
// Non-2xx responses are surfaced as errors carrying the gateway's message.
func (c *apiClient) do(method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.base+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("is the gateway running? %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("gateway: %s", apiErr.Error)
		}
		return fmt.Errorf("gateway: %s", resp.Status)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// printJSON renders API responses for the terminal.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
