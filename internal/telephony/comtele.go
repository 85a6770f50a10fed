package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ComteleClient sends SMS through the Comtele v2 API.
type ComteleClient struct {
	url        string
	authKey    string
	httpClient HTTPDoer
}

func NewComteleClient(url, authKey string) *ComteleClient {
	return &ComteleClient{
		url:        url,
		authKey:    authKey,
		httpClient: &http.Client{Timeout: time.Minute},
	}
}

func (c *ComteleClient) SetHTTPClient(client HTTPDoer) {
	c.httpClient = client
}

type comteleSendRequest struct {
	Receivers string `json:"Receivers"`
	Content   string `json:"Content"`
}

type comteleSendResponse struct {
	Success *bool  `json:"Success"`
	Message string `json:"Message"`
}

func (c *ComteleClient) SendSMS(ctx context.Context, phone, content string) error {
	if phone == "" || content == "" {
		return fmt.Errorf("telephony: phone and content are required")
	}
	b, err := json.Marshal(comteleSendRequest{Receivers: phone, Content: content})
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("auth-key", c.authKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d: %s", ErrGatewayRejected, resp.StatusCode, truncate(respBody))
	}

	// Comtele can answer 200 with Success=false.
	var out comteleSendResponse
	if json.Unmarshal(respBody, &out) == nil && out.Success != nil && !*out.Success {
		return fmt.Errorf("%w: %s", ErrGatewayRejected, out.Message)
	}
	return nil
}
