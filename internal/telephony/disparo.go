package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lead-recovery/internal/calls"
)

// HTTPDoer is satisfied by *http.Client; tests substitute their own.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DisparoClient talks to the DisparoPro voice gateway.
type DisparoClient struct {
	baseURL    string
	token      string
	httpClient HTTPDoer
}

func NewDisparoClient(baseURL, token string) *DisparoClient {
	return &DisparoClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		// Per-call deadlines come from ctx; this is only a ceiling.
		httpClient: &http.Client{Timeout: 3 * time.Minute},
	}
}

// SetHTTPClient replaces the transport (useful for testing).
func (c *DisparoClient) SetHTTPClient(client HTTPDoer) {
	c.httpClient = client
}

type disparoSendRequest struct {
	Phone   string `json:"phone"`
	Type    string `json:"type"`
	AudioID string `json:"audio_id"`
	Message string `json:"message"`
}

type disparoSendResponse struct {
	ID   json.RawMessage `json:"id"`
	Data *struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

func (c *DisparoClient) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	if req.Phone == "" || req.AudioID == "" {
		return PlaceCallResult{}, fmt.Errorf("telephony: phone and audio id are required")
	}
	body, err := c.do(ctx, http.MethodPost, "/voice/v1/call/send", disparoSendRequest{
		Phone:   req.Phone,
		Type:    "audio",
		AudioID: req.AudioID,
		Message: "Audio message",
	})
	if err != nil {
		return PlaceCallResult{}, err
	}

	var resp disparoSendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return PlaceCallResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	id := rawID(resp.ID)
	if id == "" && resp.Data != nil {
		id = rawID(resp.Data.ID)
	}
	if id == "" {
		return PlaceCallResult{}, ErrMissingCallID
	}
	return PlaceCallResult{CallID: id}, nil
}

func (c *DisparoClient) GetCallStatus(ctx context.Context, callID string) (CallStatusResult, error) {
	if callID == "" {
		return CallStatusResult{}, ErrMissingCallID
	}
	body, err := c.do(ctx, http.MethodGet, "/voice/v1/call?id="+url.QueryEscape(callID), nil)
	if err != nil {
		return CallStatusResult{}, err
	}
	out, err := ParseCallStatus(body)
	if err != nil {
		return CallStatusResult{}, err
	}
	out.CallID = callID
	return out, nil
}

type statusItem struct {
	StatusCall *string         `json:"status_call"`
	Status     *string         `json:"status"`
	Price      json.RawMessage `json:"price"`
}

type statusEnvelope struct {
	Items *[]statusItem `json:"items"`
	statusItem
}

// ParseCallStatus decodes a status payload. Two shapes are accepted:
//
//	{"items":[{"status_call":"...","price":...}, ...]}  first item wins
//	{"status_call":"...","status":"...","price":...}    bare object
//
// Anything else, including an empty items list, is ErrMalformedResponse.
// A present but empty status becomes "unknown"; a missing price becomes 0.
func ParseCallStatus(body []byte) (CallStatusResult, error) {
	var env statusEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return CallStatusResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var item statusItem
	switch {
	case env.Items != nil && len(*env.Items) > 0:
		item = (*env.Items)[0]
	case env.Items != nil:
		return CallStatusResult{}, fmt.Errorf("%w: empty items", ErrMalformedResponse)
	case env.StatusCall != nil || env.Status != nil:
		item = env.statusItem
	default:
		return CallStatusResult{}, fmt.Errorf("%w: no status field", ErrMalformedResponse)
	}

	status := string(calls.StatusUnknown)
	if item.StatusCall != nil && *item.StatusCall != "" {
		status = *item.StatusCall
	} else if item.Status != nil && *item.Status != "" {
		status = *item.Status
	}
	price, _ := calls.ParseAmount(item.Price)
	if price < 0 {
		price = 0
	}
	return CallStatusResult{Status: status, Price: price}, nil
}

func (c *DisparoClient) do(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("token", c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voice gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrGatewayRejected, resp.StatusCode, truncate(respBody))
	}
	return respBody, nil
}

func rawID(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return strings.TrimSpace(str)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
