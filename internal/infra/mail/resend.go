package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
)

const DefaultResendURL = "https://api.resend.com/emails"

// ResendClient delivers mail through a Resend compatible HTTP API.
type ResendClient struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
}

func NewResendClient(apiKey, apiURL string, httpClient *http.Client) (*ResendClient, error) {
	if apiKey == "" {
		return nil, errors.New("resend: api key is required")
	}
	if apiURL == "" {
		apiURL = DefaultResendURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &ResendClient{apiKey: apiKey, apiURL: apiURL, httpClient: httpClient}, nil
}

func (c *ResendClient) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(resendRequest{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
	if err != nil {
		return &ProviderError{Provider: "resend", Message: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return &ProviderError{Provider: "resend", Message: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ProviderError{Provider: "resend", Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var r resendResponse
		message := http.StatusText(resp.StatusCode)
		if json.Unmarshal(body, &r) == nil && r.Message != "" {
			message = r.Message
		}
		return &ProviderError{Provider: "resend", StatusCode: resp.StatusCode, Message: message}
	}
	return nil
}
