package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// NotificationClient talks directly to the (out-of-scope) notification
// service, mirroring the teacher's NotificationServiceClient HTTP idiom.
type NotificationClient struct {
	httpClient *http.Client
	baseURL    string
}

func NewNotificationClient(baseURL string) *NotificationClient {
	return &NotificationClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
	}
}

// SendRequest is the payload for an immediate notification dispatch.
type SendRequest struct {
	Type         string                 `json:"type"`
	RecipientRef string                 `json:"recipientRef"`
	TemplateData map[string]interface{} `json:"templateData"`
}

// SendResponse is the notification service's acknowledgement.
type SendResponse struct {
	Success   bool    `json:"success"`
	Message   string  `json:"message"`
	MessageID *string `json:"messageId,omitempty"`
}

// Send dispatches an immediate notification. A misconfigured or
// unreachable notification service is a best-effort failure: it is
// returned to the caller (internal/notifier.Notifier logs and swallows it)
// rather than aborting the caller's own transaction.
func (c *NotificationClient) Send(req SendRequest) (*SendResponse, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("notification service URL is not configured")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/notifications/send", c.baseURL)
	httpReq, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create notification request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("notification request failed: %w", err)
	}
	defer resp.Body.Close()

	var sendResp SendResponse
	if err := json.NewDecoder(resp.Body).Decode(&sendResp); err != nil {
		return nil, fmt.Errorf("failed to decode notification response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode >= 400 {
		return &sendResp, fmt.Errorf("notification service returned status %d: %s", resp.StatusCode, sendResp.Message)
	}
	return &sendResp, nil
}
