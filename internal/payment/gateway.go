// Package payment implements the Payment Orchestrator: creating payment
// sessions against the external gateway, reconciling asynchronous webhook
// deliveries, and driving booking confirmation forward on success.
package payment

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// BuyerInfo identifies the paying customer to the gateway.
type BuyerInfo struct {
	Name  string `json:"buyerName,omitempty"`
	Email string `json:"buyerEmail,omitempty"`
	Phone string `json:"buyerPhone,omitempty"`
}

// LineItem is one priced item shown on the gateway's checkout page.
type LineItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

// CreateLinkRequest is the payload sent to the gateway to open a checkout
// session. Description is capped at 25 characters by the gateway's own
// contract.
type CreateLinkRequest struct {
	OrderCode   int64      `json:"orderCode"`
	Amount      int64      `json:"amount"`
	Description string     `json:"description"`
	Items       []LineItem `json:"items,omitempty"`
	ReturnURL   string     `json:"returnUrl"`
	CancelURL   string     `json:"cancelUrl"`
	BuyerInfo   *BuyerInfo `json:"buyerInfo,omitempty"`
}

// CreateLinkResult is what the gateway returns for a successfully created
// checkout session.
type CreateLinkResult struct {
	CheckoutURL   string
	QRCode        string
	PaymentLinkID string
}

// Gateway abstracts the external payment gateway so the Orchestrator never
// depends on a concrete HTTP client directly.
type Gateway interface {
	CreateLink(req CreateLinkRequest) (*CreateLinkResult, error)
	VerifySignature(body []byte, signature string) bool
}

// gatewayResponse is the envelope the gateway wraps every response in.
type gatewayResponse struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
	Data struct {
		CheckoutURL   string `json:"checkoutUrl"`
		QRCode        string `json:"qrCode"`
		PaymentLinkID string `json:"paymentLinkId"`
	} `json:"data"`
}

// PayOSGateway is an HTTP client for a PayOS-shaped payment gateway,
// grounded on the teacher's HTTP-client idiom: explicit timeout,
// json.Marshal/NewDecoder, structured error wrapping.
type PayOSGateway struct {
	httpClient  *http.Client
	baseURL     string
	clientID    string
	apiKey      string
	checksumKey string
}

func NewPayOSGateway(baseURL, clientID, apiKey, checksumKey string) *PayOSGateway {
	return &PayOSGateway{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		baseURL:     baseURL,
		clientID:    clientID,
		apiKey:      apiKey,
		checksumKey: checksumKey,
	}
}

// CreateLink opens a checkout session at the gateway.
func (g *PayOSGateway) CreateLink(req CreateLinkRequest) (*CreateLinkResult, error) {
	if len(req.Description) > 25 {
		req.Description = req.Description[:25]
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal create-link request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, g.baseURL+"/v2/payment-requests", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build create-link request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-client-id", g.clientID)
	httpReq.Header.Set("x-api-key", g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("create-link request failed: %w", err)
	}
	defer resp.Body.Close()

	var gwResp gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&gwResp); err != nil {
		return nil, fmt.Errorf("failed to decode create-link response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 || gwResp.Code != "00" {
		return nil, fmt.Errorf("gateway rejected create-link: %s", gwResp.Desc)
	}

	return &CreateLinkResult{
		CheckoutURL:   gwResp.Data.CheckoutURL,
		QRCode:        gwResp.Data.QRCode,
		PaymentLinkID: gwResp.Data.PaymentLinkID,
	}, nil
}

// VerifySignature checks an x-payos-signature header against the HMAC-SHA256
// of the canonical (top-level keys sorted ascending, no extra whitespace)
// JSON of the webhook body, keyed by the shared checksum secret.
func (g *PayOSGateway) VerifySignature(body []byte, signature string) bool {
	canonical, err := canonicalize(body)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(g.checksumKey))
	mac.Write(canonical)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// canonicalize sorts the body's top-level keys ascending and re-serializes
// without extra whitespace, matching the gateway's signing contract.
func canonicalize(body []byte) ([]byte, error) {
	var generic map[string]interface{}
	if err := json.Unmarshal(body, &generic); err != nil {
		return nil, fmt.Errorf("failed to parse webhook body for signing: %w", err)
	}

	keys := make([]string, 0, len(generic))
	for k := range generic {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, _ := json.Marshal(k)
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := json.Marshal(generic[k])
		if err != nil {
			return nil, fmt.Errorf("failed to encode value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
