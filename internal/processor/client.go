// Package processor talks to the hosted card processor: an outbound
// REST client for payment intents and inbound webhook signature
// verification. Amounts cross this boundary in minor currency units.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultBaseURL = "https://api.payproc.example.com/v1"

	// EventPaymentSucceeded and EventPaymentFailed are the only event
	// types the application acts on; everything else is acknowledged
	// and ignored.
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"

	// MinChargeAmount is the processor's minimum chargeable amount in
	// major units of its base currency.
	MinChargeAmount = 0.50
)

// Client calls the processor's payment-intent API.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Intent is the subset of the processor's payment-intent object the
// application uses.
type Intent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	Amount       int64             `json:"amount"` // minor units
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// CreateIntent registers a payment intent for the given amount in
// minor units. Metadata is echoed back on webhook events and carries
// the invoice linkage.
func (c *Client) CreateIntent(ctx context.Context, amount int64, currency, description string, metadata map[string]string) (*Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("currency", currency)
	if description != "" {
		form.Set("description", description)
	}
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payment_intents", bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("processor request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("processor error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("processor error: status %d", resp.StatusCode)
	}

	var intent Intent
	if err := json.Unmarshal(body, &intent); err != nil {
		return nil, fmt.Errorf("decode intent: %w", err)
	}
	return &intent, nil
}

// MinorUnits converts a major-unit amount to the integer minor units
// the processor expects (two-decimal currencies).
func MinorUnits(amount float64) int64 {
	return int64(amount*100 + 0.5)
}

// MajorUnits is the inverse conversion for amounts arriving on events.
func MajorUnits(minor int64) float64 {
	return float64(minor) / 100
}

// Event is the webhook envelope the processor delivers.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object IntentObject `json:"object"`
	} `json:"data"`
}

// IntentObject is the payment intent embedded in an event.
type IntentObject struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"` // minor units
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

// ParseEvent decodes a verified payload. Unknown event types decode
// fine; dispatch happens on Type.
func ParseEvent(payload []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &ev, nil
}
