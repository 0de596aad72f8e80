// Package gateway talks to the Razorpay orders API and verifies the
// signatures Razorpay's checkout hands back to the client.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/graphuraprojects/agrirent/internal/config"
)

// Order is the subset of a Razorpay order the service uses.  Amount is in
// minor units (paise).
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Razorpay is an HTTP client for the orders API.
type Razorpay struct {
	keyID     string
	keySecret string
	baseURL   string
	client    *http.Client
}

// NewRazorpay builds a client from cfg.
func NewRazorpay(cfg config.PaymentConfig) *Razorpay {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Razorpay{
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		client:    &http.Client{Timeout: timeout},
	}
}

// KeyID is the public key the client-side checkout needs.
func (r *Razorpay) KeyID() string { return r.keyID }

// CreateOrder opens an order for amountMinor in currency.
func (r *Razorpay) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (Order, error) {
	payload, err := json.Marshal(map[string]any{
		"amount":   amountMinor,
		"currency": currency,
		"receipt":  receipt,
	})
	if err != nil {
		return Order{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/orders", bytes.NewReader(payload))
	if err != nil {
		return Order{}, fmt.Errorf("build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(r.keyID, r.keySecret)

	resp, err := r.client.Do(req)
	if err != nil {
		return Order{}, fmt.Errorf("order request: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Order{}, fmt.Errorf("order request failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var o Order
	if err := json.Unmarshal(body, &o); err != nil {
		return Order{}, fmt.Errorf("decode order: %w", err)
	}
	if o.ID == "" {
		return Order{}, fmt.Errorf("order response without id")
	}
	return o, nil
}

// VerifySignature checks the checkout callback: the signature must be the
// hex HMAC-SHA256 of "order_id|payment_id" keyed with the key secret.
func (r *Razorpay) VerifySignature(orderID, paymentID, signature string) bool {
	return ValidSignature(r.keySecret, orderID, paymentID, signature)
}

// Sign computes the signature Razorpay would send for an order and payment.
func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidSignature compares in constant time.
func ValidSignature(secret, orderID, paymentID, signature string) bool {
	want := Sign(secret, orderID, paymentID)
	return hmac.Equal([]byte(want), []byte(strings.ToLower(strings.TrimSpace(signature))))
}
