package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/google/uuid"

	"github.com/0gfoundation/0g-emissions/internal/address"
	"github.com/0gfoundation/0g-emissions/internal/api"
	"github.com/0gfoundation/0g-emissions/internal/auth"
	"github.com/0gfoundation/0g-emissions/internal/emissions"
	"github.com/0gfoundation/0g-emissions/internal/runtime"
	"github.com/0gfoundation/0g-emissions/internal/ticket"
)

// signedRequestTTL is how long a signed operator request stays valid.
const signedRequestTTL = time.Minute

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string `json:"error"`
	Code    uint32 `json:"code"`
	Name    string `json:"name"`
}

func (e *APIError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// client talks to the emissions HTTP API.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(body, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *client) postJSON(ctx context.Context, path string, in any) (*http.Request, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// Submit posts a signed batch and returns its receipt.
func (c *client) Submit(ctx context.Context, b *runtime.Batch) (*runtime.Receipt, error) {
	req, err := c.postJSON(ctx, "/api/v1/batches", b)
	if err != nil {
		return nil, err
	}
	var receipt runtime.Receipt
	if err := c.do(req, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Config fetches the committed program config.
func (c *client) Config(ctx context.Context) (*emissions.Config, error) {
	var cfg emissions.Config
	if err := c.get(ctx, "/api/v1/config", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Record fetches the redemption record for (beneficiary, nonce).
func (c *client) Record(ctx context.Context, beneficiary address.Address, nonce uint64) (*emissions.RedemptionRecord, error) {
	var rec emissions.RedemptionRecord
	path := fmt.Sprintf("/api/v1/redemptions/%s/%d", beneficiary.Hex(), nonce)
	if err := c.get(ctx, path, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// IssueTicket asks the server's issuer for a ticket, authenticating as the
// operator holding key.
func (c *client) IssueTicket(ctx context.Context, key ed25519.PrivateKey, beneficiary address.Address, amount uint64) (*ticket.Ticket, error) {
	payload, err := json.Marshal(map[string]any{
		"beneficiary": beneficiary,
		"amount":      amount,
	})
	if err != nil {
		return nil, err
	}
	signed := auth.SignedRequest{
		Action:     api.ActionIssueTicket,
		ExpiresAt:  time.Now().Add(signedRequestTTL).Unix(),
		Nonce:      uuid.NewString(),
		Payload:    payload,
		ResourceID: beneficiary.Hex(),
	}
	msg, err := json.Marshal(signed)
	if err != nil {
		return nil, err
	}

	req, err := c.postJSON(ctx, "/api/v1/tickets", struct{}{})
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Identity", ticket.PublicKey(key).Hex())
	req.Header.Set("X-Signed-Message", base64.StdEncoding.EncodeToString(msg))
	req.Header.Set("X-Signature", "0x"+hex.EncodeToString(auth.SignMessage(key, msg)))

	var t ticket.Ticket
	if err := c.do(req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
