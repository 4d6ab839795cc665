package paychangu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"settlement-service/internal/provider"

	"github.com/shopspring/decimal"
)

// Client talks to the PayChangu mobile-money/bank API. All methods return
// *provider.GatewayError on failure; network timeouts are flagged so callers
// can tell "the provider said no" apart from "the outcome is unknown".
type Client struct {
	secretKey  string
	baseURL    string
	currency   string
	httpClient *http.Client
}

type Config struct {
	SecretKey string
	BaseURL   string
	Currency  string
	Timeout   time.Duration
}

func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.paychangu.com"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "MWK"
	}

	return &Client{
		secretKey:  cfg.SecretKey,
		baseURL:    baseURL,
		currency:   currency,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// envelope is the provider's response wrapper. The payload fields sometimes
// arrive at the top level and sometimes under "data"; decodePayload tolerates
// both.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodePayload(body []byte, v interface{}) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	// Top-level fields first, then the data object wins where present.
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, v); err != nil {
			return fmt.Errorf("failed to parse response data: %w", err)
		}
	}
	return nil
}

type chargePayload struct {
	ChargeID string `json:"charge_id"`
	Status   string `json:"status"`
}

func (c *Client) InitiatePayment(ctx context.Context, req *provider.ChargeRequest) (*provider.ChargeResult, error) {
	payload := map[string]interface{}{
		"mobile":                       req.Mobile,
		"amount":                       req.Amount.StringFixed(2),
		"currency":                     c.currency,
		"mobile_money_operator_ref_id": req.OperatorRefID,
		"charge_id":                    req.Reference,
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/mobile-money/payments/initialize", payload)
	if err != nil {
		return nil, err
	}

	var out chargePayload
	if err := decodePayload(body, &out); err != nil {
		return nil, &provider.GatewayError{Code: "bad_response", Message: err.Error()}
	}
	if out.ChargeID == "" {
		return nil, &provider.GatewayError{Code: "bad_response", Message: "response missing charge_id"}
	}

	return &provider.ChargeResult{
		ChargeID: out.ChargeID,
		Status:   provider.NormalizeStatus(out.Status),
	}, nil
}

func (c *Client) VerifyPayment(ctx context.Context, chargeID string) (*provider.VerifyResult, error) {
	path := fmt.Sprintf("/verify-payment/%s", chargeID)
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		ChargeID string `json:"charge_id"`
		Status   string `json:"status"`
		Message  string `json:"message"`
	}
	if err := decodePayload(body, &out); err != nil {
		return nil, &provider.GatewayError{Code: "bad_response", Message: err.Error()}
	}
	if out.ChargeID == "" {
		out.ChargeID = chargeID
	}

	return &provider.VerifyResult{
		ChargeID: out.ChargeID,
		Status:   provider.NormalizeStatus(out.Status),
		Message:  out.Message,
	}, nil
}

func (c *Client) InitiatePayout(ctx context.Context, req *provider.PayoutRequest) (*provider.PayoutResult, error) {
	payload := map[string]interface{}{
		"mobile":                       req.Mobile,
		"amount":                       req.Amount.StringFixed(2),
		"currency":                     c.currency,
		"mobile_money_operator_ref_id": req.OperatorRefID,
		"charge_id":                    req.ChargeID,
		"first_name":                   req.PayeeName,
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/mobile-money/payouts/initialize", payload)
	if err != nil {
		return nil, err
	}
	return parsePayoutResult(body)
}

func (c *Client) InitiateBankPayout(ctx context.Context, req *provider.BankPayoutRequest) (*provider.PayoutResult, error) {
	payload := map[string]interface{}{
		"bank_uuid":           req.BankCode,
		"bank_account_number": req.AccountNumber,
		"bank_account_name":   req.AccountName,
		"amount":              req.Amount.StringFixed(2),
		"currency":            c.currency,
		"charge_id":           req.ChargeID,
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/direct-charge/payouts/initialize", payload)
	if err != nil {
		return nil, err
	}
	return parsePayoutResult(body)
}

func parsePayoutResult(body []byte) (*provider.PayoutResult, error) {
	var out struct {
		TransactionID string `json:"transaction_id"`
		ChargeID      string `json:"charge_id"`
		Status        string `json:"status"`
		Message       string `json:"message"`
	}
	if err := decodePayload(body, &out); err != nil {
		return nil, &provider.GatewayError{Code: "bad_response", Message: err.Error()}
	}

	txID := out.TransactionID
	if txID == "" {
		txID = out.ChargeID
	}
	return &provider.PayoutResult{
		TransactionID: txID,
		Status:        provider.NormalizeStatus(out.Status),
		Message:       out.Message,
	}, nil
}

func (c *Client) ListOperators(ctx context.Context) ([]provider.Operator, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/mobile-money", nil)
	if err != nil {
		return nil, err
	}

	var operators []provider.Operator
	if err := decodeList(body, &operators); err != nil {
		return nil, &provider.GatewayError{Code: "bad_response", Message: err.Error()}
	}
	return operators, nil
}

func (c *Client) ListBanks(ctx context.Context) ([]provider.Bank, error) {
	path := fmt.Sprintf("/direct-charge/payouts/supported-banks?currency=%s", c.currency)
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var banks []provider.Bank
	if err := decodeList(body, &banks); err != nil {
		return nil, &provider.GatewayError{Code: "bad_response", Message: err.Error()}
	}
	return banks, nil
}

func (c *Client) AccountBalance(ctx context.Context) ([]provider.Balance, error) {
	path := fmt.Sprintf("/wallet-balance?currency=%s", c.currency)
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Currency         string `json:"currency"`
		AvailableBalance string `json:"available_balance"`
	}
	if err := decodePayload(body, &out); err != nil {
		return nil, &provider.GatewayError{Code: "bad_response", Message: err.Error()}
	}

	available, err := decimal.NewFromString(out.AvailableBalance)
	if err != nil {
		return nil, &provider.GatewayError{Code: "bad_response", Message: fmt.Sprintf("invalid balance %q", out.AvailableBalance)}
	}
	currency := out.Currency
	if currency == "" {
		currency = c.currency
	}
	return []provider.Balance{{Currency: currency, Available: available}}, nil
}

// decodeList handles list payloads arriving either as a bare JSON array or
// wrapped under "data".
func decodeList(body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err == nil {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if len(env.Data) == 0 {
		return errors.New("response missing data")
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("failed to parse response data: %w", err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, &provider.GatewayError{Code: "bad_request", Message: err.Error()}
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &provider.GatewayError{Code: "bad_request", Message: err.Error()}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env envelope
		_ = json.Unmarshal(responseBody, &env)
		message := env.Message
		if message == "" {
			message = string(responseBody)
		}
		return nil, &provider.GatewayError{
			Code:    fmt.Sprintf("http_%d", resp.StatusCode),
			Message: message,
		}
	}

	return responseBody, nil
}

// classifyTransportError separates timeouts, where the provider may have
// processed the request, from other transport failures, where it never saw it.
func classifyTransportError(err error) *provider.GatewayError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &provider.GatewayError{Code: "timeout", Message: err.Error(), Timeout: true}
	}
	return &provider.GatewayError{Code: "network", Message: err.Error()}
}
