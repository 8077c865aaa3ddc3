package tinkoff

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

const DefaultBaseURL = "https://securepay.tinkoff.ru/v2"

// Client talks to the Tinkoff acquiring API v2.
type Client struct {
	terminalKey string
	password    string
	baseURL     string
	hc          *http.Client
}

func NewClient(terminalKey, password, baseURL string, hc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		terminalKey: terminalKey,
		password:    password,
		baseURL:     strings.TrimRight(baseURL, "/"),
		hc:          hc,
	}
}

type InitRequest struct {
	Amount      int64
	OrderID     string
	Description string
	SuccessURL  string
}

type InitResponse struct {
	Success     bool   `json:"Success"`
	ErrorCode   string `json:"ErrorCode"`
	Message     string `json:"Message"`
	Details     string `json:"Details"`
	Status      string `json:"Status"`
	PaymentID   ID     `json:"PaymentId"`
	OrderID     string `json:"OrderId"`
	Amount      int64  `json:"Amount"`
	PaymentURL  string `json:"PaymentURL"`
	TerminalKey string `json:"TerminalKey"`
}

type StateResponse struct {
	Success   bool   `json:"Success"`
	ErrorCode string `json:"ErrorCode"`
	Message   string `json:"Message"`
	Details   string `json:"Details"`
	Status    string `json:"Status"`
	PaymentID ID     `json:"PaymentId"`
	OrderID   string `json:"OrderId"`
	Amount    int64  `json:"Amount"`
}

// ID accepts PaymentId as either a JSON string or a number.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// APIError is a well-formed reply with Success=false.
type APIError struct {
	Method  string
	Code    string
	Message string
	Details string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tinkoff %s: code %s: %s %s", e.Method, e.Code, e.Message, e.Details)
}

// Init creates a payment and returns the form URL.
func (c *Client) Init(ctx context.Context, req InitRequest) (*InitResponse, error) {
	params := map[string]string{
		"TerminalKey": c.terminalKey,
		"Amount":      strconv.FormatInt(req.Amount, 10),
		"OrderId":     req.OrderID,
		"Description": req.Description,
	}
	if req.SuccessURL != "" {
		params["SuccessURL"] = req.SuccessURL
	}

	body := map[string]any{
		"TerminalKey": c.terminalKey,
		"Amount":      req.Amount,
		"OrderId":     req.OrderID,
		"Description": req.Description,
		"Token":       c.Token(params),
	}
	if req.SuccessURL != "" {
		body["SuccessURL"] = req.SuccessURL
	}

	var reply InitResponse
	if err := c.post(ctx, "Init", body, &reply); err != nil {
		return nil, err
	}
	if !reply.Success {
		return nil, &APIError{Method: "Init", Code: reply.ErrorCode, Message: reply.Message, Details: reply.Details}
	}
	return &reply, nil
}

// GetState returns the current status of a payment.
func (c *Client) GetState(ctx context.Context, paymentID string) (*StateResponse, error) {
	params := map[string]string{
		"TerminalKey": c.terminalKey,
		"PaymentId":   paymentID,
	}
	body := map[string]any{
		"TerminalKey": c.terminalKey,
		"PaymentId":   paymentID,
		"Token":       c.Token(params),
	}

	var reply StateResponse
	if err := c.post(ctx, "GetState", body, &reply); err != nil {
		return nil, err
	}
	if !reply.Success {
		return nil, &APIError{Method: "GetState", Code: reply.ErrorCode, Message: reply.Message, Details: reply.Details}
	}
	return &reply, nil
}

// Token signs root-level scalar parameters: add Password, sort by key,
// concatenate the values and hash with SHA-256.
func (c *Client) Token(params map[string]string) string {
	withPassword := make(map[string]string, len(params)+1)
	for k, v := range params {
		withPassword[k] = v
	}
	withPassword["Password"] = c.password

	keys := make([]string, 0, len(withPassword))
	for k := range withPassword {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(withPassword[k])
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

func (c *Client) post(ctx context.Context, method string, body any, reply any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("tinkoff %s: json.Marshal: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("tinkoff %s: http.NewRequestWithContext: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("tinkoff %s: http.Do: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		rbody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("tinkoff %s: resp.StatusCode: %d, resp.Body: %s", method, resp.StatusCode, rbody)
	}

	if err := json.NewDecoder(resp.Body).Decode(reply); err != nil {
		return fmt.Errorf("tinkoff %s: json.Decode: %w", method, err)
	}
	return nil
}
