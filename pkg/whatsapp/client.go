package whatsapp

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

	"wapool/pkg/whatsapp/types"
)

const (
	userAgent       = "wapool/1.0"
	maxResponseBody = 512 * 1024
)

// Client is the subset of the WhatsApp Cloud API used for health verification.
// Each call carries the token of the app it runs for.
type Client interface {
	GetPhoneNumber(ctx context.Context, token, phoneNumberID string) (*types.PhoneNumber, error)
	GetBusinessAccount(ctx context.Context, token, wabaID string) (*types.BusinessAccount, error)
	ListPhoneNumbers(ctx context.Context, token, wabaID string) ([]types.PhoneNumber, error)
	SendTextMessage(ctx context.Context, token, phoneNumberID, to, body string) (*types.SendMessageResponse, error)
}

type GraphClient struct {
	baseURL    string
	apiVersion string
	client     *http.Client
}

func NewClient(baseURL, apiVersion string, timeout time.Duration) *GraphClient {
	return &GraphClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiVersion: apiVersion,
		client:     &http.Client{Timeout: timeout},
	}
}

// APIVersion returns the Graph API version prefix used in request paths.
func (c *GraphClient) APIVersion() string {
	return c.apiVersion
}

func (c *GraphClient) GetPhoneNumber(ctx context.Context, token, phoneNumberID string) (*types.PhoneNumber, error) {
	var result types.PhoneNumber
	query := url.Values{"fields": {types.PhoneNumberFields}}
	if err := c.do(ctx, http.MethodGet, phoneNumberID, query, token, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *GraphClient) GetBusinessAccount(ctx context.Context, token, wabaID string) (*types.BusinessAccount, error) {
	var result types.BusinessAccount
	query := url.Values{"fields": {types.BusinessAccountFields}}
	if err := c.do(ctx, http.MethodGet, wabaID, query, token, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *GraphClient) ListPhoneNumbers(ctx context.Context, token, wabaID string) ([]types.PhoneNumber, error) {
	var result types.PhoneNumberList
	query := url.Values{"fields": {types.PhoneNumberFields}}
	if err := c.do(ctx, http.MethodGet, wabaID+"/phone_numbers", query, token, nil, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

func (c *GraphClient) SendTextMessage(ctx context.Context, token, phoneNumberID, to, body string) (*types.SendMessageResponse, error) {
	payload := types.TextMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             types.TextPayload{Body: body},
	}

	var result types.SendMessageResponse
	if err := c.do(ctx, http.MethodPost, phoneNumberID+"/messages", nil, token, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *GraphClient) do(ctx context.Context, method, node string, query url.Values, token string, payload, out interface{}) error {
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, c.apiVersion, strings.TrimLeft(node, "/"))
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &TransportError{Op: method + " " + node, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return &TransportError{Op: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, raw)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, raw []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var envelope types.ErrorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Subcode = envelope.Error.ErrorSubcode
		apiErr.Type = envelope.Error.Type
		apiErr.Message = envelope.Error.Message
		apiErr.TraceID = envelope.Error.FBTraceID
	}
	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("HTTP %d", status)
	}
	return apiErr
}
