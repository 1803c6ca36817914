package airdrop

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	core "refdrop/native/airdrop"
)

// APIError is a decoded error reply. It matches the engine sentinel for its
// kind under errors.Is.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("airdropd %d: %s", e.Status, e.Kind)
	}
	return fmt.Sprintf("airdropd %d: %s: %s", e.Status, e.Kind, e.Message)
}

// Is reports whether target is the sentinel for the error kind.
func (e *APIError) Is(target error) bool {
	return core.ErrorForKind(e.Kind) == target
}

// Client wraps the airdropd REST endpoints.
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
}

// Option mutates the client configuration during construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// New constructs a client pointed at baseURL that authenticates with the
// bearer token.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	trimmedURL := strings.TrimSpace(baseURL)
	if trimmedURL == "" {
		return nil, fmt.Errorf("baseURL required")
	}
	parsed, err := url.Parse(trimmedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid baseURL: %w", err)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("bearer token required")
	}
	client := &Client{baseURL: parsed, token: token, httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// AddCodes appends codes to the pool.
func (c *Client) AddCodes(ctx context.Context, codes []core.Code) (*AddCodesResponse, error) {
	var resp AddCodesResponse
	if err := c.do(ctx, http.MethodPost, "/v1/admin/codes", nil, AddCodesRequest{Codes: codes}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AddAdmin grants the admin role.
func (c *Client) AddAdmin(ctx context.Context, principal core.Principal) error {
	return c.do(ctx, http.MethodPost, "/v1/admin/admins", nil, PrincipalRequest{Principal: principal}, nil)
}

// AddManager authorises a manager.
func (c *Client) AddManager(ctx context.Context, principal core.Principal, name string) error {
	return c.do(ctx, http.MethodPost, "/v1/admin/managers", nil, ManagerRequest{Principal: principal, Name: name}, nil)
}

// Kill engages the emergency stop.
func (c *Client) Kill(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/admin/kill", nil, nil, nil)
}

// Revive releases the emergency stop.
func (c *Client) Revive(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/admin/revive", nil, nil, nil)
}

// GetAirdrop exports untransferred entries from index onwards.
func (c *Client) GetAirdrop(ctx context.Context, index core.Index) (*ExportResponse, error) {
	query := url.Values{"index": []string{strconv.FormatUint(uint64(index), 10)}}
	var resp ExportResponse
	if err := c.do(ctx, http.MethodGet, "/v1/admin/airdrop", query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PutAirdrop acknowledges the payment of entry's address.
func (c *Client) PutAirdrop(ctx context.Context, index core.Index, entry core.PayoutEntry) error {
	return c.do(ctx, http.MethodPut, "/v1/admin/airdrop", nil, AcknowledgeRequest{Index: index, Entry: entry}, nil)
}

// Stats fetches the operator summary.
func (c *Client) Stats(ctx context.Context) (*core.Stats, error) {
	var resp core.Stats
	if err := c.do(ctx, http.MethodGet, "/v1/admin/stats", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateCode mints a root code for the calling manager.
func (c *Client) GenerateCode(ctx context.Context) (*core.CodeInfo, error) {
	var resp core.CodeInfo
	if err := c.do(ctx, http.MethodPost, "/v1/codes", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RedeemCode redeems code for the calling principal.
func (c *Client) RedeemCode(ctx context.Context, code core.Code) (*core.Info, error) {
	var resp core.Info
	if err := c.do(ctx, http.MethodPost, "/v1/redeem", nil, RedeemRequest{Code: code}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetCode returns the caller's registration.
func (c *Client) GetCode(ctx context.Context) (*core.Info, error) {
	var resp core.Info
	if err := c.do(ctx, http.MethodGet, "/v1/code", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HasRedeemed reports whether the caller's address was queued for a reward.
func (c *Client) HasRedeemed(ctx context.Context) (bool, error) {
	var resp RedeemedResponse
	if err := c.do(ctx, http.MethodGet, "/v1/redeemed", nil, nil, &resp); err != nil {
		return false, err
	}
	return resp.Redeemed, nil
}

// IsManager reports whether the caller is a manager.
func (c *Client) IsManager(ctx context.Context) (bool, error) {
	var resp ManagerResponse
	if err := c.do(ctx, http.MethodGet, "/v1/manager", nil, nil, &resp); err != nil {
		return false, err
	}
	return resp.Manager, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	rel := &url.URL{Path: endpoint}
	if len(query) > 0 {
		rel.RawQuery = query.Encode()
	}
	target := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, bodyBytes)
	}
	if out == nil || len(bodyBytes) == 0 {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(status int, body []byte) error {
	var payload ErrorResponse
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error == "" {
		return &APIError{Status: status, Kind: "GeneralError", Message: strings.TrimSpace(string(body))}
	}
	return &APIError{Status: status, Kind: payload.Error, Message: payload.Message}
}

// IsKind reports whether err is an APIError of the given kind.
func IsKind(err error, kind string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}
