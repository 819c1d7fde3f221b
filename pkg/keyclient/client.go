package keyclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 1 << 20 // 1 MB
)

// Client talks to the key server HTTP API.
type Client struct {
	serverURL  string
	httpClient *http.Client
	timeout    time.Duration // applied after all options
	userAgent  string
	deviceID   string
}

// NewClient creates a client for the key server at serverURL
// (e.g. "https://keys.example.com").
func NewClient(serverURL string, opts ...Option) *Client {
	c := &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		timeout:   defaultTimeout,
		userAgent: "keyserver-client-go/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	c.httpClient.Timeout = c.timeout
	return c
}

// DeviceID returns the device id set with WithDeviceID, or "".
func (c *Client) DeviceID() string {
	return c.deviceID
}

// Validate asks the server whether req.KeyID is usable from req.DeviceID.
// An empty DeviceID is filled from WithDeviceID. A denial is a response with
// Valid false, not an error.
func (c *Client) Validate(ctx context.Context, req ValidateRequest) (*ValidateResponse, error) {
	if req.DeviceID == "" {
		req.DeviceID = c.deviceID
	}
	var resp ValidateResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/validate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ValidateDevice validates keyID from this machine, using the device id
// chosen by ResolveDeviceID: WithDeviceID, then KEYSERVER_DEVICE_ID, then
// the machine fingerprint.
func (c *Client) ValidateDevice(ctx context.Context, keyID string) (*ValidateResponse, error) {
	deviceID, err := ResolveDeviceID(c.deviceID)
	if err != nil {
		return nil, fmt.Errorf("resolve device id: %w", err)
	}
	return c.Validate(ctx, ValidateRequest{KeyID: keyID, DeviceID: deviceID})
}

func (c *Client) CreateKey(ctx context.Context, req CreateKeyRequest) (*Key, error) {
	var key Key
	if err := c.doJSON(ctx, http.MethodPost, "/v1/keys", req, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

func (c *Client) GetKey(ctx context.Context, id string) (*Key, error) {
	var key Key
	if err := c.doJSON(ctx, http.MethodGet, keyPath(id), nil, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

// ListKeys returns all keys sorted by id, or only those whose contact matches
// contact (case-insensitively) when it is non-empty.
func (c *Client) ListKeys(ctx context.Context, contact string) ([]Key, error) {
	path := "/v1/keys"
	if contact != "" {
		path += "?" + url.Values{"contact": {contact}}.Encode()
	}
	var resp struct {
		Keys []Key `json:"keys"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Keys, nil
}

// EditKey replaces the contact, device limit and expiry of key id.
func (c *Client) EditKey(ctx context.Context, id string, req EditKeyRequest) (*Key, error) {
	var key Key
	if err := c.doJSON(ctx, http.MethodPut, keyPath(id), req, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

func (c *Client) DeleteKey(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, keyPath(id), nil, nil)
}

func (c *Client) BlockKey(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPost, keyPath(id)+"/block", nil, nil)
}

func (c *Client) UnblockKey(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPost, keyPath(id)+"/unblock", nil, nil)
}

// ResetKey unbinds every device of key id and sets its expiry.
func (c *Client) ResetKey(ctx context.Context, id string, req ResetKeyRequest) (*Key, error) {
	var key Key
	if err := c.doJSON(ctx, http.MethodPost, keyPath(id)+"/reset", req, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

// UnbindDevice frees one device slot of key id. Returns ErrDeviceNotBound if
// deviceID was not bound.
func (c *Client) UnbindDevice(ctx context.Context, id, deviceID string) error {
	return c.doJSON(ctx, http.MethodDelete, keyPath(id)+"/devices/"+url.PathEscape(deviceID), nil, nil)
}

// ListSuspicious returns the ids of keys with more bound devices than their limit.
func (c *Client) ListSuspicious(ctx context.Context) ([]string, error) {
	var resp struct {
		IDs []string `json:"ids"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/keys/suspicious", nil, &resp); err != nil {
		return nil, err
	}
	return resp.IDs, nil
}

// ListAudit returns audit entries ordered by sequence number, filtered by
// kind ("validation" or "admin-action") when it is non-empty.
func (c *Client) ListAudit(ctx context.Context, kind string) ([]AuditEntry, error) {
	path := "/v1/audit"
	if kind != "" {
		path += "?" + url.Values{"kind": {kind}}.Encode()
	}
	var resp struct {
		Entries []AuditEntry `json:"entries"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// AppendAudit records an entry in the server's audit log and returns it with
// its sequence number and timestamp assigned.
func (c *Client) AppendAudit(ctx context.Context, req AppendAuditRequest) (*AuditEntry, error) {
	var entry AuditEntry
	if err := c.doJSON(ctx, http.MethodPost, "/v1/audit", req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (c *Client) PublishRelease(ctx context.Context, req PublishReleaseRequest) (*Release, error) {
	var rel Release
	if err := c.doJSON(ctx, http.MethodPost, "/v1/releases", req, &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

// LatestRelease returns the release with the highest id. ok is false when
// nothing has been published.
func (c *Client) LatestRelease(ctx context.Context) (rel *Release, ok bool, err error) {
	rel = &Release{}
	err = c.doJSON(ctx, http.MethodGet, "/v1/releases/latest", nil, rel)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rel, true, nil
}

func (c *Client) ListReleases(ctx context.Context) ([]Release, error) {
	var resp struct {
		Releases []Release `json:"releases"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/releases", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Releases, nil
}

// EditRelease replaces the description and link of release id.
func (c *Client) EditRelease(ctx context.Context, id int64, req EditReleaseRequest) (*Release, error) {
	var rel Release
	if err := c.doJSON(ctx, http.MethodPut, releasePath(id), req, &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

func (c *Client) RemoveRelease(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, releasePath(id), nil, nil)
}

func releasePath(id int64) string {
	return fmt.Sprintf("/v1/releases/%d", id)
}

func keyPath(id string) string {
	return "/v1/keys/" + url.PathEscape(id)
}

// doJSON sends body (if non-nil) as JSON and decodes the response into dest
// (if non-nil). Responses with status >= 400 are parsed into a mapped error.
func (c *Client) doJSON(ctx context.Context, method, path string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseError(resp.StatusCode, respBody)
	}
	if dest == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(respBody, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// parseError parses {"error": {"code": "...", "message": "..."}}.
func parseError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Code == "" {
		return &ServerError{
			StatusCode: statusCode,
			Code:       "UNKNOWN",
			Message:    strings.TrimSpace(string(body)),
		}
	}
	return mapServerError(&ServerError{
		StatusCode: statusCode,
		Code:       errResp.Error.Code,
		Message:    errResp.Error.Message,
	})
}
