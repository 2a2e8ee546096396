// Package subsonic talks to the library scan endpoints of a Subsonic
// compatible server such as Navidrome
package subsonic

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/franz/djsync/internal/util"
	"github.com/google/uuid"
)

const (
	// APIVersion is the protocol version sent with each request
	APIVersion = "1.16.1"

	// DefaultClientID identifies this application to the server
	DefaultClientID = "djsync"
)

// Config holds client settings
type Config struct {
	BaseURL    string
	Username   string
	Password   string
	ClientID   string
	HTTPClient *http.Client
	Retry      *util.RetryConfig
}

// Client calls the Subsonic REST API with token authentication
type Client struct {
	baseURL    string
	username   string
	password   string
	clientID   string
	httpClient *http.Client
	retry      *util.RetryConfig
	salt       func() string
}

// NewClient creates a new Subsonic API client
func NewClient(cfg Config) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		clientID:   cfg.ClientID,
		httpClient: cfg.HTTPClient,
		retry:      cfg.Retry,
		salt:       func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
	if c.clientID == "" {
		c.clientID = DefaultClientID
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.retry == nil {
		c.retry = util.DefaultRetryConfig()
	}
	return c
}

// BaseURL builds http://host:port for a server address
func BaseURL(host string, port int) string {
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		if port > 0 {
			return fmt.Sprintf("%s:%d", strings.TrimRight(host, "/"), port)
		}
		return strings.TrimRight(host, "/")
	}
	if port > 0 {
		return fmt.Sprintf("http://%s:%d", host, port)
	}
	return "http://" + host
}

// APIError is a failed response reported inside the Subsonic envelope
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("subsonic error %d: %s", e.Code, e.Message)
}

// ScanStatus is the library scanner state
type ScanStatus struct {
	Scanning flexBool `json:"scanning"`
	Count    int      `json:"count"`
}

type envelope struct {
	Response struct {
		Status     string      `json:"status"`
		Version    string      `json:"version"`
		Error      *APIError   `json:"error"`
		ScanStatus *ScanStatus `json:"scanStatus"`
	} `json:"subsonic-response"`
}

// flexBool accepts both JSON booleans and "true"/"false" strings
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = flexBool(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*b = flexBool(strings.EqualFold(s, "true"))
	return nil
}

// Ping verifies connectivity and credentials
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, "ping", nil)
	return err
}

// StartScan asks the server to rescan its library
func (c *Client) StartScan(ctx context.Context, full bool) error {
	params := url.Values{}
	params.Set("fullScan", fmt.Sprintf("%t", full))
	util.DebugLog("Subsonic API: startScan fullScan=%t", full)
	_, err := c.call(ctx, "startScan", params)
	return err
}

// ScanStatus reports whether a library scan is in progress
func (c *Client) ScanStatus(ctx context.Context) (bool, error) {
	env, err := c.call(ctx, "getScanStatus", nil)
	if err != nil {
		return false, err
	}
	if env.Response.ScanStatus == nil {
		return false, fmt.Errorf("getScanStatus: response has no scanStatus")
	}
	return bool(env.Response.ScanStatus.Scanning), nil
}

// call runs one endpoint with retries for transient failures
func (c *Client) call(ctx context.Context, endpoint string, params url.Values) (*envelope, error) {
	return util.RetryWithBackoff(ctx, c.retry, func(ctx context.Context) (*envelope, error) {
		return c.do(ctx, endpoint, params)
	}, "subsonic "+endpoint)
}

func (c *Client) do(ctx context.Context, endpoint string, params url.Values) (*envelope, error) {
	query := url.Values{}
	for k, vs := range params {
		query[k] = vs
	}
	salt := c.salt()
	sum := md5.Sum([]byte(c.password + salt))
	query.Set("u", c.username)
	query.Set("t", hex.EncodeToString(sum[:]))
	query.Set("s", salt)
	query.Set("v", APIVersion)
	query.Set("c", c.clientID)
	query.Set("f", "json")

	urlStr := fmt.Sprintf("%s/rest/%s?%s", c.baseURL, endpoint, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &util.TransientError{Err: fmt.Errorf("%s: status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s: unexpected status code %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if env.Response.Status != "ok" {
		if env.Response.Error != nil {
			return nil, env.Response.Error
		}
		return nil, fmt.Errorf("%s: status %q", endpoint, env.Response.Status)
	}
	return &env, nil
}
