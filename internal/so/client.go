// Package so is the HTTP client for the Security Onion manager API.
// It handles OAuth2 client-credentials authentication, token caching
// and the connect/* service endpoints used by the bot and the web UI.
package so

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	defaultTimeout   = 30 * time.Second
	detectionTimeout = 60 * time.Second

	// Tokens are treated as expired this long before they actually
	// are, so in-flight requests never ride a dying token.
	defaultTokenSlack = 5 * time.Minute
)

// APIError is a non-2xx reply from the manager.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("security onion returned %d: %s", e.StatusCode, e.Body)
}

type Config struct {
	APIURL       string
	ClientID     string
	ClientSecret string
	VerifySSL    bool
	TokenSlack   time.Duration
	Logger       *slog.Logger
}

// Client talks to a Security Onion manager. Safe for concurrent use.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	http         *http.Client
	logger       *slog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
	tokenSlack  time.Duration
}

func NewClient(cfg Config) *Client {
	slack := cfg.TokenSlack
	if slack <= 0 {
		slack = defaultTokenSlack
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:      NormalizeBaseURL(cfg.APIURL),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		http:         newHTTPClient(cfg.VerifySSL),
		logger:       logger,
		tokenSlack:   slack,
	}
}

// newHTTPClient builds a pooled client. Timeouts are applied per
// request through the context, detections need longer than events.
func newHTTPClient(verifySSL bool) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if !verifySSL {
		// Managers ship self-signed certificates out of the box.
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{Transport: transport}
}

// NormalizeBaseURL strips trailing slashes and a trailing /connect
// segment, then forces an https scheme.
func NormalizeBaseURL(raw string) string {
	u := strings.TrimSpace(raw)
	for strings.HasSuffix(u, "/") {
		u = strings.TrimSuffix(u, "/")
	}
	u = strings.TrimSuffix(u, "/connect")
	for strings.HasSuffix(u, "/") {
		u = strings.TrimSuffix(u, "/")
	}
	switch {
	case strings.HasPrefix(u, "https://"):
	case strings.HasPrefix(u, "http://"):
		u = "https://" + strings.TrimPrefix(u, "http://")
	case u != "":
		u = "https://" + u
	}
	return u
}

// BaseURL returns the normalized manager URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Connected reports whether the client holds an unexpired token.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken != "" && time.Now().Before(c.tokenExpiry)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Authenticate fetches a fresh OAuth2 token with the client
// credentials grant.
func (c *Client) Authenticate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("token response missing access_token")
	}

	c.mu.Lock()
	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - c.tokenSlack)
	c.mu.Unlock()

	c.logger.Debug("authenticated to security onion", "expires_in", tok.ExpiresIn)
	return nil
}

// ensureToken returns a valid bearer token, refreshing if needed.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.accessToken
	valid := token != "" && time.Now().Before(c.tokenExpiry)
	c.mu.Unlock()
	if valid {
		return token, nil
	}
	if err := c.Authenticate(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	token = c.accessToken
	c.mu.Unlock()
	return token, nil
}

// request performs one API call. A 401 triggers a single
// re-authentication and retry, expired tokens are otherwise
// indistinguishable from revoked credentials.
func (c *Client) request(ctx context.Context, method, path string, query url.Values, body []byte, timeout time.Duration) (*http.Response, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)

	build := func(token string) (*http.Request, error) {
		u := c.baseURL + "/" + strings.TrimPrefix(path, "/")
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return req, nil
	}

	token, err := c.ensureToken(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	req, err := build(token)
	if err != nil {
		cancel()
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		c.logger.Debug("token rejected, re-authenticating", "path", path)
		if err := c.Authenticate(ctx); err != nil {
			cancel()
			return nil, err
		}
		c.mu.Lock()
		token = c.accessToken
		c.mu.Unlock()
		req, err = build(token)
		if err != nil {
			cancel()
			return nil, err
		}
		resp, err = c.http.Do(req)
		if err != nil {
			cancel()
			return nil, err
		}
	}

	resp.Body = &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelReadCloser releases the request context when the body closes.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// getJSON performs a GET and decodes the reply into out.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any, timeout time.Duration) error {
	resp, err := c.request(ctx, http.MethodGet, path, query, nil, timeout)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeReply(resp, out)
}

// sendJSON issues method with in marshaled as the JSON body, decoding
// the reply into out when out is non-nil.
func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any, timeout time.Duration) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}
	resp, err := c.request(ctx, method, path, nil, body, timeout)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeReply(resp, out)
}

// getBytes performs a GET and returns the raw body, used for PCAP
// stream downloads.
func (c *Client) getBytes(ctx context.Context, path string, query url.Values, timeout time.Duration) ([]byte, error) {
	resp, err := c.request(ctx, http.MethodGet, path, query, nil, timeout)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return io.ReadAll(resp.Body)
}

func decodeReply(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}
