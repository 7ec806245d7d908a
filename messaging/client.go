// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/bureau-foundation/frontdesk/lib/netutil"
	"github.com/bureau-foundation/frontdesk/lib/ref"
	"github.com/bureau-foundation/frontdesk/lib/secret"
)

// ClientConfig configures NewClient.
type ClientConfig struct {
	// HomeserverURL is the base URL of the Matrix homeserver
	// (e.g., "http://localhost:6167"). Required.
	HomeserverURL string
	// HTTPClient carries all requests; nil means http.DefaultClient.
	HTTPClient *http.Client
	// Logger receives structured logs; nil means slog.Default().
	Logger *slog.Logger
}

// Client is an unauthenticated Matrix client: the homeserver URL plus
// the HTTP transport, shared by every session created from it.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds a Client from the config, filling in the default
// HTTP client and logger where the caller left them nil.
func NewClient(config ClientConfig) (*Client, error) {
	if config.HomeserverURL == "" {
		return nil, fmt.Errorf("messaging: ClientConfig.HomeserverURL is empty")
	}

	// The URL is validated here but stored as a string, and request
	// URLs are built by concatenation. Round-tripping through
	// url.URL.String() can re-encode the path, which breaks
	// endpoints embedding encoded identifiers.
	if _, err := url.Parse(config.HomeserverURL); err != nil {
		return nil, fmt.Errorf("messaging: HomeserverURL %q: %w", config.HomeserverURL, err)
	}

	client := &Client{
		baseURL:    strings.TrimRight(config.HomeserverURL, "/"),
		httpClient: config.HTTPClient,
		logger:     config.Logger,
	}
	if client.httpClient == nil {
		client.httpClient = http.DefaultClient
	}
	if client.logger == nil {
		client.logger = slog.Default()
	}
	return client, nil
}

// CloseIdleConnections drops pooled HTTP connections. Call after a
// network disruption so the next request dials fresh instead of
// reusing a poisoned connection.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// call performs an unauthenticated JSON request and, when result is
// non-nil, decodes the response into it.
func (c *Client) call(ctx context.Context, method, path string, requestBody, result any) error {
	body, err := c.doRequest(ctx, method, path, nil, requestBody)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// ServerVersions returns the protocol versions the homeserver
// supports. Unauthenticated, so it doubles as a reachability check
// before login.
func (c *Client) ServerVersions(ctx context.Context) (*ServerVersionsResponse, error) {
	var response ServerVersionsResponse
	if err := c.call(ctx, http.MethodGet, "/_matrix/client/versions", nil, &response); err != nil {
		return nil, fmt.Errorf("messaging: server versions: %w", err)
	}
	return &response, nil
}

// Login authenticates with username and password, returning a
// DirectSession. The password buffer is read, not closed; ownership
// stays with the caller.
func (c *Client) Login(ctx context.Context, username string, password *secret.Buffer) (*DirectSession, error) {
	if username == "" {
		return nil, fmt.Errorf("messaging: login requires a username")
	}
	if password == nil {
		return nil, fmt.Errorf("messaging: login requires a password")
	}

	// The password leaves guarded memory only at the JSON
	// serialization boundary.
	var authResponse AuthResponse
	err := c.call(ctx, http.MethodPost, "/_matrix/client/v3/login", LoginRequest{
		Type:                     "m.login.password",
		User:                     username,
		Password:                 password.String(),
		InitialDeviceDisplayName: "frontdesk",
	}, &authResponse)
	if err != nil {
		return nil, fmt.Errorf("messaging: login: %w", err)
	}

	c.logger.Info("matrix login succeeded",
		"user_id", authResponse.UserID,
		"device_id", authResponse.DeviceID,
	)

	return c.newSession(authResponse.UserID, authResponse.AccessToken, authResponse.DeviceID)
}

// SessionFromToken builds a DirectSession around an existing access
// token. The token is copied into mmap-backed memory (locked against
// swap, excluded from core dumps); the original string lingers on the
// heap until collected, but the guarded buffer is the durable copy.
//
// The token is not validated here — the first API call fails if it is
// dead. Close the returned session when done.
func (c *Client) SessionFromToken(userID ref.UserID, accessToken string) (*DirectSession, error) {
	return c.newSession(userID, accessToken, "")
}

func (c *Client) newSession(userID ref.UserID, accessToken, deviceID string) (*DirectSession, error) {
	tokenBuffer, err := secret.NewFromBytes([]byte(accessToken))
	if err != nil {
		return nil, fmt.Errorf("messaging: guarding access token: %w", err)
	}
	return &DirectSession{
		client:      c,
		accessToken: tokenBuffer,
		userID:      userID,
		deviceID:    deviceID,
	}, nil
}

// endpoint joins the base URL, path, and optional query string.
func (c *Client) endpoint(path string, query []url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 && query[0] != nil {
		u += "?" + query[0].Encode()
	}
	return u
}

// authorize attaches the bearer token when one is given.
func authorize(request *http.Request, accessToken *secret.Buffer) {
	if accessToken != nil {
		request.Header.Set("Authorization", "Bearer "+accessToken.String())
	}
}

// matrixAPIError decodes a non-2xx response body into a *MatrixError.
// A spec-compliant homeserver always sends the standard error JSON;
// anything else is surfaced raw.
func matrixAPIError(statusCode int, body []byte, method, path string) error {
	var matrixErr MatrixError
	if err := json.Unmarshal(body, &matrixErr); err != nil {
		return fmt.Errorf("messaging: unexpected %d response from %s %s: %s",
			statusCode, method, path, string(body))
	}
	matrixErr.StatusCode = statusCode
	return &matrixErr
}

// execute sends a prepared request and returns the full response
// body. Non-2xx responses come back as *MatrixError.
func (c *Client) execute(request *http.Request, method, path string) ([]byte, error) {
	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("messaging: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	body, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("messaging: reading %s %s response: %w", method, path, err)
	}
	if response.StatusCode/100 == 2 {
		return body, nil
	}
	return nil, matrixAPIError(response.StatusCode, body, method, path)
}

// doRequest performs a JSON API request and returns the response
// body. accessToken may be nil for unauthenticated endpoints; query
// may be omitted.
func (c *Client) doRequest(ctx context.Context, method, path string, accessToken *secret.Buffer, requestBody any, query ...url.Values) ([]byte, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("messaging: encoding %s %s request body: %w", method, path, err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("messaging: building %s %s request: %w", method, path, err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	authorize(request, accessToken)
	return c.execute(request, method, path)
}

// doRequestRaw performs a request with a raw body (media upload).
func (c *Client) doRequestRaw(ctx context.Context, method, path string, accessToken *secret.Buffer, contentType string, body io.Reader, query ...url.Values) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return nil, fmt.Errorf("messaging: building %s %s request: %w", method, path, err)
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	authorize(request, accessToken)
	return c.execute(request, method, path)
}

// doRequestStream performs a GET and hands back the raw response for
// streaming (media download). The caller owns the response and must
// close its body; a non-nil response is always 2xx, since error
// responses are drained and converted to *MatrixError here.
func (c *Client) doRequestStream(ctx context.Context, path string, accessToken *secret.Buffer) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: building GET %s request: %w", path, err)
	}
	authorize(request, accessToken)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("messaging: GET %s: %w", path, err)
	}

	if response.StatusCode/100 == 2 {
		return response, nil
	}

	defer response.Body.Close()
	errorBody := netutil.ErrorBody(response.Body)
	return nil, matrixAPIError(response.StatusCode, []byte(errorBody), http.MethodGet, path)
}
