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

	"github.com/bureau-foundation/consolebridge/lib/ref"
	"github.com/bureau-foundation/consolebridge/lib/secret"
	"github.com/bureau-foundation/consolebridge/lib/version"
)

// maxResponseSize bounds how much of a response body is read. Sync
// responses for a handful of rooms are far below this.
const maxResponseSize = 32 << 20

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// HomeserverURL is the base URL of the homeserver, e.g.
	// "https://matrix.example.org".
	HomeserverURL string

	// HTTPClient is used for all requests. If nil, http.DefaultClient is
	// used.
	HTTPClient *http.Client

	// DeviceDisplayName is sent on login. Defaults to "consolebridge".
	DeviceDisplayName string

	// Logger is used for structured logging. If nil, slog.Default() is
	// used.
	Logger *slog.Logger
}

// Client is an unauthenticated Matrix client.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	displayName string
	logger      *slog.Logger
}

// NewClient validates config and returns a Client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.HomeserverURL == "" {
		return nil, fmt.Errorf("messaging: HomeserverURL is required")
	}
	parsed, err := url.Parse(config.HomeserverURL)
	if err != nil {
		return nil, fmt.Errorf("messaging: invalid HomeserverURL %q: %w", config.HomeserverURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("messaging: HomeserverURL %q must be http or https", config.HomeserverURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	displayName := config.DeviceDisplayName
	if displayName == "" {
		displayName = "consolebridge"
	}

	return &Client{
		baseURL:     strings.TrimRight(config.HomeserverURL, "/"),
		httpClient:  httpClient,
		displayName: displayName,
		logger:      logger,
	}, nil
}

// Login authenticates with a username and password. The password buffer
// is read but not closed; the caller keeps ownership.
func (c *Client) Login(ctx context.Context, username string, password *secret.Buffer) (*Session, error) {
	if username == "" {
		return nil, fmt.Errorf("messaging: username is required for login")
	}
	if password == nil {
		return nil, fmt.Errorf("messaging: password is required for login")
	}

	request := loginRequest{
		Type:                     "m.login.password",
		User:                     username,
		Password:                 password.String(),
		InitialDeviceDisplayName: c.displayName,
	}
	body, err := c.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/login", nil, request, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: login failed: %w", err)
	}

	var response authResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: parsing login response: %w", err)
	}
	if response.AccessToken == "" {
		return nil, fmt.Errorf("messaging: login response has no access token")
	}

	token, err := secret.New([]byte(response.AccessToken))
	if err != nil {
		return nil, fmt.Errorf("messaging: protecting access token: %w", err)
	}
	c.logger.Info("logged in to matrix",
		"user_id", response.UserID.String(),
		"device_id", response.DeviceID,
	)
	return &Session{client: c, accessToken: token, userID: response.UserID}, nil
}

// SessionFromToken wraps an existing access token. The session takes
// ownership of token and closes it on Close. The token is not checked;
// call WhoAmI to validate it.
func (c *Client) SessionFromToken(userID ref.UserID, token *secret.Buffer) (*Session, error) {
	if token == nil {
		return nil, fmt.Errorf("messaging: access token is required")
	}
	return &Session{client: c, accessToken: token, userID: userID}, nil
}

// doRequest performs one API call and returns the response body. Non-2xx
// responses come back as *MatrixError. token may be nil for
// unauthenticated endpoints.
func (c *Client) doRequest(ctx context.Context, method, path string, token *secret.Buffer, requestBody any, query url.Values) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("messaging: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("messaging: creating request: %w", err)
	}
	request.Header.Set("User-Agent", version.UserAgent())
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != nil {
		request.Header.Set("Authorization", "Bearer "+token.String())
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("messaging: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("messaging: reading response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	var matrixErr MatrixError
	if jsonErr := json.Unmarshal(responseBody, &matrixErr); jsonErr != nil || matrixErr.Code == "" {
		return nil, fmt.Errorf("messaging: unexpected %d response from %s %s: %s",
			response.StatusCode, method, path, bytes.TrimSpace(responseBody))
	}
	matrixErr.StatusCode = response.StatusCode
	return nil, &matrixErr
}
