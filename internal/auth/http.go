package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPProvider fetches tokens from a trusted-auth endpoint, typically the
// integrating application's own backend.
type HTTPProvider struct {
	Endpoint string
	Username string
	// Header is set on every request, e.g. an API key for the auth backend.
	Header http.Header
	Client *http.Client
}

type tokenRequest struct {
	Username string `json:"username"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Token implements bridge.TokenProvider. The endpoint may answer with a JSON
// object {"token": "..."} or with the bare token as text/plain.
func (p *HTTPProvider) Token(ctx context.Context) (string, error) {
	body, err := json.Marshal(tokenRequest{Username: p.Username})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("auth: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain")
	for k, vs := range p.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth: token request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("auth: read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("auth: token endpoint returned %s", resp.Status)
	}

	var parsed tokenResponse
	if json.Unmarshal(data, &parsed) == nil && parsed.Token != "" {
		return parsed.Token, nil
	}
	token := string(bytes.TrimSpace(data))
	if token == "" || token[0] == '{' {
		return "", fmt.Errorf("auth: token endpoint returned no token")
	}
	return token, nil
}
