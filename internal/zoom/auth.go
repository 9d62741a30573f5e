// Package zoom provides Zoom API authentication and client functionality
package zoom

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/curtbushko/zoom-recording-downloader/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// DefaultTokenURL is the Zoom OAuth endpoint for Server-to-Server apps
const DefaultTokenURL = "https://zoom.us/oauth/token"

// TokenResponse represents the response from the OAuth token endpoint
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
	Error       string `json:"error,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// AuthError represents authentication-related errors
type AuthError struct {
	Type   string
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth error %s: %s (%v)", e.Type, e.Reason, e.Err)
	}
	return fmt.Sprintf("auth error %s: %s", e.Type, e.Reason)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// accountCredentialsSource fetches tokens with the account_credentials grant
type accountCredentialsSource struct {
	ctx    context.Context
	config config.ZoomConfig
	client *http.Client
}

// NewTokenSource returns a caching token source for a Server-to-Server OAuth app.
// Tokens are reused until shortly before they expire.
func NewTokenSource(ctx context.Context, cfg config.ZoomConfig, client *http.Client) oauth2.TokenSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	src := &accountCredentialsSource{ctx: ctx, config: cfg, client: client}
	return oauth2.ReuseTokenSource(nil, src)
}

// Token implements oauth2.TokenSource
func (s *accountCredentialsSource) Token() (*oauth2.Token, error) {
	tokenURL := s.config.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	data := url.Values{}
	data.Set("grant_type", "account_credentials")
	data.Set("account_id", s.config.AccountID)

	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, &AuthError{Type: "request_creation", Reason: "failed to create OAuth request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.config.ClientID, s.config.ClientSecret)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &AuthError{Type: "request_failed", Reason: "failed to get access token", Err: err}
	}
	defer resp.Body.Close()

	var tokenResponse TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResponse); err != nil {
		return nil, &AuthError{Type: "response_parsing", Reason: "failed to parse token response", Err: err}
	}

	if tokenResponse.Error != "" {
		return nil, &AuthError{Type: tokenResponse.Error, Reason: tokenResponse.Reason}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &AuthError{
			Type:   "http_error",
			Reason: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, tokenResponse.Reason),
		}
	}
	if tokenResponse.AccessToken == "" {
		return nil, &AuthError{Type: "missing_token", Reason: "the key 'access_token' wasn't found"}
	}

	token := &oauth2.Token{
		AccessToken: tokenResponse.AccessToken,
		TokenType:   tokenResponse.TokenType,
		Expiry:      time.Now().Add(time.Duration(tokenResponse.ExpiresIn) * time.Second),
	}
	// Zoom access tokens are JWTs; prefer their own exp claim when it is readable
	if exp, err := TokenExpiry(tokenResponse.AccessToken); err == nil && !exp.IsZero() {
		token.Expiry = exp
	}

	return token.WithExtra(map[string]interface{}{"scope": tokenResponse.Scope}), nil
}

// TokenClaims decodes the claims of a JWT access token without verifying its signature.
// The signing key belongs to Zoom, so verification is not possible client side.
func TokenClaims(accessToken string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return nil, fmt.Errorf("failed to decode access token: %w", err)
	}
	return claims, nil
}

// TokenExpiry returns the exp claim of a JWT access token, or the zero time if absent
func TokenExpiry(accessToken string) (time.Time, error) {
	claims, err := TokenClaims(accessToken)
	if err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}

// TokenScopes returns the scopes granted with a token obtained from NewTokenSource
func TokenScopes(token *oauth2.Token) []string {
	scope, _ := token.Extra("scope").(string)
	return strings.Fields(scope)
}

// ValidateScopes validates that the token has all required scopes
func ValidateScopes(token *oauth2.Token, requiredScopes []string) error {
	if len(requiredScopes) == 0 {
		return nil
	}

	granted := make(map[string]bool)
	for _, scope := range TokenScopes(token) {
		granted[scope] = true
	}

	var missing []string
	for _, required := range requiredScopes {
		if !granted[required] {
			missing = append(missing, required)
		}
	}

	if len(missing) > 0 {
		return &AuthError{
			Type:   "insufficient_scope",
			Reason: fmt.Sprintf("missing required scopes: %s", strings.Join(missing, ", ")),
		}
	}
	return nil
}
