package incontrol

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"warrantyreport/internal/common/logger"
	"warrantyreport/internal/common/security"
)

// TokenPath is the OAuth2 token endpoint relative to the base URL.
const TokenPath = "/api/oauth2/token"

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// AcquireToken exchanges client credentials for a bearer token
// (grant_type=client_credentials). Every failure is an *AuthError.
func (c *Client) AcquireToken(ctx context.Context, clientID, clientSecret string) (string, error) {
	form := url.Values{
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"grant_type":    {"client_credentials"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+TokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &AuthError{Kind: AuthRequestFailed, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	logger.LogDebug(c.logger, "Requesting access token",
		"endpoint", TokenPath,
		"client_id", security.MaskIdentifier(clientID))

	status, body, err := c.do(req)
	if err != nil {
		return "", &AuthError{Kind: AuthRequestFailed, StatusCode: status, Err: err}
	}
	if !isSuccess(status) {
		return "", &AuthError{Kind: AuthRequestFailed, StatusCode: status, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", &AuthError{Kind: AuthMalformedResponse, StatusCode: status, Body: string(body), Err: err}
	}
	if tr.AccessToken == "" {
		return "", &AuthError{Kind: AuthMissingToken, StatusCode: status}
	}

	logger.LogDebug(c.logger, "Access token acquired",
		"token", security.MaskAccessToken(tr.AccessToken),
		"token_type", tr.TokenType,
		"expires_in", tr.ExpiresIn)
	if info, ok := DescribeToken(tr.AccessToken); ok {
		logger.LogDebug(c.logger, "Access token claims",
			"issuer", info.Issuer,
			"expires", info.ExpiresAt.Format(time.RFC3339))
	}
	return tr.AccessToken, nil
}

// TokenInfo holds the registered claims of a JWT bearer token.
type TokenInfo struct {
	Issuer    string
	Subject   string
	ExpiresAt time.Time
}

// DescribeToken reads the claims of token without verifying its signature.
// It reports false when the token is not a JWT, which is normal for opaque
// InControl2 tokens.
func DescribeToken(token string) (TokenInfo, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, false
	}
	info := TokenInfo{Issuer: claims.Issuer, Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, true
}
