package v8

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ericfisherdev/cltsim/internal/domain/model"
	"github.com/ericfisherdev/cltsim/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TokenIssuer = (*Authenticator)(nil)

// Credentials are the fixed password-grant parameters for the platform.
type Credentials struct {
	TokenURL string
	ClientID string
	Audience string
	Username string
	Password string
}

// Authenticator implements driven.TokenIssuer with an OAuth2 password grant.
type Authenticator struct {
	http  *http.Client
	creds Credentials
}

// NewAuthenticator creates an Authenticator using httpClient for the grant call.
func NewAuthenticator(httpClient *http.Client, creds Credentials) *Authenticator {
	return &Authenticator{http: httpClient, creds: creds}
}

// tokenResponse is the subset of the OAuth2 token response that is used.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// IssueToken requests a new access token. Non-2xx answers are returned as
// *model.StatusError; the caller classifies them.
func (a *Authenticator) IssueToken(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type": {"password"},
		"username":   {a.creds.Username},
		"password":   {a.creds.Password},
		"audience":   {a.creds.Audience},
		"scope":      {"offline_access"},
		"client_id":  {a.creds.ClientID},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.creds.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &model.StatusError{StatusCode: resp.StatusCode, Body: readBody(resp)}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token response has no access_token")
	}
	return tr.AccessToken, nil
}
