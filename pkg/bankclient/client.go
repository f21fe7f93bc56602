/**
 * @description
 * This package provides a client for the upstream Open-Banking provider. It
 * encapsulates the logic for making authenticated HTTP requests to the
 * provider's auth endpoint (code exchange, token refresh) and data endpoint
 * (accounts, transactions, identity info), handling request construction and
 * response parsing.
 *
 * @dependencies
 * - context, encoding/json, net/http, net/url, time: Standard Go libraries.
 * - github.com/shopspring/decimal: Signed decimal transaction amounts.
 */
package bankclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Scopes requested during the consent flow. offline_access yields the
// refresh token the service depends on.
var scopes = []string{"info", "accounts", "transactions", "offline_access"}

// Client is a client for the Open-Banking provider's auth and data APIs.
type Client struct {
	AuthBaseURL  string
	DataBaseURL  string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	HTTPClient   *http.Client
}

// NewClient creates a new provider API client.
func NewClient(authBaseURL, dataBaseURL, clientID, clientSecret, redirectURI string) *Client {
	return &Client{
		AuthBaseURL:  strings.TrimRight(authBaseURL, "/"),
		DataBaseURL:  strings.TrimRight(dataBaseURL, "/"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// TokenPair is the provider's access/refresh credential pair.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Account is one upstream bank account.
type Account struct {
	AccountID string `json:"account_id"`
}

// Transaction is one upstream transaction as reported by the data API.
type Transaction struct {
	TransactionID string          `json:"transaction_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Description   string          `json:"description"`
	Type          string          `json:"transaction_type"`
	Category      string          `json:"transaction_category"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
}

// Info is the identity information of an authorized customer.
type Info struct {
	FullName string   `json:"full_name"`
	Emails   []string `json:"emails"`
}

// ErrorResponse represents an error payload from the provider API.
type ErrorResponse struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *ErrorResponse) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("provider api error: %s - %s", e.Code, e.Description)
	}
	return fmt.Sprintf("provider api error: %s", e.Code)
}

// AuthURL builds the consent-flow URL the customer is redirected to.
func (c *Client) AuthURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.ClientID)
	q.Set("redirect_uri", c.RedirectURI)
	q.Set("scope", strings.Join(scopes, " "))
	q.Set("state", state)
	return c.AuthBaseURL + "/?" + q.Encode()
}

// ExchangeCode trades an authorization code for a token pair.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenPair, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.ClientID)
	form.Set("client_secret", c.ClientSecret)
	form.Set("redirect_uri", c.RedirectURI)
	form.Set("code", code)
	return c.tokenRequest(ctx, "exchange_code", form)
}

// RefreshToken exchanges a refresh token for a new token pair. The provider
// rotates the refresh token on every exchange, so the returned pair must
// replace the stored one.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.ClientID)
	form.Set("client_secret", c.ClientSecret)
	form.Set("refresh_token", refreshToken)
	return c.tokenRequest(ctx, "refresh_token", form)
}

func (c *Client) tokenRequest(ctx context.Context, op string, form url.Values) (*TokenPair, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.AuthBaseURL+"/connect/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute token request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=bank_client op=%s status=%d msg=\"non-2xx response (unparsable error body)\"", op, resp.StatusCode)
			return nil, fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=bank_client op=%s status=%d code=%q detail=%q", op, resp.StatusCode, errResp.Code, errResp.Description)
		return nil, &errResp
	}

	var pair TokenPair
	if err := json.Unmarshal(bodyBytes, &pair); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	return &pair, nil
}

// ListAccounts lists the customer's accounts for a valid access token.
func (c *Client) ListAccounts(ctx context.Context, accessToken string) ([]Account, error) {
	var out struct {
		Results []Account `json:"results"`
	}
	if err := c.dataRequest(ctx, "list_accounts", "/data/v1/accounts", accessToken, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// ListTransactions fetches one account's transactions.
func (c *Client) ListTransactions(ctx context.Context, accessToken, accountID string) ([]Transaction, error) {
	var out struct {
		Results []Transaction `json:"results"`
	}
	path := "/data/v1/accounts/" + url.PathEscape(accountID) + "/transactions"
	if err := c.dataRequest(ctx, "list_transactions", path, accessToken, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// GetInfo fetches the authorized customer's identity information.
func (c *Client) GetInfo(ctx context.Context, accessToken string) (*Info, error) {
	var out struct {
		Results []Info `json:"results"`
	}
	if err := c.dataRequest(ctx, "get_info", "/data/v1/info", accessToken, &out); err != nil {
		return nil, err
	}
	if len(out.Results) == 0 {
		return nil, fmt.Errorf("provider returned empty identity info")
	}
	return &out.Results[0], nil
}

// dataRequest executes an authenticated GET against the data API and decodes
// the response into out.
func (c *Client) dataRequest(ctx context.Context, op, path, accessToken string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.DataBaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s request: %w", op, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=bank_client op=%s status=%d msg=\"non-2xx response (unparsable error body)\"", op, resp.StatusCode)
			return fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=bank_client op=%s status=%d code=%q detail=%q", op, resp.StatusCode, errResp.Code, errResp.Description)
		return &errResp
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}
