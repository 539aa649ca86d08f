package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// PowerBIConfig holds configuration for PowerBIClient
type PowerBIConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scope        string
	APIBaseURL   string
	WorkspaceID  string
}

// PowerBIClient issues embed tokens through the Power BI REST API using a
// service principal
type PowerBIClient struct {
	baseURL     string
	workspaceID string
	creds       *clientcredentials.Config
	httpClient  *http.Client

	mu    sync.Mutex
	token *oauth2.Token
}

type reportResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	EmbedURL string `json:"embedUrl"`
}

type generateTokenResponse struct {
	Token      string    `json:"token"`
	TokenID    string    `json:"tokenId"`
	Expiration time.Time `json:"expiration"`
}

type apiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewPowerBIClient creates a new PowerBIClient. The service token is cached
// until it expires and renewed with the context of the issuance that finds
// it stale.
func NewPowerBIClient(cfg PowerBIConfig, httpClient *http.Client) *PowerBIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &PowerBIClient{
		baseURL:     strings.TrimSuffix(cfg.APIBaseURL, "/"),
		workspaceID: cfg.WorkspaceID,
		creds: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       []string{cfg.Scope},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient: httpClient,
	}
}

// serviceToken returns the cached service token, acquiring a new one with
// ctx when it is missing or expired
func (c *PowerBIClient) serviceToken(ctx context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.Valid() {
		return c.token, nil
	}

	token, err := c.creds.Token(context.WithValue(ctx, oauth2.HTTPClient, c.httpClient))
	if err != nil {
		return nil, err
	}
	c.token = token
	return token, nil
}

// Issue runs the issuance sequence: service token, workspace check,
// report lookup, then a view-only GenerateToken call.
func (c *PowerBIClient) Issue(ctx context.Context, resourceID string) (*Credential, error) {
	token, err := c.serviceToken(ctx)
	if err != nil {
		return nil, &ProviderError{Step: "acquire service token", Err: err}
	}
	bearer := token.AccessToken

	groupPath := "/groups/" + url.PathEscape(c.workspaceID)
	if err := c.call(ctx, http.MethodGet, groupPath, bearer, nil, nil); err != nil {
		return nil, withStep(err, "verify workspace")
	}

	reportPath := groupPath + "/reports/" + url.PathEscape(resourceID)
	var report reportResponse
	if err := c.call(ctx, http.MethodGet, reportPath, bearer, nil, &report); err != nil {
		return nil, withStep(err, "get report")
	}

	var generated generateTokenResponse
	body := map[string]string{"accessLevel": "View"}
	if err := c.call(ctx, http.MethodPost, reportPath+"/GenerateToken", bearer, body, &generated); err != nil {
		return nil, withStep(err, "generate embed token")
	}

	if generated.Token == "" || generated.Expiration.IsZero() {
		return nil, &ProviderError{Step: "generate embed token", Message: "response missing token or expiration"}
	}

	return &Credential{
		ResourceID: resourceID,
		Token:      generated.Token,
		TokenID:    generated.TokenID,
		EmbedURL:   report.EmbedURL,
		ExpiresAt:  generated.Expiration.UTC(),
	}, nil
}

func (c *PowerBIClient) call(ctx context.Context, method, path, bearer string, in, out interface{}) error {
	var reqBody io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return &ProviderError{Err: fmt.Errorf("marshal request: %w", err)}
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return &ProviderError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ProviderError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProviderError{StatusCode: resp.StatusCode, Message: apiErrorMessage(resp)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ProviderError{Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func apiErrorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var apiErr apiErrorResponse
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Error.Code != "" {
		if apiErr.Error.Message != "" {
			return apiErr.Error.Code + ": " + apiErr.Error.Message
		}
		return apiErr.Error.Code
	}
	if len(raw) > 0 {
		return strings.TrimSpace(string(raw))
	}
	return http.StatusText(resp.StatusCode)
}

func withStep(err error, step string) error {
	if perr, ok := err.(*ProviderError); ok {
		perr.Step = step
		return perr
	}
	return &ProviderError{Step: step, Err: err}
}
