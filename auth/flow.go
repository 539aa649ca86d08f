package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"golang.org/x/oauth2"
)

var (
	// ErrMissingParameters is returned when the callback lacks code or state
	ErrMissingParameters = errors.New("missing code or state parameter")

	// ErrInvalidState is returned when the state was never issued, already used, or expired
	ErrInvalidState = errors.New("invalid or expired state")

	// ErrExchangeFailed is returned when the authorization code could not be exchanged
	ErrExchangeFailed = errors.New("authorization code exchange failed")
)

// TokenExchanger exchanges OAuth2 authorization codes for an identity token
type TokenExchanger interface {
	ExchangeCode(ctx context.Context, code string) (idToken string, err error)
}

// FlowConfig holds configuration for FlowController
type FlowConfig struct {
	OAuth2      *oauth2.Config
	FrontEndURL string
	LogoutURL   string
}

// FlowController drives the authorization-code login flow
type FlowController struct {
	oauth     *oauth2.Config
	states    *StateStore
	exchanger TokenExchanger
	frontEnd  string
	logout    string
}

// NewFlowController creates a new FlowController
func NewFlowController(cfg FlowConfig, states *StateStore, exchanger TokenExchanger) *FlowController {
	return &FlowController{
		oauth:     cfg.OAuth2,
		states:    states,
		exchanger: exchanger,
		frontEnd:  cfg.FrontEndURL,
		logout:    cfg.LogoutURL,
	}
}

// BeginLogin issues a fresh state and returns the provider authorize URL
func (f *FlowController) BeginLogin(ctx context.Context) (string, error) {
	state, err := f.states.Issue()
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return f.oauth.AuthCodeURL(state), nil
}

// HandleCallback validates and consumes state, exchanges code, and returns
// the front-end URL carrying the identity token.
func (f *FlowController) HandleCallback(ctx context.Context, code, state string) (string, error) {
	if code == "" || state == "" {
		return "", ErrMissingParameters
	}

	if !f.states.Consume(state) {
		return "", ErrInvalidState
	}

	idToken, err := f.exchanger.ExchangeCode(ctx, code)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}

	return withQuery(f.frontEndURL(), "id_token", idToken)
}

// LogoutURL returns the provider end-session URL when configured, else the front-end
func (f *FlowController) LogoutURL() string {
	if f.logout == "" {
		return f.frontEndURL()
	}

	u, err := withQuery(f.logout, "post_logout_redirect_uri", f.frontEndURL())
	if err != nil {
		return f.frontEndURL()
	}
	return u
}

func (f *FlowController) frontEndURL() string {
	if f.frontEnd == "" {
		return "/"
	}
	return f.frontEnd
}

func withQuery(rawURL, key, value string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse redirect url: %w", err)
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
