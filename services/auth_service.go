package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// OIDCTokenExchanger exchanges authorization codes for tokens at the
// identity provider's token endpoint using the confidential client credential
type OIDCTokenExchanger struct {
	cfg        *oauth2.Config
	httpClient *http.Client
}

// NewOIDCTokenExchanger creates a new token exchanger. httpClient may be nil.
func NewOIDCTokenExchanger(cfg *oauth2.Config, httpClient *http.Client) *OIDCTokenExchanger {
	return &OIDCTokenExchanger{
		cfg:        cfg,
		httpClient: httpClient,
	}
}

// ExchangeCode exchanges an authorization code for the identity token
func (e *OIDCTokenExchanger) ExchangeCode(ctx context.Context, code string) (string, error) {
	if e.cfg == nil || e.cfg.ClientID == "" || e.cfg.Endpoint.TokenURL == "" {
		return "", fmt.Errorf("identity provider not configured")
	}

	if e.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
	}

	token, err := e.cfg.Exchange(ctx, code)
	if err != nil {
		// the provider body may echo request fields; keep only the status
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return "", fmt.Errorf("token endpoint returned status %d", retrieveErr.Response.StatusCode)
		}
		return "", fmt.Errorf("token request failed: %w", err)
	}

	idToken, ok := token.Extra("id_token").(string)
	if !ok || idToken == "" {
		return "", fmt.Errorf("no id_token in response")
	}

	return idToken, nil
}
