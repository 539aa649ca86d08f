package embed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePowerBI struct {
	tokenCalls    int32
	generateCalls int32
	reportStatus  int
	expiration    time.Time
}

func (f *fakePowerBI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.tokenCalls, 1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "https://analysis.windows.net/powerbi/api/.default", r.PostForm.Get("scope"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "service-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})

	mux.HandleFunc("/v1.0/myorg/groups/ws-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer service-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]string{"id": "ws-1", "name": "Analytics"})
	})

	mux.HandleFunc("/v1.0/myorg/groups/ws-1/reports/R1", func(w http.ResponseWriter, r *http.Request) {
		if f.reportStatus != 0 {
			w.WriteHeader(f.reportStatus)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]string{"code": "PowerBIEntityNotFound", "message": "report missing"},
			})
			return
		}
		json.NewEncoder(w).Encode(reportResponse{
			ID:       "R1",
			Name:     "Sales",
			EmbedURL: "https://app.powerbi.com/reportEmbed?reportId=R1&groupId=ws-1",
		})
	})

	mux.HandleFunc("/v1.0/myorg/groups/ws-1/reports/R1/GenerateToken", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.generateCalls, 1)
		assert.Equal(t, http.MethodPost, r.Method)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "View", body["accessLevel"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"token":      "embed-token",
			"tokenId":    "tid-1",
			"expiration": f.expiration.Format(time.RFC3339),
		})
	})

	return mux
}

func newTestPowerBIClient(serverURL string) *PowerBIClient {
	return NewPowerBIClient(PowerBIConfig{
		ClientID:     "sp-client",
		ClientSecret: "sp-secret",
		TokenURL:     serverURL + "/token",
		Scope:        "https://analysis.windows.net/powerbi/api/.default",
		APIBaseURL:   serverURL + "/v1.0/myorg/",
		WorkspaceID:  "ws-1",
	}, nil)
}

func TestPowerBIClient_Issue(t *testing.T) {
	fake := &fakePowerBI{expiration: time.Now().Add(time.Hour).Truncate(time.Second)}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	client := newTestPowerBIClient(server.URL)

	cred, err := client.Issue(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, "R1", cred.ResourceID)
	assert.Equal(t, "embed-token", cred.Token)
	assert.Equal(t, "tid-1", cred.TokenID)
	assert.Contains(t, cred.EmbedURL, "R1")
	assert.True(t, fake.expiration.Equal(cred.ExpiresAt))

	// the service token is reused across issuances
	_, err = client.Issue(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.tokenCalls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&fake.generateCalls))
}

func TestPowerBIClient_ReportNotFound(t *testing.T) {
	fake := &fakePowerBI{reportStatus: http.StatusNotFound, expiration: time.Now().Add(time.Hour)}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	_, err := newTestPowerBIClient(server.URL).Issue(context.Background(), "R1")
	require.Error(t, err)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "get report", perr.Step)
	assert.Equal(t, http.StatusNotFound, perr.StatusCode)
	assert.Equal(t, "PowerBIEntityNotFound: report missing", perr.Message)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fake.generateCalls))
}

func TestPowerBIClient_UnknownWorkspace(t *testing.T) {
	fake := &fakePowerBI{expiration: time.Now().Add(time.Hour)}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	client := newTestPowerBIClient(server.URL)
	client.workspaceID = "ws-missing"

	_, err := client.Issue(context.Background(), "R1")

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "verify workspace", perr.Step)
	assert.Equal(t, http.StatusNotFound, perr.StatusCode)
}

func TestPowerBIClient_TokenEndpointDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestPowerBIClient(server.URL).Issue(context.Background(), "R1")

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "acquire service token", perr.Step)
	assert.NotContains(t, err.Error(), "sp-secret")
}

func TestPowerBIClient_CancelledContextFailsTokenAcquisition(t *testing.T) {
	fake := &fakePowerBI{expiration: time.Now().Add(time.Hour)}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	client := newTestPowerBIClient(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Issue(ctx, "R1")

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "acquire service token", perr.Step)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fake.tokenCalls))

	// a live context still acquires the token afterwards
	_, err = client.Issue(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.tokenCalls))
}
