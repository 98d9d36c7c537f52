package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVoiceCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/voice/parse", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var req struct {
			Text      string `json:"text"`
			SessionID string `json:"session_id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "open main.go", req.Text)
		assert.Equal(t, "sess-1", req.SessionID)

		json.NewEncoder(w).Encode(ParsedCommand{
			CommandType: CommandOpenFile,
			Target:      "main.go",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", nil)
	cmd, err := c.ParseVoiceCommand(context.Background(), "open main.go", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, CommandOpenFile, cmd.CommandType)
	assert.Equal(t, "main.go", cmd.Target)
	// RawText falls back to the submitted transcript when the server
	// omits it.
	assert.Equal(t, "open main.go", cmd.RawText)
}

func TestUnauthorizedMapsToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "expired", nil)
	err := c.UpdateUserConfig(context.Background(), UserConfig{})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestUpdateUserConfigSendsEnvelopeAsIs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/api/user/config", r.URL.Path)

		var cfg UserConfig
		require.NoError(t, json.NewDecoder(r.Body).Decode(&cfg))
		require.NotNil(t, cfg.UIPreferences)
		require.NotNil(t, cfg.UIPreferences.Theme)
		assert.Equal(t, "light", *cfg.UIPreferences.Theme)
	}))
	defer srv.Close()

	theme := "light"
	c := NewClient(srv.URL, "tok", nil)
	err := c.UpdateUserConfig(context.Background(), UserConfig{
		UIPreferences: &UIPreferences{Theme: &theme},
	})
	require.NoError(t, err)
}

func TestGetUserConfigWithoutTokenIsNil(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", "", nil)
	cfg, err := c.GetUserConfig(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, cfg, "unauthenticated fetch must not hit the network")
}

func TestGetUserConfigUnauthorizedIsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "stale", nil)
	cfg, err := c.GetUserConfig(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestServerErrorSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", nil)
	_, err := c.CreateAgent(context.Background(), "sess-1", CreateAgentRequest{Name: "coder", Role: "coder"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
