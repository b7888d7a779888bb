package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medveriground/bbox-annotator/internal/config"
	"github.com/medveriground/bbox-annotator/pkg/store"
)

func TestNewLocal(t *testing.T) {
	cfg := config.Default()
	cfg.Session.OutputDir = t.TempDir()

	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.Remote)
	assert.Equal(t, store.ModeLocal, c.Persister.Mode())
}

func TestNewRemote(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if r.URL.Path != "/repos/org/data" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"full_name": "org/data"}`))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Remote.APIURL = srv.URL
	cfg.Remote.Repo = "org/data"
	cfg.Remote.Token = "tok"

	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()

	require.NotNil(t, c.Remote)
	assert.Equal(t, store.ModeRemote, c.Persister.Mode())
	assert.Equal(t, "token tok", auth)
}

func TestNewRemoteUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "Bad credentials"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Remote.APIURL = srv.URL
	cfg.Remote.Repo = "org/data"
	cfg.Remote.Token = "bad"

	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "remote store")
}

func TestNewInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Port = -1
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestVisionClient(t *testing.T) {
	c, err := VisionClient(config.ProposerConfig{Backend: "ollama", URL: "http://localhost:11434"})
	require.NoError(t, err)
	assert.NotNil(t, c)

	c, err = VisionClient(config.ProposerConfig{Backend: "llamacpp"})
	require.NoError(t, err)
	assert.NotNil(t, c)

	_, err = VisionClient(config.ProposerConfig{Backend: "openai"})
	assert.Error(t, err)
}
