package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen2.5vl:7b", req["model"])
		msgs := req["messages"].([]any)
		msg := msgs[0].(map[string]any)
		assert.Equal(t, "locate the femur", msg["content"])
		assert.Len(t, msg["images"], 1)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"qwen2.5vl:7b","message":{"role":"assistant","content":"{\"bbox\":[0.5,0.5,0.2,0.2]}"},"done":true}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL + "/api/chat")
	require.NoError(t, err)

	img := base64.StdEncoding.EncodeToString([]byte("fake image bytes"))
	got, err := c.SimpleQuery(context.Background(), "qwen2.5vl:7b", "locate the femur", img)
	require.NoError(t, err)
	assert.JSONEq(t, `{"bbox":[0.5,0.5,0.2,0.2]}`, got)
}

func TestSimpleQueryBadImage(t *testing.T) {
	c, err := NewClient("http://localhost:1")
	require.NoError(t, err)

	_, err = c.SimpleQuery(context.Background(), "m", "p", "%%%not base64")
	assert.Error(t, err)
}

func TestNewClientRejectsGarbage(t *testing.T) {
	_, err := NewClient("not a url")
	assert.Error(t, err)
}

func TestModelOptions(t *testing.T) {
	assert.Equal(t, 0.0, modelOptions("llava")["temperature"])
	assert.Equal(t, 4096, modelOptions("openbmb/minicpm-v4.5")["num_ctx"])
}
