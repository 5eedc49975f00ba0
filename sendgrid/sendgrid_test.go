package sendgrid

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendReturnsProviderMessageID(t *testing.T) {
	var captured map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("X-Message-Id", "sg-message-42")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewClient("test-key", "sales@example.com", "Sales Team")
	client.BaseURL = server.URL

	messageID, err := client.Send(Email{
		To:      "claire@recyclage-nord.fr",
		ToName:  "Claire Martin",
		Subject: "Hello",
		HTML:    "<p>Hi</p>",
		Text:    "Hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "sg-message-42", messageID)

	// text/plain must come before text/html
	contents := captured["content"].([]interface{})
	require.Len(t, contents, 2)
	first := contents[0].(map[string]interface{})
	second := contents[1].(map[string]interface{})
	assert.Equal(t, "text/plain", first["type"])
	assert.Equal(t, "text/html", second["type"])

	tracking := captured["tracking_settings"].(map[string]interface{})
	assert.Contains(t, tracking, "click_tracking")
	assert.Contains(t, tracking, "open_tracking")
}

func TestSendHTMLOnlySkipsPlainText(t *testing.T) {
	var captured map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewClient("test-key", "sales@example.com", "Sales Team")
	client.BaseURL = server.URL

	_, err := client.Send(Email{To: "a@b.com", Subject: "s", HTML: "<p>x</p>"})
	require.NoError(t, err)

	contents := captured["content"].([]interface{})
	require.Len(t, contents, 1)
	assert.Equal(t, "text/html", contents[0].(map[string]interface{})["type"])
}

func TestSendSurfacesProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer server.Close()

	client := NewClient("wrong-key", "sales@example.com", "Sales Team")
	client.BaseURL = server.URL

	_, err := client.Send(Email{To: "a@b.com", Subject: "s", HTML: "<p>x</p>"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "bad key")
}

func TestHTMLToText(t *testing.T) {
	html := `<p>Hello Claire,</p><p>Quick question about <b>ISCC</b>.</p><br/>Best`
	got := HTMLToText(html)
	assert.Equal(t, "Hello Claire,\n\nQuick question about ISCC.\n\nBest", got)
}

func TestWrapHTMLIncludesFooterWhenRequested(t *testing.T) {
	wrapped := WrapHTML("<p>Body</p>", true, "Jean - E2V")
	assert.Contains(t, wrapped, "<p>Body</p>")
	assert.Contains(t, wrapped, "Jean - E2V")
	assert.Contains(t, wrapped, "<!DOCTYPE html>")

	noFooter := WrapHTML("<p>Body</p>", false, "Jean - E2V")
	assert.NotContains(t, noFooter, "Jean - E2V")
}
