package llamacpp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, status int, body string, seen *ChatCompletionRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestQueryStringContent(t *testing.T) {
	var seen ChatCompletionRequest
	srv := newServer(t, http.StatusOK, `{"choices":[{"index":0,"message":{"role":"assistant","content":"{\"detections\":[]}"}}]}`, &seen)

	c, err := NewClient(srv.URL + "/")
	require.NoError(t, err)

	reply, err := c.Query(context.Background(), "qwen2-vl", "find mines", "aGVsbG8=")
	require.NoError(t, err)
	require.Equal(t, `{"detections":[]}`, reply)

	require.Equal(t, "qwen2-vl", seen.Model)
	require.NotNil(t, seen.ResponseFormat)
	require.Equal(t, "json_object", seen.ResponseFormat.Type)
	require.Zero(t, seen.Temperature)
	parts := seen.Messages[0].Content
	require.Len(t, parts, 2)
	require.Equal(t, "find mines", parts[0].Text)
	require.Equal(t, "data:image/jpeg;base64,aGVsbG8=", parts[1].ImageURL.URL)
}

func TestQueryArrayContent(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":[{"type":"text","text":"{}"}]}}]}`, nil)
	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	reply, err := c.Query(context.Background(), "m", "p", "")
	require.NoError(t, err)
	require.Equal(t, "{}", reply)
}

func TestReplyText(t *testing.T) {
	for _, tc := range []struct {
		raw  string
		want string
		err  error
	}{
		{`"{\"a\":1}"`, `{"a":1}`, nil},
		{`[{"type":"text","text":"{\"a\":"},{"type":"image_url"},{"type":"text","text":"1}"}]`, `{"a":1}`, nil},
		{`""`, "", ErrEmptyReply},
		{`null`, "", ErrEmptyReply},
		{`[]`, "", ErrEmptyReply},
	} {
		got, err := replyText(json.RawMessage(tc.raw))
		if tc.err != nil {
			require.ErrorIs(t, err, tc.err, tc.raw)
			continue
		}
		require.NoError(t, err, tc.raw)
		require.Equal(t, tc.want, got)
	}

	_, err := replyText(json.RawMessage(`42`))
	require.Error(t, err)
}

func TestQueryErrors(t *testing.T) {
	_, err := NewClient("localhost:8080")
	require.Error(t, err)

	for _, tc := range []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `oops`},
		{"no choices", http.StatusOK, `{"choices":[]}`},
		{"empty content", http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":""}}]}`},
		{"bad json", http.StatusOK, `{"choices":`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := newServer(t, tc.status, tc.body, nil)
			c, err := NewClient(srv.URL)
			require.NoError(t, err)
			_, err = c.Query(context.Background(), "m", "p", "aGVsbG8=")
			require.Error(t, err)
		})
	}
}
