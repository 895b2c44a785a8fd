package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/velmie/admsrelay"
)

func TestNotifierPostsForm(t *testing.T) {
	var (
		gotPath string
		gotForm map[string]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"chat_id":    r.PostForm.Get("chat_id"),
			"text":       r.PostForm.Get("text"),
			"parse_mode": r.PostForm.Get("parse_mode"),
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)

	n, err := New("123:abc", "-100", WithBaseURL(srv.URL+"/"))
	require.NoError(t, err)

	text := admsrelay.FormatNotice("WEBHOOK NITGEN", `{"key":1}`)
	require.NoError(t, n.Notify(context.Background(), text))
	require.Equal(t, "/bot123:abc/sendMessage", gotPath)
	require.Equal(t, "-100", gotForm["chat_id"])
	require.Equal(t, text, gotForm["text"])
	require.Equal(t, "html", gotForm["parse_mode"])
}

func TestNotifierErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	t.Cleanup(srv.Close)

	n, err := New("token", "chat", WithBaseURL(srv.URL))
	require.NoError(t, err)

	err = n.Notify(context.Background(), "hello")
	require.Error(t, err)
	require.Contains(t, err.Error(), "chat not found")
}

func TestNotifierHidesTokenOnTransportError(t *testing.T) {
	n, err := New("secret-token", "chat", WithBaseURL("http://127.0.0.1:1"))
	require.NoError(t, err)

	err = n.Notify(context.Background(), "hello")
	require.Error(t, err)
	require.False(t, strings.Contains(err.Error(), "secret-token"))
}

func TestNotifierRateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)

	n, err := New("token", "chat", WithBaseURL(srv.URL), WithRateLimit(time.Hour, 1))
	require.NoError(t, err)
	require.NoError(t, n.Notify(context.Background(), "first"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, n.Notify(ctx, "second"))
}

func TestNewValidation(t *testing.T) {
	_, err := New("", "chat")
	require.ErrorIs(t, err, ErrTokenRequired)
	_, err = New("token", "")
	require.ErrorIs(t, err, ErrChatIDRequired)
}
