package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResendSenderPostsEmail(t *testing.T) {
	var captured resendPayload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/emails", r.URL.Path)
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	sender := NewResendSender("re_test", srv.URL, "noreply@bidproof.app", time.Second)
	err := sender.Send(context.Background(), "client@example.com", "Your proposal is ready", "<p>hi</p>")
	require.NoError(t, err)
	require.Equal(t, "Bearer re_test", auth)
	require.Equal(t, []string{"client@example.com"}, captured.To)
	require.Equal(t, "noreply@bidproof.app", captured.From)
	require.Equal(t, "Your proposal is ready", captured.Subject)
}

func TestResendSenderRejectsAPIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	t.Cleanup(srv.Close)

	sender := NewResendSender("re_test", srv.URL, "noreply@bidproof.app", time.Second)
	err := sender.Send(context.Background(), "client@example.com", "subject", "body")
	require.Error(t, err)
}

func TestResendSenderRequiresRecipient(t *testing.T) {
	sender := NewResendSender("re_test", "", "noreply@bidproof.app", time.Second)
	err := sender.Send(context.Background(), "  ", "subject", "body")
	require.Error(t, err)
}
