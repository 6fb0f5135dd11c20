package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/batch-admin-api/pkg/config"
)

func TestRecipientsSkipsInvalid(t *testing.T) {
	got := Recipients("jane@example.com", "", "not an address", "Ravi <ravi@example.com>")
	require.Len(t, got, 2)
	assert.Equal(t, "ravi@example.com", got[1].Address)
	assert.Equal(t, "Ravi", got[1].Name)
}

func TestLogSender(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sender := NewLogSender(zap.New(core), "[Batch] ")

	assert.ErrorIs(t, sender.Send(context.Background(), Message{Subject: "x"}), ErrNoRecipients)
	require.NoError(t, sender.Send(context.Background(), Message{To: Recipients("jane@example.com"), Subject: "Points updated", Text: "+10"}))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "[Batch] Points updated", entries[0].ContextMap()["subject"])
}

func TestSendgridSenderPostsV3Payload(t *testing.T) {
	var payload map[string]interface{}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := NewSendgridSender(SendgridConfig{APIKey: "key", FromName: "Batch Admin", FromAddress: "noreply@example.com", SubjectPrefix: "[BCR69] ", Host: srv.URL})
	err := sender.Send(context.Background(), Message{To: Recipients("jane@example.com"), Subject: "Weekly winner", Text: "Congrats"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer key", auth)
	personalizations := payload["personalizations"].([]interface{})
	require.Len(t, personalizations, 1)
	assert.Equal(t, "[BCR69] Weekly winner", personalizations[0].(map[string]interface{})["subject"])
}

func TestSendgridSenderReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer srv.Close()

	sender := NewSendgridSender(SendgridConfig{APIKey: "bad", FromAddress: "noreply@example.com", Host: srv.URL})
	err := sender.Send(context.Background(), Message{To: Recipients("jane@example.com"), Subject: "x", Text: "y"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestFromConfigSelectsBackend(t *testing.T) {
	assert.IsType(t, &LogSender{}, FromConfig(config.NotificationConfig{Provider: config.EmailProviderLog}, nil))
	assert.IsType(t, &LogSender{}, FromConfig(config.NotificationConfig{Provider: config.EmailProviderSendgrid}, zap.NewNop()))
	assert.IsType(t, &SendgridSender{}, FromConfig(config.NotificationConfig{Provider: config.EmailProviderSendgrid, SendgridAPIKey: "k"}, nil))
}
