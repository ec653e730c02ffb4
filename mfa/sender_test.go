package mfa_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-gateway/internal/kv"
	"github.com/jrsteele09/go-auth-gateway/mfa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSenderDeliversCode(t *testing.T) {
	received := make(chan map[string]any, 1)
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer relay-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		received <- body
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(relay.Close)

	sender, err := mfa.NewHTTPSender(relay.URL, "relay-token", nil)
	require.NoError(t, err)
	service, err := mfa.NewService(mfa.Config{}, kv.NewMemory[mfa.Challenge](time.Now), sender)
	require.NoError(t, err)

	issued, err := service.IssueOTP(context.Background(), mfa.OTPRequest{
		Subject:     "u1",
		Factor:      mfa.FactorEmailOTP,
		Purpose:     "change_email",
		Channel:     "EMAIL",
		Destination: "jane@example.com",
	})
	require.NoError(t, err)
	require.NotEmpty(t, issued.ChallengeID)

	body := <-received
	require.Equal(t, "EMAIL", body["channel"])
	require.Equal(t, "jane@example.com", body["destination"])
	require.Equal(t, "change_email", body["purpose"])
	require.Len(t, body["code"], 6)
}

func TestHTTPSenderRejectedDelivery(t *testing.T) {
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(relay.Close)

	sender, err := mfa.NewHTTPSender(relay.URL, "", nil)
	require.NoError(t, err)
	err = sender.Send(context.Background(), mfa.Message{Channel: "SMS", Destination: "+441234567890", Code: "123456"})
	require.ErrorContains(t, err, "502")

	_, err = mfa.NewHTTPSender("", "", nil)
	require.Error(t, err)
}
