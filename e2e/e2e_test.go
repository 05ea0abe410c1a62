//go:build e2e

// Package e2e drives a running origination service over HTTP. Start the
// service with the rule-based resolver and demo customers seeded.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseURL string

func TestMain(m *testing.M) {
	baseURL = os.Getenv("ORIGINATION_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	for i := 0; i < 30; i++ {
		resp, err := http.Get(baseURL + "/readyz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		time.Sleep(2 * time.Second)
	}

	os.Exit(m.Run())
}

type chatReply struct {
	SessionID   string `json:"session_id"`
	Reply       string `json:"reply"`
	NextAction  string `json:"next_action"`
	Step        string `json:"step"`
	SanctionID  string `json:"sanction_id"`
	DownloadURL string `json:"download_url"`
	Decision    *struct {
		Outcome string `json:"outcome"`
	} `json:"decision"`
}

func chat(t *testing.T, sessionID, message string) chatReply {
	t.Helper()
	resp := postJSON(t, "/api/chat", map[string]string{"sessionId": sessionID, "message": message})
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out chatReply
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestHealthCheck(t *testing.T) {
	resp, err := http.Get(baseURL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestInstantApprovalFlow(t *testing.T) {
	sessionID := "e2e-" + uuid.NewString()

	chat(t, sessionID, "Hi, I need a personal loan of 40000")
	reply := chat(t, sessionID, "My mobile is 9876543210")
	assert.Equal(t, "kyc_verified", reply.Step)

	reply = chat(t, sessionID, "Please check my eligibility")
	require.NotNil(t, reply.Decision)
	assert.Equal(t, "approved", reply.Decision.Outcome)

	reply = chat(t, sessionID, "Yes, generate the sanction letter")
	require.NotEmpty(t, reply.SanctionID)
	assert.Equal(t, "completed", reply.Step)

	resp, err := http.Get(baseURL + reply.DownloadURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))

	// Terminal sessions answer with the stored outcome.
	reply = chat(t, sessionID, "What is my status?")
	assert.Equal(t, "completed", reply.Step)
}

func TestRejectionFlow(t *testing.T) {
	sessionID := "e2e-" + uuid.NewString()

	chat(t, sessionID, "I want 20k")
	chat(t, sessionID, "9876543212")
	reply := chat(t, sessionID, "check please")
	require.NotNil(t, reply.Decision)
	assert.Equal(t, "rejected", reply.Decision.Outcome)
	assert.Equal(t, "rejected", reply.Step)
}

func TestOffers(t *testing.T) {
	resp, err := http.Get(baseURL + "/api/offers/CUST001")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Offers []map[string]any `json:"offers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Offers, 3)
}

func postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(fmt.Sprintf("%s%s", baseURL, path), "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}
