// SPDX-FileCopyrightText: 2025 The go-felica contributors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suicakit/go-felica/frame"
)

func TestNewClientValidation(t *testing.T) {
	for name, url := range map[string]string{
		"ftp scheme":   "ftp://example.com",
		"no scheme":    "example.com",
		"missing host": "https://",
	} {
		_, err := NewClient(url)
		assert.Error(t, err, name)
	}

	c, err := NewClient("https://relay.example.com/prefix/")
	require.NoError(t, err)
	assert.Equal(t, "https://relay.example.com/prefix", c.base)
}

func TestBeginAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mutual-authentication", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "0102030405060708", body["idm"])
		assert.Equal(t, float64(3), body["system_code"])
		assert.Len(t, body["services"], 2)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"session_id": "sess-1",
			"step":       "auth1",
			"command": map[string]any{
				"frame":   "0310aa",
				"timeout": 0.5,
			},
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	step, err := c.BeginAuth(context.Background(), AuthRequest{
		IDm:        []byte{1, 2, 3, 4, 5, 6, 7, 8},
		PMm:        []byte{8, 7, 6, 5, 4, 3, 2, 1},
		SystemCode: 0x0003,
		Services:   []uint16{0x0048, 0x0088},
	})
	require.NoError(t, err)

	assert.Equal(t, "sess-1", step.SessionID)
	assert.Equal(t, PhaseAuth1, step.Phase)
	require.NotNil(t, step.Command)
	assert.Equal(t, []byte{0x03, 0x10, 0xAA}, step.Command.Frame)
	assert.Equal(t, 500*time.Millisecond, step.Command.Timeout)
}

func TestContinueAuthCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sess-1", body["session_id"])
		assert.Equal(t, "aabb", body["card_response"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"session_id": "sess-2",
			"step":       "complete",
			"result": map[string]any{
				"issue_id":        "0011223344556677",
				"issue_parameter": "00ff00ff00ff00ff",
				"session_key":     "cafebabe",
			},
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	step, err := c.ContinueAuth(context.Background(), "sess-1", []byte{0xAA, 0xBB})
	require.NoError(t, err)

	// The rolled session id must be surfaced for the caller to adopt.
	assert.Equal(t, "sess-2", step.SessionID)
	assert.Equal(t, PhaseComplete, step.Phase)
	require.NotNil(t, step.Result)
	assert.Equal(t, []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77}, step.Result.IssueID)
	assert.Equal(t, "00FF00FF00FF00FF", step.Result.IssueParameter)
	assert.Equal(t, []byte{0xCA, 0xFE, 0xBA, 0xBE}, step.Result.SessionKey)
}

func TestResultAltFieldNames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"step": "complete",
			"result": map[string]any{
				"idi": "0011223344556677",
				"pmi": "00ff00ff00ff00ff",
			},
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	step, err := c.ContinueAuth(context.Background(), "sess-1", nil)
	require.NoError(t, err)
	require.NotNil(t, step.Result)
	assert.Len(t, step.Result.IssueID, 8)
	assert.Equal(t, "00FF00FF00FF00FF", step.Result.IssueParameter)
}

func TestCardStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 0x01A6, "message": "card refused"},
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.ContinueAuth(context.Background(), "sess-1", []byte{0x00})

	var statusErr *frame.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, uint16(0x01A6), statusErr.Code())
}

func TestServerErrorWithoutCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "unknown session"},
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.ContinueAuth(context.Background(), "gone", nil)

	var relayErr *Error
	require.ErrorAs(t, err, &relayErr)
	assert.Equal(t, http.StatusBadRequest, relayErr.StatusCode)
	assert.Contains(t, relayErr.Error(), "unknown session")
}

func TestNonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.ContinueAuth(context.Background(), "sess-1", nil)

	var relayErr *Error
	require.ErrorAs(t, err, &relayErr)
	assert.Equal(t, http.StatusBadGateway, relayErr.StatusCode)
}

func TestInvalidFrameEncoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"session_id": "sess-1",
			"step":       "auth1",
			"command":    map[string]any{"frame": "not hex"},
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.BeginAuth(context.Background(), AuthRequest{SystemCode: 3})

	var relayErr *Error
	require.ErrorAs(t, err, &relayErr)
}

func TestExchangeRoundTrip(t *testing.T) {
	var phase int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/encryption-exchange", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		if phase == 0 {
			phase++
			assert.Equal(t, float64(0x14), body["cmd_code"])
			assert.Equal(t, "018400", body["payload"])
			_ = json.NewEncoder(w).Encode(map[string]any{
				"session_id": "sess-1",
				"command":    map[string]any{"frame": "0414aabb"},
			})
			return
		}

		assert.Equal(t, "ccdd", body["card_response"])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"session_id": "sess-2",
			"response":   "000001" + "00112233445566778899aabbccddeeff",
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	step, err := c.BeginExchange(context.Background(), "sess-1", 0x14, []byte{0x01, 0x84, 0x00}, time.Second)
	require.NoError(t, err)
	require.NotNil(t, step.Command)
	assert.Equal(t, []byte{0x04, 0x14, 0xAA, 0xBB}, step.Command.Frame)

	token, plain, err := c.FinishExchange(context.Background(), step.SessionID, []byte{0xCC, 0xDD})
	require.NoError(t, err)
	assert.Equal(t, "sess-2", token)
	assert.Len(t, plain, 3+16)
	assert.Equal(t, byte(0x00), plain[0])
}

func TestFinishExchangeMissingPlaintext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"session_id": "sess-1"})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, _, err = c.FinishExchange(context.Background(), "sess-1", nil)

	var relayErr *Error
	require.ErrorAs(t, err, &relayErr)
}

func TestIsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(map[string]any{"step": "auth1"})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, WithTimeout(20*time.Millisecond))
	require.NoError(t, err)

	_, err = c.ContinueAuth(context.Background(), "sess-1", nil)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))

	assert.False(t, IsTimeout(&Error{Message: "nope"}))
}
