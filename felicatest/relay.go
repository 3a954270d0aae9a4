// SPDX-FileCopyrightText: 2025 The go-felica contributors
// SPDX-License-Identifier: Apache-2.0

package felicatest

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/suicakit/go-felica/frame"
)

// RelayServer is a scripted stand-in for the remote authentication server.
// It drives the two-pass handshake (auth1, auth2, complete) and serves
// authenticated reads from a block store, mirroring the real server's wire
// contract: JSON bodies, hex frames, a session_id correlator.
type RelayServer struct {
	// Blocks serves plaintext block content per (service index, block
	// number). Nil serves all-zero blocks.
	Blocks func(serviceIndex, block int) [16]byte

	// FailPhase, when set to "auth1" or "auth2", rejects the card response
	// of that phase with a card status error, as the real server does when
	// either side refuses the handshake.
	FailPhase string

	// FailCode is the status code used for scripted rejections.
	FailCode uint16

	// RefuseService marks service indexes whose reads come back with a
	// non-zero card status instead of data.
	RefuseService map[int]uint16

	// Delay is slept before every response, for timeout tests.
	Delay time.Duration

	// IssueID (8 bytes) and IssueParameter fill the completion result.
	IssueID        []byte
	IssueParameter string
	SessionKey     []byte

	srv *httptest.Server

	mu       sync.Mutex
	nextID   int
	sessions map[string]*relaySession
}

type relaySession struct {
	phase       string
	authed      bool
	pendingRead []blockRef
}

type blockRef struct {
	service int
	block   int
}

// NewRelayServer starts the scripted server. Close it when done.
func NewRelayServer() *RelayServer {
	s := &RelayServer{
		FailCode:       0x01A6,
		IssueID:        []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77},
		IssueParameter: "00FF00FF00FF00FF",
		sessions:       map[string]*relaySession{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/mutual-authentication", postOnly(s.handleMutualAuth))
	mux.HandleFunc("/encryption-exchange", postOnly(s.handleExchange))
	s.srv = httptest.NewServer(mux)
	return s
}

// postOnly restricts a handler to POST, matching the behavior of the
// "POST /path" ServeMux patterns of Go 1.22, which the oldest supported
// toolchain predates.
func postOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

// URL is the server's base URL.
func (s *RelayServer) URL() string { return s.srv.URL }

// Close shuts the server down.
func (s *RelayServer) Close() { s.srv.Close() }

type wireBody struct {
	SessionID    string `json:"session_id"`
	IDm          string `json:"idm"`
	PMm          string `json:"pmm"`
	SystemCode   int    `json:"system_code"`
	Areas        []int  `json:"areas"`
	Services     []int  `json:"services"`
	CmdCode      *int   `json:"cmd_code"`
	Payload      string `json:"payload"`
	CardResponse string `json:"card_response"`
}

func (s *RelayServer) handleMutualAuth(w http.ResponseWriter, r *http.Request) {
	time.Sleep(s.Delay)

	var body wireBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if body.IDm != "" {
		if body.PMm == "" || body.SystemCode == 0 || len(body.Services) == 0 {
			writeError(w, http.StatusBadRequest, "missing authentication parameters")
			return
		}
		s.nextID++
		id := fmt.Sprintf("sess-%d", s.nextID)
		s.sessions[id] = &relaySession{phase: "auth1"}
		writeJSON(w, map[string]any{
			"session_id": id,
			"step":       "auth1",
			"command":    commandEnvelope(0x10, []byte{1}),
		})
		return
	}

	sess, ok := s.sessions[body.SessionID]
	if !ok || body.CardResponse == "" {
		writeError(w, http.StatusBadRequest, "unknown session")
		return
	}
	if _, err := hex.DecodeString(body.CardResponse); err != nil {
		writeError(w, http.StatusBadRequest, "invalid card response encoding")
		return
	}

	if s.FailPhase == sess.phase {
		writeCardError(w, s.FailCode)
		return
	}

	switch sess.phase {
	case "auth1":
		sess.phase = "auth2"
		writeJSON(w, map[string]any{
			"session_id": body.SessionID,
			"step":       "auth2",
			"command":    commandEnvelope(0x12, []byte{2}),
		})
	case "auth2":
		sess.authed = true
		result := map[string]any{
			"issue_id":        hex.EncodeToString(s.IssueID),
			"issue_parameter": s.IssueParameter,
		}
		if len(s.SessionKey) > 0 {
			result["session_key"] = hex.EncodeToString(s.SessionKey)
		}
		writeJSON(w, map[string]any{
			"session_id": body.SessionID,
			"step":       "complete",
			"result":     result,
		})
	default:
		writeError(w, http.StatusBadRequest, "handshake already complete")
	}
}

func (s *RelayServer) handleExchange(w http.ResponseWriter, r *http.Request) {
	time.Sleep(s.Delay)

	var body wireBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[body.SessionID]
	if !ok || !sess.authed {
		writeError(w, http.StatusBadRequest, "mutual authentication must be completed first")
		return
	}

	if body.CmdCode != nil {
		payload, err := hex.DecodeString(body.Payload)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload encoding")
			return
		}
		refs, err := parseBlockList(payload)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		sess.pendingRead = refs
		writeJSON(w, map[string]any{
			"session_id": body.SessionID,
			"command":    commandEnvelope(byte(*body.CmdCode), payload),
		})
		return
	}

	if body.CardResponse == "" || sess.pendingRead == nil {
		writeError(w, http.StatusBadRequest, "no exchange in progress")
		return
	}

	refs := sess.pendingRead
	sess.pendingRead = nil

	if len(refs) > 0 {
		if code, refused := s.RefuseService[refs[0].service]; refused {
			writeJSON(w, map[string]any{
				"session_id": body.SessionID,
				"response":   hex.EncodeToString([]byte{byte(code >> 8), byte(code), 0x00}),
			})
			return
		}
	}

	resp := []byte{0x00, 0x00, byte(len(refs))}
	for _, ref := range refs {
		var block [16]byte
		if s.Blocks != nil {
			block = s.Blocks(ref.service, ref.block)
		}
		resp = append(resp, block[:]...)
	}
	writeJSON(w, map[string]any{
		"session_id": body.SessionID,
		"response":   hex.EncodeToString(resp),
	})
}

func parseBlockList(payload []byte) ([]blockRef, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("empty read payload")
	}
	count := int(payload[0])
	if len(payload) != 1+2*count {
		return nil, fmt.Errorf("block list length mismatch")
	}
	refs := make([]blockRef, count)
	for i := range refs {
		refs[i] = blockRef{
			service: int(payload[1+2*i] & 0x0F),
			block:   int(payload[2+2*i]),
		}
	}
	return refs, nil
}

func commandEnvelope(code byte, payload []byte) map[string]any {
	f, _ := frame.EncodeCommand(code, payload)
	return map[string]any{"frame": hex.EncodeToString(f)}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": msg},
	})
}

func writeCardError(w http.ResponseWriter, code uint16) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": int(code), "message": "card refused"},
	})
}
