// SPDX-FileCopyrightText: 2025 The go-felica contributors
// SPDX-License-Identifier: Apache-2.0

// Package relay speaks the two-endpoint protocol of the remote FeliCa
// authentication server: POST /mutual-authentication and
// POST /encryption-exchange under a configurable base URL.
//
// Bodies are JSON with hex-encoded card frames. The server threads a
// session_id correlator through every response; callers must round-trip it
// unchanged. The client performs single blocking request/response calls and
// never retries; retry policy belongs to the session engine.
package relay

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/suicakit/go-felica/frame"
	"github.com/suicakit/go-felica/internal/logging"
)

const (
	pathMutualAuth = "/mutual-authentication"
	pathExchange   = "/encryption-exchange"

	defaultHTTPTimeout = 10 * time.Second

	maxResponseBytes = 1 << 20
)

// Handshake phases announced by the server.
const (
	PhaseAuth1    = "auth1"
	PhaseAuth2    = "auth2"
	PhaseComplete = "complete"
)

// Error is a relay-level failure: the server was unreachable, answered with
// a non-2xx status, or returned a body the client cannot use.
type Error struct {
	StatusCode int // zero when no HTTP response was received
	Message    string
	cause      error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("relay: %d: %s", e.StatusCode, e.Message)
	}
	return "relay: " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// IsTimeout reports whether err stems from an HTTP or context deadline.
func IsTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Command is a card command frame the server wants relayed, with an optional
// per-exchange timeout.
type Command struct {
	Frame   []byte
	Timeout time.Duration
}

// AuthResult is the payload of a completed mutual authentication.
type AuthResult struct {
	IssueID        []byte
	IssueParameter string
	SessionKey     []byte
}

// Step is one server response during the handshake or an exchange: either a
// command to relay (with a phase during authentication), a completion result,
// or a plaintext response.
type Step struct {
	SessionID string
	Phase     string
	Command   *Command
	Result    *AuthResult
	Response  []byte
}

// AuthRequest opens a mutual authentication for one card presentation.
type AuthRequest struct {
	SessionID  string
	IDm        []byte
	PMm        []byte
	SystemCode uint16
	Areas      []uint16
	Services   []uint16
}

// Client talks to one relay server. It is stateless beyond the underlying
// HTTP connection pool and safe to reuse across sessions.
type Client struct {
	base string
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds every relay call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// NewClient validates the base URL (http or https, no trailing slash is
// kept) and builds a client.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, &Error{Message: "invalid base URL", cause: err}
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, &Error{Message: "base URL must use http or https"}
	}
	if u.Host == "" {
		return nil, &Error{Message: "base URL missing hostname"}
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""

	c := &Client{
		base: u.String(),
		http: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BeginAuth opens the mutual authentication and returns the server's first
// step.
func (c *Client) BeginAuth(ctx context.Context, req AuthRequest) (*Step, error) {
	body := stepRequest{
		SessionID:  req.SessionID,
		IDm:        hex.EncodeToString(req.IDm),
		PMm:        hex.EncodeToString(req.PMm),
		SystemCode: int(req.SystemCode),
		Areas:      toInts(req.Areas),
		Services:   toInts(req.Services),
	}
	return c.post(ctx, pathMutualAuth, body)
}

// ContinueAuth forwards the card's response to the previous authentication
// command.
func (c *Client) ContinueAuth(ctx context.Context, sessionID string, cardResponse []byte) (*Step, error) {
	return c.post(ctx, pathMutualAuth, stepRequest{
		SessionID:    sessionID,
		CardResponse: hex.EncodeToString(cardResponse),
	})
}

// BeginExchange asks the server to wrap one encrypted command. The returned
// step carries the card command frame to relay.
func (c *Client) BeginExchange(ctx context.Context, sessionID string, cmdCode byte, payload []byte, timeout time.Duration) (*Step, error) {
	body := stepRequest{
		SessionID: sessionID,
		CmdCode:   intPtr(int(cmdCode)),
		Payload:   hex.EncodeToString(payload),
	}
	if timeout > 0 {
		body.Timeout = timeout.Seconds()
	}
	return c.post(ctx, pathExchange, body)
}

// FinishExchange forwards the card's response and returns the decrypted
// plaintext body together with the (possibly rolled) session id.
func (c *Client) FinishExchange(ctx context.Context, sessionID string, cardResponse []byte) (string, []byte, error) {
	step, err := c.post(ctx, pathExchange, stepRequest{
		SessionID:    sessionID,
		CardResponse: hex.EncodeToString(cardResponse),
	})
	if err != nil {
		return "", nil, err
	}
	if step.Response == nil {
		return "", nil, &Error{Message: "server response missing plaintext"}
	}
	return step.SessionID, step.Response, nil
}

type stepRequest struct {
	SessionID    string  `json:"session_id,omitempty"`
	IDm          string  `json:"idm,omitempty"`
	PMm          string  `json:"pmm,omitempty"`
	SystemCode   int     `json:"system_code,omitempty"`
	Areas        []int   `json:"areas,omitempty"`
	Services     []int   `json:"services,omitempty"`
	CmdCode      *int    `json:"cmd_code,omitempty"`
	Payload      string  `json:"payload,omitempty"`
	CardResponse string  `json:"card_response,omitempty"`
	Timeout      float64 `json:"timeout,omitempty"`
}

type wireCommand struct {
	Frame   string   `json:"frame"`
	Timeout *float64 `json:"timeout"`
}

type wireResult struct {
	IssueID        string `json:"issue_id"`
	IDi            string `json:"idi"`
	IssueParameter string `json:"issue_parameter"`
	PMi            string `json:"pmi"`
	SessionKey     string `json:"session_key"`
}

type wireError struct {
	Code    *int   `json:"code"`
	Message string `json:"message"`
}

type wireResponse struct {
	SessionID string       `json:"session_id"`
	Step      string       `json:"step"`
	Command   *wireCommand `json:"command"`
	Result    *wireResult  `json:"result"`
	Response  *string      `json:"response"`
	Error     *wireError   `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, body stepRequest) (*Step, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Message: "failed to encode request", cause: err}
	}

	logging.Debugf("POST %s%s session=%s", c.base, path, body.SessionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(buf))
	if err != nil {
		return nil, &Error{Message: "failed to build request", cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Message: "failed to reach server", cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Message: "failed to read response", cause: err}
	}

	var decoded wireResponse
	if jerr := json.Unmarshal(data, &decoded); jerr != nil {
		if resp.StatusCode >= 400 {
			return nil, &Error{StatusCode: resp.StatusCode, Message: resp.Status}
		}
		return nil, &Error{Message: "server returned invalid JSON", cause: jerr}
	}

	if decoded.Error != nil {
		if decoded.Error.Code != nil {
			code := *decoded.Error.Code
			return nil, &frame.StatusError{Flag1: byte(code >> 8), Flag2: byte(code)}
		}
		msg := decoded.Error.Message
		if msg == "" {
			msg = "server reported an error"
		}
		return nil, &Error{StatusCode: resp.StatusCode, Message: msg}
	}
	if resp.StatusCode >= 400 {
		return nil, &Error{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	return decodeStep(&decoded)
}

func decodeStep(w *wireResponse) (*Step, error) {
	step := &Step{
		SessionID: w.SessionID,
		Phase:     w.Step,
	}

	if w.Command != nil {
		f, err := hex.DecodeString(w.Command.Frame)
		if err != nil {
			return nil, &Error{Message: "invalid command frame encoding", cause: err}
		}
		cmd := &Command{Frame: f}
		if w.Command.Timeout != nil {
			cmd.Timeout = time.Duration(*w.Command.Timeout * float64(time.Second))
		}
		step.Command = cmd
	}

	if w.Result != nil {
		res := &AuthResult{}
		idi := firstNonEmpty(w.Result.IssueID, w.Result.IDi)
		if idi != "" {
			b, err := hex.DecodeString(idi)
			if err != nil {
				return nil, &Error{Message: "issue id is not valid hex", cause: err}
			}
			res.IssueID = b
		}
		res.IssueParameter = strings.ToUpper(firstNonEmpty(w.Result.IssueParameter, w.Result.PMi))
		if w.Result.SessionKey != "" {
			b, err := hex.DecodeString(w.Result.SessionKey)
			if err != nil {
				return nil, &Error{Message: "session key is not valid hex", cause: err}
			}
			res.SessionKey = b
		}
		step.Result = res
	}

	if w.Response != nil {
		b, err := hex.DecodeString(*w.Response)
		if err != nil {
			return nil, &Error{Message: "invalid response encoding", cause: err}
		}
		step.Response = b
	}

	return step, nil
}

func toInts(vs []uint16) []int {
	out := make([]int, len(vs))
	for i, v := range vs {
		out[i] = int(v)
	}
	return out
}

func intPtr(v int) *int { return &v }

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
