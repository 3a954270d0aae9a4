// SPDX-FileCopyrightText: 2025 The go-felica contributors
// SPDX-License-Identifier: Apache-2.0

package felica

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/suicakit/go-felica/frame"
	"github.com/suicakit/go-felica/internal/logging"
	"github.com/suicakit/go-felica/relay"
	"github.com/suicakit/go-felica/transport"
)

// State is the position of a session in the authentication handshake.
type State int

const (
	StateIdle State = iota
	StateIdentityRead
	StateChallengeSent
	StateServerChallengeReceived
	StateCardAuthenticated
	StateSessionEstablished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateIdentityRead:
		return "identity read"
	case StateChallengeSent:
		return "challenge sent"
	case StateServerChallengeReceived:
		return "server challenge received"
	case StateCardAuthenticated:
		return "card authenticated"
	case StateSessionEstablished:
		return "session established"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SessionKeys is the sensitive material of an established session: the relay
// correlator and whatever key bytes the server handed back. It never outlives
// its session; every exit path zeroes it.
type SessionKeys struct {
	token    string
	material []byte
}

func (k *SessionKeys) zero() {
	for i := range k.material {
		k.material[i] = 0
	}
	k.material = nil
	k.token = ""
}

// Established reports whether any session material is held.
func (k *SessionKeys) Established() bool {
	return k.token != "" || len(k.material) > 0
}

var (
	errSessionConsumed       = errors.New("session already consumed; start a new one")
	errSessionNotEstablished = errors.New("session not established")
	errMissingIssueIdentity  = errors.New("server completion missing issue identity")
	errUnexpectedServerStep  = errors.New("unexpected server response")
)

const defaultExchangeTimeout = time.Second

// Session is the mutual-authentication state machine for one card
// presentation. It owns the session key material exclusively and is not safe
// for concurrent use: the handshake and the reads it enables are inherently
// serial.
type Session struct {
	tr    transport.Transport
	relay *relay.Client

	state  State
	reason FailureReason

	identity CardIdentity
	keys     SessionKeys

	systemCode      uint16
	areas, services []uint16
	exchangeTimeout time.Duration

	closed bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSystemCode selects a different FeliCa system code.
func WithSystemCode(code uint16) SessionOption {
	return func(s *Session) { s.systemCode = code }
}

// WithNodes replaces the area and service node sets covered by mutual
// authentication.
func WithNodes(areas, services []uint16) SessionOption {
	return func(s *Session) {
		s.areas = append([]uint16(nil), areas...)
		s.services = append([]uint16(nil), services...)
	}
}

// WithExchangeTimeout sets the default card exchange timeout used when the
// server does not dictate one.
func WithExchangeTimeout(d time.Duration) SessionOption {
	return func(s *Session) { s.exchangeTimeout = d }
}

// NewSession builds a session over the given card transport and relay
// client. The session starts in StateIdle; call Establish to run the
// handshake.
func NewSession(tr transport.Transport, rc *relay.Client, opts ...SessionOption) *Session {
	s := &Session{
		tr:              tr,
		relay:           rc,
		systemCode:      SystemCode,
		areas:           append([]uint16(nil), DefaultAreaNodes...),
		services:        append([]uint16(nil), DefaultServiceNodes...),
		exchangeTimeout: defaultExchangeTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current handshake state.
func (s *Session) State() State { return s.state }

// Reason returns the failure reason, or ReasonNone while the session is
// healthy.
func (s *Session) Reason() FailureReason { return s.reason }

// Identity returns the captured card identity. Valid once the session has
// left StateIdle; the issue identity fields fill in at establishment.
func (s *Session) Identity() CardIdentity { return s.identity }

// Close discards the session and zeroes its key material. Safe to call at
// any time and more than once.
func (s *Session) Close() error {
	s.keys.zero()
	s.closed = true
	return nil
}

// fail moves the session to its terminal failure state. Key material is
// zeroed immediately; no transition ever leaves StateFailed.
func (s *Session) fail(reason FailureReason, err error) error {
	from := s.state
	s.keys.zero()
	s.state = StateFailed
	s.reason = reason
	logging.Warnf("session failed in state %q: %s", from, reason)
	return &SessionError{Reason: reason, Err: err}
}

// Establish runs the full handshake: identity read, then the server-driven
// mutual authentication. On success the session is in
// StateSessionEstablished and authenticated reads become available. Any
// failure is terminal.
func (s *Session) Establish(ctx context.Context) error {
	if s.state == StateFailed {
		return &SessionError{Reason: s.reason}
	}
	if s.state != StateIdle || s.closed {
		return errSessionConsumed
	}

	if err := s.readIdentity(ctx); err != nil {
		return err
	}
	return s.authenticate(ctx)
}

// readIdentity performs Idle -> IdentityRead by polling the card.
func (s *Session) readIdentity(ctx context.Context) error {
	cmd := frame.EncodePolling(s.systemCode, 0x00, 0x00)

	raw, err := s.tr.Exchange(ctx, cmd, s.exchangeTimeout)
	switch {
	case err == nil:
	case relay.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded):
		return s.fail(ReasonTimeout, err)
	default:
		// Nothing in the field, or the reader cannot talk to it.
		return s.fail(ReasonNoCard, err)
	}

	code, payload, err := frame.DecodeResponse(raw)
	if err != nil {
		return s.fail(ReasonUnsupportedCard, err)
	}
	poll, err := frame.ParsePollingResponse(code, payload)
	if err != nil {
		return s.fail(ReasonUnsupportedCard, err)
	}

	s.identity = CardIdentity{IDm: poll.IDm, PMm: poll.PMm}
	s.state = StateIdentityRead
	logging.Debugf("card identity read: idm=%s", s.identity.IDmString())
	return nil
}

// authenticate walks IdentityRead -> ... -> SessionEstablished under server
// control. Each server step carries a card command to relay; the card's
// response goes back to the server until it announces completion.
func (s *Session) authenticate(ctx context.Context) error {
	step, err := s.relay.BeginAuth(ctx, relay.AuthRequest{
		SessionID:  s.keys.token,
		IDm:        s.identity.IDm[:],
		PMm:        s.identity.PMm[:],
		SystemCode: s.systemCode,
		Areas:      s.areas,
		Services:   s.services,
	})
	if err != nil {
		return s.failAuth("", err)
	}
	s.adoptToken(step.SessionID)

	for step.Phase != relay.PhaseComplete {
		phase := step.Phase
		if step.Command == nil || (phase != relay.PhaseAuth1 && phase != relay.PhaseAuth2) {
			return s.fail(ReasonAuthenticationFailed, fmt.Errorf("%w: step %q", errUnexpectedServerStep, phase))
		}
		s.state = StateChallengeSent

		cardResp, err := s.exchangeWithCard(ctx, step.Command)
		if err != nil {
			return s.failCardExchange(err)
		}
		s.state = StateServerChallengeReceived

		if step, err = s.relay.ContinueAuth(ctx, s.keys.token, cardResp); err != nil {
			return s.failAuth(phase, err)
		}
		s.adoptToken(step.SessionID)
	}

	if step.Result == nil || len(step.Result.IssueID) != 8 || step.Result.IssueParameter == "" {
		return s.fail(ReasonAuthenticationFailed, errMissingIssueIdentity)
	}
	s.state = StateCardAuthenticated

	copy(s.identity.IDi[:], step.Result.IssueID)
	s.identity.PMi = step.Result.IssueParameter
	s.keys.material = append([]byte(nil), step.Result.SessionKey...)

	s.state = StateSessionEstablished
	logging.Infof("session established: idi=%s", s.identity.IDi)
	return nil
}

// failAuth classifies a relay error during the handshake. phase is the step
// whose card response the server was judging; empty while opening.
func (s *Session) failAuth(phase string, err error) error {
	var statusErr *frame.StatusError
	switch {
	case relay.IsTimeout(err):
		return s.fail(ReasonTimeout, err)
	case errors.As(err, &statusErr):
		// The card's answer was rejected. On the first pass that means the
		// card refused the server's challenge; later it is a handshake
		// failure on either side.
		if phase == relay.PhaseAuth1 {
			return s.fail(ReasonCardRejected, err)
		}
		return s.fail(ReasonAuthenticationFailed, err)
	default:
		return s.fail(ReasonRelayUnreachable, err)
	}
}

// failCardExchange classifies a transport error while relaying a server
// command to the card.
func (s *Session) failCardExchange(err error) error {
	switch {
	case relay.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded):
		return s.fail(ReasonTimeout, err)
	case errors.Is(err, transport.ErrNoCard), errors.Is(err, transport.ErrRemoved):
		return s.fail(ReasonSessionLost, err)
	default:
		return s.fail(ReasonCardRejected, err)
	}
}

func (s *Session) exchangeWithCard(ctx context.Context, cmd *relay.Command) ([]byte, error) {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = s.exchangeTimeout
	}
	logging.Debugf(">> %x", cmd.Frame)
	resp, err := s.tr.Exchange(ctx, cmd.Frame, timeout)
	if err != nil {
		return nil, err
	}
	logging.Debugf("<< %x", resp)
	return resp, nil
}

func (s *Session) adoptToken(token string) {
	if token != "" {
		s.keys.token = token
	}
}

// ReadBlocks performs one authenticated read of the given blocks within a
// service (by service index into the authenticated node set). Reads are
// chunked to the card's per-command block limit. A card-level refusal is
// returned as a *frame.StatusError and leaves the session usable; transport
// loss or a timeout is terminal.
func (s *Session) ReadBlocks(ctx context.Context, serviceIndex int, blocks []int) ([][]byte, error) {
	if s.state != StateSessionEstablished {
		if s.state == StateFailed {
			return nil, &SessionError{Reason: s.reason}
		}
		return nil, errSessionNotEstablished
	}

	var out [][]byte
	for start := 0; start < len(blocks); start += frame.MaxBlocksPerRead {
		end := min(start+frame.MaxBlocksPerRead, len(blocks))
		chunk, err := s.readChunk(ctx, serviceIndex, blocks[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func (s *Session) readChunk(ctx context.Context, serviceIndex int, blocks []int) ([][]byte, error) {
	payload, err := frame.EncodeReadPayload(serviceIndex, blocks)
	if err != nil {
		return nil, err
	}

	step, err := s.relay.BeginExchange(ctx, s.keys.token, frame.CmdRead, payload, s.exchangeTimeout)
	if err != nil {
		return nil, s.classifyReadError(err)
	}
	s.adoptToken(step.SessionID)
	if step.Command == nil {
		return nil, fmt.Errorf("%w: missing card command", errUnexpectedServerStep)
	}

	cardResp, err := s.exchangeWithCard(ctx, step.Command)
	if err != nil {
		return nil, s.failCardExchange(err)
	}

	token, plain, err := s.relay.FinishExchange(ctx, s.keys.token, cardResp)
	if err != nil {
		return nil, s.classifyReadError(err)
	}
	s.adoptToken(token)

	return frame.ParseReadResponse(plain, len(blocks))
}

// classifyReadError decides whether a relay error during a read is fatal to
// the session. Timeouts are: the card-side session state is gone by the time
// we could retry. Card status refusals and plain server errors only fail the
// current read.
func (s *Session) classifyReadError(err error) error {
	if relay.IsTimeout(err) {
		return s.fail(ReasonTimeout, err)
	}
	return err
}
