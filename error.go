// SPDX-FileCopyrightText: 2025 The go-felica contributors
// SPDX-License-Identifier: Apache-2.0

package felica

import (
	"errors"
	"fmt"
)

// FailureReason is the terminal reason of a failed session.
type FailureReason int

const (
	ReasonNone FailureReason = iota
	ReasonNoCard
	ReasonUnsupportedCard
	ReasonRelayUnreachable
	ReasonCardRejected
	ReasonAuthenticationFailed
	ReasonTimeout
	ReasonSessionLost
)

func (r FailureReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNoCard:
		return "no card"
	case ReasonUnsupportedCard:
		return "unsupported card"
	case ReasonRelayUnreachable:
		return "relay unreachable"
	case ReasonCardRejected:
		return "card rejected"
	case ReasonAuthenticationFailed:
		return "authentication failed"
	case ReasonTimeout:
		return "timeout"
	case ReasonSessionLost:
		return "session lost"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// FailureClass groups failure reasons by the action the user can take.
type FailureClass int

const (
	// ClassNone means the session did not fail.
	ClassNone FailureClass = iota

	// ClassNetwork means the relay server or network configuration needs
	// attention.
	ClassNetwork

	// ClassCard means re-presenting the card may help.
	ClassCard

	// ClassUnsupported means this card family cannot be read at all.
	ClassUnsupported
)

// Class maps a failure reason to the user-facing action it calls for.
func (r FailureReason) Class() FailureClass {
	switch r {
	case ReasonRelayUnreachable, ReasonTimeout:
		return ClassNetwork
	case ReasonNoCard, ReasonCardRejected, ReasonAuthenticationFailed, ReasonSessionLost:
		return ClassCard
	case ReasonUnsupportedCard:
		return ClassUnsupported
	default:
		return ClassNone
	}
}

// SessionError is the error a session terminates with. Reaching it is final:
// the caller must start a new session with a fresh card presentation.
type SessionError struct {
	Reason FailureReason
	Err    error
}

func (e *SessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session failed: %s: %v", e.Reason, e.Err)
	}
	return "session failed: " + e.Reason.String()
}

func (e *SessionError) Unwrap() error { return e.Err }

// ReasonOf extracts the failure reason from err, or ReasonNone when err does
// not carry one.
func ReasonOf(err error) FailureReason {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Reason
	}
	return ReasonNone
}
