// SPDX-FileCopyrightText: 2025 The go-felica contributors
// SPDX-License-Identifier: Apache-2.0

// Package frame encodes and decodes raw FeliCa command and response frames.
//
// A wire frame is [LEN][CODE][PAYLOAD...] where LEN counts the whole frame
// including itself. Frames are capped at 255 bytes. The codec is a pure
// transformation; retry policy belongs to the caller.
package frame

import (
	"errors"
	"fmt"
)

// Command and response codes used by this module. The card answers a command
// with code N using code N+1.
const (
	CmdPolling  = 0x00
	RespPolling = 0x01

	// CmdRead is the FeliCa Standard Read command for services that require
	// mutual authentication. The encrypted wrapping is applied by the relay
	// server; this module only ever sees the command code and the plaintext
	// body.
	CmdRead  = 0x14
	RespRead = 0x15
)

const (
	// MaxFrameLen is the largest encodable frame, including the length byte.
	MaxFrameLen = 255

	// BlockSize is the size of one data block on FeliCa Standard cards.
	BlockSize = 16

	// MaxBlocksPerRead is the largest number of blocks one Read command may
	// request.
	MaxBlocksPerRead = 12
)

// ErrMalformedFrame reports a frame whose declared length does not match the
// actual bytes, or that is too short to carry a code at all.
var ErrMalformedFrame = errors.New("malformed frame")

// StatusError is a non-zero status flag pair returned by the card.
type StatusError struct {
	Flag1, Flag2 byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("card returned status 0x%04X", e.Code())
}

// Code returns the combined 16-bit status code (flag1 high, flag2 low).
func (e *StatusError) Code() uint16 {
	return uint16(e.Flag1)<<8 | uint16(e.Flag2)
}

// EncodeCommand builds a wire frame for the given command code and payload.
func EncodeCommand(code byte, payload []byte) ([]byte, error) {
	total := 2 + len(payload)
	if total > MaxFrameLen {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds frame limit", ErrMalformedFrame, len(payload))
	}

	buf := make([]byte, total)
	buf[0] = byte(total)
	buf[1] = code
	copy(buf[2:], payload)
	return buf, nil
}

// DecodeResponse splits a wire frame into its response code and payload. The
// payload aliases raw; callers that retain it must copy.
func DecodeResponse(raw []byte) (code byte, payload []byte, err error) {
	if len(raw) < 2 {
		return 0, nil, fmt.Errorf("%w: want>=2B, got=%dB", ErrMalformedFrame, len(raw))
	}
	if int(raw[0]) != len(raw) {
		return 0, nil, fmt.Errorf("%w: declared %dB, got %dB", ErrMalformedFrame, raw[0], len(raw))
	}
	return raw[1], raw[2:], nil
}
