// SPDX-FileCopyrightText: 2025 The go-felica contributors
// SPDX-License-Identifier: Apache-2.0

// Package transport defines the capability used to exchange raw frames with
// a physical card. Implementations live in subpackages; tests use the
// felicatest package.
package transport

import (
	"context"
	"errors"
	"time"
)

// Transport sends one raw command frame to a card and returns its raw
// response frame. Exchange blocks for at most the given timeout; the context
// cancels between exchanges, not mid-transmit.
type Transport interface {
	Exchange(ctx context.Context, frame []byte, timeout time.Duration) ([]byte, error)
	Close() error
}

var (
	// ErrNoCard means no card responded in the reader's field.
	ErrNoCard = errors.New("no card in the field")

	// ErrRemoved means the card left the field mid-session.
	ErrRemoved = errors.New("card removed")

	// ErrIO wraps any other reader-level failure.
	ErrIO = errors.New("transport failure")
)
